package catalog

import (
	"strings"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()

	c := Default()
	if c.Len() != 12 {
		t.Fatalf("Default().Len() = %d, want 12", c.Len())
	}
	if c.ImageCount() != 17 {
		t.Fatalf("Default().ImageCount() = %d, want 17", c.ImageCount())
	}
	for i, q := range c.Questions() {
		if q.ID != i+1 {
			t.Errorf("question %d has id %d, want sequential ids", i, q.ID)
		}
	}
	q := c.Question(2)
	if q == nil || q.Type != QuestionTypeMultiple || q.SelectionLimit() != 3 {
		t.Errorf("question 2 = %+v, want multiple choice with limit 3", q)
	}
	if q := c.Question(11); q == nil || q.SelectionLimit() != DefaultMaxSelections {
		t.Errorf("question 11 should fall back to the default selection limit")
	}
	if q := c.Question(1); q == nil || q.SelectionLimit() != 1 {
		t.Errorf("single choice questions must allow exactly one selection")
	}
	if c.Question(99) != nil {
		t.Error("Question(99) should be nil")
	}
}

func TestHasImage(t *testing.T) {
	t.Parallel()

	c := Default()
	tests := []struct {
		name string
		want bool
	}{
		{"01_gyeongbokgung.jpg", true},
		{"11_gwangjangMarket.JPG", true},
		{"12_DDP(DongdaemunDesignPlaza).jpg", true},
		{"11_gwangjangMarket.jpg", false},
		{"99_fake.jpg", false},
		{"", false},
		{"../01_gyeongbokgung.jpg", false},
	}
	for _, tt := range tests {
		if got := c.HasImage(tt.name); got != tt.want {
			t.Errorf("HasImage(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOptionText(t *testing.T) {
	t.Parallel()

	c := Default()
	if text, ok := c.OptionText(6, 0); !ok || text != "Subway and buses" {
		t.Errorf("OptionText(6, 0) = %q, %v", text, ok)
	}
	if _, ok := c.OptionText(6, 4); ok {
		t.Error("OptionText(6, 4) should be out of range")
	}
	if _, ok := c.OptionText(6, -1); ok {
		t.Error("OptionText(6, -1) should be out of range")
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "no questions",
			doc:     "questions: []\n",
			wantErr: "no questions",
		},
		{
			name: "duplicate id",
			doc: `questions:
  - {id: 1, question: a, type: single, options: [x]}
  - {id: 1, question: b, type: single, options: [y]}
`,
			wantErr: "duplicate question id",
		},
		{
			name:    "unknown type",
			doc:     "questions:\n  - {id: 1, question: a, type: ranking, options: [x]}\n",
			wantErr: "unknown type",
		},
		{
			name:    "no options",
			doc:     "questions:\n  - {id: 1, question: a, type: single, options: []}\n",
			wantErr: "no options",
		},
		{
			name:    "max selections beyond options",
			doc:     "questions:\n  - {id: 1, question: a, type: multiple, maxSelections: 5, options: [x, y]}\n",
			wantErr: "maxSelections",
		},
		{
			name:    "duplicate image",
			doc:     "questions:\n  - {id: 1, question: a, type: single, options: [x]}\nimages: [a.jpg, a.jpg]\n",
			wantErr: "duplicate image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestQuestionsReturnsCopy(t *testing.T) {
	t.Parallel()

	c := Default()
	qs := c.Questions()
	qs[0].Question = "tampered"
	if c.Question(1).Question == "tampered" {
		t.Error("Questions() must not expose internal state")
	}
}

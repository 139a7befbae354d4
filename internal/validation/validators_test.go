package validation

import (
	"math"
	"strings"
	"testing"

	"github.com/benvon/smart-survey/internal/catalog"
	"github.com/benvon/smart-survey/internal/models"
	"github.com/google/uuid"
)

func ptr[T any](v T) *T { return &v }

func TestIsValidSessionID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"fresh v4", models.SessionIDPrefix + uuid.NewString(), true},
		{"uppercase hex", "session_" + strings.ToUpper("3f2b8c1e-9d4a-4b7e-8c2d-1a2b3c4d5e6f"), true},
		{"empty", "", false},
		{"no prefix", "3f2b8c1e-9d4a-4b7e-8c2d-1a2b3c4d5e6f", false},
		{"wrong prefix", "sess_3f2b8c1e-9d4a-4b7e-8c2d-1a2b3c4d5e6f", false},
		{"version 1", "session_3f2b8c1e-9d4a-1b7e-8c2d-1a2b3c4d5e6f", false},
		{"bad variant", "session_3f2b8c1e-9d4a-4b7e-cc2d-1a2b3c4d5e6f", false},
		{"trailing junk", "session_3f2b8c1e-9d4a-4b7e-8c2d-1a2b3c4d5e6fzz", false},
		{"non hex", "session_3f2b8c1e-9d4a-4b7e-8c2d-1a2b3c4d5e6g", false},
		{"too long", "session_" + strings.Repeat("a", 60), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsValidSessionID(tt.id); got != tt.want {
				t.Errorf("IsValidSessionID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestFreshSessionIDsAlwaysValidate(t *testing.T) {
	t.Parallel()
	for i := 0; i < 200; i++ {
		id := models.SessionIDPrefix + uuid.NewString()
		if err := ValidateSessionID(id); err != nil {
			t.Fatalf("ValidateSessionID(%q) = %v", id, err)
		}
	}
}

func TestValidateSessionIDMessages(t *testing.T) {
	t.Parallel()
	if err := ValidateSessionID(""); err == nil || err.Error() != "Session ID is required" {
		t.Errorf("empty id error = %v", err)
	}
	if err := ValidateSessionID("session_nope"); err == nil || err.Error() != "Invalid session ID format" {
		t.Errorf("malformed id error = %v", err)
	}
}

func TestValidateAnswersSelectionBoundaries(t *testing.T) {
	t.Parallel()

	cat := catalog.Default()
	tests := []struct {
		name    string
		answers []models.Answer
		wantErr string
	}{
		{"single with one", []models.Answer{{QuestionID: 1, Answers: []int{0}}}, ""},
		{"single with zero", []models.Answer{{QuestionID: 1, Answers: []int{}}}, "exactly 1 answer"},
		{"single with two", []models.Answer{{QuestionID: 1, Answers: []int{0, 1}}}, "exactly 1 answer"},
		{"multiple with one", []models.Answer{{QuestionID: 2, Answers: []int{0}}}, ""},
		{"multiple with two", []models.Answer{{QuestionID: 2, Answers: []int{0, 1}}}, ""},
		{"multiple with three", []models.Answer{{QuestionID: 2, Answers: []int{0, 1, 2}}}, ""},
		{"multiple with zero", []models.Answer{{QuestionID: 2, Answers: []int{}}}, "requires at least 1 answer"},
		{"multiple with four", []models.Answer{{QuestionID: 2, Answers: []int{0, 1, 2, 3}}}, "exceeds max selections (3)"},
		{"custom limit of two", []models.Answer{{QuestionID: 8, Answers: []int{0, 1, 2}}}, "exceeds max selections (2)"},
		{"default limit", []models.Answer{{QuestionID: 11, Answers: []int{0, 1, 2, 3}}}, "exceeds max selections (3)"},
		{"index out of range", []models.Answer{{QuestionID: 3, Answers: []int{3}}}, "out of range"},
		{"negative index", []models.Answer{{QuestionID: 3, Answers: []int{-1}}}, "out of range"},
		{"repeated index", []models.Answer{{QuestionID: 2, Answers: []int{1, 1}}}, "repeated"},
		{"unknown question", []models.Answer{{QuestionID: 99, Answers: []int{0}}}, "does not exist"},
		{"zero question id", []models.Answer{{QuestionID: 0, Answers: []int{0}}}, "Invalid questionId"},
		{"duplicate question", []models.Answer{{QuestionID: 1, Answers: []int{0}}, {QuestionID: 1, Answers: []int{1}}}, "Duplicate answer"},
		{"nil answers", nil, "must be an array"},
		{"thinking time ok", []models.Answer{{QuestionID: 1, Answers: []int{0}, ThinkingTime: ptr(12.5)}}, ""},
		{"thinking time negative", []models.Answer{{QuestionID: 1, Answers: []int{0}, ThinkingTime: ptr(-1.0)}}, "cannot be negative"},
		{"thinking time too long", []models.Answer{{QuestionID: 1, Answers: []int{0}, ThinkingTime: ptr(3600.5)}}, "cannot exceed 3600"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateAnswers(tt.answers, cat)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateAnswers() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateAnswers() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAnswersFullCatalog(t *testing.T) {
	t.Parallel()

	cat := catalog.Default()
	var answers []models.Answer
	for _, q := range cat.Questions() {
		answers = append(answers, models.Answer{QuestionID: q.ID, Answers: []int{0}, ThinkingTime: ptr(3.0)})
	}
	if err := ValidateAnswers(answers, cat); err != nil {
		t.Fatalf("ValidateAnswers(full catalog) = %v", err)
	}

	tooMany := append(answers, models.Answer{QuestionID: 1, Answers: []int{0}})
	if err := ValidateAnswers(tooMany, cat); err == nil || !strings.Contains(err.Error(), "Too many answers") {
		t.Errorf("ValidateAnswers(too many) = %v", err)
	}
}

func TestValidatePartialAnswersAllowsEmptySelections(t *testing.T) {
	t.Parallel()

	cat := catalog.Default()
	if err := ValidatePartialAnswers(nil, cat); err != nil {
		t.Errorf("nil partial answers should pass, got %v", err)
	}
	answers := []models.Answer{
		{QuestionID: 1, Answers: []int{2}},
		{QuestionID: 2, Answers: []int{}},
	}
	if err := ValidatePartialAnswers(answers, cat); err != nil {
		t.Errorf("ValidatePartialAnswers() = %v", err)
	}
	answers = append(answers, models.Answer{QuestionID: 3, Answers: []int{7}})
	if err := ValidatePartialAnswers(answers, cat); err == nil {
		t.Error("out of range index must still fail for partial answers")
	}
}

func TestValidateThinkingTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   *float64
		want    float64
		wantErr bool
	}{
		{"nil", nil, 0, false},
		{"zero", ptr(0.0), 0, false},
		{"ceiling", ptr(3600.0), 3600, false},
		{"negative", ptr(-0.1), 0, true},
		{"over ceiling", ptr(3601.0), 0, true},
		{"nan", ptr(math.NaN()), 0, true},
		{"inf", ptr(math.Inf(1)), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ValidateThinkingTime(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateThinkingTime() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ValidateThinkingTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateEnums(t *testing.T) {
	t.Parallel()

	if err := ValidateDemographics(models.Demographics{}); err != nil {
		t.Errorf("nil demographics should pass, got %v", err)
	}
	ok := models.Demographics{
		Gender:   ptr("Prefer not to answer"),
		AgeGroup: ptr("60+"),
		Region:   ptr("North America (USA, Canada)"),
	}
	if err := ValidateDemographics(ok); err != nil {
		t.Errorf("valid demographics failed: %v", err)
	}

	bad := []struct {
		name string
		d    models.Demographics
		msg  string
	}{
		{"lowercase gender", models.Demographics{Gender: ptr("male")}, "Invalid gender value"},
		{"empty gender", models.Demographics{Gender: ptr("")}, "Invalid gender value"},
		{"age group", models.Demographics{AgeGroup: ptr("70s")}, "Invalid age group value"},
		{"partial region", models.Demographics{Region: ptr("Europe ")}, "Invalid region value"},
	}
	for _, tt := range bad {
		if err := ValidateDemographics(tt.d); err == nil || err.Error() != tt.msg {
			t.Errorf("%s: error = %v, want %q", tt.name, err, tt.msg)
		}
	}

	if err := ValidateRating("good"); err != nil {
		t.Errorf("ValidateRating(good) = %v", err)
	}
	if err := ValidateRating("GOOD"); err == nil {
		t.Error("ValidateRating must not fold case")
	}
}

func TestStructUsesCustomTags(t *testing.T) {
	t.Parallel()

	type payload struct {
		SessionID string `json:"sessionId" validate:"required,session_id"`
		Rating    string `json:"rating" validate:"required,rating"`
		models.Demographics
	}

	valid := payload{SessionID: "session_" + uuid.NewString(), Rating: "soso"}
	if err := Struct(valid); err != nil {
		t.Fatalf("Struct(valid) = %v", err)
	}

	tests := []struct {
		name string
		p    payload
		want string
	}{
		{"missing session", payload{Rating: "good"}, "sessionId is required"},
		{"bad session", payload{SessionID: "session_x", Rating: "good"}, "Invalid session ID format"},
		{"bad rating", payload{SessionID: valid.SessionID, Rating: "bad"}, `Rating must be either "good" or "soso"`},
		{"bad region", payload{SessionID: valid.SessionID, Rating: "good", Demographics: models.Demographics{Region: ptr("Mars")}}, "Invalid region value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Struct(tt.p)
			if err == nil || err.Error() != tt.want {
				t.Errorf("Struct() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestValidateImageFilename(t *testing.T) {
	t.Parallel()

	cat := catalog.Default()
	if err := ValidateImageFilename("10_coex.jpg", cat); err != nil {
		t.Errorf("allow-listed filename rejected: %v", err)
	}
	if err := ValidateImageFilename("99_fake.jpg", cat); err == nil {
		t.Error("99_fake.jpg must be rejected")
	}
	if err := ValidateImageFilename("", cat); err == nil {
		t.Error("empty filename must be rejected")
	}
}

func TestRangeHelpers(t *testing.T) {
	t.Parallel()

	if err := ValidateNumberRange(ptr(86400.0), 0, MaxSessionSeconds, "timeSpent"); err != nil {
		t.Errorf("ceiling rejected: %v", err)
	}
	if err := ValidateNumberRange(ptr(86401.0), 0, MaxSessionSeconds, "timeSpent"); err == nil || err.Error() != "timeSpent must be between 0 and 86400" {
		t.Errorf("over ceiling error = %v", err)
	}
	if err := ValidateIntRange(ptr(-1), 0, 12, "currentQuestionIndex"); err == nil {
		t.Error("negative index must fail")
	}
	if err := ValidateNumberRange(nil, 0, 1, "x"); err != nil {
		t.Errorf("nil must pass, got %v", err)
	}
	if err := ValidateStringLength(ptr("héllo"), 5, "name"); err != nil {
		t.Errorf("5 runes should fit in 5, got %v", err)
	}
	if err := ValidateStringLength(ptr("héllo!"), 5, "name"); err == nil {
		t.Error("6 runes must not fit in 5")
	}
}

func TestSanitizeText(t *testing.T) {
	t.Parallel()
	if got := SanitizeText("  a\x00b\tc\n "); got != "ab\tc" {
		t.Errorf("SanitizeText() = %q", got)
	}
}

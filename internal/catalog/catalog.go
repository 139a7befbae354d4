// Package catalog holds the server side question catalog and image list.
// Submitted answers are checked against it; client supplied question text
// is never used.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// QuestionType distinguishes single and multiple choice questions.
type QuestionType string

const (
	QuestionTypeSingle   QuestionType = "single"
	QuestionTypeMultiple QuestionType = "multiple"
)

// DefaultMaxSelections applies to multiple choice questions without an explicit limit.
const DefaultMaxSelections = 3

// Question is one catalog entry.
type Question struct {
	ID            int          `yaml:"id" json:"id"`
	Question      string       `yaml:"question" json:"question"`
	Type          QuestionType `yaml:"type" json:"type"`
	MaxSelections int          `yaml:"maxSelections,omitempty" json:"maxSelections,omitempty"`
	Options       []string     `yaml:"options" json:"options"`
}

// SelectionLimit returns the maximum number of options that may be selected.
func (q *Question) SelectionLimit() int {
	if q.Type == QuestionTypeSingle {
		return 1
	}
	if q.MaxSelections > 0 {
		return q.MaxSelections
	}
	return DefaultMaxSelections
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	questions []Question
	byID      map[int]*Question
	images    []string
	imageSet  map[string]struct{}
}

type document struct {
	Questions []Question `yaml:"questions"`
	Images    []string   `yaml:"images"`
}

//go:embed questions.yaml
var defaultYAML []byte

var defaultCatalog *Catalog

func init() {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("failed to parse embedded catalog: %v", err))
	}
	defaultCatalog = c
}

// Default returns the embedded catalog.
func Default() *Catalog {
	return defaultCatalog
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and checks a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(doc.Questions) == 0 {
		return nil, fmt.Errorf("catalog has no questions")
	}

	c := &Catalog{
		byID:     make(map[int]*Question, len(doc.Questions)),
		imageSet: make(map[string]struct{}, len(doc.Images)),
	}

	c.questions = make([]Question, len(doc.Questions))
	copy(c.questions, doc.Questions)
	sort.SliceStable(c.questions, func(i, j int) bool { return c.questions[i].ID < c.questions[j].ID })

	for i := range c.questions {
		q := &c.questions[i]
		if q.ID < 1 {
			return nil, fmt.Errorf("question id must be positive, got %d", q.ID)
		}
		if _, dup := c.byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %d", q.ID)
		}
		if len(q.Options) == 0 {
			return nil, fmt.Errorf("question %d has no options", q.ID)
		}
		switch q.Type {
		case QuestionTypeSingle:
		case QuestionTypeMultiple:
			if q.MaxSelections < 0 || q.MaxSelections > len(q.Options) {
				return nil, fmt.Errorf("question %d: maxSelections %d out of range", q.ID, q.MaxSelections)
			}
		default:
			return nil, fmt.Errorf("question %d: unknown type %q", q.ID, q.Type)
		}
		c.byID[q.ID] = q
	}

	for _, img := range doc.Images {
		if img == "" {
			return nil, fmt.Errorf("empty image filename")
		}
		if _, dup := c.imageSet[img]; dup {
			return nil, fmt.Errorf("duplicate image %q", img)
		}
		c.imageSet[img] = struct{}{}
		c.images = append(c.images, img)
	}

	return c, nil
}

// Len returns the number of questions.
func (c *Catalog) Len() int {
	return len(c.questions)
}

// Question returns the question with id, or nil.
func (c *Catalog) Question(id int) *Question {
	return c.byID[id]
}

// Questions returns a copy of the questions ordered by id.
func (c *Catalog) Questions() []Question {
	out := make([]Question, len(c.questions))
	copy(out, c.questions)
	return out
}

// OptionText returns the text of option idx of question id.
func (c *Catalog) OptionText(id, idx int) (string, bool) {
	q := c.byID[id]
	if q == nil || idx < 0 || idx >= len(q.Options) {
		return "", false
	}
	return q.Options[idx], true
}

// HasImage reports whether name is on the image allow-list. Matching is exact.
func (c *Catalog) HasImage(name string) bool {
	_, ok := c.imageSet[name]
	return ok
}

// Images returns the image allow-list in catalog order.
func (c *Catalog) Images() []string {
	out := make([]string, len(c.images))
	copy(out, c.images)
	return out
}

// ImageCount returns the number of images.
func (c *Catalog) ImageCount() int {
	return len(c.images)
}

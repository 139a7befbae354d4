package validation

import (
	"fmt"
	"math"

	"github.com/benvon/smart-survey/internal/catalog"
	"github.com/benvon/smart-survey/internal/models"
)

const (
	// MaxQuestionThinkingSeconds caps the time recorded for a single question.
	MaxQuestionThinkingSeconds = 3600
	// MaxSessionSeconds caps the whole-session time reported by a dropout.
	MaxSessionSeconds = 86400
)

// ValidateAnswers checks a completed submission against the catalog.
// Every answer must reference a distinct catalog question, respect the
// question's selection rules and use in-range option indexes.
func ValidateAnswers(answers []models.Answer, cat *catalog.Catalog) error {
	return validateAnswers(answers, cat, false)
}

// ValidatePartialAnswers checks the answers carried by a dropout report.
// Unlike ValidateAnswers, a question may have no selection yet.
func ValidatePartialAnswers(answers []models.Answer, cat *catalog.Catalog) error {
	return validateAnswers(answers, cat, true)
}

func validateAnswers(answers []models.Answer, cat *catalog.Catalog, allowEmpty bool) error {
	if answers == nil {
		if allowEmpty {
			return nil
		}
		return fmt.Errorf("Answers must be an array")
	}
	if len(answers) > cat.Len() {
		return fmt.Errorf("Too many answers: %d > %d", len(answers), cat.Len())
	}

	seen := make(map[int]bool, len(answers))
	for _, a := range answers {
		if a.QuestionID < 1 {
			return fmt.Errorf("Invalid questionId: %d", a.QuestionID)
		}
		q := cat.Question(a.QuestionID)
		if q == nil {
			return fmt.Errorf("Question ID %d does not exist", a.QuestionID)
		}
		if seen[a.QuestionID] {
			return fmt.Errorf("Duplicate answer for questionId %d", a.QuestionID)
		}
		seen[a.QuestionID] = true

		if err := validateSelectionCount(q, len(a.Answers), allowEmpty); err != nil {
			return err
		}

		picked := make(map[int]bool, len(a.Answers))
		for _, idx := range a.Answers {
			if idx < 0 || idx >= len(q.Options) {
				return fmt.Errorf("Answer index %d out of range for questionId %d", idx, a.QuestionID)
			}
			if picked[idx] {
				return fmt.Errorf("Answer index %d repeated for questionId %d", idx, a.QuestionID)
			}
			picked[idx] = true
		}

		if a.ThinkingTime != nil {
			if _, err := ValidateThinkingTime(a.ThinkingTime); err != nil {
				return fmt.Errorf("Invalid thinkingTime for questionId %d: %w", a.QuestionID, err)
			}
		}
	}
	return nil
}

func validateSelectionCount(q *catalog.Question, n int, allowEmpty bool) error {
	if n == 0 && allowEmpty {
		return nil
	}
	if q.Type == catalog.QuestionTypeSingle {
		if n != 1 {
			return fmt.Errorf("Single choice question %d must have exactly 1 answer", q.ID)
		}
		return nil
	}
	limit := q.SelectionLimit()
	if n > limit {
		return fmt.Errorf("Question %d exceeds max selections (%d)", q.ID, limit)
	}
	if n < 1 {
		return fmt.Errorf("Question %d requires at least 1 answer", q.ID)
	}
	return nil
}

// ValidateThinkingTime returns the seconds value of an optional thinking
// time. nil yields 0.
func ValidateThinkingTime(v *float64) (float64, error) {
	if v == nil {
		return 0, nil
	}
	t := *v
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, fmt.Errorf("Thinking time must be a number")
	}
	if t < 0 {
		return 0, fmt.Errorf("Thinking time cannot be negative")
	}
	if t > MaxQuestionThinkingSeconds {
		return 0, fmt.Errorf("Thinking time cannot exceed %d seconds", MaxQuestionThinkingSeconds)
	}
	return t, nil
}

// ValidateNumberRange checks an optional number against [lo, hi].
func ValidateNumberRange(v *float64, lo, hi float64, fieldName string) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return fmt.Errorf("%s must be a number", fieldName)
	}
	if *v < lo || *v > hi {
		return fmt.Errorf("%s must be between %s and %s", fieldName, formatNumber(lo), formatNumber(hi))
	}
	return nil
}

// ValidateIntRange checks an optional integer against [lo, hi].
func ValidateIntRange(v *int, lo, hi int, fieldName string) error {
	if v == nil {
		return nil
	}
	if *v < lo || *v > hi {
		return fmt.Errorf("%s must be between %d and %d", fieldName, lo, hi)
	}
	return nil
}

// ValidateStringLength checks an optional string against a rune length limit.
func ValidateStringLength(v *string, maxLength int, fieldName string) error {
	if v == nil {
		return nil
	}
	if len([]rune(*v)) > maxLength {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, maxLength)
	}
	return nil
}

// ValidateImageFilename checks name against the catalog's image allow-list.
func ValidateImageFilename(name string, cat *catalog.Catalog) error {
	if name == "" {
		return fmt.Errorf("imageFilename is required")
	}
	if !cat.HasImage(name) {
		return fmt.Errorf("Invalid image filename")
	}
	return nil
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

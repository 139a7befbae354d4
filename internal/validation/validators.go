package validation

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"unicode"

	"github.com/benvon/smart-survey/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names so messages match what the client sent.
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	custom := map[string]validator.Func{
		"session_id": validateSessionIDTag,
		"gender":     allowList(models.Genders),
		"age_group":  allowList(models.AgeGroups),
		"region":     allowList(models.Regions),
		"rating":     allowList(models.Ratings),
	}
	for tag, fn := range custom {
		if err := Validate.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("failed to register %s validator: %v", tag, err))
		}
	}
}

func validateSessionIDTag(fl validator.FieldLevel) bool {
	return IsValidSessionID(fl.Field().String())
}

func allowList(values []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return slices.Contains(values, fl.Field().String())
	}
}

// Struct validates v against its validate tags and returns the first
// failure as a client facing message.
func Struct(v any) error {
	err := Validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	return errors.New(messageFor(verrs[0]))
}

func messageFor(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "session_id":
		return "Invalid session ID format"
	case "gender":
		return "Invalid gender value"
	case "age_group":
		return "Invalid age group value"
	case "region":
		return "Invalid region value"
	case "rating":
		return `Rating must be either "good" or "soso"`
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// ValidateGender checks an optional gender value. nil is accepted.
func ValidateGender(v *string) error {
	return optionalMember(v, models.Genders, "Invalid gender value")
}

// ValidateAgeGroup checks an optional age group value. nil is accepted.
func ValidateAgeGroup(v *string) error {
	return optionalMember(v, models.AgeGroups, "Invalid age group value")
}

// ValidateRegion checks an optional region value. nil is accepted.
func ValidateRegion(v *string) error {
	return optionalMember(v, models.Regions, "Invalid region value")
}

// ValidateRating checks an image rating.
func ValidateRating(v string) error {
	if !slices.Contains(models.Ratings, v) {
		return errors.New(`Rating must be either "good" or "soso"`)
	}
	return nil
}

// ValidateDemographics checks all three optional demographic fields.
func ValidateDemographics(d models.Demographics) error {
	if err := ValidateGender(d.Gender); err != nil {
		return err
	}
	if err := ValidateAgeGroup(d.AgeGroup); err != nil {
		return err
	}
	return ValidateRegion(d.Region)
}

func optionalMember(v *string, allowed []string, msg string) error {
	if v == nil {
		return nil
	}
	if !slices.Contains(allowed, *v) {
		return errors.New(msg)
	}
	return nil
}

// SanitizeText trims whitespace and removes control characters except newline and tab.
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

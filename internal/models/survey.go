package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionIDPrefix is prepended to a v4 UUID to form a survey session id.
const SessionIDPrefix = "session_"

// Rating values accepted for an image.
const (
	RatingGood = "good"
	RatingSoso = "soso"
)

// Allowed demographic values. Matching is exact.
var (
	Genders   = []string{"Male", "Female", "Prefer not to answer"}
	AgeGroups = []string{"10s", "20s", "30s", "40s", "50s", "60+"}
	Regions   = []string{
		"East Asia (Korea, Japan, China, etc.)",
		"Southeast Asia (Vietnam, Thailand, Indonesia, etc.)",
		"Europe",
		"North America (USA, Canada)",
		"Latin America",
		"Oceania",
		"Middle East",
		"Africa",
		"Other",
	}
	Ratings = []string{RatingGood, RatingSoso}
)

// Demographics are optional on every write; nil means not answered.
type Demographics struct {
	Gender   *string `json:"gender" validate:"omitnil,gender"`
	AgeGroup *string `json:"ageGroup" validate:"omitnil,age_group"`
	Region   *string `json:"region" validate:"omitnil,region"`
}

// Answer is one client answer tuple: the question, the selected option
// indexes and the seconds spent on the question.
type Answer struct {
	QuestionID   int      `json:"questionId"`
	Answers      []int    `json:"answers"`
	ThinkingTime *float64 `json:"thinkingTime,omitempty"`
}

// TestResult is a survey result. It is completed once CompletedAt is set;
// dropout rows share the table with CompletedAt nil.
type TestResult struct {
	ID          uuid.UUID  `json:"id"`
	SessionID   string     `json:"sessionId"`
	UserAgent   string     `json:"userAgent,omitempty"`
	IPAddress   string     `json:"ipAddress,omitempty"`
	Answers     []Answer   `json:"answers"`
	Email       *string    `json:"email,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	Demographics
}

// IsCompleted reports whether the result is a completed submission.
func (r *TestResult) IsCompleted() bool {
	return r.CompletedAt != nil
}

// UserLog is one selected option of one answered question.
// AnswerIndex is -1 when the question was reached but nothing was selected.
type UserLog struct {
	ID                  int64     `json:"id"`
	TestResultID        uuid.UUID `json:"testResultId"`
	SessionID           string    `json:"sessionId"`
	QuestionID          int       `json:"questionId"`
	QuestionText        string    `json:"questionText"`
	Answer              string    `json:"answer"`
	AnswerIndex         int       `json:"answerIndex"`
	ThinkingTimeSeconds float64   `json:"thinkingTimeSeconds"`
	Email               *string   `json:"email,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	Demographics
}

// Dropout records where a participant left the questionnaire.
// Its ID equals the ID of the partial TestResult written alongside it.
type Dropout struct {
	ID                   uuid.UUID `json:"id"`
	SessionID            string    `json:"sessionId"`
	UserAgent            string    `json:"userAgent,omitempty"`
	IPAddress            string    `json:"ipAddress,omitempty"`
	QuestionID           *int      `json:"questionId,omitempty"`
	QuestionText         *string   `json:"questionText,omitempty"`
	CurrentQuestionIndex int       `json:"currentQuestionIndex"`
	TotalQuestions       int       `json:"totalQuestions"`
	CompletedQuestions   int       `json:"completedQuestions"`
	TimeSpentSeconds     float64   `json:"timeSpentSeconds"`
	CreatedAt            time.Time `json:"createdAt"`
	Demographics
}

// ImageRating is one rating of one image.
type ImageRating struct {
	ID                  uuid.UUID  `json:"id"`
	TestResultID        *uuid.UUID `json:"testResultId,omitempty"`
	SessionID           string     `json:"sessionId"`
	ImageFilename       string     `json:"imageFilename"`
	Rating              string     `json:"rating"`
	ThinkingTimeSeconds float64    `json:"thinkingTimeSeconds"`
	Email               *string    `json:"email,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	Demographics
}

// CompletedRating is a rating carried inside an image dropout report.
type CompletedRating struct {
	ImageFilename string   `json:"imageFilename"`
	Rating        string   `json:"rating"`
	ThinkingTime  *float64 `json:"thinkingTime,omitempty"`
}

// ImageDropout records where a participant left the image rating task.
type ImageDropout struct {
	ID                uuid.UUID         `json:"id"`
	TestResultID      *uuid.UUID        `json:"testResultId,omitempty"`
	SessionID         string            `json:"sessionId"`
	UserAgent         string            `json:"userAgent,omitempty"`
	IPAddress         string            `json:"ipAddress,omitempty"`
	ImageFilename     *string           `json:"imageFilename,omitempty"`
	CurrentImageIndex int               `json:"currentImageIndex"`
	TotalImages       int               `json:"totalImages"`
	CompletedImages   int               `json:"completedImages"`
	TimeSpentSeconds  float64           `json:"timeSpentSeconds"`
	CompletedRatings  []CompletedRating `json:"completedRatings"`
	Email             *string           `json:"email,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	Demographics
}

// ImageRatingSummary counts ratings for one image.
type ImageRatingSummary struct {
	ImageFilename string `json:"imageFilename"`
	Good          int    `json:"good"`
	Soso          int    `json:"soso"`
}

// Stats summarises collected data for the admin dashboard.
type Stats struct {
	CompletedResults int                  `json:"completedResults"`
	Dropouts         int                  `json:"dropouts"`
	ImageRatings     int                  `json:"imageRatings"`
	ImageDropouts    int                  `json:"imageDropouts"`
	RatingsByImage   []ImageRatingSummary `json:"ratingsByImage"`
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/benvon/smart-survey/internal/catalog"
	"github.com/benvon/smart-survey/internal/csrf"
	"github.com/benvon/smart-survey/internal/database"
	logpkg "github.com/benvon/smart-survey/internal/logger"
	"github.com/benvon/smart-survey/internal/middleware"
	"github.com/benvon/smart-survey/internal/models"
	"github.com/benvon/smart-survey/internal/ratelimit"
	"github.com/benvon/smart-survey/internal/request"
	"github.com/benvon/smart-survey/internal/submission"
	"github.com/benvon/smart-survey/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// maxUserAgentLength bounds the stored user agent
const maxUserAgentLength = 512

// EmailPropagator copies a captured email onto a session's other rows.
type EmailPropagator interface {
	Propagate(ctx context.Context, resultID uuid.UUID, sessionID, email string) error
}

// SurveyConfig holds the collaborators of a SurveyHandler
type SurveyConfig struct {
	Catalog       *catalog.Catalog
	Reconciler    *submission.Reconciler
	Results       database.ResultStore
	Dropouts      database.DropoutStore
	ImageRatings  database.ImageRatingStore
	ImageDropouts database.ImageDropoutStore
	CSRF          *csrf.Guard
	Admission     *middleware.Admission
	// Propagator may be nil, in which case the email stays on the result only.
	Propagator   EmailPropagator
	MaxBodyBytes int64
	Logger       *zap.Logger
}

// SurveyHandler serves the public survey endpoints
type SurveyHandler struct {
	SurveyConfig
}

// NewSurveyHandler creates a new survey handler
func NewSurveyHandler(cfg SurveyConfig) *SurveyHandler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &SurveyHandler{SurveyConfig: cfg}
}

// RegisterRoutes registers the survey routes. Every route passes its
// admission check before the handler runs. On mutating routes the body
// checks run after admission, so rejected bodies still count against the
// endpoint quota.
func (h *SurveyHandler) RegisterRoutes(r *mux.Router) {
	throttle := func(endpoint string, fn http.HandlerFunc) http.Handler {
		return h.Admission.Throttle(endpoint)(fn)
	}
	guard := func(endpoint string, fn http.HandlerFunc) http.Handler {
		body := middleware.MaxRequestSize(middleware.DefaultMaxRequestSize)(middleware.ContentType(fn))
		return h.Admission.Guard(endpoint)(body)
	}

	r.Handle("/session", throttle(ratelimit.EndpointSession, h.Session)).Methods(http.MethodGet)
	r.Handle("/csrf-token", throttle(ratelimit.EndpointCSRFToken, h.CSRFToken)).Methods(http.MethodGet)
	r.Handle("/submit", guard(ratelimit.EndpointSubmit, h.Submit)).Methods(http.MethodPost)
	r.Handle("/dropout", guard(ratelimit.EndpointDropout, h.Dropout)).Methods(http.MethodPost)
	r.Handle("/email", guard(ratelimit.EndpointEmail, h.Email)).Methods(http.MethodPost)
	r.Handle("/image-rating", guard(ratelimit.EndpointImageRating, h.ImageRating)).Methods(http.MethodPost)
	r.Handle("/image-dropout", guard(ratelimit.EndpointImageDropout, h.ImageDropout)).Methods(http.MethodPost)
}

// SessionResponse carries a freshly issued session id
type SessionResponse struct {
	SessionID string `json:"sessionId"`
}

// Session issues a new session id
func (h *SurveyHandler) Session(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, SessionResponse{SessionID: models.SessionIDPrefix + uuid.NewString()})
}

// CSRFTokenResponse carries a token that must be echoed in X-CSRF-Token
type CSRFTokenResponse struct {
	Token string `json:"token"`
}

// CSRFToken issues a token and sets the matching cookie
func (h *SurveyHandler) CSRFToken(w http.ResponseWriter, _ *http.Request) {
	token, err := h.CSRF.IssueToken()
	if err != nil {
		h.Logger.Error("csrf_token_generation_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Failed to generate CSRF token")
		return
	}
	h.CSRF.SetCookie(w, token)
	respondJSON(w, http.StatusOK, CSRFTokenResponse{Token: token})
}

// SubmitRequest is a completed questionnaire
type SubmitRequest struct {
	SessionID string          `json:"sessionId" validate:"required,session_id"`
	Answers   []models.Answer `json:"answers"`
	models.Demographics
}

// duplicateResponse is the 409 body
type duplicateResponse struct {
	Error    string `json:"error"`
	ResultID string `json:"resultId,omitempty"`
}

// Submit records a completed questionnaire
func (h *SurveyHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := request.DecodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	if err := validation.Struct(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.ValidateAnswers(req.Answers, h.Catalog); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := &models.TestResult{
		ID:           uuid.New(),
		SessionID:    req.SessionID,
		UserAgent:    userAgent(r),
		IPAddress:    request.ClientIP(r),
		Answers:      req.Answers,
		Demographics: req.Demographics,
	}
	logs := submission.BuildLogs(result, h.Catalog)

	saved, err := h.Reconciler.Submit(r.Context(), result, logs)
	if err != nil {
		var dup *submission.DuplicateError
		if errors.As(err, &dup) {
			h.Logger.Info("duplicate_submission_rejected",
				zap.String("session_id", logpkg.SanitizeSessionID(req.SessionID)),
				zap.String("reason", dup.Error()),
			)
			body := duplicateResponse{Error: dup.Error()}
			if dup.SurvivorID != uuid.Nil {
				body.ResultID = dup.SurvivorID.String()
			}
			respondJSON(w, http.StatusConflict, body)
			return
		}
		h.Logger.Error("submission_store_failed",
			zap.String("session_id", logpkg.SanitizeSessionID(req.SessionID)),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Failed to save test result")
		return
	}

	h.Logger.Info("submission_recorded",
		zap.String("session_id", logpkg.SanitizeSessionID(saved.SessionID)),
		zap.String("result_id", saved.ID.String()),
		zap.Int("log_rows", len(logs)),
	)
	respondJSON(w, http.StatusOK, successResponse{Success: true, ResultID: saved.ID.String()})
}

// DropoutRequest reports where a participant left the questionnaire
type DropoutRequest struct {
	SessionID            string          `json:"sessionId" validate:"required,session_id"`
	QuestionID           *int            `json:"questionId"`
	CurrentQuestionIndex *int            `json:"currentQuestionIndex"`
	TotalQuestions       *int            `json:"totalQuestions"`
	CompletedQuestions   *int            `json:"completedQuestions"`
	TimeSpent            *float64        `json:"timeSpent"`
	Answers              []models.Answer `json:"answers"`
	models.Demographics
}

func (req *DropoutRequest) validate(cat *catalog.Catalog) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	if req.QuestionID != nil && cat.Question(*req.QuestionID) == nil {
		return errors.New("Invalid questionId")
	}
	n := cat.Len()
	for _, f := range []struct {
		v    *int
		name string
	}{
		{req.CurrentQuestionIndex, "currentQuestionIndex"},
		{req.TotalQuestions, "totalQuestions"},
		{req.CompletedQuestions, "completedQuestions"},
	} {
		if err := validation.ValidateIntRange(f.v, 0, n, f.name); err != nil {
			return err
		}
	}
	if err := validation.ValidateNumberRange(req.TimeSpent, 0, validation.MaxSessionSeconds, "timeSpent"); err != nil {
		return err
	}
	return validation.ValidatePartialAnswers(req.Answers, cat)
}

// Dropout records an abandoned questionnaire. Reports for sessions that
// already completed are acknowledged without writing.
func (h *SurveyHandler) Dropout(w http.ResponseWriter, r *http.Request) {
	var req DropoutRequest
	if err := request.DecodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	if err := req.validate(h.Catalog); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	allowed, err := h.Reconciler.AllowDropout(ctx, req.SessionID)
	if err != nil {
		h.Logger.Error("dropout_precheck_failed",
			zap.String("session_id", logpkg.SanitizeSessionID(req.SessionID)),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Failed to save dropout")
		return
	}
	if !allowed {
		h.Logger.Debug("dropout_skipped_completed_session",
			zap.String("session_id", logpkg.SanitizeSessionID(req.SessionID)),
		)
		respondJSON(w, http.StatusOK, successResponse{Success: true})
		return
	}

	d := &models.Dropout{
		ID:                   uuid.New(),
		SessionID:            req.SessionID,
		UserAgent:            userAgent(r),
		IPAddress:            request.ClientIP(r),
		QuestionID:           req.QuestionID,
		CurrentQuestionIndex: deref(req.CurrentQuestionIndex),
		TotalQuestions:       deref(req.TotalQuestions),
		CompletedQuestions:   deref(req.CompletedQuestions),
		TimeSpentSeconds:     deref(req.TimeSpent),
		Demographics:         req.Demographics,
	}
	if req.QuestionID != nil {
		text := h.Catalog.Question(*req.QuestionID).Question
		d.QuestionText = &text
	}

	var partial *models.TestResult
	var logs []*models.UserLog
	if len(req.Answers) > 0 {
		partial = &models.TestResult{
			ID:           d.ID,
			SessionID:    d.SessionID,
			UserAgent:    d.UserAgent,
			IPAddress:    d.IPAddress,
			Answers:      req.Answers,
			Demographics: req.Demographics,
		}
		logs = submission.BuildLogs(partial, h.Catalog)
	}

	if err := h.Dropouts.Create(ctx, d, partial, logs); err != nil {
		h.Logger.Error("dropout_store_failed",
			zap.String("session_id", logpkg.SanitizeSessionID(req.SessionID)),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Failed to save dropout")
		return
	}

	h.Logger.Info("dropout_recorded",
		zap.String("session_id", logpkg.SanitizeSessionID(req.SessionID)),
		zap.String("dropout_id", d.ID.String()),
		zap.Int("log_rows", len(logs)),
	)
	respondJSON(w, http.StatusOK, successResponse{Success: true})
}

// EmailRequest attaches an email to a session's latest result
type EmailRequest struct {
	SessionID string `json:"sessionId"`
	Email     string `json:"email"`
}

// Email stores the participant's email on the session's latest result and
// copies it to the session's other rows without failing the request.
func (h *SurveyHandler) Email(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := request.DecodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	if req.SessionID == "" || strings.TrimSpace(req.Email) == "" {
		respondJSONError(w, http.StatusBadRequest, "Session ID and email are required")
		return
	}
	if err := validation.ValidateSessionID(req.SessionID); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	email, err := validation.ValidateEmail(req.Email)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	latest, err := h.Results.LatestBySession(ctx, req.SessionID)
	if err != nil {
		h.Logger.Error("email_result_lookup_failed",
			zap.String("session_id", logpkg.SanitizeSessionID(req.SessionID)),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Failed to find test result")
		return
	}
	if latest == nil {
		respondJSONError(w, http.StatusNotFound, "Test result not found for this session")
		return
	}

	if err := h.Results.UpdateEmail(ctx, latest.ID, email); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Test result not found for this session")
			return
		}
		h.Logger.Error("email_store_failed",
			zap.String("result_id", latest.ID.String()),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Failed to save email")
		return
	}

	if h.Propagator != nil {
		if err := h.Propagator.Propagate(ctx, latest.ID, req.SessionID, email); err != nil {
			h.Logger.Warn("email_propagation_failed",
				zap.String("result_id", latest.ID.String()),
				zap.String("error", logpkg.SanitizeError(err)),
			)
		}
	}

	h.Logger.Info("email_recorded",
		zap.String("result_id", latest.ID.String()),
		zap.String("email", logpkg.MaskEmail(email)),
	)
	respondJSON(w, http.StatusOK, successResponse{Success: true, ID: latest.ID.String()})
}

// ImageRatingRequest is one image rating
type ImageRatingRequest struct {
	SessionID           string   `json:"sessionId"`
	ImageFilename       string   `json:"imageFilename"`
	Rating              string   `json:"rating"`
	ThinkingTimeSeconds *float64 `json:"thinkingTimeSeconds"`
	models.Demographics
}

func (req *ImageRatingRequest) validate(cat *catalog.Catalog) (float64, error) {
	if req.SessionID == "" || req.ImageFilename == "" || req.Rating == "" {
		return 0, errors.New("Session ID, image filename, and rating are required")
	}
	if err := validation.ValidateSessionID(req.SessionID); err != nil {
		return 0, err
	}
	if err := validation.ValidateRating(req.Rating); err != nil {
		return 0, err
	}
	if err := validation.ValidateImageFilename(req.ImageFilename, cat); err != nil {
		return 0, err
	}
	thinking, err := validation.ValidateThinkingTime(req.ThinkingTimeSeconds)
	if err != nil {
		return 0, err
	}
	return thinking, validation.ValidateDemographics(req.Demographics)
}

// ImageRating records a rating, linked to the session's latest result when
// there is one.
func (h *SurveyHandler) ImageRating(w http.ResponseWriter, r *http.Request) {
	var req ImageRatingRequest
	if err := request.DecodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	thinking, err := req.validate(h.Catalog)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	rating := &models.ImageRating{
		ID:                  uuid.New(),
		TestResultID:        h.latestResultID(ctx, req.SessionID),
		SessionID:           req.SessionID,
		ImageFilename:       req.ImageFilename,
		Rating:              req.Rating,
		ThinkingTimeSeconds: thinking,
		Demographics:        req.Demographics,
	}
	if err := h.ImageRatings.Create(ctx, rating); err != nil {
		h.Logger.Error("image_rating_store_failed",
			zap.String("session_id", logpkg.SanitizeSessionID(req.SessionID)),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Failed to save image rating")
		return
	}

	h.Logger.Debug("image_rating_recorded",
		zap.String("session_id", logpkg.SanitizeSessionID(req.SessionID)),
		zap.String("image", req.ImageFilename),
		zap.String("rating", req.Rating),
	)
	respondJSON(w, http.StatusOK, successResponse{Success: true, ID: rating.ID.String()})
}

// ImageDropoutRequest reports where a participant left the image task
type ImageDropoutRequest struct {
	SessionID         string                   `json:"sessionId" validate:"required,session_id"`
	ImageFilename     *string                  `json:"imageFilename"`
	CurrentImageIndex *int                     `json:"currentImageIndex"`
	TotalImages       *int                     `json:"totalImages"`
	CompletedImages   *int                     `json:"completedImages"`
	TimeSpent         *float64                 `json:"timeSpent"`
	CompletedRatings  []models.CompletedRating `json:"completedRatings"`
	models.Demographics
}

func (req *ImageDropoutRequest) validate(cat *catalog.Catalog) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	if req.ImageFilename != nil {
		if err := validation.ValidateImageFilename(*req.ImageFilename, cat); err != nil {
			return err
		}
	}
	n := cat.ImageCount()
	for _, f := range []struct {
		v    *int
		name string
	}{
		{req.CurrentImageIndex, "currentImageIndex"},
		{req.TotalImages, "totalImages"},
		{req.CompletedImages, "completedImages"},
	} {
		if err := validation.ValidateIntRange(f.v, 0, n, f.name); err != nil {
			return err
		}
	}
	if err := validation.ValidateNumberRange(req.TimeSpent, 0, validation.MaxSessionSeconds, "timeSpent"); err != nil {
		return err
	}
	if len(req.CompletedRatings) > n {
		return errors.New("Too many completed ratings")
	}
	for _, cr := range req.CompletedRatings {
		if err := validation.ValidateImageFilename(cr.ImageFilename, cat); err != nil {
			return err
		}
		if err := validation.ValidateRating(cr.Rating); err != nil {
			return err
		}
		if _, err := validation.ValidateThinkingTime(cr.ThinkingTime); err != nil {
			return err
		}
	}
	return nil
}

// ImageDropout records an abandoned image task
func (h *SurveyHandler) ImageDropout(w http.ResponseWriter, r *http.Request) {
	var req ImageDropoutRequest
	if err := request.DecodeJSON(r, h.MaxBodyBytes, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	if err := req.validate(h.Catalog); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	d := &models.ImageDropout{
		ID:                uuid.New(),
		TestResultID:      h.latestResultID(ctx, req.SessionID),
		SessionID:         req.SessionID,
		UserAgent:         userAgent(r),
		IPAddress:         request.ClientIP(r),
		ImageFilename:     req.ImageFilename,
		CurrentImageIndex: deref(req.CurrentImageIndex),
		TotalImages:       deref(req.TotalImages),
		CompletedImages:   deref(req.CompletedImages),
		TimeSpentSeconds:  deref(req.TimeSpent),
		CompletedRatings:  req.CompletedRatings,
		Demographics:      req.Demographics,
	}
	if err := h.ImageDropouts.Create(ctx, d); err != nil {
		h.Logger.Error("image_dropout_store_failed",
			zap.String("session_id", logpkg.SanitizeSessionID(req.SessionID)),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Failed to save image dropout")
		return
	}

	h.Logger.Info("image_dropout_recorded",
		zap.String("session_id", logpkg.SanitizeSessionID(req.SessionID)),
		zap.Int("completed_images", d.CompletedImages),
	)
	respondJSON(w, http.StatusOK, successResponse{Success: true})
}

// latestResultID links a row to the session's latest result. A failed
// lookup leaves the row unlinked.
func (h *SurveyHandler) latestResultID(ctx context.Context, sessionID string) *uuid.UUID {
	latest, err := h.Results.LatestBySession(ctx, sessionID)
	if err != nil {
		h.Logger.Warn("latest_result_lookup_failed",
			zap.String("session_id", logpkg.SanitizeSessionID(sessionID)),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		return nil
	}
	if latest == nil {
		return nil
	}
	id := latest.ID
	return &id
}

func userAgent(r *http.Request) string {
	ua := validation.SanitizeText(r.UserAgent())
	if ua == "" {
		return request.Unknown
	}
	if runes := []rune(ua); len(runes) > maxUserAgentLength {
		ua = string(runes[:maxUserAgentLength])
	}
	return ua
}

func deref[T int | float64](v *T) T {
	if v == nil {
		return 0
	}
	return *v
}

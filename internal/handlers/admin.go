package handlers

import (
	"net/http"

	"github.com/benvon/smart-survey/internal/database"
	logpkg "github.com/benvon/smart-survey/internal/logger"
	"github.com/benvon/smart-survey/internal/models"
	"github.com/benvon/smart-survey/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// AdminHandler serves the read-only dashboard endpoints
type AdminHandler struct {
	results       database.ResultStore
	logs          database.LogStore
	dropouts      database.DropoutStore
	ratings       database.ImageRatingStore
	imageDropouts database.ImageDropoutStore
	logger        *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	results database.ResultStore,
	logs database.LogStore,
	dropouts database.DropoutStore,
	ratings database.ImageRatingStore,
	imageDropouts database.ImageDropoutStore,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		results:       results,
		logs:          logs,
		dropouts:      dropouts,
		ratings:       ratings,
		imageDropouts: imageDropouts,
		logger:        logger,
	}
}

// RegisterRoutes registers admin routes on the given router
// The router should already have the /admin prefix and the admin auth middleware
func (h *AdminHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/results", h.ListResults).Methods(http.MethodGet)
	r.HandleFunc("/results/{sessionId}", h.GetResult).Methods(http.MethodGet)
	r.HandleFunc("/results/{sessionId}/logs", h.GetSessionLogs).Methods(http.MethodGet)
	r.HandleFunc("/dropouts", h.ListDropouts).Methods(http.MethodGet)
	r.HandleFunc("/image-ratings", h.ListImageRatings).Methods(http.MethodGet)
	r.HandleFunc("/image-dropouts", h.ListImageDropouts).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
}

// ResultDetailResponse is a session's latest result with its log rows
type ResultDetailResponse struct {
	TestResult *models.TestResult `json:"testResult"`
	Logs       []*models.UserLog  `json:"logs"`
}

// ListResults lists results newest first
func (h *AdminHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	results, err := h.results.List(r.Context(), limit, offset)
	if err != nil {
		h.failed(w, "list_results", err, "Failed to fetch results")
		return
	}
	respondJSON(w, http.StatusOK, nonNil(results))
}

// GetResult returns the session's latest result and its logs
func (h *AdminHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionParam(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	result, err := h.results.LatestBySession(ctx, sessionID)
	if err != nil {
		h.failed(w, "get_result", err, "Failed to fetch result")
		return
	}
	if result == nil {
		respondJSONError(w, http.StatusNotFound, "Test result not found")
		return
	}

	logs, err := h.logs.ByResult(ctx, result.ID)
	if err != nil {
		h.failed(w, "get_result_logs", err, "Failed to fetch logs")
		return
	}
	respondJSON(w, http.StatusOK, ResultDetailResponse{TestResult: result, Logs: nonNil(logs)})
}

// GetSessionLogs returns every log row of a session, across partial and completed results
func (h *AdminHandler) GetSessionLogs(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionParam(w, r)
	if !ok {
		return
	}
	logs, err := h.logs.BySession(r.Context(), sessionID)
	if err != nil {
		h.failed(w, "get_session_logs", err, "Failed to fetch logs")
		return
	}
	respondJSON(w, http.StatusOK, nonNil(logs))
}

// ListDropouts lists questionnaire dropouts newest first
func (h *AdminHandler) ListDropouts(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	dropouts, err := h.dropouts.List(r.Context(), limit, offset)
	if err != nil {
		h.failed(w, "list_dropouts", err, "Failed to fetch dropouts")
		return
	}
	respondJSON(w, http.StatusOK, nonNil(dropouts))
}

// ListImageRatings lists image ratings newest first
func (h *AdminHandler) ListImageRatings(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	ratings, err := h.ratings.List(r.Context(), limit, offset)
	if err != nil {
		h.failed(w, "list_image_ratings", err, "Failed to fetch image ratings")
		return
	}
	respondJSON(w, http.StatusOK, nonNil(ratings))
}

// ListImageDropouts lists image task dropouts newest first
func (h *AdminHandler) ListImageDropouts(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	dropouts, err := h.imageDropouts.List(r.Context(), limit, offset)
	if err != nil {
		h.failed(w, "list_image_dropouts", err, "Failed to fetch image dropouts")
		return
	}
	respondJSON(w, http.StatusOK, nonNil(dropouts))
}

// Stats returns collection counts and per-image rating totals
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.results.Stats(ctx)
	if err != nil {
		h.failed(w, "stats", err, "Failed to fetch stats")
		return
	}
	summary, err := h.ratings.Summary(ctx)
	if err != nil {
		h.failed(w, "stats_summary", err, "Failed to fetch stats")
		return
	}
	stats.RatingsByImage = nonNil(summary)
	respondJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) sessionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := mux.Vars(r)["sessionId"]
	if err := validation.ValidateSessionID(sessionID); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return sessionID, true
}

func (h *AdminHandler) failed(w http.ResponseWriter, op string, err error, message string) {
	h.logger.Error("admin_query_failed",
		zap.String("operation", op),
		zap.String("error", logpkg.SanitizeError(err)),
	)
	respondJSONError(w, http.StatusInternalServerError, message)
}

// nonNil keeps empty listings encoded as [] rather than null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

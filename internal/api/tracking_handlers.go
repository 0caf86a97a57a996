package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tandogan/livetrack/internal/location"
	"github.com/tandogan/livetrack/internal/middleware"
	"github.com/tandogan/livetrack/internal/stream"
)

// dayLayout is the wire format for the day query parameter.
const dayLayout = "2006-01-02"

// TrackingHandlers serves the REST surface over the point store.
type TrackingHandlers struct {
	repo    location.Repository
	metrics *stream.Metrics
}

// NewTrackingHandlers creates tracking REST handlers backed by the given
// repository. metrics may be nil.
func NewTrackingHandlers(repo location.Repository, metrics *stream.Metrics) *TrackingHandlers {
	return &TrackingHandlers{repo: repo, metrics: metrics}
}

// pointRequest is the body for POST /tracking/point.
type pointRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// parseDay reads the required day query parameter.
func parseDay(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("day")
	if raw == "" {
		return time.Time{}, errors.New("missing day query parameter")
	}
	day, err := time.ParseInLocation(dayLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, errors.New("day must be formatted YYYY-MM-DD")
	}
	return day, nil
}

// PostPoint handles POST /tracking/point.
// Persists a point for the authenticated user and echoes the stored row.
func (h *TrackingHandlers) PostPoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	ident, ok := middleware.GetIdentity(r.Context())
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	var req pointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid JSON body")
		return
	}
	if req.Lat == nil || req.Lon == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "lat and lon are required")
		return
	}

	p, err := h.repo.SavePoint(r.Context(), ident.UserID, *req.Lat, *req.Lon, time.Time{})
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to save point", "user_id", ident.UserID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to save point")
		return
	}
	h.metrics.IncPointsIngested("rest")

	writeJSON(w, http.StatusCreated, p)
}

// MyDay handles GET /tracking/my/day?day=YYYY-MM-DD.
// Lists the authenticated user's points for the given UTC day.
func (h *TrackingHandlers) MyDay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	ident, ok := middleware.GetIdentity(r.Context())
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	day, err := parseDay(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	points, err := h.repo.ListPointsForDay(r.Context(), ident.UserID, day)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list points", "user_id", ident.UserID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list points")
		return
	}
	if points == nil {
		points = []*location.Point{}
	}

	writeJSON(w, http.StatusOK, points)
}

// lastLocationResponse is one row of GET /tracking/admin/last.
type lastLocationResponse struct {
	UserID    int64     `json:"user_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	CreatedAt time.Time `json:"created_at"`
}

// AdminLast handles GET /tracking/admin/last.
// Returns the most recent point of every user, enriched with user names.
func (h *TrackingHandlers) AdminLast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	rows, err := h.repo.LastPointsForAllUsers(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to query last points", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to query last points")
		return
	}

	out := make([]lastLocationResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, lastLocationResponse{
			UserID:    row.User.ID,
			FirstName: row.User.FirstName,
			LastName:  row.User.LastName,
			Lat:       row.Point.Lat,
			Lon:       row.Point.Lon,
			CreatedAt: row.Point.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

// AdminUserDay handles GET /tracking/admin/users/{user_id}/day?day=YYYY-MM-DD.
// Lists any user's points for the given UTC day. Admin role required.
func (h *TrackingHandlers) AdminUserDay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	// Path shape: /tracking/admin/users/{user_id}/day
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 5 || parts[4] != "day" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Not found")
		return
	}
	userID, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid user id")
		return
	}

	day, err := parseDay(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	points, err := h.repo.ListPointsForDay(r.Context(), userID, day)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list points", "user_id", userID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list points")
		return
	}
	if points == nil {
		points = []*location.Point{}
	}

	writeJSON(w, http.StatusOK, points)
}

// UpdatePoint handles PATCH /tracking/points/{point_id}.
// Applies a partial correction to a stored point. Operator key required.
func (h *TrackingHandlers) UpdatePoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	// Path shape: /tracking/points/{point_id}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Not found")
		return
	}
	pointID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid point id")
		return
	}

	var update location.PointUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid JSON body")
		return
	}

	p, err := h.repo.UpdatePoint(r.Context(), pointID, update)
	if err != nil {
		if errors.Is(err, location.ErrPointNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Point not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to update point", "point_id", pointID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update point")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// DeleteUserDay handles DELETE /tracking/admin/{user_id}/day?day=YYYY-MM-DD.
// Removes all of a user's points for the given UTC day. Operator key required.
// Idempotent: deleting an empty day returns {"deleted": 0}.
func (h *TrackingHandlers) DeleteUserDay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	// Path shape: /tracking/admin/{user_id}/day
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 4 || parts[3] != "day" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Not found")
		return
	}
	userID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid user id")
		return
	}

	day, err := parseDay(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	count, err := h.repo.DeletePointsForDay(r.Context(), userID, day)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to delete points", "user_id", userID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to delete points")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deleted": count})
}

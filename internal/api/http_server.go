// Package api exposes the booking engine over HTTP with API-key auth and
// per-key rate limiting.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"toolshed/internal/config"
	"toolshed/internal/domain"
	"toolshed/internal/metrics"
	"toolshed/internal/models"
	"toolshed/internal/service"
)

// userHeader identifies the acting community member. Membership identity is
// handled upstream; the engine trusts this header once the API key passed.
const userHeader = "x-user-id"

// ScheduleExportFunc renders the loan-schedule workbook for a date range and
// returns the written file path.
type ScheduleExportFunc func(ctx context.Context, start, end time.Time) (string, error)

// BookingsExportFunc renders one user's booking history workbook.
type BookingsExportFunc func(ctx context.Context, userID string) (string, error)

type HTTPServer struct {
	cfg              config.APIConfig
	bookings         domain.BookingService
	coordinations    domain.CoordinationService
	scheduleExport   ScheduleExportFunc
	bookingsExport   BookingsExportFunc
	writeLimiter     domain.WriteLimiter
	writeLimit       int
	writeLimitWindow time.Duration
	server           *http.Server
	auth             *HTTPAuth
	logger           *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, bookings domain.BookingService, coordinations domain.CoordinationService, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:           cfg,
		bookings:      bookings,
		coordinations: coordinations,
		auth:          NewHTTPAuth(cfg),
		logger:        logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/resources/{id}/availability", srv.handleAvailability)
	mux.HandleFunc("GET /api/v1/optimal-times", srv.handleOptimalTimes)

	mux.HandleFunc("POST /api/v1/bookings", srv.handleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings", srv.handleListBookings)
	mux.HandleFunc("GET /api/v1/bookings/{id}", srv.handleGetBooking)
	mux.HandleFunc("PATCH /api/v1/bookings/{id}", srv.handleUpdateBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", srv.handleCancelBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/activate", srv.handleActivateBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/complete", srv.handleCompleteBooking)

	mux.HandleFunc("POST /api/v1/handoffs", srv.handleCreateHandoff)
	mux.HandleFunc("GET /api/v1/handoffs/{id}", srv.handleGetHandoff)
	mux.HandleFunc("POST /api/v1/handoffs/{id}/messages", srv.handleHandoffMessage)
	mux.HandleFunc("POST /api/v1/handoffs/{id}/schedule", srv.handleScheduleHandoff)
	mux.HandleFunc("POST /api/v1/handoffs/{id}/start", srv.handleStartHandoff)
	mux.HandleFunc("POST /api/v1/handoffs/{id}/complete", srv.handleCompleteHandoff)
	mux.HandleFunc("POST /api/v1/handoffs/{id}/cancel", srv.handleCancelHandoff)

	mux.HandleFunc("GET /api/v1/exports/schedule", srv.handleExportSchedule)
	mux.HandleFunc("GET /api/v1/exports/bookings", srv.handleExportBookings)

	handler := srv.loggingMiddleware(srv.auth.Wrap(srv.writeLimitMiddleware(mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

// Handler returns the configured handler chain, for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// WithExports wires the xlsx export endpoints. Either func may be nil; its
// endpoint then reports that exports are not configured.
func (s *HTTPServer) WithExports(schedule ScheduleExportFunc, bookings BookingsExportFunc) {
	s.scheduleExport = schedule
	s.bookingsExport = bookings
}

// WithWriteLimiter installs a shared per-member limit on mutating requests,
// on top of the per-key limiter in HTTPAuth.
func (s *HTTPServer) WithWriteLimiter(limiter domain.WriteLimiter, limit int, window time.Duration) {
	s.writeLimiter = limiter
	s.writeLimit = limit
	s.writeLimitWindow = window
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")
	resourceID := r.PathValue("id")

	rangeStart, err := parseTimeParam(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rangeEnd, err := parseTimeParam(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slot := models.DefaultSlotDuration
	if raw := r.URL.Query().Get("slot_hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			writeError(w, http.StatusBadRequest, "slot_hours must be a positive integer")
			return
		}
		slot = time.Duration(hours) * time.Hour
	}

	slots, err := s.bookings.GetResourceAvailability(r.Context(), resourceID, rangeStart, rangeEnd, slot)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resource_id": resourceID, "slots": slots})
}

func (s *HTTPServer) handleOptimalTimes(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("optimal_times")

	resourceIDs := splitCSV(r.URL.Query().Get("resources"))
	if len(resourceIDs) == 0 {
		writeError(w, http.StatusBadRequest, "resources is required")
		return
	}

	hours, err := strconv.Atoi(r.URL.Query().Get("duration_hours"))
	if err != nil || hours <= 0 {
		writeError(w, http.StatusBadRequest, "duration_hours must be a positive integer")
		return
	}

	searchStart, err := parseTimeParam(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	searchEnd, err := parseTimeParam(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	windows, err := s.bookings.FindOptimalBookingTimes(r.Context(), resourceIDs, time.Duration(hours)*time.Hour, searchStart, searchEnd)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": windows})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_create")

	var req domain.CreateBookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RequesterID == "" {
		req.RequesterID = callerID(r)
	}

	booking, err := s.bookings.CreateBooking(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_list")

	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	if userID == "" {
		userID = callerID(r)
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	bookings, err := s.bookings.ListUserBookings(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_get")

	booking, err := s.bookings.GetBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleUpdateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_update")

	var update models.BookingUpdate
	if err := decodeBody(r, &update); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := s.bookings.UpdateBooking(r.Context(), r.PathValue("id"), callerID(r), update)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_cancel")

	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeOptionalBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := s.bookings.CancelBooking(r.Context(), r.PathValue("id"), callerID(r), body.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleActivateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_activate")

	booking, err := s.bookings.MarkActive(r.Context(), r.PathValue("id"), callerID(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCompleteBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_complete")

	var body struct {
		ReturnCondition string `json:"return_condition"`
	}
	if err := decodeOptionalBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := s.bookings.CompleteBooking(r.Context(), r.PathValue("id"), callerID(r), body.ReturnCondition)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCreateHandoff(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("handoffs_create")

	var req domain.CreateCoordinationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProviderID == "" {
		req.ProviderID = callerID(r)
	}

	coordination, err := s.coordinations.Create(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, coordination)
}

func (s *HTTPServer) handleGetHandoff(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("handoffs_get")

	coordination, err := s.coordinations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coordination)
}

func (s *HTTPServer) handleHandoffMessage(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("handoffs_message")

	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	coordination, err := s.coordinations.AddMessage(r.Context(), r.PathValue("id"), callerID(r), body.Text)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coordination)
}

func (s *HTTPServer) handleScheduleHandoff(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("handoffs_schedule")

	var body struct {
		Time     time.Time `json:"time"`
		Location string    `json:"location"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	coordination, err := s.coordinations.Schedule(r.Context(), r.PathValue("id"), callerID(r), body.Time, body.Location)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coordination)
}

func (s *HTTPServer) handleStartHandoff(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("handoffs_start")

	coordination, err := s.coordinations.MarkInProgress(r.Context(), r.PathValue("id"), callerID(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coordination)
}

func (s *HTTPServer) handleCompleteHandoff(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("handoffs_complete")

	var body struct {
		Message string `json:"message"`
	}
	if err := decodeOptionalBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	coordination, err := s.coordinations.Complete(r.Context(), r.PathValue("id"), callerID(r), body.Message)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coordination)
}

func (s *HTTPServer) handleCancelHandoff(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("handoffs_cancel")

	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeOptionalBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	coordination, err := s.coordinations.Cancel(r.Context(), r.PathValue("id"), callerID(r), body.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coordination)
}

func (s *HTTPServer) handleExportSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("exports_schedule")

	if s.scheduleExport == nil {
		writeError(w, http.StatusNotImplemented, "exports are not configured")
		return
	}

	rangeStart, err := parseTimeParam(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rangeEnd, err := parseTimeParam(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	path, err := s.scheduleExport(r.Context(), rangeStart, rangeEnd)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file": path})
}

func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("exports_bookings")

	if s.bookingsExport == nil {
		writeError(w, http.StatusNotImplemented, "exports are not configured")
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	if userID == "" {
		userID = callerID(r)
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	path, err := s.bookingsExport(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file": path})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Conflict responses carry the conflicting intervals so callers can offer
// alternatives.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	kind := service.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case service.KindValidation:
		status = http.StatusBadRequest
	case service.KindAuthorization:
		status = http.StatusForbidden
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindState, service.KindConflict:
		status = http.StatusConflict
	case service.KindPolicy:
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, status, "internal error")
		return
	}

	payload := map[string]any{"error": err.Error(), "kind": kind.String()}
	if conflicts := service.ConflictsOf(err); len(conflicts) > 0 {
		payload["conflicts"] = conflicts
	}
	writeJSON(w, status, payload)
}

// writeLimitMiddleware counts mutating requests per member against the
// shared limiter. A limiter outage must not block writes; the per-key
// limiter in HTTPAuth still applies.
func (s *HTTPServer) writeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.writeLimiter == nil || s.writeLimit <= 0 || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		caller := callerID(r)
		if caller == "" {
			next.ServeHTTP(w, r)
			return
		}

		allowed, err := s.writeLimiter.CheckRateLimit(r.Context(), caller, s.writeLimit, s.writeLimitWindow)
		if err != nil {
			s.logger.Warn().Err(err).Msg("write limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			writeError(w, http.StatusTooManyRequests, "write limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func callerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userHeader))
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// decodeOptionalBody tolerates an empty body for action endpoints whose
// payload is entirely optional.
func decodeOptionalBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("invalid JSON body: %w", err)
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// date-only form is accepted as midnight UTC
		t, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid %s; expected RFC3339 or YYYY-MM-DD", name)
		}
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

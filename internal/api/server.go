// Package api exposes the booking core over JSON HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"kinderbook/internal/availability"
	"kinderbook/internal/booking"
	"kinderbook/internal/domain"
	"kinderbook/internal/metrics"
	"kinderbook/internal/model"
)

// Catalog is the venue lookup used by the API.
type Catalog interface {
	Venue(venueID string) (model.Venue, error)
	Venues() []model.Venue
}

// Ledger is the booking store used by the API.
type Ledger interface {
	List(ctx context.Context, userID string) ([]model.Booking, error)
	Cancel(ctx context.Context, bookingID string) (model.Booking, error)
	Reactivate(ctx context.Context, bookingID string) (model.Booking, error)
	Confirm(ctx context.Context, bookingID string) (model.Booking, error)
	ActiveBookings(venueID string) []model.Booking
}

// Deps are the components the server drives.
type Deps struct {
	Catalog  Catalog
	Policy   *availability.Policy
	Ledger   Ledger
	Workflow *booking.Workflow
	Sessions *booking.SessionStore
}

// Options configure the HTTP server.
type Options struct {
	Address      string
	RateLimit    float64 // requests per second, 0 disables limiting
	Burst        int
	BlockedDates []string
	Now          func() time.Time
	Logger       *zerolog.Logger
}

// HTTPServer serves the booking API.
type HTTPServer struct {
	Deps
	blocked []string
	limiter *rate.Limiter
	now     func() time.Time
	logger  zerolog.Logger
	server  *http.Server
}

// NewHTTPServer builds the server and its routes.
func NewHTTPServer(deps Deps, opts Options) *HTTPServer {
	s := &HTTPServer{
		Deps:    deps,
		blocked: append([]string(nil), opts.BlockedDates...),
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	if opts.Now != nil {
		s.now = opts.Now
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With().Str("component", "api").Logger()
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/venues", s.handleVenues)
	mux.HandleFunc("GET /api/venues/{id}/dates", s.handleVenueDates)
	mux.HandleFunc("GET /api/venues/{id}/slots", s.handleVenueSlots)

	mux.HandleFunc("POST /api/sessions", s.handleStartSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleAbandonSession)
	mux.HandleFunc("POST /api/sessions/{id}/date", s.handleSelectDate)
	mux.HandleFunc("POST /api/sessions/{id}/time", s.handleSelectTime)
	mux.HandleFunc("POST /api/sessions/{id}/details", s.handleSubmitDetails)
	mux.HandleFunc("POST /api/sessions/{id}/back", s.handleBack)

	mux.HandleFunc("GET /api/users/{id}/bookings", s.handleUserBookings)
	mux.HandleFunc("GET /api/users/{id}/bookings.xlsx", s.handleUserBookingsExport)
	mux.HandleFunc("POST /api/bookings/{id}/cancel", s.handleBookingAction(Ledger.Cancel))
	mux.HandleFunc("POST /api/bookings/{id}/reactivate", s.handleBookingAction(Ledger.Reactivate))
	mux.HandleFunc("POST /api/bookings/{id}/confirm", s.handleBookingAction(Ledger.Confirm))

	addr := opts.Address
	if addr == "" {
		addr = ":8080"
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.observe(s.rateLimit(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler with middleware applied.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("API server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.IncAPIRequest(route, rec.status)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ErrorResponse is the body of every failed request. Session-scoped errors
// carry the session and the choices valid in its current step.
type ErrorResponse struct {
	Error          string            `json:"error"`
	Fields         map[string]string `json:"fields,omitempty"`
	Retryable      bool              `json:"retryable,omitempty"`
	Session        *booking.View     `json:"session,omitempty"`
	AvailableDates []string          `json:"available_dates,omitempty"`
	AvailableSlots []string          `json:"available_slots,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		verr     *domain.ValidationError
		nf       *domain.NotFoundError
		sel      *domain.InvalidSelectionError
		dup      *domain.DuplicateBookingError
		conflict *domain.ConflictError
		serr     *domain.StorageError
	)
	switch {
	case errors.As(err, &verr), errors.As(err, &sel):
		return http.StatusUnprocessableEntity
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &dup), errors.As(err, &conflict), errors.Is(err, domain.ErrWrongStep):
		return http.StatusConflict
	case errors.As(err, &serr):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error, session *booking.Session) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Retryable: domain.IsRetryable(err)}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Map()
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("unexpected error")
		resp.Error = "internal error"
	}
	if session != nil {
		view := session.View()
		resp.Session = &view
		switch view.Step {
		case booking.StepSelectingDate:
			resp.AvailableDates, _ = s.Workflow.AvailableDates(session)
		case booking.StepSelectingTime:
			resp.AvailableSlots, _ = s.Workflow.AvailableSlots(session)
		}
	}
	writeJSON(w, status, resp)
}

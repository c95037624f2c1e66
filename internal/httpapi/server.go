// Package httpapi exposes the reminder engine over HTTP: a JSON API, the
// Yandex Alice skill webhook, health and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"reminder-bot/internal/model"
	"reminder-bot/internal/timeparse"
)

// Reminders is the engine surface the HTTP handlers drive.
type Reminders interface {
	CreateReminder(ctx context.Context, dest model.Destination, text string, remindAt time.Time) (uint, error)
	CancelReminder(ctx context.Context, id uint) error
	SnoozeReminder(ctx context.Context, id uint, delta time.Duration) (uint, error)
	ListReminders(ctx context.Context, dest model.Destination) ([]model.Reminder, error)
}

// Deps wires the server to the rest of the process.
type Deps struct {
	Reminders Reminders
	Parser    *timeparse.Parser
	// AliceDestination receives reminders created through the Alice skill.
	// Zero means the skill is not linked to a chat.
	AliceDestination model.Destination
	Location         *time.Location
	Log              zerolog.Logger
}

type Server struct {
	srv *http.Server
	log zerolog.Logger
}

func NewServer(addr string, deps Deps) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: deps.Log,
	}
}

// NewRouter builds the chi router with every route mounted.
func NewRouter(deps Deps) http.Handler {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	h := &handler{
		reminders: deps.Reminders,
		parser:    deps.Parser,
		aliceDest: deps.AliceDestination,
		loc:       deps.Location,
		validate:  validator.New(),
		log:       deps.Log,
		now:       time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(deps.Log))

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/alice", h.alice)

	r.Route("/api/reminders", func(r chi.Router) {
		r.Post("/", h.createReminder)
		r.Get("/", h.listReminders)
		r.Delete("/{id}", h.cancelReminder)
		r.Post("/{id}/snooze", h.snoozeReminder)
	})
	return r
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type handler struct {
	reminders Reminders
	parser    *timeparse.Parser
	aliceDest model.Destination
	loc       *time.Location
	validate  *validator.Validate
	log       zerolog.Logger
	now       func() time.Time
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("encode response")
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

type errorResponse struct {
	Error string `json:"error"`
}

// Package api is the HTTP command boundary of xlightd: commands in, table
// listings and health out.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/xlightd/internal/command"
	"github.com/dokzlo13/xlightd/internal/controller"
	"github.com/dokzlo13/xlightd/internal/ledger"
	"github.com/dokzlo13/xlightd/internal/model"
)

// maxBodyBytes caps command bodies.
const maxBodyBytes = 64 << 10

// Controller is what the API needs from the control loop.
type Controller interface {
	Submit(ctx context.Context, cmd command.Command) (controller.Result, error)
	Rules(ctx context.Context) ([]model.RuleRow, error)
	Schedules(ctx context.Context) ([]model.ScheduleRow, error)
	Scenarios(ctx context.Context) ([]model.ScenarioRow, error)
	Alarms(ctx context.Context) (map[model.UID]controller.AlarmStatus, error)
	Stats(ctx context.Context) (controller.Stats, error)
}

// History reads recent ledger entries.
type History interface {
	Recent(limit int) ([]*ledger.Entry, error)
}

// Server is the HTTP API server.
type Server struct {
	addr       string
	ctrl       Controller
	history    History
	httpServer *http.Server
}

// NewServer creates a new API server. history may be nil.
func NewServer(host string, port int, ctrl Controller, history History) *Server {
	return &Server{
		addr:    fmt.Sprintf("%s:%d", host, port),
		ctrl:    ctrl,
		history: history,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/commands", s.handleCommand)
		r.Get("/stats", s.handleStats)
		r.Get("/events", s.handleEvents)

		r.Get("/rules", s.handleListRules)
		r.Get("/schedules", s.handleListSchedules)
		r.Get("/scenarios", s.handleListScenarios)

		r.Get("/{class}/{uid}", s.handleKeyed(model.OpGet))
		r.Delete("/{class}/{uid}", s.handleKeyed(model.OpDelete))

		r.Get("/device", s.handleGetDevice)
		r.Put("/device", s.handlePutDevice)
	})
	return r
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestLogger logs each request with method, path, status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

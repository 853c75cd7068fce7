package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/xlightd/internal/api"
	"github.com/dokzlo13/xlightd/internal/config"
)

// APIService wraps the HTTP command API server.
type APIService struct {
	cfg    *config.Config
	server *api.Server
}

// NewAPIService creates a new APIService.
func NewAPIService(cfg *config.Config, ctrl api.Controller, history api.History) *APIService {
	return &APIService{
		cfg:    cfg,
		server: api.NewServer(cfg.API.Host, cfg.API.Port, ctrl, history),
	}
}

// Start begins the API server if enabled.
func (s *APIService) Start(ctx context.Context) {
	if !s.cfg.API.IsEnabled() {
		log.Debug().Msg("API server disabled")
		return
	}

	go func() {
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("API server error")
		}
	}()
}

package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/airtraffic/internal/tower/server/http"
	"github.com/autopeer-io/airtraffic/pkg/log"
	"github.com/autopeer-io/airtraffic/pkg/options"
)

// Server defines the common interface for the tower's auxiliary servers.
type Server interface {
	Start(ctx context.Context) error
}

// Config selects the servers to run.
type Config struct {
	HttpOptions *options.HttpOptions
	// Ready backs the readiness probe.
	Ready http.ReadinessFunc
	Logger log.Logger
}

// Manager manages the lifecycle of the auxiliary servers.
type Manager struct {
	servers []Server
	logger  log.Logger
}

// NewManager creates a manager with every enabled server. A manager without
// servers is valid, its Start returns at once.
func NewManager(cfg *Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	var servers []Server

	// Health & Metrics
	if cfg.HttpOptions.Enabled() {
		servers = append(servers, http.NewServer(cfg.HttpOptions, cfg.Ready, logger.WithName("http")))
	}

	return &Manager{servers: servers, logger: logger}
}

// Len returns the number of managed servers.
func (m *Manager) Len() int { return len(m.servers) }

// Start launches all servers in parallel and waits for termination.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	m.logger.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}

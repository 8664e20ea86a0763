// Package bootstrap assembles the store backend selected by configuration.
// It is shared by the API server and the leadctl CLI.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/boddenberg/leadflow-go/internal/config"
	"github.com/boddenberg/leadflow-go/internal/infra/memory"
	"github.com/boddenberg/leadflow-go/internal/infra/postgres"
	"github.com/boddenberg/leadflow-go/internal/infra/resilience"
	"github.com/boddenberg/leadflow-go/internal/infra/supabase"
	"github.com/boddenberg/leadflow-go/internal/port"
)

// Backend is an opened pair of stores plus the probes that check them.
type Backend struct {
	Name       string
	Leads      port.LeadStore
	Principals port.PrincipalStore
	Probes     []port.Probe
	closers    []func()
}

// Close releases connections held by the backend.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// OpenBackend connects to the configured store. When migrate is true the Postgres
// schema is applied before returning.
func OpenBackend(ctx context.Context, cfg *config.Config, migrate bool, logger *zap.Logger) (*Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			ConnString: cfg.DatabaseURL,
			MaxConns:   cfg.DBMaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				postgres.ClosePool(pool)
				return nil, err
			}
			logger.Info("postgres schema applied")
		}
		logger.Info("using postgres store", zap.Int32("max_conns", cfg.DBMaxConns))
		return &Backend{
			Name:       config.BackendPostgres,
			Leads:      postgres.NewLeadStore(pool),
			Principals: postgres.NewPrincipalStore(pool),
			Probes:     []port.Probe{{Name: "postgres", Check: pool.Ping}},
			closers:    []func(){func() { postgres.ClosePool(pool) }},
		}, nil

	case config.BackendSupabase:
		client := supabase.NewClient(
			&http.Client{Timeout: cfg.HTTPTimeout},
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			resilience.Config{
				MaxRetries:     cfg.MaxRetries,
				InitialBackoff: cfg.InitialBackoff,
				MaxConcurrency: cfg.MaxConcurrency,
			},
			logger,
		)
		logger.Info("using supabase store", zap.String("supabase_url", cfg.SupabaseURL))
		return &Backend{
			Name:       config.BackendSupabase,
			Leads:      supabase.NewLeadStore(client),
			Principals: supabase.NewPrincipalStore(client),
			Probes:     []port.Probe{{Name: "supabase", Check: client.Ping}},
		}, nil

	default:
		logger.Warn("using in-memory store, data is lost on restart")
		return &Backend{
			Name:       config.BackendMemory,
			Leads:      memory.NewLeadStore(),
			Principals: memory.NewPrincipalStore(),
		}, nil
	}
}

// Command leadctl operates the lead store directly: schema migration, demo seeding,
// token minting and the lifecycle operations, with the same rules the API enforces.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boddenberg/leadflow-go/internal/bootstrap"
	"github.com/boddenberg/leadflow-go/internal/config"
	"github.com/boddenberg/leadflow-go/internal/infra/observability"
	"github.com/boddenberg/leadflow-go/internal/infra/resilience"
	"github.com/boddenberg/leadflow-go/internal/service"
)

type openFunc func(ctx context.Context, cfg *config.Config, migrate bool, logger *zap.Logger) (*bootstrap.Backend, error)

// app holds the state shared by every subcommand.
type app struct {
	open   openFunc
	out    io.Writer
	cfg    *config.Config
	logger *zap.Logger

	backend *bootstrap.Backend
	leads   *service.LeadService
	auth    *service.AuthService

	actor      int64
	jsonOutput bool
	logLevel   string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := &app{open: bootstrap.OpenBackend, out: os.Stdout}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "leadctl",
		Short:         "Operate the lead lifecycle store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().Int64Var(&a.actor, "actor", 0, "principal id performing the operation")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "print results as JSON")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level")

	root.AddGroup(
		&cobra.Group{ID: "admin", Title: "Administration:"},
		&cobra.Group{ID: "leads", Title: "Lead lifecycle:"},
	)

	root.AddCommand(
		newMigrateCmd(a),
		newSeedCmd(a),
		newTokenCmd(a),
		newPermsCmd(a),
		newClaimCmd(a),
		newProgressCmd(a),
		newContactCmd(a),
		newContactsCmd(a),
	)
	return root
}

// connect loads configuration and opens the backend once per invocation.
func (a *app) connect(ctx context.Context, migrate bool) error {
	if a.backend != nil {
		return nil
	}
	if a.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if a.logger == nil {
		a.logger = observability.NewLogger(a.logLevel)
	}

	backend, err := a.open(ctx, a.cfg, migrate, a.logger)
	if err != nil {
		return err
	}
	a.backend = backend
	a.leads = service.NewLeadService(backend.Leads, backend.Principals, observability.NewMetrics(), a.logger,
		service.WithConflictRetry(resilience.Config{
			MaxRetries:     a.cfg.ConflictRetries,
			InitialBackoff: a.cfg.InitialBackoff,
		}),
	)
	a.auth = service.NewAuthService(backend.Principals, a.cfg.JWTSecret, a.cfg.JWTAccessTTL, a.logger)
	return nil
}

func (a *app) close() {
	if a.backend != nil {
		a.backend.Close()
		a.backend = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) requireActor() error {
	if a.actor <= 0 {
		return fmt.Errorf("--actor is required")
	}
	return nil
}

// print writes v as indented JSON with --json, otherwise the human line.
func (a *app) print(v any, human string, args ...any) error {
	if a.jsonOutput {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintf(a.out, human+"\n", args...)
	return err
}

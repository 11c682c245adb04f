// Package cli implements crmctl, the operator CLI for migrations, one-off
// automation runs, and merge and sequence maintenance.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"crm_engine_backend/internal/email"
	"crm_engine_backend/internal/engine"
	"crm_engine_backend/internal/events"
	"crm_engine_backend/platform/config"
	"crm_engine_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "crmctl",
	Short: "Operator CLI for the CRM engine",
	Long: `crmctl runs maintenance operations against the CRM database: schema
migrations, a single automation pass, duplicate review, merge cleanup and
sequence enrollment.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

type session struct {
	cfg  *config.Config
	log  *logger.Logger
	pool *pgxpool.Pool
	bus  *events.InMemoryBus
	eng  *engine.Engine
}

func (s *session) Close() {
	if s.bus != nil {
		s.bus.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// openPool connects without building the domain services.
func openPool(ctx context.Context, migrate bool) (*config.Config, *logger.Logger, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(cfg.Env)

	pool, err := engine.ConnectDatabase(ctx, cfg, migrate, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, pool, nil
}

func openSession(ctx context.Context) (*session, error) {
	cfg, log, pool, err := openPool(ctx, false)
	if err != nil {
		return nil, err
	}

	sender, err := email.NewSender(cfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize email sender: %w", err)
	}

	bus := events.NewInMemoryBus(log)
	return &session{
		cfg:  cfg,
		log:  log,
		pool: pool,
		bus:  bus,
		eng:  engine.Build(pool, cfg, sender, bus, log),
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(flag, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --%s: %w", flag, err)
	}
	return id, nil
}

func parseIDs(flag string, values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := parseID(flag, v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/archivistalabs/archivista/internal/config"
	"github.com/archivistalabs/archivista/internal/corroboration"
	"github.com/archivistalabs/archivista/internal/decay"
	"github.com/archivistalabs/archivista/internal/knowledge"
	"github.com/archivistalabs/archivista/internal/logging"
	"github.com/archivistalabs/archivista/internal/server"
	sqlitestore "github.com/archivistalabs/archivista/internal/store/sqlite"
)

func newServeCmd() *cobra.Command {
	var maintenanceUsers []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			srv := server.New(cfg, store, logger)

			var scheduler *decay.Scheduler
			if len(maintenanceUsers) > 0 {
				scheduler = newMaintenanceScheduler(cfg, store, logger, maintenanceUsers)
				scheduler.Start()
				defer scheduler.Stop()
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-stop:
				logger.Info("shutting down", zap.String("signal", sig.String()))
			}
			if err := srv.Shutdown(context.Background()); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return <-errCh
		},
	}

	cmd.Flags().StringSliceVar(&maintenanceUsers, "maintain-user", nil,
		"user IDs to run periodic decay and corroboration for (repeatable)")
	return cmd
}

func newDecayCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "decay",
		Short: "Run one temporal decay pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			engine := decay.New(store,
				decay.WithLogger(logger),
				decay.WithThresholds(cfg.Decay.HighConfidenceThreshold, cfg.Decay.MaterialityThreshold, cfg.Decay.Floor))
			res, err := engine.Apply(cmd.Context(), user, cfg.Decay.MaxItemsPerPass)
			if err != nil {
				return err
			}
			fmt.Printf("decayed %d entities, %d relationships (%d skipped, %d errors)\n",
				res.EntitiesDecayed, res.RelationshipsDecayed, res.Skipped, len(res.Errors))
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user ID to decay (required)")
	cmd.MarkFlagRequired("user") //nolint:errcheck
	return cmd
}

func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openStore(cfg *config.Config, logger *zap.Logger) (knowledge.Store, error) {
	if cfg.Storage.Path == "" {
		logger.Warn("no storage path configured, using in-memory store")
		return knowledge.NewMemoryStore(), nil
	}
	return sqlitestore.New(cfg.Storage.Path, logger)
}

// newMaintenanceScheduler wires periodic decay and corroboration passes for
// the named users.
func newMaintenanceScheduler(cfg *config.Config, store knowledge.Store, logger *zap.Logger, users []string) *decay.Scheduler {
	decayer := decay.New(store,
		decay.WithLogger(logger),
		decay.WithThresholds(cfg.Decay.HighConfidenceThreshold, cfg.Decay.MaterialityThreshold, cfg.Decay.Floor))
	corroborator := corroboration.New(store,
		corroboration.WithLogger(logger),
		corroboration.WithThreshold(cfg.Corroboration.Threshold),
		corroboration.WithMinDocuments(cfg.Corroboration.MinDocuments),
		corroboration.WithMaxOpportunities(cfg.Corroboration.MaxOpportunities))

	var passes []decay.Pass
	for _, user := range users {
		user := user
		if cfg.TemporalDecayOn() {
			passes = append(passes, decay.PassFunc{
				PassName: "decay/" + user,
				Fn: func(ctx context.Context) error {
					_, err := decayer.Apply(ctx, user, cfg.Decay.MaxItemsPerPass)
					return err
				},
			})
		}
		if cfg.CorroborationOn() {
			passes = append(passes, decay.PassFunc{
				PassName: "corroboration/" + user,
				Fn: func(ctx context.Context) error {
					_, err := corroborator.Apply(ctx, user)
					return err
				},
			})
		}
	}
	return decay.NewScheduler(cfg.Decay.Interval.Duration(), passes, logger)
}

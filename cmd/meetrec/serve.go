package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/bft-labs/meetrec/internal/adapters/fs"
	httpapi "github.com/bft-labs/meetrec/internal/adapters/http"
	"github.com/bft-labs/meetrec/internal/adapters/ws"
	"github.com/bft-labs/meetrec/internal/app"
	"github.com/bft-labs/meetrec/pkg/log"
)

// phaseLogger reports coordinator phase changes.
type phaseLogger struct {
	logger log.Logger
}

func (l phaseLogger) OnPhaseChange(from, to app.Phase, reason string) {
	l.logger.Info("Coordinator "+to.String(),
		log.String("from", from.String()),
		log.String("reason", reason),
	)
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator that owns the recording session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			logger := opts.logger()

			if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
				return fmt.Errorf("state dir: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			hub := ws.NewHub(cfg.CommandTimeout, logger.With(log.String("component", "hub")))
			coordinator := app.NewCoordinator(
				hub,
				fs.NewStateFileRepository(cfg.StateDir),
				fs.NewBadgeFile(cfg.StateDir),
				logger.With(log.String("component", "coordinator")),
			)
			hub.SetEvents(coordinator)
			if err := coordinator.Init(ctx); err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			router := httpapi.NewRouter(coordinator, hub, logger.With(log.String("component", "http")))
			server := httpapi.NewServer(cfg.Listen, router, logger)

			daemon := app.NewDaemon(logger, phaseLogger{logger},
				app.WorkerFunc{WorkerName: "http", Fn: server.Run},
				app.WorkerFunc{WorkerName: "hub", Fn: func(ctx context.Context) error {
					<-ctx.Done()
					hub.Close()
					coordinator.Close()
					return nil
				}},
			)
			if err := daemon.Start(ctx); err != nil {
				return err
			}
			logger.Info("Coordinator running",
				log.String("listen", cfg.Listen),
				log.String("state_dir", cfg.StateDir),
			)
			return daemon.Wait()
		},
	}
}

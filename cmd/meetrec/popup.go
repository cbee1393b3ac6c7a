package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bft-labs/meetrec/internal/adapters/fs"
	httpapi "github.com/bft-labs/meetrec/internal/adapters/http"
	"github.com/bft-labs/meetrec/internal/domain"
	"github.com/bft-labs/meetrec/internal/popup"
	"github.com/bft-labs/meetrec/pkg/log"
)

func newPopupCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "popup",
		Short: "Interactive recording controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
				return fmt.Errorf("state dir: %w", err)
			}

			// The terminal belongs to the UI; logs go to a file.
			logFile, err := os.OpenFile(filepath.Join(cfg.StateDir, "popup.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return fmt.Errorf("open log: %w", err)
			}
			defer logFile.Close()
			logger := log.NewZerologAdapterTo(logFile, cfg.LogLevel)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
			defer cancel()

			repo := fs.NewStateFileRepository(cfg.StateDir)
			updates := make(chan domain.SharedState, 1)
			watcher := fs.NewStateWatcher(repo, fs.DefaultDebounceDelay, logger)
			go func() {
				err := watcher.Watch(ctx, func(s domain.SharedState) { offerLatest(updates, s) })
				if err != nil && ctx.Err() == nil {
					logger.Error("State watcher stopped", log.Err(err))
				}
			}()

			client := httpapi.NewClient(cfg.CoordinatorURL, cfg.CommandTimeout)
			m := popup.New(client, repo, popup.Options{
				TabID:          cfg.TabID,
				IncludeMic:     cfg.IncludeMic,
				CommandTimeout: cfg.CommandTimeout,
				Updates:        updates,
			})
			return popup.Run(ctx, m)
		},
	}

	cmd.Flags().StringVar(&opts.cfg.TabID, "tab", "", "tab to record (default: the only connected tab)")
	cmd.Flags().BoolVar(&opts.cfg.IncludeMic, "mic", opts.cfg.IncludeMic, "include the microphone by default")
	return cmd
}

// offerLatest replaces any undelivered state with s.
func offerLatest(ch chan domain.SharedState, s domain.SharedState) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

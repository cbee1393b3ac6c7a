package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/meetrec/internal/adapters/fs"
	httpapi "github.com/bft-labs/meetrec/internal/adapters/http"
	"github.com/bft-labs/meetrec/internal/domain"
	"github.com/bft-labs/meetrec/internal/output"
	"github.com/bft-labs/meetrec/internal/popup"
)

// errReported marks a failure the formatter already printed.
var errReported = errors.New("command failed")

func newStartCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start recording a meeting tab",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			out := output.NewFormatter(cmd.OutOrStdout())
			client := httpapi.NewClient(cfg.CoordinatorURL, cfg.CommandTimeout)

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.CommandTimeout)
			defer cancel()

			tabID, err := popup.ResolveTab(ctx, client, cfg.TabID)
			if err != nil {
				return report(out, err)
			}
			micDenied, err := client.Start(ctx, tabID, cfg.IncludeMic)
			if err != nil {
				return report(out, err)
			}
			out.StartRequested(tabID, micDenied)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.cfg.TabID, "tab", "", "tab to record (default: the only connected tab)")
	cmd.Flags().BoolVar(&opts.cfg.IncludeMic, "mic", opts.cfg.IncludeMic, "include the microphone")
	return cmd
}

func newStopCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the active recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			out := output.NewFormatter(cmd.OutOrStdout())
			client := httpapi.NewClient(cfg.CoordinatorURL, cfg.CommandTimeout)

			if err := client.Stop(cmd.Context()); err != nil {
				return report(out, err)
			}
			out.StopRequested()
			return nil
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the recording state and connected tabs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			out := output.NewFormatter(cmd.OutOrStdout())
			client := httpapi.NewClient(cfg.CoordinatorURL, 5*time.Second)
			ctx := cmd.Context()

			state, err := client.State(ctx)
			if httpapi.IsUnavailable(err) {
				out.Warning("Coordinator not running, showing last saved state")
				state, err = fs.NewStateFileRepository(cfg.StateDir).Load(ctx)
				if err != nil {
					return report(out, err)
				}
				out.Status(state, time.Now())
				return nil
			}
			if err != nil {
				return report(out, err)
			}
			out.Status(state, time.Now())

			tabs, err := client.Tabs(ctx)
			if err != nil {
				return report(out, err)
			}
			if len(tabs) == 0 {
				out.Info("No meeting tabs connected")
				return nil
			}
			out.TabListHeader()
			for _, t := range tabs {
				out.TabListItem(t)
			}
			return nil
		},
	}
}

func report(out *output.Formatter, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotMeetPage):
		out.Error("Please open a Google Meet tab first")
	case httpapi.IsUnavailable(err):
		out.Error("Coordinator not reachable, is `meetrec serve` running? (" + err.Error() + ")")
	default:
		out.Error(err.Error())
	}
	return errReported
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/meetrec/internal/adapters/ffmpeg"
	httpapi "github.com/bft-labs/meetrec/internal/adapters/http"
	"github.com/bft-labs/meetrec/internal/app"
	"github.com/bft-labs/meetrec/internal/output"
	"github.com/bft-labs/meetrec/pkg/log"
)

// probedEncoders are the ffmpeg encoders a .webm recording can use.
var probedEncoders = []string{"libvpx-vp9", "libvpx", "libopus"}

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this machine can record",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			out := output.NewFormatter(cmd.OutOrStdout())
			failed := false
			check := func(name string, ok bool, detail string) {
				out.SetupCheck(name, ok, detail)
				if !ok {
					failed = true
				}
			}

			out.Info("Checking recording setup")

			path, err := exec.LookPath(cfg.FFmpegPath)
			if err != nil {
				check("ffmpeg", false, err.Error())
			} else {
				check("ffmpeg", true, path)

				factory := ffmpeg.NewFactory(ffmpegConfig(cfg), log.NewNoopLogger())
				available, err := factory.Encoders()
				if err != nil {
					check("encoders", false, err.Error())
				} else {
					// Individual encoders are informational; the negotiated
					// format decides.
					for _, name := range probedEncoders {
						detail := "available"
						if !available[name] {
							detail = "missing"
						}
						out.SetupCheck("encoder "+name, available[name], detail)
					}
					if enc, err := app.NegotiateEncoder(factory); err != nil {
						check("recording format", false, err.Error())
					} else {
						check("recording format", true, enc.MimeType)
					}
				}
			}

			check("state dir", writableDir(cfg.StateDir), cfg.StateDir)
			check("downloads dir", writableDir(cfg.DownloadsDir), cfg.DownloadsDir)

			client := httpapi.NewClient(cfg.CoordinatorURL, 3*time.Second)
			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			defer cancel()
			if _, err := client.State(ctx); err != nil {
				out.SetupCheck("coordinator", false, fmt.Sprintf("%s (%v)", cfg.CoordinatorURL, err))
			} else {
				out.SetupCheck("coordinator", true, cfg.CoordinatorURL)
			}

			if failed {
				out.Error("Setup incomplete")
				return errReported
			}
			out.Success("Ready to record")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.cfg.DownloadsDir, "downloads-dir", opts.cfg.DownloadsDir, "where recordings are saved (default: ~/Downloads)")
	addCaptureFlags(cmd, &opts.cfg)
	return cmd
}

// writableDir reports whether dir exists, or can be created, and is a
// directory.
func writableDir(dir string) bool {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false
	}
	fi, err := os.Stat(dir)
	return err == nil && fi.IsDir()
}

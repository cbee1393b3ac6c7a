package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bft-labs/meetrec/internal/adapters/ffmpeg"
	"github.com/bft-labs/meetrec/internal/adapters/fs"
	"github.com/bft-labs/meetrec/internal/agent"
	"github.com/bft-labs/meetrec/internal/app"
	"github.com/bft-labs/meetrec/internal/cliconfig"
	"github.com/bft-labs/meetrec/internal/indicator"
	"github.com/bft-labs/meetrec/pkg/log"
)

func ffmpegConfig(cfg cliconfig.Config) ffmpeg.Config {
	return ffmpeg.Config{
		Command:            cfg.FFmpegPath,
		DisplayFormat:      cfg.DisplayFormat,
		DisplayInput:       cfg.DisplayInput,
		DisplayAudioFormat: cfg.AudioFormat,
		DisplayAudioInput:  cfg.AudioInput,
		MicFormat:          cfg.MicFormat,
		MicInput:           cfg.MicInput,
	}
}

func addCaptureFlags(cmd *cobra.Command, cfg *cliconfig.Config) {
	f := cmd.Flags()
	f.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "ffmpeg binary")
	f.StringVar(&cfg.DisplayFormat, "display-format", cfg.DisplayFormat, "ffmpeg input format for the screen (x11grab, avfoundation, gdigrab)")
	f.StringVar(&cfg.DisplayInput, "display-input", cfg.DisplayInput, "screen to capture")
	f.StringVar(&cfg.AudioFormat, "audio-format", cfg.AudioFormat, "ffmpeg input format for meeting audio")
	f.StringVar(&cfg.AudioInput, "audio-input", cfg.AudioInput, "meeting audio source (empty records the screen without audio)")
	f.StringVar(&cfg.MicFormat, "mic-format", cfg.MicFormat, "ffmpeg input format for the microphone")
	f.StringVar(&cfg.MicInput, "mic-input", cfg.MicInput, "microphone source")
}

func newAgentCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Capture a meeting when the coordinator asks for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if err := cliconfig.LoadAgentIdentity(&cfg); err != nil {
				return err
			}
			logger := opts.logger().With(log.String("tab_id", cfg.TabID))

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a := agent.New(agent.Config{
				CoordinatorURL: cfg.CoordinatorURL,
				TabID:          cfg.TabID,
				MeetingURL:     cfg.MeetingURL,
			}, indicator.New(os.Stdout), logger)

			ffcfg := ffmpegConfig(cfg)
			if cfg.ConfirmShare {
				ffcfg.ApproveShare = agent.NewPrompt(os.Stdin, os.Stdout).Approve
			}
			capturer := ffmpeg.NewCapturer(ffcfg, logger)

			capture := app.NewCapture(app.CaptureConfig{
				MeetingURL: cfg.MeetingURL,
				Timeslice:  cfg.Timeslice,
			}, app.CaptureDeps{
				Display:    capturer,
				Microphone: capturer,
				Mixer:      ffmpeg.NewMixer(),
				Encoders:   ffmpeg.NewFactory(ffcfg, logger),
				Downloader: fs.NewDownloader(cfg.DownloadsDir),
				Notifier:   a,
				Logger:     logger,
			})
			if !capture.CheckMeetPage() {
				logger.Warn("Not a Google Meet page, the controller will refuse to record it",
					log.String("url", cfg.MeetingURL))
			}

			return a.Run(ctx, capture)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.cfg.MeetingURL, "url", "", "URL of the meeting shown by this tab")
	f.StringVar(&opts.cfg.TabID, "tab", "", "tab id to register as (default: derived from the meeting code)")
	f.StringVar(&opts.cfg.DownloadsDir, "downloads-dir", opts.cfg.DownloadsDir, "where recordings are saved (default: ~/Downloads)")
	f.DurationVar(&opts.cfg.Timeslice, "timeslice", opts.cfg.Timeslice, "encoder flush interval")
	f.BoolVar(&opts.cfg.ConfirmShare, "confirm-share", opts.cfg.ConfirmShare, "ask before the screen is captured")
	addCaptureFlags(cmd, &opts.cfg)
	return cmd
}

package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/meetrec/internal/cliconfig"
	"github.com/bft-labs/meetrec/pkg/log"
)

const helpDescription = `
Record a Google Meet session (screen, meeting audio and optionally your
microphone) into a single .webm file.

Surfaces:
  - serve   runs the coordinator that owns the recording session.
  - agent   runs next to a meeting and does the actual capture.
  - popup   is the interactive controller; start/stop/status are one-shot.

Configure via ~/.meetrec/config.toml, MEETREC_* environment variables or flags.
`

var exampleUsage = strings.TrimSpace(`
  meetrec serve
  meetrec agent --url https://meet.google.com/abc-defg-hij --mic
  meetrec popup
  meetrec start --tab meet-abc-defg-hij && meetrec stop
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// rootOptions carries the configuration shared by every command.
type rootOptions struct {
	cfg     cliconfig.Config
	cfgPath string
}

func main() {
	opts := &rootOptions{cfg: cliconfig.DefaultConfig()}

	root := &cobra.Command{
		Use:           "meetrec",
		Short:         "Record Google Meet sessions to .webm files",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.cfgPath, "config", "", "path to config file (default: $HOME/.meetrec/config.toml)")
	f.StringVar(&opts.cfg.StateDir, "state-dir", opts.cfg.StateDir, "directory holding state.json and badge.json")
	f.StringVar(&opts.cfg.Listen, "listen", opts.cfg.Listen, "coordinator listen address")
	f.StringVar(&opts.cfg.CoordinatorURL, "coordinator", opts.cfg.CoordinatorURL, "coordinator base URL (default: http://<listen>)")
	f.DurationVar(&opts.cfg.CommandTimeout, "timeout", opts.cfg.CommandTimeout, "how long a command waits for the recording tab")
	f.StringVar(&opts.cfg.LogLevel, "log-level", opts.cfg.LogLevel, "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newAgentCmd(opts),
		newPopupCmd(opts),
		newStartCmd(opts),
		newStopCmd(opts),
		newStatusCmd(opts),
		newDoctorCmd(opts),
	)

	if err := root.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "meetrec:", err)
		}
		os.Exit(1)
	}
}

// load applies config file, then environment (MEETREC_*), to every value
// whose flag was not set explicitly, and validates the result.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfgFile := o.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&o.cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(&o.cfg, changed); err != nil {
		return err
	}
	return o.cfg.Validate()
}

func (o *rootOptions) logger() log.Logger {
	return log.NewZerologAdapter(o.cfg.LogLevel)
}

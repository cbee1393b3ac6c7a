package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultListen is where the coordinator API listens by default.
const DefaultListen = "127.0.0.1:7465"

// Config holds CLI configuration for meetrec.
type Config struct {
	StateDir     string
	DownloadsDir string

	Listen         string
	CoordinatorURL string

	CommandTimeout time.Duration
	Timeslice      time.Duration
	LogLevel       string

	IncludeMic bool
	TabID      string
	MeetingURL string

	FFmpegPath    string
	DisplayFormat string
	DisplayInput  string
	AudioFormat   string
	AudioInput    string
	MicFormat     string
	MicInput      string
	ConfirmShare  bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		StateDir:       defaultStateDir(),
		Listen:         DefaultListen,
		CommandTimeout: 30 * time.Second,
		Timeslice:      time.Second,
		LogLevel:       "info",
		FFmpegPath:     "ffmpeg",
		DisplayFormat:  "x11grab",
		DisplayInput:   ":0.0",
		AudioFormat:    "pulse",
		AudioInput:     "@DEFAULT_MONITOR@",
		MicFormat:      "pulse",
		MicInput:       "default",
		ConfirmShare:   true,
	}
}

func defaultStateDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".meetrec")
	}
	return ""
}

func defaultDownloadsDir(stateDir string) string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, "Downloads")
	}
	return filepath.Join(stateDir, "recordings")
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state-dir is required")
	}
	if c.DownloadsDir == "" {
		c.DownloadsDir = defaultDownloadsDir(c.StateDir)
	}

	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.CoordinatorURL == "" {
		c.CoordinatorURL = "http://" + c.Listen
	}
	c.CoordinatorURL = strings.TrimRight(c.CoordinatorURL, "/")

	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive")
	}
	if c.Timeslice <= 0 {
		return fmt.Errorf("timeslice must be positive")
	}
	if c.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg path is required")
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	StateDir       string           `toml:"state_dir"`
	DownloadsDir   string           `toml:"downloads_dir"`
	Listen         string           `toml:"listen"`
	CoordinatorURL string           `toml:"coordinator_url"`
	CommandTimeout string           `toml:"command_timeout"`
	Timeslice      string           `toml:"timeslice"`
	LogLevel       string           `toml:"log_level"`
	IncludeMic     *bool            `toml:"include_mic"`
	TabID          string           `toml:"tab_id"`
	MeetingURL     string           `toml:"meeting_url"`
	FFmpeg         FFmpegFileConfig `toml:"ffmpeg"`
	ConfirmShare   *bool            `toml:"confirm_share"`
}

// FFmpegFileConfig is the [ffmpeg] table of the config file.
type FFmpegFileConfig struct {
	Path          string `toml:"path"`
	DisplayFormat string `toml:"display_format"`
	DisplayInput  string `toml:"display_input"`
	AudioFormat   string `toml:"audio_format"`
	AudioInput    string `toml:"audio_input"`
	MicFormat     string `toml:"mic_format"`
	MicInput      string `toml:"mic_input"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.meetrec/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".meetrec", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("downloads-dir", fc.DownloadsDir, &cfg.DownloadsDir)
	s.setString("listen", fc.Listen, &cfg.Listen)
	s.setString("coordinator", fc.CoordinatorURL, &cfg.CoordinatorURL)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("tab", fc.TabID, &cfg.TabID)
	s.setString("url", fc.MeetingURL, &cfg.MeetingURL)

	s.setString("ffmpeg", fc.FFmpeg.Path, &cfg.FFmpegPath)
	s.setString("display-format", fc.FFmpeg.DisplayFormat, &cfg.DisplayFormat)
	s.setString("display-input", fc.FFmpeg.DisplayInput, &cfg.DisplayInput)
	s.setString("audio-format", fc.FFmpeg.AudioFormat, &cfg.AudioFormat)
	s.setString("audio-input", fc.FFmpeg.AudioInput, &cfg.AudioInput)
	s.setString("mic-format", fc.FFmpeg.MicFormat, &cfg.MicFormat)
	s.setString("mic-input", fc.FFmpeg.MicInput, &cfg.MicInput)

	if err := s.setDuration("timeout", fc.CommandTimeout, &cfg.CommandTimeout); err != nil {
		return err
	}
	if err := s.setDuration("timeslice", fc.Timeslice, &cfg.Timeslice); err != nil {
		return err
	}

	s.setBool("mic", fc.IncludeMic, &cfg.IncludeMic)
	s.setBool("confirm-share", fc.ConfirmShare, &cfg.ConfirmShare)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

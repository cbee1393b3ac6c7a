package cliconfig

import "os"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MEETREC_"

// ApplyEnvConfig applies MEETREC_* environment variables to cfg. Flags that
// were set explicitly (changed map) keep their values.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	s.setString("state-dir", env("STATE_DIR"), &cfg.StateDir)
	s.setString("downloads-dir", env("DOWNLOADS_DIR"), &cfg.DownloadsDir)
	s.setString("listen", env("LISTEN"), &cfg.Listen)
	s.setString("coordinator", env("COORDINATOR_URL"), &cfg.CoordinatorURL)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)
	s.setString("tab", env("TAB_ID"), &cfg.TabID)
	s.setString("url", env("MEETING_URL"), &cfg.MeetingURL)

	s.setString("ffmpeg", env("FFMPEG"), &cfg.FFmpegPath)
	s.setString("display-format", env("DISPLAY_FORMAT"), &cfg.DisplayFormat)
	s.setString("display-input", env("DISPLAY_INPUT"), &cfg.DisplayInput)
	s.setString("audio-format", env("AUDIO_FORMAT"), &cfg.AudioFormat)
	s.setString("audio-input", env("AUDIO_INPUT"), &cfg.AudioInput)
	s.setString("mic-format", env("MIC_FORMAT"), &cfg.MicFormat)
	s.setString("mic-input", env("MIC_INPUT"), &cfg.MicInput)

	if err := s.setDuration("timeout", env("COMMAND_TIMEOUT"), &cfg.CommandTimeout); err != nil {
		return err
	}
	if err := s.setDuration("timeslice", env("TIMESLICE"), &cfg.Timeslice); err != nil {
		return err
	}

	s.setBoolFromString("mic", env("INCLUDE_MIC"), &cfg.IncludeMic)
	s.setBoolFromString("confirm-share", env("CONFIRM_SHARE"), &cfg.ConfirmShare)

	return nil
}

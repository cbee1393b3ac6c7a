package cliconfig

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/bft-labs/meetrec/internal/domain"
)

// LoadAgentIdentity fills in the tab id of a capture agent when it is not
// set. Meeting pages get a stable id derived from the meeting code so a
// restarted agent reconnects as the same tab; anything else gets a random id.
func LoadAgentIdentity(cfg *Config) error {
	if cfg.MeetingURL == "" {
		return fmt.Errorf("url is required")
	}
	if _, err := url.Parse(cfg.MeetingURL); err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if cfg.TabID != "" {
		return nil
	}
	if code := meetingCode(cfg.MeetingURL); code != "" {
		cfg.TabID = "meet-" + code
		return nil
	}
	cfg.TabID = "tab-" + uuid.NewString()
	return nil
}

// meetingCode returns the first path segment of a meeting URL.
func meetingCode(rawURL string) string {
	if !domain.IsMeetPage(rawURL) {
		return ""
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	seg, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	return seg
}

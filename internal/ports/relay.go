package ports

import (
	"context"

	"github.com/bft-labs/meetrec/internal/domain"
)

// CaptureNotifier carries capture status notifications to the coordinator.
type CaptureNotifier interface {
	Notify(action domain.Action) error
}

// TabInfo describes a connected capture surface.
type TabInfo struct {
	TabID string `json:"tabId"`
	URL   string `json:"url"`
}

// TabRelay sends commands to connected capture surfaces.
type TabRelay interface {
	// Request sends action to tabID and decodes its single reply into out.
	// Unknown tabs yield domain.ErrTabNotFound; disconnects and timeouts
	// yield domain.ErrTabUnreachable.
	Request(ctx context.Context, tabID string, action domain.Action, payload, out any) error

	// Notify sends a notification to one tab.
	Notify(tabID string, action domain.Action, payload any) error

	// Broadcast sends a notification to every connected tab.
	Broadcast(action domain.Action, payload any)

	// Tabs lists the connected tabs.
	Tabs() []TabInfo
}

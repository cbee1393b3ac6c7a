package ports

import (
	"context"

	"github.com/bft-labs/meetrec/internal/domain"
)

// StateRepository persists the shared recording state observed by controllers.
type StateRepository interface {
	// Load retrieves the last saved state.
	// Returns the idle state and nil error if no state exists.
	Load(ctx context.Context) (domain.SharedState, error)

	// Save persists the state atomically.
	Save(ctx context.Context, state domain.SharedState) error
}

// BadgeWriter mirrors the recording badge.
type BadgeWriter interface {
	SetBadge(ctx context.Context, b domain.Badge) error
}

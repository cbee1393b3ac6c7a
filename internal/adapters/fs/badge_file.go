package fs

import (
	"context"
	"path/filepath"

	"github.com/bft-labs/meetrec/internal/domain"
)

// BadgeFileName is the badge file inside the state directory.
const BadgeFileName = "badge.json"

// BadgeFile implements ports.BadgeWriter. Status bars poll or watch the file.
type BadgeFile struct {
	dir string
}

// NewBadgeFile creates a BadgeFile in dir.
func NewBadgeFile(dir string) *BadgeFile {
	return &BadgeFile{dir: dir}
}

// SetBadge replaces the badge.
func (b *BadgeFile) SetBadge(ctx context.Context, badge domain.Badge) error {
	return writeJSONAtomic(b.dir, BadgeFileName, badge)
}

// Path returns the full path to the badge file.
func (b *BadgeFile) Path() string {
	return filepath.Join(b.dir, BadgeFileName)
}

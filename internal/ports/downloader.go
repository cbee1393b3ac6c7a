package ports

import (
	"context"
	"io"
)

// Downloader stores a finished recording under name and returns its location.
type Downloader interface {
	Download(ctx context.Context, name, mimeType string, data io.Reader) (string, error)
}

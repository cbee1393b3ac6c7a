package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxCollisions bounds the -N suffix search.
const maxCollisions = 1000

// Downloader implements ports.Downloader by writing into a directory.
type Downloader struct {
	dir string
}

// NewDownloader creates a Downloader saving into dir.
func NewDownloader(dir string) *Downloader {
	return &Downloader{dir: dir}
}

// Download writes data to dir/name. An existing file is never overwritten:
// name-1.webm, name-2.webm and so on are tried instead.
func (d *Downloader) Download(ctx context.Context, name, mimeType string, data io.Reader) (string, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("create downloads dir: %w", err)
	}

	f, path, err := d.create(filepath.Base(name))
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(f, &ctxReader{ctx: ctx, r: data}); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

func (d *Downloader) create(name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i < maxCollisions; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		path := filepath.Join(d.dir, candidate)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", path, err)
		}
	}
	return nil, "", fmt.Errorf("create %s: too many existing files", name)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

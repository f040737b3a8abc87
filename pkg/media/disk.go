package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Disk stores media on the local filesystem and serves it below baseURL.
// Intended for development.
type Disk struct {
	root    string
	baseURL string
	limit   int64
}

// NewDisk creates root if needed. baseURL is the public prefix, e.g.
// http://localhost:8080/media. limit caps a single upload; zero disables it.
func NewDisk(root, baseURL string, limit int64) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	logger.Info("media: disk store created", slog.String("root", root))
	return &Disk{root: root, baseURL: strings.TrimRight(baseURL, "/"), limit: limit}, nil
}

func (d *Disk) Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("invalid media key %q", key)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := key + extensionFor(contentType)

	tmp, err := os.CreateTemp(d.root, ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	src := r
	if d.limit > 0 {
		src = io.LimitReader(r, d.limit+1)
	}
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write media: %w", err)
	}
	if d.limit > 0 && n > d.limit {
		return "", fmt.Errorf("media exceeds %d bytes", d.limit)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.root, name)); err != nil {
		return "", fmt.Errorf("store media: %w", err)
	}
	return d.baseURL + "/" + name, nil
}

// Delete removes the file behind url. A missing file counts as deleted.
func (d *Disk) Delete(ctx context.Context, url string) error {
	name, ok := strings.CutPrefix(url, d.baseURL+"/")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return ErrForeignURL
	}
	if err := os.Remove(filepath.Join(d.root, name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Handler serves stored files.
func (d *Disk) Handler() http.Handler {
	return http.FileServer(http.Dir(d.root))
}

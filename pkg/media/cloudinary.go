package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/garnizeh/whitelist/internal/config"
)

// Uploader is the part of the Cloudinary upload API the store uses.
type Uploader interface {
	Upload(ctx context.Context, file interface{}, uploadParams uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// Cloudinary stores audio as Cloudinary video resources transcoded to webm.
type Cloudinary struct {
	api     Uploader
	folder  string
	timeout time.Duration
}

func NewCloudinary(cfg config.MediaConfig) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	logger.Info("media: cloudinary store created", slog.String("cloud", cfg.CloudName), slog.String("folder", cfg.Folder))
	c := NewCloudinaryWithAPI(&cld.Upload, cfg.Folder)
	c.timeout = cfg.Timeout
	return c, nil
}

// NewCloudinaryWithAPI builds the store on an existing upload API.
func NewCloudinaryWithAPI(u Uploader, folder string) *Cloudinary {
	return &Cloudinary{api: u, folder: folder}
}

func (c *Cloudinary) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Upload stores the payload under public id key and returns its secure url.
func (c *Cloudinary) Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("invalid media key %q", key)
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()
	res, err := c.api.Upload(ctx, r, uploader.UploadParams{
		PublicID:     key,
		Folder:       c.folder,
		ResourceType: "video",
		Format:       "webm",
		Overwrite:    api.Bool(true),
		Invalidate:   api.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	if res.SecureURL == "" {
		return "", errors.New("cloudinary upload: empty url")
	}
	logger.Debug("media: uploaded", slog.String("public_id", res.PublicID), slog.String("content_type", contentType))
	return res.SecureURL, nil
}

// Delete destroys the resource behind url. A resource that is already gone
// counts as deleted.
func (c *Cloudinary) Delete(ctx context.Context, url string) error {
	id, ok := PublicIDFromURL(url)
	if !ok {
		return ErrForeignURL
	}
	if c.folder != "" && path.Dir(id) != c.folder {
		return ErrForeignURL
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()
	res, err := c.api.Destroy(ctx, uploader.DestroyParams{
		PublicID:     id,
		ResourceType: "video",
		Invalidate:   api.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy: %s", res.Error.Message)
	}
	switch res.Result {
	case "ok", "not found":
		return nil
	default:
		return fmt.Errorf("cloudinary destroy %s: %s", id, res.Result)
	}
}

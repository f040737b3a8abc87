package media_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/garnizeh/whitelist/pkg/media"
)

func TestPublicIDFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
		ok   bool
	}{
		{"https://res.cloudinary.com/demo/video/upload/v1699/whitelist-applications/app_q1.webm", "whitelist-applications/app_q1", true},
		{"https://res.cloudinary.com/demo/video/upload/whitelist-applications/app_q1.webm", "whitelist-applications/app_q1", true},
		{"https://res.cloudinary.com/demo/video/upload/v12/app_q1.webm?x=1", "app_q1", true},
		{"https://res.cloudinary.com/demo/video/upload/v12/folder.v2/app", "folder.v2/app", true},
		{"https://example.com/media/file.webm", "", false},
		{"https://res.cloudinary.com/demo/video/upload/", "", false},
	}
	for _, tc := range cases {
		got, ok := media.PublicIDFromURL(tc.url)
		if got != tc.want || ok != tc.ok {
			t.Errorf("PublicIDFromURL(%q) = %q,%v want %q,%v", tc.url, got, ok, tc.want, tc.ok)
		}
	}
}

type fakeUploader struct {
	uploadParams  uploader.UploadParams
	uploaded      []byte
	uploadResult  *uploader.UploadResult
	uploadErr     error
	destroyParams uploader.DestroyParams
	destroyResult *uploader.DestroyResult
}

func (f *fakeUploader) Upload(ctx context.Context, file interface{}, p uploader.UploadParams) (*uploader.UploadResult, error) {
	f.uploadParams = p
	if r, ok := file.(io.Reader); ok {
		f.uploaded, _ = io.ReadAll(r)
	}
	return f.uploadResult, f.uploadErr
}

func (f *fakeUploader) Destroy(ctx context.Context, p uploader.DestroyParams) (*uploader.DestroyResult, error) {
	f.destroyParams = p
	return f.destroyResult, nil
}

func TestCloudinary_Upload(t *testing.T) {
	f := &fakeUploader{uploadResult: &uploader.UploadResult{SecureURL: "https://res.cloudinary.com/x/video/upload/v1/whitelist-applications/a_q.webm"}}
	c := media.NewCloudinaryWithAPI(f, "whitelist-applications")

	u, err := c.Upload(context.Background(), "a_q", "audio/webm", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if u != f.uploadResult.SecureURL {
		t.Fatalf("unexpected url %q", u)
	}
	p := f.uploadParams
	if p.PublicID != "a_q" || p.Folder != "whitelist-applications" || p.ResourceType != "video" || p.Format != "webm" {
		t.Fatalf("unexpected upload params: %+v", p)
	}
	if string(f.uploaded) != "data" {
		t.Fatalf("payload not forwarded: %q", f.uploaded)
	}
}

func TestCloudinary_UploadFailures(t *testing.T) {
	cases := []struct {
		name string
		f    *fakeUploader
		key  string
	}{
		{"TransportError", &fakeUploader{uploadErr: errors.New("boom")}, "a_q"},
		{"APIError", &fakeUploader{uploadResult: &uploader.UploadResult{Error: api.ErrorResp{Message: "Invalid API key"}}}, "a_q"},
		{"EmptyURL", &fakeUploader{uploadResult: &uploader.UploadResult{}}, "a_q"},
		{"BadKey", &fakeUploader{}, "../etc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := media.NewCloudinaryWithAPI(tc.f, "whitelist-applications")
			if _, err := c.Upload(context.Background(), tc.key, "audio/webm", strings.NewReader("x")); err == nil {
				t.Fatalf("expected upload error")
			}
		})
	}
}

func TestCloudinary_Delete(t *testing.T) {
	f := &fakeUploader{destroyResult: &uploader.DestroyResult{Result: "ok"}}
	c := media.NewCloudinaryWithAPI(f, "whitelist-applications")

	if err := c.Delete(context.Background(), "https://res.cloudinary.com/x/video/upload/v3/whitelist-applications/a_q.webm"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if f.destroyParams.PublicID != "whitelist-applications/a_q" || f.destroyParams.ResourceType != "video" {
		t.Fatalf("unexpected destroy params: %+v", f.destroyParams)
	}

	f.destroyResult = &uploader.DestroyResult{Result: "not found"}
	if err := c.Delete(context.Background(), "https://res.cloudinary.com/x/video/upload/whitelist-applications/gone.webm"); err != nil {
		t.Fatalf("already deleted media should not fail: %v", err)
	}

	f.destroyResult = &uploader.DestroyResult{Error: api.ErrorResp{Message: "rate limited"}}
	if err := c.Delete(context.Background(), "https://res.cloudinary.com/x/video/upload/whitelist-applications/a_q.webm"); err == nil {
		t.Fatalf("expected destroy error")
	}

	if err := c.Delete(context.Background(), "https://res.cloudinary.com/x/video/upload/other/a_q.webm"); !errors.Is(err, media.ErrForeignURL) {
		t.Fatalf("expected ErrForeignURL for other folder, got %v", err)
	}
}

func TestDisk_UploadServeDelete(t *testing.T) {
	dir := t.TempDir()
	d, err := media.NewDisk(dir, "http://localhost:8080/media/", 16)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}

	u, err := d.Upload(context.Background(), "app_q", "audio/ogg; codecs=opus", bytes.NewReader([]byte("voice")))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if u != "http://localhost:8080/media/app_q.ogg" {
		t.Fatalf("unexpected url %q", u)
	}

	rec := httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app_q.ogg", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "voice" {
		t.Fatalf("unexpected serve result: %d %q", rec.Code, rec.Body.String())
	}

	if err := d.Delete(context.Background(), u); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "app_q.ogg")); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err: %v", err)
	}
	// deleting twice is fine
	if err := d.Delete(context.Background(), u); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestDisk_Rejections(t *testing.T) {
	d, err := media.NewDisk(t.TempDir(), "http://localhost/media", 4)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	if _, err := d.Upload(context.Background(), "big", "audio/webm", strings.NewReader("too large")); err == nil {
		t.Fatalf("expected size limit error")
	}
	if _, err := d.Upload(context.Background(), "a/b", "audio/webm", strings.NewReader("x")); err == nil {
		t.Fatalf("expected invalid key error")
	}
	if err := d.Delete(context.Background(), "http://elsewhere/x.webm"); !errors.Is(err, media.ErrForeignURL) {
		t.Fatalf("expected ErrForeignURL, got %v", err)
	}
	if err := d.Delete(context.Background(), "http://localhost/media/../secret"); !errors.Is(err, media.ErrForeignURL) {
		t.Fatalf("expected ErrForeignURL for traversal, got %v", err)
	}
}

package media

import (
	"errors"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// ErrForeignURL is returned when asked to delete a url the store does not own.
var ErrForeignURL = errors.New("url does not belong to this media store")

// package-level logger for pkg/media; can be replaced by callers
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by pkg/media. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

var versionSegment = regexp.MustCompile(`^v\d+$`)

// PublicIDFromURL extracts the Cloudinary public id from a delivery url:
// everything after /upload/, minus an optional version segment and the
// file extension.
func PublicIDFromURL(u string) (string, bool) {
	i := strings.Index(u, "/upload/")
	if i < 0 {
		return "", false
	}
	rest := strings.SplitN(u[i+len("/upload/"):], "?", 2)[0]
	parts := strings.Split(rest, "/")
	if len(parts) > 1 && versionSegment.MatchString(parts[0]) {
		parts = parts[1:]
	}
	id := strings.Join(parts, "/")
	if dot := strings.LastIndex(id, "."); dot > strings.LastIndex(id, "/") {
		id = id[:dot]
	}
	if id == "" {
		return "", false
	}
	return id, true
}

var safeKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func validKey(key string) bool {
	return safeKey.MatchString(key)
}

var extensions = map[string]string{
	"audio/webm":  ".webm",
	"video/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/mp4":   ".m4a",
	"audio/x-m4a": ".m4a",
}

func extensionFor(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if ext, ok := extensions[ct]; ok {
		return ext
	}
	return ".webm"
}

package sqlstore

import (
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/garnizeh/whitelist/internal/db"
	"github.com/garnizeh/whitelist/pkg/repository"
)

// Store implements the repository interfaces on top of the internal DB
// wrapper. The same SQL runs on sqlite and postgres.
type Store struct {
	conn   *db.DB
	logger *slog.Logger
}

// Ensure Store implements the public interfaces.
var _ repository.QuestionRepo = (*Store)(nil)
var _ repository.ApplicationRepo = (*Store)(nil)
var _ repository.AnswerRepo = (*Store)(nil)

func New(conn *db.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Store{conn: conn, logger: logger}
}

func now() int64 {
	return time.Now().UTC().UnixMilli()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// id sets are stored as JSON arrays in TEXT columns
func encodeIDs(ids []string) string {
	if len(ids) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func decodeIDs(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return []string{}
	}
	return out
}

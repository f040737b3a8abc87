package retention

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/whitelist/internal/metrics"
	"github.com/garnizeh/whitelist/pkg/repository"
)

// DefaultWindow is how long audio answers are kept.
const DefaultWindow = 7 * 24 * time.Hour

// MediaDeleter removes stored media by URL.
type MediaDeleter interface {
	Delete(ctx context.Context, url string) error
}

// Report summarises one sweep.
type Report struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Deleted int    `json:"deleted"`
	Failed  int    `json:"failed"`
	Total   int    `json:"total"`
}

type Deps struct {
	Answers repository.AnswerRepo
	Media   MediaDeleter
	// Window defaults to DefaultWindow.
	Window time.Duration
	Logger *slog.Logger
	Now    func() time.Time
}

// Sweeper deletes audio older than the retention window and clears the
// references to it. It is best effort: one failed item never stops the rest.
type Sweeper struct {
	answers repository.AnswerRepo
	media   MediaDeleter
	window  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func New(d Deps) *Sweeper {
	if d.Window <= 0 {
		d.Window = DefaultWindow
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Sweeper{answers: d.Answers, media: d.Media, window: d.Window, logger: d.Logger, now: d.Now}
}

// Sweep runs one pass. An error is returned only when the candidate answers
// cannot be listed.
func (s *Sweeper) Sweep(ctx context.Context) (*Report, error) {
	cutoff := s.now().Add(-s.window).UnixMilli()
	answers, err := s.answers.ListAudioBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expired audio: %w", err)
	}

	rep := &Report{Success: true, Total: len(answers)}
	for _, a := range answers {
		if a.AudioURL == nil || *a.AudioURL == "" {
			continue
		}
		if err := s.media.Delete(ctx, *a.AudioURL); err != nil {
			rep.Failed++
			s.logger.Warn("retention: delete media failed", slog.String("answer_id", a.ID), slog.Any("err", err))
			continue
		}
		if err := s.answers.ClearAudio(ctx, a.ID); err != nil {
			rep.Failed++
			s.logger.Warn("retention: clear audio failed", slog.String("answer_id", a.ID), slog.Any("err", err))
			continue
		}
		rep.Deleted++
	}
	rep.Message = fmt.Sprintf("Cleaned up %d audio files, %d failed", rep.Deleted, rep.Failed)

	metrics.RecordSweep(rep.Deleted, rep.Failed)
	s.logger.Info("retention: sweep finished",
		slog.Int("deleted", rep.Deleted),
		slog.Int("failed", rep.Failed),
		slog.Int("total", rep.Total))
	return rep, nil
}

// Authorized reports whether an Authorization header carries the bearer
// secret matching secretHash. An empty hash disables the endpoint.
func Authorized(secretHash, header string) bool {
	if secretHash == "" {
		return false
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(token)) == nil
}

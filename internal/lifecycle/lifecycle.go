package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/garnizeh/whitelist/internal/metrics"
	"github.com/garnizeh/whitelist/pkg/discord"
	"github.com/garnizeh/whitelist/pkg/models"
	"github.com/garnizeh/whitelist/pkg/repository"
)

// MediaStore persists audio answers.
type MediaStore interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

// MembershipOracle answers whether a user belongs to the guild.
type MembershipOracle interface {
	IsGuildMember(ctx context.Context, userID string) (bool, error)
}

// Notifier manages the whitelist role and direct messages of an applicant.
type Notifier interface {
	AddRole(ctx context.Context, userID string) error
	RemoveRole(ctx context.Context, userID string) error
	SendDM(ctx context.Context, userID string, embed discord.Embed) error
}

// Announcer tells staff that an application is waiting for review.
type Announcer interface {
	Announce(ctx context.Context, app models.Application, resubmitted bool) error
}

// Reviewer identifies the admin performing a transition.
type Reviewer struct {
	ID   string
	Name string
}

// Effect is the outcome of one best-effort side effect.
type Effect struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Result is a committed transition plus the side effects attempted after it.
type Result struct {
	Application *models.Application `json:"application"`
	Effects     []Effect            `json:"effects"`
}

const (
	ActionGrantRole     = "grant_role"
	ActionRevokeRole    = "revoke_role"
	ActionNotify        = "notify_applicant"
	ActionAnnounce      = "announce_to_staff"
	ActionDeleteReplace = "delete_replaced_audio"
	ActionDeleteUpload  = "delete_orphaned_upload"
)

type Deps struct {
	Questions    repository.QuestionRepo
	Applications repository.ApplicationRepo
	Media        MediaStore
	Members      MembershipOracle
	Notifier     Notifier
	// Announcer is optional.
	Announcer  Announcer
	ServerName string
	Logger     *slog.Logger
	Now        func() time.Time
}

// Service drives applications through pending, approved, denied and revision.
// A transition is committed before any external side effect runs; side effect
// failures are reported in Result.Effects and never undo the transition.
type Service struct {
	questions    repository.QuestionRepo
	applications repository.ApplicationRepo
	media        MediaStore
	members      MembershipOracle
	notifier     Notifier
	announcer    Announcer
	serverName   string
	logger       *slog.Logger
	now          func() time.Time
}

func New(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		questions:    d.Questions,
		applications: d.Applications,
		media:        d.Media,
		members:      d.Members,
		notifier:     d.Notifier,
		announcer:    d.Announcer,
		serverName:   d.ServerName,
		logger:       d.Logger,
		now:          d.Now,
	}
}

type sideEffect struct {
	action string
	run    func(ctx context.Context) error
}

// runEffects attempts each effect once, in order, on a context detached from
// the caller's cancellation.
func (s *Service) runEffects(ctx context.Context, appID string, effects []sideEffect) []Effect {
	ctx = context.WithoutCancel(ctx)
	out := make([]Effect, 0, len(effects))
	for _, e := range effects {
		res := Effect{Action: e.action, OK: true}
		if err := e.run(ctx); err != nil {
			res.OK = false
			res.Error = err.Error()
			s.logger.Warn("lifecycle: side effect failed",
				slog.String("application_id", appID),
				slog.String("action", e.action),
				slog.Any("err", err))
		}
		metrics.RecordEffect(e.action, res.OK)
		out = append(out, res)
	}
	return out
}

func (s *Service) announceEffect(app models.Application, resubmitted bool) []sideEffect {
	if s.announcer == nil {
		return nil
	}
	return []sideEffect{{ActionAnnounce, func(ctx context.Context) error {
		return s.announcer.Announce(ctx, app, resubmitted)
	}}}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

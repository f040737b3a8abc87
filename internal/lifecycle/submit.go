package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/garnizeh/whitelist/internal/metrics"
	"github.com/garnizeh/whitelist/pkg/fault"
	"github.com/garnizeh/whitelist/pkg/models"
	"github.com/garnizeh/whitelist/pkg/repository"
)

// AudioBlob is one uploaded or recorded audio answer.
type AudioBlob struct {
	ContentType string
	Data        io.Reader
}

// SubmitInput carries an applicant's answers keyed by question id.
type SubmitInput struct {
	ApplicantID     string
	ApplicantName   string
	ApplicantAvatar string
	Text            map[string]string
	Audio           map[string]AudioBlob
}

func (in SubmitInput) text(questionID string) string {
	return strings.TrimSpace(in.Text[questionID])
}

func (in SubmitInput) audio(questionID string) (AudioBlob, bool) {
	b, ok := in.Audio[questionID]
	return b, ok && b.Data != nil
}

// Submit creates a pending application. The applicant must be a guild member
// without another pending application and must answer every required question.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Result, error) {
	if in.ApplicantID == "" {
		return nil, fault.Unauth("unauthorized")
	}

	pending, err := s.applications.FindApplication(ctx, in.ApplicantID, models.StatusPending)
	if err != nil {
		return nil, fault.Wrap("failed to check existing applications", err)
	}
	if pending != nil {
		return nil, fault.Conflicted("you already have a pending application")
	}

	member, err := s.members.IsGuildMember(ctx, in.ApplicantID)
	if err != nil {
		return nil, fault.UpstreamErr("failed to verify guild membership", err)
	}
	if !member {
		return nil, fault.Denied("you must be a member of the Discord server to apply")
	}

	questions, err := s.questions.ListQuestions(ctx)
	if err != nil {
		return nil, fault.Wrap("failed to load questions", err)
	}
	for _, q := range questions {
		_, hasAudio := in.audio(q.ID)
		if q.Required && in.text(q.ID) == "" && !hasAudio {
			return nil, fault.Invalid(fmt.Sprintf("question %q is required", q.Text))
		}
	}

	app := &models.Application{
		ID:              uuid.NewString(),
		ApplicantID:     in.ApplicantID,
		ApplicantName:   in.ApplicantName,
		ApplicantAvatar: strPtr(in.ApplicantAvatar),
		Status:          models.StatusPending,
	}

	var uploaded []string
	answers := make([]models.Answer, 0, len(questions))
	for _, q := range questions {
		ans := models.Answer{QuestionID: q.ID, TextAnswer: strPtr(in.text(q.ID))}
		if blob, ok := in.audio(q.ID); ok {
			url, err := s.media.Upload(ctx, app.ID+"_"+q.ID, blob.ContentType, blob.Data)
			if err != nil {
				s.discardUploads(ctx, app.ID, uploaded)
				return nil, fault.Wrap("failed to upload audio", err)
			}
			uploaded = append(uploaded, url)
			ans.AudioURL = &url
		}
		if ans.HasContent() {
			answers = append(answers, ans)
		}
	}

	if err := s.applications.CreateApplication(ctx, app, answers); err != nil {
		s.discardUploads(ctx, app.ID, uploaded)
		if errors.Is(err, repository.ErrConflict) {
			return nil, fault.Conflicted("you already have a pending application")
		}
		return nil, fault.Wrap("failed to save application", err)
	}
	metrics.RecordTransition("submit", string(app.Status))
	s.logger.Info("lifecycle: application submitted",
		slog.String("application_id", app.ID),
		slog.String("applicant_id", app.ApplicantID),
		slog.Int("answers", len(answers)))

	effects := s.runEffects(ctx, app.ID, s.announceEffect(*app, false))
	return &Result{Application: app, Effects: effects}, nil
}

// discardUploads removes media stored for an application that was never saved.
func (s *Service) discardUploads(ctx context.Context, appID string, urls []string) {
	if len(urls) == 0 {
		return
	}
	effects := make([]sideEffect, 0, len(urls))
	for _, u := range urls {
		effects = append(effects, sideEffect{ActionDeleteUpload, func(ctx context.Context) error {
			return s.media.Delete(ctx, u)
		}})
	}
	s.runEffects(ctx, appID, effects)
}

// ResubmitRevision patches the flagged answers of the applicant's application
// in revision and returns it to pending. Answers to questions that were not
// flagged are left untouched.
func (s *Service) ResubmitRevision(ctx context.Context, in SubmitInput) (*Result, error) {
	if in.ApplicantID == "" {
		return nil, fault.Unauth("unauthorized")
	}

	app, err := s.applications.FindApplication(ctx, in.ApplicantID, models.StatusRevision)
	if err != nil {
		return nil, fault.Wrap("failed to load application", err)
	}
	if app == nil {
		return nil, fault.Conflicted("no revision has been requested for your application")
	}

	existing, err := s.applications.ListAnswers(ctx, app.ID)
	if err != nil {
		return nil, fault.Wrap("failed to load answers", err)
	}
	byQuestion := make(map[string]models.Answer, len(existing))
	for _, a := range existing {
		byQuestion[a.QuestionID] = a
	}

	questions, err := s.questions.ListQuestions(ctx)
	if err != nil {
		return nil, fault.Wrap("failed to load questions", err)
	}
	inCatalog := make(map[string]bool, len(questions))
	for _, q := range questions {
		inCatalog[q.ID] = true
	}

	suffix := strconv.FormatInt(s.now().UnixMilli(), 10)
	var (
		uploaded []string
		replaced []string
		patches  []models.Answer
	)
	for _, qid := range app.RevisionQuestionIDs {
		if !inCatalog[qid] {
			continue
		}
		ans, had := byQuestion[qid]
		if !had {
			ans = models.Answer{QuestionID: qid}
		}
		changed := false
		if text := in.text(qid); text != "" {
			ans.TextAnswer = &text
			changed = true
		}
		if blob, ok := in.audio(qid); ok {
			url, err := s.media.Upload(ctx, app.ID+"_"+qid+"_"+suffix, blob.ContentType, blob.Data)
			if err != nil {
				s.discardUploads(ctx, app.ID, uploaded)
				return nil, fault.Wrap("failed to upload audio", err)
			}
			uploaded = append(uploaded, url)
			if ans.AudioURL != nil && *ans.AudioURL != "" && *ans.AudioURL != url {
				replaced = append(replaced, *ans.AudioURL)
			}
			ans.AudioURL = &url
			changed = true
		}
		if changed && ans.HasContent() {
			patches = append(patches, ans)
		}
	}

	app.Status = models.StatusPending
	app.RevisedQuestionIDs = union(app.RevisedQuestionIDs, app.RevisionQuestionIDs)
	app.RevisionReason = nil
	app.RevisionQuestionIDs = []string{}
	app.ReviewedBy = nil
	app.ReviewedByID = nil
	app.ReviewedAt = nil

	if err := s.applications.SaveRevision(ctx, app, patches); err != nil {
		s.discardUploads(ctx, app.ID, uploaded)
		if errors.Is(err, repository.ErrConflict) {
			return nil, fault.Conflicted("you already have a pending application")
		}
		return nil, fault.Wrap("failed to save revision", err)
	}
	metrics.RecordTransition("resubmit", string(app.Status))
	s.logger.Info("lifecycle: revision resubmitted",
		slog.String("application_id", app.ID),
		slog.Int("patched", len(patches)))

	if app.Answers, err = s.applications.ListAnswers(ctx, app.ID); err != nil {
		s.logger.Warn("lifecycle: reload answers failed", slog.String("application_id", app.ID), slog.Any("err", err))
	}

	var effects []sideEffect
	for _, u := range replaced {
		effects = append(effects, sideEffect{ActionDeleteReplace, func(ctx context.Context) error {
			return s.media.Delete(ctx, u)
		}})
	}
	effects = append(effects, s.announceEffect(*app, true)...)
	return &Result{Application: app, Effects: s.runEffects(ctx, app.ID, effects)}, nil
}

// union appends the ids of add missing from base, keeping first-seen order.
func union(base, add []string) []string {
	seen := make(map[string]bool, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

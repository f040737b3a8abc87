package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/garnizeh/whitelist/internal/metrics"
	"github.com/garnizeh/whitelist/pkg/discord"
	"github.com/garnizeh/whitelist/pkg/fault"
	"github.com/garnizeh/whitelist/pkg/models"
	"github.com/garnizeh/whitelist/pkg/repository"
)

// ReviewInput is an admin decision on an application.
type ReviewInput struct {
	Status              models.Status `json:"status"`
	DenialReason        string        `json:"denial_reason,omitempty"`
	RevisionReason      string        `json:"revision_reason,omitempty"`
	RevisionQuestionIDs []string      `json:"revision_question_ids,omitempty"`
}

// Review dispatches a decision to Approve, Deny or RequestRevision.
func (s *Service) Review(ctx context.Context, id string, in ReviewInput, by Reviewer) (*Result, error) {
	switch in.Status {
	case models.StatusApproved:
		return s.Approve(ctx, id, by)
	case models.StatusDenied:
		return s.Deny(ctx, id, in.DenialReason, by)
	case models.StatusRevision:
		return s.RequestRevision(ctx, id, in.RevisionReason, in.RevisionQuestionIDs, by)
	default:
		return nil, fault.Invalid("status must be one of approved, denied, revision")
	}
}

// List returns every application newest first with answers attached.
func (s *Service) List(ctx context.Context) ([]models.Application, error) {
	apps, err := s.applications.ListApplications(ctx)
	if err != nil {
		return nil, fault.Wrap("failed to list applications", err)
	}
	return apps, nil
}

// Mine returns the newest application of an applicant, or nil.
func (s *Service) Mine(ctx context.Context, applicantID string) (*models.Application, error) {
	if applicantID == "" {
		return nil, fault.Unauth("unauthorized")
	}
	app, err := s.applications.LatestApplication(ctx, applicantID)
	if err != nil {
		return nil, fault.Wrap("failed to load application", err)
	}
	return app, nil
}

func (s *Service) load(ctx context.Context, id string, allowed ...models.Status) (*models.Application, error) {
	app, err := s.applications.GetApplication(ctx, id)
	if err != nil {
		return nil, fault.Wrap("failed to load application", err)
	}
	if app == nil {
		return nil, fault.Missing("application not found")
	}
	for _, st := range allowed {
		if app.Status == st {
			return app, nil
		}
	}
	return nil, fault.Conflicted(fmt.Sprintf("application is %s", app.Status))
}

func (s *Service) stamp(app *models.Application, by Reviewer) {
	at := s.now().UnixMilli()
	app.ReviewedBy = strPtr(by.Name)
	app.ReviewedByID = strPtr(by.ID)
	app.ReviewedAt = &at
}

func (s *Service) commit(ctx context.Context, app *models.Application, event string) error {
	if err := s.applications.UpdateReview(ctx, app); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fault.Missing("application not found")
		}
		if errors.Is(err, repository.ErrConflict) {
			return fault.Conflicted("applicant already has a pending application")
		}
		return fault.Wrap("failed to update application", err)
	}
	metrics.RecordTransition(event, string(app.Status))
	s.logger.Info("lifecycle: application reviewed",
		slog.String("application_id", app.ID),
		slog.String("event", event),
		slog.String("status", string(app.Status)),
		slog.String("reviewer_id", derefString(app.ReviewedByID)))
	return nil
}

// Approve moves a pending or revision application to approved, then grants
// the whitelist role and notifies the applicant.
func (s *Service) Approve(ctx context.Context, id string, by Reviewer) (*Result, error) {
	app, err := s.load(ctx, id, models.StatusPending, models.StatusRevision)
	if err != nil {
		return nil, err
	}

	app.Status = models.StatusApproved
	app.DenialReason = nil
	app.RevisionReason = nil
	app.RevisionQuestionIDs = []string{}
	s.stamp(app, by)
	if err := s.commit(ctx, app, "approve"); err != nil {
		return nil, err
	}

	embed := discord.ApprovedEmbed(s.serverName, s.now())
	effects := s.runEffects(ctx, app.ID, []sideEffect{
		{ActionGrantRole, func(ctx context.Context) error { return s.notifier.AddRole(ctx, app.ApplicantID) }},
		{ActionNotify, func(ctx context.Context) error { return s.notifier.SendDM(ctx, app.ApplicantID, embed) }},
	})
	return &Result{Application: app, Effects: effects}, nil
}

// Deny moves a pending or revision application to denied, then revokes the
// whitelist role and notifies the applicant, quoting the reason if any.
func (s *Service) Deny(ctx context.Context, id, reason string, by Reviewer) (*Result, error) {
	app, err := s.load(ctx, id, models.StatusPending, models.StatusRevision)
	if err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	app.Status = models.StatusDenied
	app.DenialReason = strPtr(reason)
	app.RevisionReason = nil
	app.RevisionQuestionIDs = []string{}
	s.stamp(app, by)
	if err := s.commit(ctx, app, "deny"); err != nil {
		return nil, err
	}

	embed := discord.DeniedEmbed(s.serverName, reason, s.now())
	effects := s.runEffects(ctx, app.ID, []sideEffect{
		{ActionRevokeRole, func(ctx context.Context) error { return s.notifier.RemoveRole(ctx, app.ApplicantID) }},
		{ActionNotify, func(ctx context.Context) error { return s.notifier.SendDM(ctx, app.ApplicantID, embed) }},
	})
	return &Result{Application: app, Effects: effects}, nil
}

// RequestRevision flags a non-empty subset of catalog questions on a pending
// application and asks the applicant to revise them. Flagged ids are stored
// in catalog order.
func (s *Service) RequestRevision(ctx context.Context, id, reason string, questionIDs []string, by Reviewer) (*Result, error) {
	app, err := s.load(ctx, id, models.StatusPending)
	if err != nil {
		return nil, err
	}
	if len(questionIDs) == 0 {
		return nil, fault.Invalid("select at least one question to revise")
	}

	questions, err := s.questions.ListQuestions(ctx)
	if err != nil {
		return nil, fault.Wrap("failed to load questions", err)
	}
	wanted := make(map[string]bool, len(questionIDs))
	for _, qid := range questionIDs {
		wanted[qid] = true
	}
	var (
		ids   []string
		texts []string
	)
	for _, q := range questions {
		if wanted[q.ID] {
			ids = append(ids, q.ID)
			texts = append(texts, q.Text)
			delete(wanted, q.ID)
		}
	}
	if len(wanted) > 0 {
		return nil, fault.Invalid("revision_question_ids contains unknown questions")
	}

	reason = strings.TrimSpace(reason)
	app.Status = models.StatusRevision
	app.RevisionReason = strPtr(reason)
	app.RevisionQuestionIDs = ids
	app.DenialReason = nil
	s.stamp(app, by)
	if err := s.commit(ctx, app, "request_revision"); err != nil {
		return nil, err
	}

	embed := discord.RevisionEmbed(s.serverName, reason, texts, s.now())
	effects := s.runEffects(ctx, app.ID, []sideEffect{
		{ActionNotify, func(ctx context.Context) error { return s.notifier.SendDM(ctx, app.ApplicantID, embed) }},
	})
	return &Result{Application: app, Effects: effects}, nil
}

// Delete hard deletes an application and its answers, letting the applicant
// apply again.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.applications.DeleteApplication(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fault.Missing("application not found")
		}
		return fault.Wrap("failed to delete application", err)
	}
	metrics.RecordTransition("delete", "none")
	s.logger.Info("lifecycle: application deleted", slog.String("application_id", id))
	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

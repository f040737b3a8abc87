package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/garnizeh/whitelist/pkg/fault"
	"github.com/garnizeh/whitelist/pkg/models"
	"github.com/garnizeh/whitelist/pkg/repository"
)

// Service manages the ordered question set every application answers.
type Service struct {
	repo   repository.QuestionRepo
	logger *slog.Logger
}

func New(repo repository.QuestionRepo, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Service{repo: repo, logger: logger}
}

type CreateInput struct {
	Text     string              `json:"text"`
	Type     models.QuestionType `json:"type"`
	Required *bool               `json:"required,omitempty"`
}

type UpdateInput struct {
	Text     string              `json:"text"`
	Type     models.QuestionType `json:"type"`
	Required bool                `json:"required"`
	Order    int                 `json:"order"`
}

func validate(text string, typ models.QuestionType) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fault.Invalid("question text is required")
	}
	if !typ.Valid() {
		return "", fault.Invalid("question type must be one of text, textarea, audio")
	}
	return text, nil
}

func (s *Service) List(ctx context.Context) ([]models.Question, error) {
	qs, err := s.repo.ListQuestions(ctx)
	if err != nil {
		return nil, fault.Wrap("failed to list questions", err)
	}
	return qs, nil
}

// Create appends a question at the end of the catalog. Required defaults to true.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Question, error) {
	text, err := validate(in.Text, in.Type)
	if err != nil {
		return nil, err
	}
	q := &models.Question{Text: text, Type: in.Type, Required: true}
	if in.Required != nil {
		q.Required = *in.Required
	}
	if err := s.repo.CreateQuestion(ctx, q); err != nil {
		return nil, fault.Wrap("failed to create question", err)
	}
	s.logger.Info("catalog: question created", slog.String("id", q.ID), slog.Int("order", q.Order))
	return q, nil
}

// Update overwrites every editable field of the question.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*models.Question, error) {
	text, err := validate(in.Text, in.Type)
	if err != nil {
		return nil, err
	}
	if in.Order < 0 {
		return nil, fault.Invalid("order must not be negative")
	}
	q := &models.Question{ID: id, Text: text, Type: in.Type, Required: in.Required, Order: in.Order}
	if err := s.repo.UpdateQuestion(ctx, q); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fault.Missing("question not found")
		}
		return nil, fault.Wrap("failed to update question", err)
	}
	updated, err := s.repo.GetQuestion(ctx, id)
	if err != nil || updated == nil {
		return q, nil
	}
	return updated, nil
}

// Delete removes the question and every answer given to it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteQuestion(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fault.Missing("question not found")
		}
		return fault.Wrap("failed to delete question", err)
	}
	s.logger.Info("catalog: question deleted", slog.String("id", id))
	return nil
}

// Reorder assigns order = index to each id. The batch is applied atomically;
// an unknown id leaves every question untouched.
func (s *Service) Reorder(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return fault.Invalid("question_ids must not be empty")
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return fault.Invalid("question_ids must not contain empty ids")
		}
		if _, dup := seen[id]; dup {
			return fault.Invalid("question_ids must not contain duplicates")
		}
		seen[id] = struct{}{}
	}
	if err := s.repo.ReorderQuestions(ctx, ids); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fault.Missing("question not found")
		}
		return fault.Wrap("failed to reorder questions", err)
	}
	return nil
}

package repository

import (
	"context"
	"errors"

	"github.com/garnizeh/whitelist/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
// Lookups return (nil, nil) when the row does not exist.

var (
	// ErrNotFound is returned by writes that target a row that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would give an applicant a second pending application.
	ErrConflict = errors.New("applicant already has a pending application")
)

type QuestionRepo interface {
	// CreateQuestion appends q at the end of the catalog and sets q.Order.
	CreateQuestion(ctx context.Context, q *models.Question) error
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
	ListQuestions(ctx context.Context) ([]models.Question, error)
	UpdateQuestion(ctx context.Context, q *models.Question) error
	// DeleteQuestion removes the question and every answer referencing it.
	DeleteQuestion(ctx context.Context, id string) error
	// ReorderQuestions sets order = index for each id in one transaction.
	ReorderQuestions(ctx context.Context, ids []string) error
}

type ApplicationRepo interface {
	// CreateApplication stores the application and its answers atomically.
	CreateApplication(ctx context.Context, a *models.Application, answers []models.Answer) error
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	// LatestApplication returns the newest application of an applicant, any status.
	LatestApplication(ctx context.Context, applicantID string) (*models.Application, error)
	FindApplication(ctx context.Context, applicantID string, status models.Status) (*models.Application, error)
	// ListApplications returns every application newest first, answers and
	// their questions attached.
	ListApplications(ctx context.Context) ([]models.Application, error)
	// UpdateReview persists status, reasons, revision sets and reviewer fields.
	UpdateReview(ctx context.Context, a *models.Application) error
	// SaveRevision upserts answers and persists the application in one transaction.
	SaveRevision(ctx context.Context, a *models.Application, answers []models.Answer) error
	DeleteApplication(ctx context.Context, id string) error
	ListAnswers(ctx context.Context, applicationID string) ([]models.Answer, error)
}

type AnswerRepo interface {
	// ListAudioBefore returns answers with audio created strictly before the cutoff (unix ms).
	ListAudioBefore(ctx context.Context, cutoff int64) ([]models.Answer, error)
	ClearAudio(ctx context.Context, answerID string) error
}

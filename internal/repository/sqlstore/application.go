package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/garnizeh/whitelist/internal/db"
	"github.com/garnizeh/whitelist/pkg/models"
	"github.com/garnizeh/whitelist/pkg/repository"
)

const applicationColumns = `id, applicant_id, applicant_name, applicant_avatar, status, denial_reason, revision_reason,
	revision_question_ids, revised_question_ids, reviewed_by, reviewed_by_id, reviewed_at, created, updated`

// applicationRow carries the JSON encoded id sets next to the model.
type applicationRow struct {
	models.Application
	RevisionIDs string `db:"revision_question_ids"`
	RevisedIDs  string `db:"revised_question_ids"`
}

func (r applicationRow) model() *models.Application {
	a := r.Application
	a.RevisionQuestionIDs = decodeIDs(r.RevisionIDs)
	a.RevisedQuestionIDs = decodeIDs(r.RevisedIDs)
	return &a
}

func (s *Store) CreateApplication(ctx context.Context, a *models.Application, answers []models.Answer) error {
	if a == nil {
		return fmt.Errorf("application is nil")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	ts := now()
	a.Created, a.Updated = ts, ts
	if a.Status == "" {
		a.Status = models.StatusPending
	}

	err := s.conn.InTx(ctx, func(tx *db.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO applications (id, applicant_id, applicant_name, applicant_avatar, status, denial_reason, revision_reason,
			revision_question_ids, revised_question_ids, reviewed_by, reviewed_by_id, reviewed_at, created, updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.ApplicantID, a.ApplicantName, a.ApplicantAvatar, string(a.Status), a.DenialReason, a.RevisionReason,
			encodeIDs(a.RevisionQuestionIDs), encodeIDs(a.RevisedQuestionIDs), a.ReviewedBy, a.ReviewedByID, a.ReviewedAt, a.Created, a.Updated)
		if err != nil {
			return err
		}
		for i := range answers {
			ans := &answers[i]
			ans.ApplicationID = a.ID
			if err := insertAnswer(ctx, tx, ans, ts); err != nil {
				return err
			}
		}
		return nil
	})
	if db.IsUniqueViolation(err) {
		return repository.ErrConflict
	}
	if err != nil {
		return err
	}
	a.Answers = answers
	return nil
}

func insertAnswer(ctx context.Context, tx *db.Tx, ans *models.Answer, ts int64) error {
	if ans.ID == "" {
		ans.ID = uuid.NewString()
	}
	ans.Created, ans.Updated = ts, ts
	if _, err := tx.Exec(ctx, `INSERT INTO answers (id, application_id, question_id, text_answer, audio_url, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ans.ID, ans.ApplicationID, ans.QuestionID, ans.TextAnswer, ans.AudioURL, ans.Created, ans.Updated); err != nil {
		return fmt.Errorf("insert answer for question %s: %w", ans.QuestionID, err)
	}
	return nil
}

func (s *Store) getApplication(ctx context.Context, where string, args ...any) (*models.Application, error) {
	var row applicationRow
	if err := s.conn.Get(ctx, &row, `SELECT `+applicationColumns+` FROM applications WHERE `+where, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return row.model(), nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	return s.getApplication(ctx, `id = ?`, id)
}

func (s *Store) LatestApplication(ctx context.Context, applicantID string) (*models.Application, error) {
	a, err := s.getApplication(ctx, `applicant_id = ? ORDER BY created DESC, id DESC LIMIT 1`, applicantID)
	if err != nil || a == nil {
		return a, err
	}
	if a.Answers, err = s.ListAnswers(ctx, a.ID); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) FindApplication(ctx context.Context, applicantID string, status models.Status) (*models.Application, error) {
	return s.getApplication(ctx, `applicant_id = ? AND status = ? ORDER BY created DESC, id DESC LIMIT 1`, applicantID, string(status))
}

func (s *Store) ListApplications(ctx context.Context) ([]models.Application, error) {
	var rows []applicationRow
	if err := s.conn.Select(ctx, &rows, `SELECT `+applicationColumns+` FROM applications ORDER BY created DESC, id DESC`); err != nil {
		return nil, err
	}

	answers, err := s.selectAnswers(ctx, ``)
	if err != nil {
		return nil, err
	}
	byApp := make(map[string][]models.Answer, len(rows))
	for _, ans := range answers {
		byApp[ans.ApplicationID] = append(byApp[ans.ApplicationID], ans)
	}

	out := make([]models.Application, 0, len(rows))
	for _, r := range rows {
		a := r.model()
		a.Answers = byApp[a.ID]
		if a.Answers == nil {
			a.Answers = []models.Answer{}
		}
		out = append(out, *a)
	}
	return out, nil
}

func (s *Store) UpdateReview(ctx context.Context, a *models.Application) error {
	if a == nil {
		return fmt.Errorf("application is nil")
	}
	a.Updated = now()
	return s.conn.InTx(ctx, func(tx *db.Tx) error {
		return updateApplication(ctx, tx, a)
	})
}

func updateApplication(ctx context.Context, tx *db.Tx, a *models.Application) error {
	res, err := tx.Exec(ctx, `UPDATE applications SET status = ?, denial_reason = ?, revision_reason = ?, revision_question_ids = ?,
		revised_question_ids = ?, reviewed_by = ?, reviewed_by_id = ?, reviewed_at = ?, updated = ? WHERE id = ?`,
		string(a.Status), a.DenialReason, a.RevisionReason, encodeIDs(a.RevisionQuestionIDs), encodeIDs(a.RevisedQuestionIDs),
		a.ReviewedBy, a.ReviewedByID, a.ReviewedAt, a.Updated, a.ID)
	if db.IsUniqueViolation(err) {
		return repository.ErrConflict
	}
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *Store) SaveRevision(ctx context.Context, a *models.Application, answers []models.Answer) error {
	if a == nil {
		return fmt.Errorf("application is nil")
	}
	ts := now()
	a.Updated = ts
	return s.conn.InTx(ctx, func(tx *db.Tx) error {
		for i := range answers {
			ans := &answers[i]
			ans.ApplicationID = a.ID
			res, err := tx.Exec(ctx, `UPDATE answers SET text_answer = ?, audio_url = ?, updated = ? WHERE application_id = ? AND question_id = ?`,
				ans.TextAnswer, ans.AudioURL, ts, a.ID, ans.QuestionID)
			if err != nil {
				return fmt.Errorf("update answer for question %s: %w", ans.QuestionID, err)
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n > 0 {
				ans.Updated = ts
				continue
			}
			if err := insertAnswer(ctx, tx, ans, ts); err != nil {
				return err
			}
		}
		return updateApplication(ctx, tx, a)
	})
}

func (s *Store) DeleteApplication(ctx context.Context, id string) error {
	return s.conn.InTx(ctx, func(tx *db.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM answers WHERE application_id = ?`, id); err != nil {
			return fmt.Errorf("delete answers: %w", err)
		}
		res, err := tx.Exec(ctx, `DELETE FROM applications WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return expectRow(res)
	})
}

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

const questionColumns = `id, text, type, required, sort_order, created`

func (s *Store) CreateQuestion(ctx context.Context, q *models.Question) error {
	if q == nil {
		return fmt.Errorf("question is nil")
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	q.Created = now()

	return s.conn.InTx(ctx, func(tx *db.Tx) error {
		var next int
		if err := tx.Get(ctx, &next, `SELECT COALESCE(MAX(sort_order) + 1, 0) FROM questions`); err != nil {
			return fmt.Errorf("next question order: %w", err)
		}
		q.Order = next
		_, err := tx.Exec(ctx, `INSERT INTO questions (id, text, type, required, sort_order, created) VALUES (?, ?, ?, ?, ?, ?)`,
			q.ID, q.Text, string(q.Type), boolToInt(q.Required), q.Order, q.Created)
		return err
	})
}

func (s *Store) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	var q models.Question
	if err := s.conn.Get(ctx, &q, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return &q, nil
}

func (s *Store) ListQuestions(ctx context.Context) ([]models.Question, error) {
	out := []models.Question{}
	if err := s.conn.Select(ctx, &out, `SELECT `+questionColumns+` FROM questions ORDER BY sort_order ASC, created ASC`); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateQuestion(ctx context.Context, q *models.Question) error {
	if q == nil {
		return fmt.Errorf("question is nil")
	}

	res, err := s.conn.Exec(ctx, `UPDATE questions SET text = ?, type = ?, required = ?, sort_order = ? WHERE id = ?`,
		q.Text, string(q.Type), boolToInt(q.Required), q.Order, q.ID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	return s.conn.InTx(ctx, func(tx *db.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM answers WHERE question_id = ?`, id); err != nil {
			return fmt.Errorf("delete answers: %w", err)
		}
		res, err := tx.Exec(ctx, `DELETE FROM questions WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return expectRow(res)
	})
}

func (s *Store) ReorderQuestions(ctx context.Context, ids []string) error {
	return s.conn.InTx(ctx, func(tx *db.Tx) error {
		for i, id := range ids {
			res, err := tx.Exec(ctx, `UPDATE questions SET sort_order = ? WHERE id = ?`, i, id)
			if err != nil {
				return err
			}
			if err := expectRow(res); err != nil {
				return fmt.Errorf("question %s: %w", id, err)
			}
		}
		return nil
	})
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

package sqlstore

import (
	"context"

	"github.com/garnizeh/whitelist/pkg/models"
)

// answerRow is an answer joined with the question it belongs to.
type answerRow struct {
	models.Answer
	QText     string              `db:"q_text"`
	QType     models.QuestionType `db:"q_type"`
	QRequired bool                `db:"q_required"`
	QOrder    int                 `db:"q_order"`
	QCreated  int64               `db:"q_created"`
}

const answerSelect = `SELECT a.id, a.application_id, a.question_id, a.text_answer, a.audio_url, a.created, a.updated,
	q.text AS q_text, q.type AS q_type, q.required AS q_required, q.sort_order AS q_order, q.created AS q_created
	FROM answers a JOIN questions q ON q.id = a.question_id`

func (s *Store) selectAnswers(ctx context.Context, where string, args ...any) ([]models.Answer, error) {
	var rows []answerRow
	if err := s.conn.Select(ctx, &rows, answerSelect+where+` ORDER BY q.sort_order ASC, a.created ASC`, args...); err != nil {
		return nil, err
	}
	out := make([]models.Answer, 0, len(rows))
	for _, r := range rows {
		ans := r.Answer
		ans.Question = &models.Question{
			ID:       r.QuestionID,
			Text:     r.QText,
			Type:     r.QType,
			Required: r.QRequired,
			Order:    r.QOrder,
			Created:  r.QCreated,
		}
		out = append(out, ans)
	}
	return out, nil
}

func (s *Store) ListAnswers(ctx context.Context, applicationID string) ([]models.Answer, error) {
	return s.selectAnswers(ctx, ` WHERE a.application_id = ?`, applicationID)
}

func (s *Store) ListAudioBefore(ctx context.Context, cutoff int64) ([]models.Answer, error) {
	out := []models.Answer{}
	err := s.conn.Select(ctx, &out, `SELECT id, application_id, question_id, text_answer, audio_url, created, updated
		FROM answers WHERE audio_url IS NOT NULL AND audio_url <> '' AND created < ? ORDER BY created ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ClearAudio(ctx context.Context, answerID string) error {
	res, err := s.conn.Exec(ctx, `UPDATE answers SET audio_url = NULL, updated = ? WHERE id = ?`, now(), answerID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

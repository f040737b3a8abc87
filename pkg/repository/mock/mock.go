package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/garnizeh/whitelist/pkg/models"
	"github.com/garnizeh/whitelist/pkg/repository"
)

// Store is an in-memory implementation of every repository interface, used
// by service and handler tests. Error fields force the matching call to fail.
type Store struct {
	mu sync.Mutex

	questions    map[string]models.Question
	applications map[string]models.Application
	answers      map[string]models.Answer
	clock        int64

	// Now overrides the timestamp source; defaults to a monotonically
	// increasing counter so ordering is deterministic.
	Now func() int64

	CreateErr     error
	UpdateErr     error
	SaveErr       error
	DeleteErr     error
	ListErr       error
	ClearAudioErr map[string]error
}

var _ repository.QuestionRepo = (*Store)(nil)
var _ repository.ApplicationRepo = (*Store)(nil)
var _ repository.AnswerRepo = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		questions:     map[string]models.Question{},
		applications:  map[string]models.Application{},
		answers:       map[string]models.Answer{},
		ClearAudioErr: map[string]error{},
	}
}

func (m *Store) now() int64 {
	if m.Now != nil {
		return m.Now()
	}
	m.clock++
	return m.clock
}

// Question methods

func (m *Store) CreateQuestion(ctx context.Context, q *models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	next := 0
	for _, existing := range m.questions {
		if existing.Order >= next {
			next = existing.Order + 1
		}
	}
	q.Order = next
	q.Created = m.now()
	m.questions[q.ID] = *q
	return nil
}

func (m *Store) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (m *Store) ListQuestions(ctx context.Context) ([]models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.sortedQuestions(), nil
}

func (m *Store) sortedQuestions() []models.Question {
	out := make([]models.Question, 0, len(m.questions))
	for _, q := range m.questions {
		out = append(out, q)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Created < out[j].Created
	})
	return out
}

func (m *Store) UpdateQuestion(ctx context.Context, q *models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	existing, ok := m.questions[q.ID]
	if !ok {
		return repository.ErrNotFound
	}
	q.Created = existing.Created
	m.questions[q.ID] = *q
	return nil
}

func (m *Store) DeleteQuestion(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	if _, ok := m.questions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.questions, id)
	for aid, a := range m.answers {
		if a.QuestionID == id {
			delete(m.answers, aid)
		}
	}
	return nil
}

func (m *Store) ReorderQuestions(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	for _, id := range ids {
		if _, ok := m.questions[id]; !ok {
			return fmt.Errorf("question %s: %w", id, repository.ErrNotFound)
		}
	}
	for i, id := range ids {
		q := m.questions[id]
		q.Order = i
		m.questions[id] = q
	}
	return nil
}

// Application methods

func (m *Store) CreateApplication(ctx context.Context, a *models.Application, answers []models.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if a.Status == "" {
		a.Status = models.StatusPending
	}
	if a.Status == models.StatusPending && m.hasPending(a.ApplicantID, "") {
		return repository.ErrConflict
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	ts := m.now()
	a.Created, a.Updated = ts, ts
	for i := range answers {
		ans := &answers[i]
		ans.ApplicationID = a.ID
		m.putAnswer(ans, ts)
	}
	stored := *a
	stored.Answers = nil
	m.applications[a.ID] = stored
	a.Answers = answers
	return nil
}

func (m *Store) hasPending(applicantID, except string) bool {
	for _, existing := range m.applications {
		if existing.ApplicantID == applicantID && existing.Status == models.StatusPending && existing.ID != except {
			return true
		}
	}
	return false
}

func (m *Store) putAnswer(ans *models.Answer, ts int64) {
	if ans.ID == "" {
		ans.ID = uuid.NewString()
	}
	ans.Created, ans.Updated = ts, ts
	stored := *ans
	stored.Question = nil
	m.answers[ans.ID] = stored
}

func (m *Store) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.applications[id]
	if !ok {
		return nil, nil
	}
	return clone(a), nil
}

func (m *Store) LatestApplication(ctx context.Context, applicantID string) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.latest(applicantID, "")
	if a != nil {
		a.Answers = m.answersFor(a.ID)
	}
	return a, nil
}

func (m *Store) FindApplication(ctx context.Context, applicantID string, status models.Status) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest(applicantID, status), nil
}

func (m *Store) latest(applicantID string, status models.Status) *models.Application {
	var best *models.Application
	for _, a := range m.applications {
		if a.ApplicantID != applicantID || (status != "" && a.Status != status) {
			continue
		}
		if best == nil || a.Created > best.Created {
			best = clone(a)
		}
	}
	return best
}

func (m *Store) ListApplications(ctx context.Context) ([]models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]models.Application, 0, len(m.applications))
	for _, a := range m.applications {
		c := clone(a)
		c.Answers = m.answersFor(a.ID)
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Created > out[j].Created })
	return out, nil
}

func (m *Store) UpdateReview(ctx context.Context, a *models.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	return m.store(a)
}

func (m *Store) store(a *models.Application) error {
	existing, ok := m.applications[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if a.Status == models.StatusPending && m.hasPending(a.ApplicantID, a.ID) {
		return repository.ErrConflict
	}
	a.Created = existing.Created
	a.Updated = m.now()
	stored := *clone(*a)
	stored.Answers = nil
	m.applications[a.ID] = stored
	return nil
}

func (m *Store) SaveRevision(ctx context.Context, a *models.Application, answers []models.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if _, ok := m.applications[a.ID]; !ok {
		return repository.ErrNotFound
	}
	ts := m.now()
	for i := range answers {
		ans := &answers[i]
		ans.ApplicationID = a.ID
		var found bool
		for id, existing := range m.answers {
			if existing.ApplicationID == a.ID && existing.QuestionID == ans.QuestionID {
				existing.TextAnswer = ans.TextAnswer
				existing.AudioURL = ans.AudioURL
				existing.Updated = ts
				m.answers[id] = existing
				ans.ID = id
				found = true
				break
			}
		}
		if !found {
			m.putAnswer(ans, ts)
		}
	}
	return m.store(a)
}

func (m *Store) DeleteApplication(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	if _, ok := m.applications[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.applications, id)
	for aid, a := range m.answers {
		if a.ApplicationID == id {
			delete(m.answers, aid)
		}
	}
	return nil
}

func (m *Store) ListAnswers(ctx context.Context, applicationID string) ([]models.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answersFor(applicationID), nil
}

func (m *Store) answersFor(applicationID string) []models.Answer {
	out := []models.Answer{}
	for _, a := range m.answers {
		if a.ApplicationID != applicationID {
			continue
		}
		if q, ok := m.questions[a.QuestionID]; ok {
			qc := q
			a.Question = &qc
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := 0, 0
		if out[i].Question != nil {
			oi = out[i].Question.Order
		}
		if out[j].Question != nil {
			oj = out[j].Question.Order
		}
		if oi != oj {
			return oi < oj
		}
		return out[i].QuestionID < out[j].QuestionID
	})
	return out
}

// Answer methods

func (m *Store) ListAudioBefore(ctx context.Context, cutoff int64) ([]models.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := []models.Answer{}
	for _, a := range m.answers {
		if a.AudioURL != nil && *a.AudioURL != "" && a.Created < cutoff {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Created < out[j].Created })
	return out, nil
}

func (m *Store) ClearAudio(ctx context.Context, answerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ClearAudioErr[answerID]; err != nil {
		return err
	}
	a, ok := m.answers[answerID]
	if !ok {
		return repository.ErrNotFound
	}
	a.AudioURL = nil
	m.answers[answerID] = a
	return nil
}

// Answer returns a stored answer by id, for assertions.
func (m *Store) Answer(id string) (models.Answer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[id]
	return a, ok
}

func clone(a models.Application) *models.Application {
	c := a
	c.RevisionQuestionIDs = append([]string{}, a.RevisionQuestionIDs...)
	c.RevisedQuestionIDs = append([]string{}, a.RevisedQuestionIDs...)
	return &c
}

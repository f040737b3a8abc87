package api_test

import (
	"net/http"
	"testing"

	"github.com/garnizeh/whitelist/pkg/models"
)

type questionsBody struct {
	Questions []models.Question `json:"questions"`
}

func (e *env) listQuestions(t *testing.T) []models.Question {
	t.Helper()
	w := e.do(t, http.MethodGet, "/questions", "", nil, "")
	expectStatus(t, w, http.StatusOK)
	return decode[questionsBody](t, w).Questions
}

func TestQuestionsAdmin(t *testing.T) {
	e := newEnv(t)

	if qs := e.listQuestions(t); len(qs) != 0 {
		t.Fatalf("expected empty catalog, got %v", qs)
	}

	a := e.createQuestion(t, "First", "text", true)
	b := e.createQuestion(t, "Second", "audio", false)
	c := e.createQuestion(t, "Third", "textarea", true)
	if a.Order != 0 || b.Order != 1 || c.Order != 2 {
		t.Fatalf("unexpected orders: %d %d %d", a.Order, b.Order, c.Order)
	}

	w := e.json(t, http.MethodPut, "/admin/questions/reorder", e.admin, map[string]any{"question_ids": []string{c.ID, a.ID, b.ID}})
	expectStatus(t, w, http.StatusOK)
	qs := e.listQuestions(t)
	if len(qs) != 3 || qs[0].ID != c.ID || qs[1].ID != a.ID || qs[2].ID != b.ID {
		t.Fatalf("unexpected order after reorder: %+v", qs)
	}

	w = e.json(t, http.MethodPut, "/admin/questions/"+a.ID, e.admin, map[string]any{"text": "First, edited", "type": "textarea", "required": false, "order": 5})
	expectStatus(t, w, http.StatusOK)
	got := decode[questionBody](t, w).Question
	if got.Text != "First, edited" || got.Type != models.QuestionTextarea || got.Required || got.Order != 5 {
		t.Fatalf("unexpected update: %+v", got)
	}

	expectStatus(t, e.do(t, http.MethodDelete, "/admin/questions/"+b.ID, e.admin, nil, ""), http.StatusOK)
	if qs := e.listQuestions(t); len(qs) != 2 {
		t.Fatalf("expected 2 questions after delete, got %d", len(qs))
	}
	expectStatus(t, e.do(t, http.MethodDelete, "/admin/questions/"+b.ID, e.admin, nil, ""), http.StatusNotFound)
}

func TestQuestionsAdmin_Validation(t *testing.T) {
	e := newEnv(t)
	q := e.createQuestion(t, "First", "text", true)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"NotAdmin", http.MethodPost, "/admin/questions", "user", map[string]any{"text": "x", "type": "text"}, http.StatusUnauthorized},
		{"Anonymous", http.MethodPost, "/admin/questions", "", map[string]any{"text": "x", "type": "text"}, http.StatusUnauthorized},
		{"UnknownType", http.MethodPost, "/admin/questions", "admin", map[string]any{"text": "x", "type": "video"}, http.StatusBadRequest},
		{"MissingText", http.MethodPost, "/admin/questions", "admin", map[string]any{"type": "text"}, http.StatusBadRequest},
		{"BlankText", http.MethodPost, "/admin/questions", "admin", map[string]any{"text": "   ", "type": "text"}, http.StatusBadRequest},
		{"UpdateMissingOrder", http.MethodPut, "/admin/questions/" + q.ID, "admin", map[string]any{"text": "x", "type": "text", "required": true}, http.StatusBadRequest},
		{"UpdateUnknown", http.MethodPut, "/admin/questions/ghost", "admin", map[string]any{"text": "x", "type": "text", "required": true, "order": 0}, http.StatusNotFound},
		{"ReorderEmpty", http.MethodPut, "/admin/questions/reorder", "admin", map[string]any{"question_ids": []string{}}, http.StatusBadRequest},
		{"ReorderUnknown", http.MethodPut, "/admin/questions/reorder", "admin", map[string]any{"question_ids": []string{q.ID, "ghost"}}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token := map[string]string{"admin": e.admin, "user": e.user}[tc.token]
			expectStatus(t, e.json(t, tc.method, tc.path, token, tc.body), tc.want)
		})
	}

	w := e.do(t, http.MethodPost, "/admin/questions", e.admin, nil, "application/json")
	expectStatus(t, w, http.StatusBadRequest)
}

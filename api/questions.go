package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/whitelist/internal/catalog"
	"github.com/garnizeh/whitelist/pkg/models"
)

type QuestionsHandler struct {
	catalog *catalog.Service
}

func NewQuestionsHandler(c *catalog.Service) *QuestionsHandler {
	return &QuestionsHandler{catalog: c}
}

type questionResponse struct {
	Question *models.Question `json:"question"`
}

type questionsResponse struct {
	Questions []models.Question `json:"questions"`
}

type reorderRequest struct {
	QuestionIDs []string `json:"question_ids"`
}

// List returns the catalog in ascending order. It is public.
func (h *QuestionsHandler) List(w http.ResponseWriter, r *http.Request) {
	qs, err := h.catalog.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, questionsResponse{Questions: qs}, http.StatusOK)
}

func (h *QuestionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in catalog.CreateInput
	if err := decodeValid(r, createQuestionSchema, &in); err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.catalog.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, questionResponse{Question: q}, http.StatusOK)
}

func (h *QuestionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in catalog.UpdateInput
	if err := decodeValid(r, updateQuestionSchema, &in); err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.catalog.Update(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, questionResponse{Question: q}, http.StatusOK)
}

func (h *QuestionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, successResponse{Success: true}, http.StatusOK)
}

func (h *QuestionsHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeValid(r, reorderSchema, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.catalog.Reorder(r.Context(), req.QuestionIDs); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, successResponse{Success: true}, http.StatusOK)
}

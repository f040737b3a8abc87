package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/whitelist/internal/lifecycle"
	"github.com/garnizeh/whitelist/internal/session"
	"github.com/garnizeh/whitelist/pkg/models"
)

type AdminHandler struct {
	svc *lifecycle.Service
}

func NewAdminHandler(svc *lifecycle.Service) *AdminHandler {
	return &AdminHandler{svc: svc}
}

type applicationsResponse struct {
	Applications []models.Application `json:"applications"`
}

func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	apps, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, applicationsResponse{Applications: apps}, http.StatusOK)
}

// Review applies an approve, deny or revision decision and reports the side
// effects that were attempted.
func (h *AdminHandler) Review(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.ReviewInput
	if err := decodeValid(r, reviewSchema, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, _ := session.FromContext(r.Context())
	res, err := h.svc.Review(r.Context(), mux.Vars(r)["id"], in, lifecycle.Reviewer{ID: c.ID, Name: c.Name})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, res, http.StatusOK)
}

func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, successResponse{Success: true}, http.StatusOK)
}

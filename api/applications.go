package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/garnizeh/whitelist/internal/lifecycle"
	"github.com/garnizeh/whitelist/internal/session"
	"github.com/garnizeh/whitelist/pkg/fault"
	"github.com/garnizeh/whitelist/pkg/models"
)

const (
	audioFieldPrefix = "audio_"
	// maxAudioParts bounds the multipart body together with the per-file limit.
	maxAudioParts = 16
	formMemory    = 8 << 20
)

type ApplicationsHandler struct {
	svc      *lifecycle.Service
	maxAudio int64
}

func NewApplicationsHandler(svc *lifecycle.Service, maxAudio int64) *ApplicationsHandler {
	return &ApplicationsHandler{svc: svc, maxAudio: maxAudio}
}

type applicationResponse struct {
	Application *models.Application `json:"application"`
}

// parseSubmission reads the multipart form: "answers" is a JSON object of
// question id to text, files are named audio_<questionId>. The returned
// cleanup closes the opened files.
func (h *ApplicationsHandler) parseSubmission(w http.ResponseWriter, r *http.Request, c *session.Claims) (lifecycle.SubmitInput, func(), error) {
	in := lifecycle.SubmitInput{
		ApplicantID:     c.ID,
		ApplicantName:   c.Name,
		ApplicantAvatar: c.Avatar,
		Audio:           map[string]lifecycle.AudioBlob{},
	}
	noop := func() {}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxAudio*maxAudioParts+(1<<20))
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return in, noop, fault.Invalid("request too large")
		}
		return in, noop, fault.Invalid("invalid multipart form")
	}

	if raw := r.FormValue("answers"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Text); err != nil {
			return in, noop, fault.Invalid("answers must be a JSON object of question id to text")
		}
	}

	var files []multipart.File
	cleanup := func() {
		for _, f := range files {
			f.Close()
		}
	}
	for field, headers := range r.MultipartForm.File {
		qid, ok := strings.CutPrefix(field, audioFieldPrefix)
		if !ok || qid == "" || len(headers) == 0 {
			continue
		}
		fh := headers[0]
		if fh.Size > h.maxAudio {
			cleanup()
			return in, noop, fault.Invalid(fmt.Sprintf("audio for question %s exceeds %d bytes", qid, h.maxAudio))
		}
		f, err := fh.Open()
		if err != nil {
			cleanup()
			return in, noop, fault.Invalid("invalid audio upload")
		}
		files = append(files, f)
		in.Audio[qid] = lifecycle.AudioBlob{ContentType: fh.Header.Get("Content-Type"), Data: f}
	}
	return in, cleanup, nil
}

func (h *ApplicationsHandler) submit(w http.ResponseWriter, r *http.Request, run func(context.Context, lifecycle.SubmitInput) (*lifecycle.Result, error)) {
	c, ok := session.FromContext(r.Context())
	if !ok {
		writeError(w, r, fault.Unauth("Unauthorized"))
		return
	}
	in, cleanup, err := h.parseSubmission(w, r, c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer cleanup()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	res, err := run(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, applicationResponse{Application: res.Application}, http.StatusOK)
}

// Apply handles POST /apply.
func (h *ApplicationsHandler) Apply(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, h.svc.Submit)
}

// Revise handles POST /apply/revision.
func (h *ApplicationsHandler) Revise(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, h.svc.ResubmitRevision)
}

// Mine handles GET /my-application; the application is null when none exists.
func (h *ApplicationsHandler) Mine(w http.ResponseWriter, r *http.Request) {
	c, ok := session.FromContext(r.Context())
	if !ok {
		writeError(w, r, fault.Unauth("Unauthorized"))
		return
	}
	app, err := h.svc.Mine(r.Context(), c.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, applicationResponse{Application: app}, http.StatusOK)
}

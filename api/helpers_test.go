package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/whitelist/api"
	"github.com/garnizeh/whitelist/internal/catalog"
	"github.com/garnizeh/whitelist/internal/config"
	"github.com/garnizeh/whitelist/internal/lifecycle"
	"github.com/garnizeh/whitelist/internal/retention"
	"github.com/garnizeh/whitelist/internal/session"
	"github.com/garnizeh/whitelist/pkg/discord"
	"github.com/garnizeh/whitelist/pkg/repository/mock"
)

const cleanupSecret = "sweep-secret"

type fakeOracle struct {
	mu      sync.Mutex
	members map[string]bool
	err     error
}

func (f *fakeOracle) IsGuildMember(ctx context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[userID], f.err
}

type fakeNotifier struct {
	mu      sync.Mutex
	added   []string
	removed []string
	dms     []discord.Embed
}

func (f *fakeNotifier) AddRole(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, userID)
	return nil
}

func (f *fakeNotifier) RemoveRole(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, userID)
	return nil
}

func (f *fakeNotifier) SendDM(ctx context.Context, userID string, e discord.Embed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms = append(f.dms, e)
	return nil
}

type fakeMedia struct {
	mu      sync.Mutex
	uploads map[string][]byte
	deleted []string
}

func (f *fakeMedia) Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[key] = b
	return "https://cdn.test/whitelist-applications/" + key + ".webm", nil
}

func (f *fakeMedia) Delete(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	return nil
}

type fakeOAuth struct {
	user *discord.User
	err  error
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://discord.test/oauth2/authorize?state=" + state
}

func (f *fakeOAuth) Exchange(ctx context.Context, code string) (*discord.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

type env struct {
	handler  http.Handler
	store    *mock.Store
	oracle   *fakeOracle
	notifier *fakeNotifier
	media    *fakeMedia
	oauth    *fakeOAuth
	issuer   *session.Issuer
	admin    string
	user     string
	stranger string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(cleanupSecret), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	cfg := &config.Config{
		PublicURL:  "http://localhost:8080",
		ServerName: "Blocky",
		Apply:      config.ApplyConfig{MaxAudioBytes: 1 << 10, RatePerSecond: 1000, RateBurst: 1000},
		Cleanup:    config.CleanupConfig{SecretHash: string(hash)},
	}

	e := &env{
		store:    mock.NewStore(),
		oracle:   &fakeOracle{members: map[string]bool{"user-1": true, "user-2": true}},
		notifier: &fakeNotifier{},
		media:    &fakeMedia{uploads: map[string][]byte{}},
		oauth:    &fakeOAuth{},
		issuer:   session.NewIssuer("test-secret", time.Hour, session.NewAllowList([]string{"admin-1"})),
	}
	svc := lifecycle.New(lifecycle.Deps{
		Questions:    e.store,
		Applications: e.store,
		Media:        e.media,
		Members:      e.oracle,
		Notifier:     e.notifier,
		ServerName:   cfg.ServerName,
	})
	e.handler = api.SetupRoutes(api.Deps{
		Config:    cfg,
		Version:   "test",
		BuildTime: "now",
		Lifecycle: svc,
		Catalog:   catalog.New(e.store, nil),
		Sweeper:   retention.New(retention.Deps{Answers: e.store, Media: e.media}),
		Issuer:    e.issuer,
		OAuth:     e.oauth,
		Members:   e.oracle,
	})
	e.admin = e.token(t, "admin-1", "Mod")
	e.user = e.token(t, "user-1", "Alice")
	e.stranger = e.token(t, "stranger", "Bob")
	return e
}

func (e *env) token(t *testing.T, id, name string) string {
	t.Helper()
	tok, _, err := e.issuer.Issue(session.Identity{ID: id, Name: name})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (e *env) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *env) json(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return e.do(t, method, path, token, bytes.NewReader(b), "application/json")
}

// apply posts a multipart submission to path.
func (e *env) apply(t *testing.T, path, token string, answers map[string]string, audio map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if answers != nil {
		b, _ := json.Marshal(answers)
		if err := mw.WriteField("answers", string(b)); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for qid, data := range audio {
		fw, err := mw.CreateFormFile("audio_"+qid, qid+".webm")
		if err != nil {
			t.Fatalf("create file: %v", err)
		}
		fw.Write(data)
	}
	mw.Close()
	return e.do(t, http.MethodPost, path, token, &buf, mw.FormDataContentType())
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

var errUpstream = errors.New("discord unavailable")

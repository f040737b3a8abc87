package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/whitelist/internal/session"
	"github.com/garnizeh/whitelist/pkg/discord"
	"github.com/garnizeh/whitelist/pkg/fault"
)

const stateCookie = "wl_oauth_state"

// Exchanger runs the Discord authorization code flow.
type Exchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*discord.User, error)
}

type AuthHandler struct {
	oauth  Exchanger
	issuer *session.Issuer
	secure bool
}

// NewAuthHandler creates a new AuthHandler. secure marks cookies Secure and
// should be set when the portal is served over https.
func NewAuthHandler(oauth Exchanger, issuer *session.Issuer, secure bool) *AuthHandler {
	return &AuthHandler{oauth: oauth, issuer: issuer, secure: secure}
}

type userResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar,omitempty"`
	IsAdmin bool   `json:"is_admin"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func toUser(c *session.Claims) userResponse {
	return userResponse{ID: c.ID, Name: c.Name, Avatar: c.Avatar, IsAdmin: c.IsAdmin}
}

func (h *AuthHandler) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Login redirects to the Discord consent screen.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, h.cookie(stateCookie, state, int((10 * time.Minute).Seconds())))
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the code exchange and issues a session.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, r, fault.Unauth("login was cancelled"))
		return
	}
	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || c.Value != q.Get("state") {
		writeError(w, r, fault.Invalid("invalid oauth state"))
		return
	}
	code := q.Get("code")
	if code == "" {
		writeError(w, r, fault.Invalid("missing code"))
		return
	}

	user, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, r, fault.UpstreamErr("discord login failed", err))
		return
	}
	token, claims, err := h.issuer.Issue(session.Identity{ID: user.ID, Name: user.DisplayName(), Avatar: user.AvatarURL()})
	if err != nil {
		writeError(w, r, fault.Wrap("failed to create session", err))
		return
	}

	http.SetCookie(w, h.cookie(stateCookie, "", -1))
	http.SetCookie(w, h.cookie(session.CookieName, token, int(h.issuer.TTL().Seconds())))
	logger.Info("auth: session issued", slog.String("user_id", claims.ID), slog.Bool("is_admin", claims.IsAdmin))
	writeJSON(w, authResponse{Token: token, User: toUser(claims)}, http.StatusOK)
}

// Logout clears the session cookie; bearer tokens are dropped client-side.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookie(session.CookieName, "", -1))
	writeJSON(w, successResponse{Success: true}, http.StatusOK)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	c, ok := session.FromContext(r.Context())
	if !ok {
		writeError(w, r, fault.Unauth("Unauthorized"))
		return
	}
	writeJSON(w, map[string]userResponse{"user": toUser(c)}, http.StatusOK)
}

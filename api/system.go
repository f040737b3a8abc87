package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/garnizeh/whitelist/internal/retention"
	"github.com/garnizeh/whitelist/pkg/fault"
)

type SystemHandler struct{}

func (h *SystemHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "service": "whitelist"}, http.StatusOK)
}

func (h *SystemHandler) VersionHandler(version, buildTime string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"version": version, "buildTime": buildTime}, http.StatusOK)
	}
}

// MembershipOracle answers whether a user belongs to the guild.
type MembershipOracle interface {
	IsGuildMember(ctx context.Context, userID string) (bool, error)
}

// CheckGuildHandler handles GET /check-guild?userId=. Lookup failures are
// logged and reported as not in the guild.
func CheckGuildHandler(oracle MembershipOracle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			writeError(w, r, fault.Invalid("userId is required"))
			return
		}
		in, err := oracle.IsGuildMember(r.Context(), userID)
		if err != nil {
			logger.Warn("check guild failed", slog.String("user_id", userID), slog.Any("err", err))
			in = false
		}
		writeJSON(w, map[string]bool{"in_guild": in}, http.StatusOK)
	}
}

// CleanupHandler runs the retention sweep behind a bearer secret.
func CleanupHandler(sweeper *retention.Sweeper, secretHash string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !retention.Authorized(secretHash, r.Header.Get("Authorization")) {
			writeError(w, r, fault.Unauth("Unauthorized"))
			return
		}
		rep, err := sweeper.Sweep(r.Context())
		if err != nil {
			logger.Error("cleanup failed", slog.Any("err", err))
			writeJSON(w, errorResponse{Error: "Cleanup failed"}, http.StatusInternalServerError)
			return
		}
		writeJSON(w, rep, http.StatusOK)
	}
}

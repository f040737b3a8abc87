package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/garnizeh/whitelist/internal/catalog"
	"github.com/garnizeh/whitelist/internal/config"
	"github.com/garnizeh/whitelist/internal/lifecycle"
	"github.com/garnizeh/whitelist/internal/metrics"
	"github.com/garnizeh/whitelist/internal/retention"
	"github.com/garnizeh/whitelist/internal/session"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Config    *config.Config
	Version   string
	BuildTime string

	Lifecycle *lifecycle.Service
	Catalog   *catalog.Service
	Sweeper   *retention.Sweeper
	Issuer    *session.Issuer
	OAuth     Exchanger
	Members   MembershipOracle
	// Media serves locally stored audio under /media/; nil when media lives
	// on a CDN.
	Media http.Handler
}

func SetupRoutes(d Deps) *mux.Router {
	cfg := d.Config
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(metrics.Middleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(SessionMiddleware(d.Issuer))

	systemHandler := &SystemHandler{}
	authHandler := NewAuthHandler(d.OAuth, d.Issuer, isHTTPS(cfg.PublicURL))
	questionsHandler := NewQuestionsHandler(d.Catalog)
	applicationsHandler := NewApplicationsHandler(d.Lifecycle, cfg.Apply.MaxAudioBytes)
	adminHandler := NewAdminHandler(d.Lifecycle)
	limiter := NewRateLimiter(cfg.Apply.RatePerSecond, cfg.Apply.RateBurst)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(d.Version, d.BuildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	r.HandleFunc("/questions", questionsHandler.List).Methods("GET")
	r.Handle("/check-guild", limiter.Handler(CheckGuildHandler(d.Members))).Methods("GET")
	r.HandleFunc("/cleanup", CleanupHandler(d.Sweeper, cfg.Cleanup.SecretHash)).Methods("POST")
	if d.Media != nil {
		r.PathPrefix("/media/").Handler(http.StripPrefix("/media/", d.Media)).Methods("GET")
	}

	// Auth endpoints
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", authHandler.Login).Methods("GET")
	auth.Handle("/callback", limiter.Handler(http.HandlerFunc(authHandler.Callback))).Methods("GET")
	auth.HandleFunc("/logout", authHandler.Logout).Methods("POST")
	auth.Handle("/me", RequireSession(http.HandlerFunc(authHandler.Me))).Methods("GET")

	// Applicant endpoints
	applicant := r.NewRoute().Subrouter()
	applicant.Use(RequireSession)
	applicant.Handle("/apply", limiter.Handler(http.HandlerFunc(applicationsHandler.Apply))).Methods("POST")
	applicant.Handle("/apply/revision", limiter.Handler(http.HandlerFunc(applicationsHandler.Revise))).Methods("POST")
	applicant.HandleFunc("/my-application", applicationsHandler.Mine).Methods("GET")

	// Admin endpoints
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(AdminOnly)
	admin.HandleFunc("/applications", adminHandler.List).Methods("GET")
	admin.HandleFunc("/applications/{id}", adminHandler.Review).Methods("PUT")
	admin.HandleFunc("/applications/{id}", adminHandler.Delete).Methods("DELETE")
	admin.HandleFunc("/questions", questionsHandler.Create).Methods("POST")
	admin.HandleFunc("/questions/reorder", questionsHandler.Reorder).Methods("PUT")
	admin.HandleFunc("/questions/{id}", questionsHandler.Update).Methods("PUT")
	admin.HandleFunc("/questions/{id}", questionsHandler.Delete).Methods("DELETE")

	return r
}

func isHTTPS(publicURL string) bool {
	return strings.HasPrefix(publicURL, "https://")
}

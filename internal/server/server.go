package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"inkforge/internal/app"
	"inkforge/internal/ratelimit"
	"inkforge/internal/usertoken"
	"inkforge/internal/util"
	"inkforge/pkg/domain"
)

// Failure messages surfaced to callers. Every gated or failed action is
// reported through the same envelope with HTTP 200; the success flag is
// the sole signal.
const (
	quotaExceededMessage   = "Limit reached. Upgrade to Continue."
	premiumRequiredMessage = "This feature is only available for premium subscriptions"
)

// SubscriberSource resolves plan metadata for an authenticated user.
type SubscriberSource interface {
	Subscriber(ctx context.Context, userID string) (domain.Subscriber, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                      *app.App
	TokenVerifier            *usertoken.Verifier
	Plan                     SubscriberSource
	RedisAddr                string
	RedisPassword            string
	ActionRateLimitPerMinute int
	MaxUploadBytes           int64
	TrustedProxyCIDRs        []string
}

// Server exposes HTTP endpoints for the backend.
type Server struct {
	app            *app.App
	tokenVerifier  *usertoken.Verifier
	plan           SubscriberSource
	mux            *http.ServeMux
	maxUploadBytes int64
	proxies        *util.TrustedProxies
	actionLimiter  *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("token verifier required")
	}
	if cfg.Plan == nil {
		return nil, errors.New("plan source required")
	}
	actionLimit := cfg.ActionRateLimitPerMinute
	if actionLimit <= 0 {
		actionLimit = 30
	}
	actionLimiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "inkforge:ratelimit:actions", actionLimit, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("init action limiter: %w", err)
	}
	proxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		plan:           cfg.Plan,
		mux:            http.NewServeMux(),
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
		proxies:        proxies,
		actionLimiter:  actionLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// AI actions (auth required, rate limited)
	s.mux.Handle("/api/ai/generate-article", s.action(s.handleGenerateArticle))
	s.mux.Handle("/api/ai/generate-blog-title", s.action(s.handleGenerateBlogTitle))
	s.mux.Handle("/api/ai/generate-image", s.action(s.handleGenerateImage))
	s.mux.Handle("/api/ai/remove-image-background", s.action(s.handleRemoveBackground))
	s.mux.Handle("/api/ai/remove-image-object", s.action(s.handleRemoveObject))
	s.mux.Handle("/api/ai/resume-review", s.action(s.handleResumeReview))

	// creations (auth required)
	s.mux.Handle("/api/user/creations", s.authenticated(s.handleListCreations))
	s.mux.Handle("/api/user/published-creations", s.authenticated(s.handleListPublished))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type callerHandler func(http.ResponseWriter, *http.Request, domain.Caller)

func (s *Server) action(next callerHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.allowRate(w, r) {
			return
		}
		s.serveAuthenticated(w, r, next)
	})
}

func (s *Server) authenticated(next callerHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.serveAuthenticated(w, r, next)
	})
}

// serveAuthenticated verifies the bearer token and resolves the caller's
// plan metadata before handing off. The caller value is built once here
// and passed by value; handlers never mutate it.
func (s *Server) serveAuthenticated(w http.ResponseWriter, r *http.Request, next callerHandler) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	subject, err := s.tokenVerifier.VerifySubject(token)
	if err != nil {
		slog.Warn("token verification failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sub, err := s.plan.Subscriber(r.Context(), subject)
	if err != nil {
		slog.Error("plan lookup failed", "user_id", subject, "err", err)
		writeError(w, http.StatusBadGateway, "plan service unavailable")
		return
	}
	next(w, r, domain.Caller{
		ID:        subject,
		Plan:      sub.Plan,
		FreeUsage: sub.FreeUsage,
	})
}

// action handlers
func (s *Server) handleGenerateArticle(w http.ResponseWriter, r *http.Request, caller domain.Caller) {
	var req articleRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeActionFailure(w, r, fmt.Errorf("%w: invalid JSON body", app.ErrInvalidPayload))
		return
	}
	content, err := s.app.GenerateArticle(r.Context(), caller, req.Prompt, req.Length)
	if err != nil {
		s.writeActionFailure(w, r, err)
		return
	}
	writeContent(w, content)
}

func (s *Server) handleGenerateBlogTitle(w http.ResponseWriter, r *http.Request, caller domain.Caller) {
	var req titleRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeActionFailure(w, r, fmt.Errorf("%w: invalid JSON body", app.ErrInvalidPayload))
		return
	}
	content, err := s.app.GenerateBlogTitle(r.Context(), caller, req.Prompt)
	if err != nil {
		s.writeActionFailure(w, r, err)
		return
	}
	writeContent(w, content)
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request, caller domain.Caller) {
	var req imageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeActionFailure(w, r, fmt.Errorf("%w: invalid JSON body", app.ErrInvalidPayload))
		return
	}
	url, err := s.app.GenerateImage(r.Context(), caller, req.Prompt, req.Publish)
	if err != nil {
		s.writeActionFailure(w, r, err)
		return
	}
	writeContent(w, url)
}

func (s *Server) handleRemoveBackground(w http.ResponseWriter, r *http.Request, caller domain.Caller) {
	file, header, err := s.formFile(w, r, "image")
	if err != nil {
		s.writeActionFailure(w, r, err)
		return
	}
	defer file.Close()
	url, err := s.app.RemoveBackground(r.Context(), caller, header.Filename, file, header.Size)
	if err != nil {
		s.writeActionFailure(w, r, err)
		return
	}
	writeContent(w, url)
}

func (s *Server) handleRemoveObject(w http.ResponseWriter, r *http.Request, caller domain.Caller) {
	file, header, err := s.formFile(w, r, "image")
	if err != nil {
		s.writeActionFailure(w, r, err)
		return
	}
	defer file.Close()
	object := r.FormValue("object")
	url, err := s.app.RemoveObject(r.Context(), caller, header.Filename, file, header.Size, object)
	if err != nil {
		s.writeActionFailure(w, r, err)
		return
	}
	writeContent(w, url)
}

func (s *Server) handleResumeReview(w http.ResponseWriter, r *http.Request, caller domain.Caller) {
	file, header, err := s.formFile(w, r, "resume")
	if err != nil {
		s.writeActionFailure(w, r, err)
		return
	}
	defer file.Close()
	content, err := s.app.ReviewResume(r.Context(), caller, header.Filename, file, header.Size)
	if err != nil {
		s.writeActionFailure(w, r, err)
		return
	}
	writeContent(w, content)
}

// creation listings
func (s *Server) handleListCreations(w http.ResponseWriter, _ *http.Request, caller domain.Caller) {
	items, err := s.app.ListCreations(caller.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list creations")
		return
	}
	writeJSON(w, http.StatusOK, creationsResponse{Success: true, Creations: items})
}

func (s *Server) handleListPublished(w http.ResponseWriter, _ *http.Request, caller domain.Caller) {
	_ = caller
	items, err := s.app.ListPublishedCreations()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list creations")
		return
	}
	writeJSON(w, http.StatusOK, creationsResponse{Success: true, Creations: items})
}

// writeActionFailure converts the error taxonomy into the uniform failure
// envelope. Only upstream failures are logged; gating outcomes are normal
// operation.
func (s *Server) writeActionFailure(w http.ResponseWriter, r *http.Request, err error) {
	var msg string
	switch {
	case errors.Is(err, app.ErrQuotaExceeded):
		msg = quotaExceededMessage
	case errors.Is(err, app.ErrPremiumRequired):
		msg = premiumRequiredMessage
	case errors.Is(err, app.ErrInvalidPayload):
		msg = err.Error()
	default:
		util.LoggerFromContext(r.Context()).Error("action failed", "path", r.URL.Path, "err", err)
		msg = err.Error()
	}
	writeJSON(w, http.StatusOK, actionResponse{Success: false, Message: msg})
}

func (s *Server) formFile(w http.ResponseWriter, r *http.Request, field string) (multipart.File, *multipart.FileHeader, error) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, nil, fmt.Errorf("%w: invalid form data", app.ErrInvalidPayload)
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s file is required (field: %s)", app.ErrInvalidPayload, field, field)
	}
	return file, header, nil
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.proxies)
	if s.actionLimiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "too many requests")
	return false
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type articleRequest struct {
	Prompt string `json:"prompt"`
	Length int    `json:"length"`
}

type titleRequest struct {
	Prompt string `json:"prompt"`
}

type imageRequest struct {
	Prompt  string `json:"prompt"`
	Publish bool   `json:"publish"`
}

type actionResponse struct {
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
}

type creationsResponse struct {
	Success   bool              `json:"success"`
	Creations []domain.Creation `json:"creations"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeContent(w http.ResponseWriter, content string) {
	writeJSON(w, http.StatusOK, actionResponse{Success: true, Content: content})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 10 * 1024 * 1024
	}
	return value
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"nebulaone/internal/metrics"
	"nebulaone/internal/ratelimit"
	"nebulaone/internal/util"
	"nebulaone/pkg/domain"
	"nebulaone/services/api/internal/app"
)

const maxJSONBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// Realtime serves /ws when set.
	Realtime http.Handler
	// LoginLimiter and RegisterLimiter are optional; nil disables limiting.
	LoginLimiter    *ratelimit.FixedWindowLimiter
	RegisterLimiter *ratelimit.FixedWindowLimiter
	TrustedProxies  *util.TrustedProxies
	AllowedOrigins  []string
	CookieName      string
	CookieSecure    bool
	SessionTTL      time.Duration
	MaxUploadBytes  int64
}

// Server exposes the workspace HTTP API.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	validate        *validator.Validate
	loginLimiter    *ratelimit.FixedWindowLimiter
	registerLimiter *ratelimit.FixedWindowLimiter
	trustedProxies  *util.TrustedProxies
	allowedOrigins  []string
	cookieName      string
	cookieSecure    bool
	sessionTTL      time.Duration
	maxUploadBytes  int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "nebula_session"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	s := &Server{
		app:             cfg.App,
		mux:             http.NewServeMux(),
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		loginLimiter:    cfg.LoginLimiter,
		registerLimiter: cfg.RegisterLimiter,
		trustedProxies:  cfg.TrustedProxies,
		allowedOrigins:  cfg.AllowedOrigins,
		cookieName:      cfg.CookieName,
		cookieSecure:    cfg.CookieSecure,
		sessionTTL:      cfg.SessionTTL,
		maxUploadBytes:  cfg.MaxUploadBytes,
	}
	s.routes(cfg.Realtime)
	return s, nil
}

// Router returns the configured handler. The request log wraps the mux
// directly so it can read the matched pattern.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithSecurityHeaders(
			util.WithCORS(s.allowedOrigins,
				util.WithRequestLog(metrics.ObserveHTTP, s.mux))))
}

func (s *Server) routes(realtime http.Handler) {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())
	if realtime != nil {
		s.mux.Handle("GET /ws", realtime)
	}

	// session lifecycle
	s.mux.HandleFunc("POST /api/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/logout", s.handleLogout)
	s.mux.HandleFunc("GET /api/user", s.handleCurrentUser)
	s.mux.Handle("POST /api/update-subscription", s.authenticated(s.handleUpdateSubscription))
	s.mux.HandleFunc("GET /api/users", s.handleListUsers)

	// timeline
	s.mux.HandleFunc("GET /api/timeline", s.handleListTimeline)
	s.mux.HandleFunc("POST /api/timeline", s.handleAddTimelineItem)
	s.mux.HandleFunc("GET /api/timeline/{id}", s.handleGetTimelineItem)

	// entities
	s.mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	s.mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	s.mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	s.mux.HandleFunc("PATCH /api/tasks/{id}", s.handleUpdateTask)

	s.mux.HandleFunc("GET /api/chats", s.handleListChats)
	s.mux.HandleFunc("POST /api/chats", s.handleCreateChat)
	s.mux.HandleFunc("GET /api/chats/{id}", s.handleGetChat)
	s.mux.HandleFunc("POST /api/chats/{id}/messages", s.handleAddMessage)

	s.mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	s.mux.HandleFunc("POST /api/documents", s.handleCreateDocument)
	s.mux.HandleFunc("GET /api/documents/{id}", s.handleGetDocument)
	s.mux.HandleFunc("PATCH /api/documents/{id}", s.handleUpdateDocument)

	s.mux.HandleFunc("GET /api/meetings", s.handleListMeetings)
	s.mux.HandleFunc("POST /api/meetings", s.handleCreateMeeting)
	s.mux.HandleFunc("GET /api/meetings/{id}", s.handleGetMeeting)
	s.mux.HandleFunc("PATCH /api/meetings/{id}", s.handleUpdateMeeting)

	// email threads and the assistant
	s.mux.HandleFunc("GET /api/emails", s.handleListEmails)
	s.mux.HandleFunc("POST /api/emails", s.handleCreateEmail)
	s.mux.HandleFunc("GET /api/emails/prioritized", s.handlePrioritizedEmails)
	s.mux.HandleFunc("GET /api/emails/{id}", s.handleGetEmail)
	s.mux.HandleFunc("PATCH /api/emails/{id}", s.handleUpdateEmail)
	s.mux.HandleFunc("POST /api/emails/{id}/messages", s.handleAppendEmail)
	s.mux.HandleFunc("POST /api/emails/{id}/complete", s.handleCompleteEmail)
	s.mux.HandleFunc("GET /api/emails/{id}/summary", s.handleEmailSummary)
	s.mux.HandleFunc("GET /api/emails/{id}/tasks", s.handleEmailTasks)
	s.mux.HandleFunc("GET /api/emails/{id}/reply", s.handleEmailReply)
	s.mux.HandleFunc("POST /api/emails/{id}/attachments", s.handleUploadAttachment)
	s.mux.HandleFunc("GET /api/emails/{id}/attachments/{name}", s.handleAttachmentURL)
	s.mux.HandleFunc("POST /api/assistant/query", s.handleAssistantQuery)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.app.UserFromToken(s.sessionToken(r))
		if errors.Is(err, app.ErrUnauthorized) {
			s.audit(r, "session.authorize", "fail")
			writeMessage(w, http.StatusUnauthorized, app.ErrUnauthorized.Error())
			return
		}
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		next(w, r, user)
	})
}

// sessionToken reads the session cookie, then a bearer token.
func (s *Server) sessionToken(r *http.Request) string {
	if c, err := r.Cookie(s.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if token, ok := bearerToken(r); ok {
		return token
	}
	return ""
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// decode reads a JSON body into dst and runs struct validation.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request"
	}
	fe := fieldErrs[0]
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required", "required_without":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "email":
		return field + " must be a valid email address"
	case "url":
		return field + " must be a valid URL"
	case "min", "max", "gte", "lte":
		return fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	default:
		return field + " is invalid"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// writeAppError maps application errors onto HTTP responses. Anything
// unrecognised is logged and answered with a generic 500.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), app.ErrValidation.Error()+": "))
	case errors.Is(err, app.ErrUsernameTaken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials), errors.Is(err, app.ErrUnauthorized):
		writeMessage(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, app.ErrStorageUnavailable), errors.Is(err, app.ErrJobsUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

// allowRate applies limiter to the caller's IP for route. A nil limiter
// always allows.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, route, msg string) bool {
	if limiter == nil {
		return true
	}
	d := limiter.Allow(r.Context(), route+"|"+util.ClientIP(r, s.trustedProxies))
	if d.Allowed {
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		return true
	}
	metrics.RateLimited(route)
	w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(d.RetryAfter.Seconds())))))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeMessage is the {message} shape used by the session endpoints.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

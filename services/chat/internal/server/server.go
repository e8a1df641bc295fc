package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"maatje/internal/ratelimit"
	"maatje/internal/usertoken"
	"maatje/internal/util"
	"maatje/pkg/assistant"
	"maatje/pkg/domain"
	"maatje/pkg/store"
	"maatje/services/chat/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier *usertoken.Verifier       // optional: trusted identity for authenticated callers
	Limiter       *ratelimit.FixedWindowLimiter // optional: per-IP limit on POST /api/chat
	TrustedProxies *util.TrustedProxies
	Logger        *slog.Logger
}

// Server exposes the chat HTTP endpoints.
type Server struct {
	app            *app.App
	tokenVerifier  *usertoken.Verifier
	limiter        *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
	logger         *slog.Logger
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		limiter:        cfg.Limiter,
		trustedProxies: cfg.TrustedProxies,
		logger:         logger,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog("chat", s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/chat-history/{userId}", s.handleChatHistory)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	Message  string `json:"message"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil {
		ip := util.ClientIP(r, s.trustedProxies)
		if !s.limiter.Allow(ip) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
	}

	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is empty")
		return
	}

	userID := s.resolveUser(r, req.UserID)
	logger := util.LoggerFromContext(r.Context())

	reply, err := s.app.Chat(r.Context(), userID, req.Message)
	if err != nil {
		if errors.Is(err, app.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, "message is empty")
			return
		}
		// Provider unavailability, run failure, and timeout all collapse to
		// one processing-error category; the client applies local fallback.
		logger.Error("chat processing failed",
			"user_id", userID,
			"timeout", errors.Is(err, assistant.ErrRunTimeout),
			"err", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "assistant request failed",
			"details": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.PathValue("userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	turns, err := s.app.History(r.Context(), userID, 50)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "persistence store unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if turns == nil {
		turns = []domain.ChatTurn{}
	}
	writeJSON(w, http.StatusOK, turns)
}

// resolveUser picks the caller identity. A valid bearer token wins; any
// verification problem silently falls back to the request-supplied id, and
// a missing id becomes an anonymous one. Identity never blocks the flow.
func (s *Server) resolveUser(r *http.Request, requestedID string) string {
	if s.tokenVerifier != nil {
		if token, ok := bearerToken(r); ok {
			if subject, err := s.tokenVerifier.VerifySubject(token); err == nil {
				return subject
			}
		}
	}
	requestedID = strings.TrimSpace(requestedID)
	if requestedID != "" {
		return requestedID
	}
	return util.AnonymousID()
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

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

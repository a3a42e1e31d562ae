package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"echoclub/pkg/auth"
	"echoclub/pkg/chat"
	"echoclub/pkg/config"
	"echoclub/pkg/logger"
	"echoclub/pkg/utils"
	"echoclub/pkg/validation"
)

// Server is the HTTP surface over the chat core: credential endpoints, the
// session join/leave lifecycle, message operations and the websocket
// stream. One live chat.Session per authenticated connection, keyed by its
// token.
type Server struct {
	cfg  *config.Config
	auth *auth.Service
	mgr  *chat.Manager

	mu       sync.Mutex
	sessions map[string]*chat.Session
}

func NewServer(cfg *config.Config) *Server {
	svc := auth.NewService(cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst)
	return &Server{
		cfg:      cfg,
		auth:     svc,
		mgr:      chat.NewManager(svc),
		sessions: make(map[string]*chat.Session),
	}
}

// Handler builds the router with CORS applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	v1.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	v1.HandleFunc("/session", s.handleJoin).Methods(http.MethodPost)
	v1.HandleFunc("/session", s.handleLeave).Methods(http.MethodDelete)
	v1.HandleFunc("/messages", s.handleSend).Methods(http.MethodPost)
	v1.HandleFunc("/messages", s.handleListMessages).Methods(http.MethodGet)
	v1.HandleFunc("/messages", s.handleClearAll).Methods(http.MethodDelete)
	v1.HandleFunc("/presence", s.handlePresence).Methods(http.MethodGet)
	v1.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(r)
}

func (s *Server) allowedOrigins() []string {
	if o := s.cfg.Security.CORS.AllowedOrigins; len(o) > 0 {
		return o
	}
	return []string{"*"}
}

// token extracts the bearer token from the Authorization header, falling
// back to the token query parameter (used by the websocket handshake).
func token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
		return h
	}
	return r.URL.Query().Get("token")
}

// session resolves the request's token to its live session.
func (s *Server) session(r *http.Request) (*chat.Session, string, bool) {
	tok := token(r)
	if tok == "" {
		return nil, "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tok]
	// A nil entry is a join in flight, not a usable session.
	return sess, tok, ok && sess != nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	id, err := s.auth.Register(req.Name, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateIdentity) {
			utils.JSONError(w, http.StatusConflict, "this name is already in use")
			return
		}
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, id)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	id, tok, err := s.auth.Login(req.Name, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			utils.JSONError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, "login failed")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		UserID      string `json:"user_id"`
		DisplayName string `json:"display_name"`
		Token       string `json:"token"`
	}{id.UserID, id.DisplayName, tok})
}

// handleJoin enters the chat room: it starts a session for the
// authenticated identity, which registers presence and announces the join.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	tok := token(r)
	id, ok := s.auth.Identify(tok)
	if !ok {
		utils.JSONError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	// Reserve the token's slot before starting the session so concurrent
	// joins with the same token conflict here instead of each starting
	// their own session.
	s.mu.Lock()
	if _, exists := s.sessions[tok]; exists {
		s.mu.Unlock()
		utils.JSONError(w, http.StatusConflict, "session already open")
		return
	}
	s.sessions[tok] = nil
	s.mu.Unlock()

	sess, err := s.mgr.Start(id, tok)
	if sess == nil {
		s.mu.Lock()
		delete(s.sessions, tok)
		s.mu.Unlock()
		logger.Error("session_start_failed", "user", id.UserID, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "could not join the chat")
		return
	}
	s.mu.Lock()
	s.sessions[tok] = sess
	s.mu.Unlock()

	resp := struct {
		UserID      string `json:"user_id"`
		DisplayName string `json:"display_name"`
		Warning     string `json:"warning,omitempty"`
	}{UserID: id.UserID, DisplayName: id.DisplayName}
	if err != nil {
		// The session is live but a join-time write failed; surface it
		// without rolling anything back.
		resp.Warning = err.Error()
	}
	_ = utils.JSONWrite(w, http.StatusOK, resp)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	sess, tok, ok := s.session(r)
	if !ok {
		utils.JSONError(w, http.StatusUnauthorized, "no open session")
		return
	}
	s.endSession(tok, sess)
	w.WriteHeader(http.StatusNoContent)
}

// endSession removes the session from the registry and runs the teardown
// sequence. Safe to call from both explicit leave and websocket drop.
func (s *Server) endSession(tok string, sess *chat.Session) {
	s.mu.Lock()
	delete(s.sessions, tok)
	s.mu.Unlock()
	if err := sess.End(); err != nil {
		// Teardown is best-effort; every step already ran.
		logger.Warn("session_end_partial", "user", sess.Identity.UserID, "error", err)
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.session(r)
	if !ok {
		utils.JSONError(w, http.StatusUnauthorized, "no open session")
		return
	}
	if !s.auth.AllowSend(sess.Identity.UserID) {
		utils.JSONError(w, http.StatusTooManyRequests, "slow down")
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := sess.Messages.Send(req.Text); err != nil {
		switch {
		case errors.Is(err, chat.ErrUnauthenticated), errors.Is(err, chat.ErrSessionClosed):
			utils.JSONError(w, http.StatusUnauthorized, "no open session")
		case errors.Is(err, validation.ErrMessageTooLarge):
			utils.JSONError(w, http.StatusBadRequest, err.Error())
		default:
			logger.Error("send_failed", "user", sess.Identity.UserID, "error", err)
			utils.JSONError(w, http.StatusInternalServerError, "message could not be sent")
		}
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.session(r)
	if !ok {
		utils.JSONError(w, http.StatusUnauthorized, "no open session")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, sess.Messages.Messages())
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.session(r)
	if !ok {
		utils.JSONError(w, http.StatusUnauthorized, "no open session")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, sess.Presence.Roster())
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.session(r)
	if !ok {
		utils.JSONError(w, http.StatusUnauthorized, "no open session")
		return
	}
	if err := sess.Messages.ClearAll(); err != nil {
		var pde *chat.PartialDeleteError
		if errors.As(err, &pde) {
			utils.JSONError(w, http.StatusInternalServerError, pde.Error())
			return
		}
		logger.Error("clear_all_failed", "user", sess.Identity.UserID, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "failed to clear messages")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Package api provides the HTTP surface for StudyPal.
//
// It exposes RESTful endpoints for conversation turns, session resets,
// study-material ingestion, persona quotes, and user profiles. Each session
// gets its own engine from the registry; distinct sessions run concurrently.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/studypal/studypal/internal/calendar"
	"github.com/studypal/studypal/internal/engine"
	"github.com/studypal/studypal/internal/genai"
	"github.com/studypal/studypal/internal/models"
	"github.com/studypal/studypal/internal/store"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8080"

// DefaultShutdownTimeout bounds graceful shutdown on context cancellation.
const DefaultShutdownTimeout = 10 * time.Second

// Opts holds configuration options for the API server.
type Opts struct {
	Addr      string
	Store     store.Store
	Generator genai.Generator
	Calendar  calendar.Connector
}

// Option defines a configuration option for server construction.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithStore sets the backing store shared by all sessions.
func WithStore(s store.Store) Option {
	return func(o *Opts) { o.Store = s }
}

// WithGenerator sets the text-generation client shared by all sessions.
func WithGenerator(g genai.Generator) Option {
	return func(o *Opts) { o.Generator = g }
}

// WithCalendar sets the calendar connector shared by all sessions.
func WithCalendar(c calendar.Connector) Option {
	return func(o *Opts) { o.Calendar = c }
}

// Server hosts the StudyPal HTTP API.
type Server struct {
	addr     string
	store    store.Store
	registry *engine.Registry
}

// NewServer creates a server and its session-engine registry.
func NewServer(opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Store == nil {
		cfg.Store = store.NewInMemoryStore()
	}
	slog.Debug("Server.NewServer invoked", "addr", cfg.Addr, "has_generator", cfg.Generator != nil)

	registry := engine.NewRegistry(func(sessionID, userID string) *engine.Engine {
		engineOpts := []engine.Option{
			engine.WithStore(cfg.Store),
			engine.WithGenerator(cfg.Generator),
		}
		if cfg.Calendar != nil {
			engineOpts = append(engineOpts, engine.WithCalendar(cfg.Calendar))
		}
		return engine.NewEngine(sessionID, userID, engineOpts...)
	})

	return &Server{addr: cfg.Addr, store: cfg.Store, registry: registry}
}

// Handler builds the HTTP route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)

	r.Post("/sessions", s.createSessionHandler)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Post("/turn", s.turnHandler)
		r.Post("/reset", s.resetHandler)
		r.Get("/", s.sessionStateHandler)
	})

	r.Post("/materials", s.addMaterialHandler)
	r.Post("/quotes", s.addQuoteHandler)
	r.Put("/profiles/{userID}", s.upsertProfileHandler)
	r.Get("/profiles/{userID}", s.getProfileHandler)

	return r
}

// Run serves the API until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("StudyPal API listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		slog.Info("StudyPal API shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// createSessionHandler mints a session id. The body is optional; an absent
// user id falls back to the session id.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body is fine
	}
	sessionID := uuid.NewString()
	userID := req.UserID
	if userID == "" {
		userID = sessionID
	}
	s.registry.Get(sessionID, userID)
	slog.Info("Server.createSessionHandler: session created", "sessionID", sessionID, "userID", userID)
	writeJSONResponse(w, http.StatusCreated, createSessionResponse{SessionID: sessionID, UserID: userID})
}

type turnRequest struct {
	UserID  string `json:"user_id,omitempty"`
	Message string `json:"message"`
}

type turnResponse struct {
	SessionID string                  `json:"session_id"`
	Response  string                  `json:"response"`
	Handler   models.Node             `json:"handler"`
	Analysis  *models.SessionAnalysis `json:"analysis,omitempty"`
	Schedule  *models.Schedule        `json:"schedule,omitempty"`
}

// turnHandler runs one conversation turn.
func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = sessionID
	}
	eng := s.registry.Get(sessionID, userID)

	result, err := eng.Turn(r.Context(), req.Message)
	if err != nil {
		if errors.Is(err, models.ErrEmptyMessage) {
			writeJSONError(w, http.StatusBadRequest, "message cannot be empty")
			return
		}
		slog.Error("Server.turnHandler: turn failed", "error", err, "sessionID", sessionID)
		writeJSONError(w, http.StatusInternalServerError, "failed to process turn")
		return
	}

	writeJSONResponse(w, http.StatusOK, turnResponse{
		SessionID: sessionID,
		Response:  result.Response,
		Handler:   result.Handler,
		Analysis:  result.Analysis,
		Schedule:  result.Schedule,
	})
}

// resetHandler restores the session to default state.
func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	eng := s.registry.Get(sessionID, sessionID)
	if err := eng.Reset(r.Context()); err != nil {
		slog.Error("Server.resetHandler: reset failed", "error", err, "sessionID", sessionID)
		writeJSONError(w, http.StatusInternalServerError, "failed to reset session")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "reset", "session_id": sessionID})
}

// sessionStateHandler returns the current conversation state.
func (s *Server) sessionStateHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	state, err := s.store.GetConversationState(sessionID)
	if err != nil {
		slog.Error("Server.sessionStateHandler: load failed", "error", err, "sessionID", sessionID)
		writeJSONError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if state == nil {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, state)
}

// addMaterialHandler ingests one study-material snippet.
func (s *Server) addMaterialHandler(w http.ResponseWriter, r *http.Request) {
	var snippet models.Snippet
	if err := json.NewDecoder(r.Body).Decode(&snippet); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if snippet.Content == "" {
		writeJSONError(w, http.StatusBadRequest, "content cannot be empty")
		return
	}
	if err := s.store.AddSnippet(snippet); err != nil {
		slog.Error("Server.addMaterialHandler: store failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to store material")
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]string{"status": "stored"})
}

// addQuoteHandler stores a persona quote for the motivator.
func (s *Server) addQuoteHandler(w http.ResponseWriter, r *http.Request) {
	var quote models.Quote
	if err := json.NewDecoder(r.Body).Decode(&quote); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if quote.Text == "" {
		writeJSONError(w, http.StatusBadRequest, "text cannot be empty")
		return
	}
	if err := s.store.AddQuote(quote); err != nil {
		slog.Error("Server.addQuoteHandler: store failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to store quote")
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]string{"status": "stored"})
}

// upsertProfileHandler stores the user's preferences.
func (s *Server) upsertProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var profile models.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	profile.UserID = userID
	now := time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	if err := s.store.SaveUserProfile(profile); err != nil {
		slog.Error("Server.upsertProfileHandler: store failed", "error", err, "userID", userID)
		writeJSONError(w, http.StatusInternalServerError, "failed to store profile")
		return
	}
	writeJSONResponse(w, http.StatusOK, profile)
}

// getProfileHandler returns the stored profile.
func (s *Server) getProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	profile, err := s.store.GetUserProfile(userID)
	if err != nil {
		if errors.Is(err, models.ErrProfileNotFound) {
			writeJSONError(w, http.StatusNotFound, "profile not found")
			return
		}
		slog.Error("Server.getProfileHandler: load failed", "error", err, "userID", userID)
		writeJSONError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	writeJSONResponse(w, http.StatusOK, profile)
}

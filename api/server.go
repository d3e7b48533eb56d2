package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wricardo/command-quest/game/config"
	"github.com/wricardo/command-quest/game/engine"
	"github.com/wricardo/command-quest/game/service"
	"github.com/wricardo/command-quest/game/session"
	"github.com/wricardo/command-quest/game/solver"
	"github.com/wricardo/command-quest/logging"
	"github.com/wricardo/command-quest/transport/websocket"
)

// maxBodyBytes bounds request bodies; a full level pack is the largest
const maxBodyBytes = 1 << 20

// Server represents the REST API server
type Server struct {
	service service.GameService
	hub     *websocket.Hub
	router  *mux.Router
	logger  *zap.Logger
}

// NewServer creates a new API server. hub may be nil, in which case /ws
// is not served.
func NewServer(gameService service.GameService, hub *websocket.Hub, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger)
	s := &Server{
		service: gameService,
		hub:     hub,
		router:  mux.NewRouter(),
		logger:  logger,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	// Game operations
	api.HandleFunc("/sessions/{id}/state", s.handleGetLevelState).Methods("GET")
	api.HandleFunc("/sessions/{id}/run", s.handleRun).Methods("POST")
	api.HandleFunc("/sessions/{id}/run/start", s.handleStartRun).Methods("POST")
	api.HandleFunc("/sessions/{id}/run/step", s.handleStepRun).Methods("POST")
	api.HandleFunc("/sessions/{id}/run/abort", s.handleAbortRun).Methods("POST")
	api.HandleFunc("/sessions/{id}/reset", s.handleReset).Methods("POST")

	// Level packs
	api.HandleFunc("/packs", s.handleListPacks).Methods("GET")
	api.HandleFunc("/packs", s.handleSavePack).Methods("POST")
	api.HandleFunc("/packs/{name}", s.handleGetPack).Methods("GET")
	api.HandleFunc("/packs/{name}/solutions", s.handleSolvePack).Methods("GET")

	if s.hub != nil {
		s.router.HandleFunc("/ws", s.handleWebSocket)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// statusRecorder captures the response status for the request log
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			// The upgrade needs the raw writer's Hijacker
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{"error": message, "code": status})
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, service.ErrPackNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrReentrantExecution),
		errors.Is(err, session.ErrAwaitingReset),
		errors.Is(err, session.ErrCampaignComplete),
		errors.Is(err, session.ErrNoActiveRun),
		errors.Is(err, engine.ErrRunFinished),
		errors.Is(err, engine.ErrRunCancelled):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidProgram),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, engine.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, solver.ErrSearchLimit):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	respondError(w, status, err.Error())
}

// decode reads a JSON body. An empty body leaves v untouched when optional.
func decode(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
	return false
}

// broadcastState pushes the latest snapshot to websocket clients
func (s *Server) broadcastState(sessionID string, state *session.Snapshot) {
	if s.hub != nil && state != nil {
		s.hub.BroadcastState(sessionID, state)
	}
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pack string `json:"pack,omitempty"`
	}
	if !decode(w, r, &req, true) {
		return
	}

	info, err := s.service.CreateSession(r.Context(), req.Pack)
	if err != nil {
		s.fail(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	total := len(sessions)

	query := r.URL.Query()
	sortBy := query.Get("sort") // "created", "accessed" (default)
	order := query.Get("order") // "asc", "desc" (default)
	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}

	sort.Slice(sessions, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		} else {
			ti, tj = sessions[i].LastAccessedAt, sessions[j].LastAccessedAt
		}
		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	if l, err := strconv.Atoi(query.Get("limit")); err == nil && l > 0 && l < len(sessions) {
		sessions = sessions[:l]
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

// Game Operation Handlers

// handleGetLevelState returns the snapshot, or the ASCII board with
// ?format=text
func (s *Server) handleGetLevelState(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.GetLevelState(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, strings.Join(state.RenderBoard(), "\n"))
		return
	}
	respondJSON(w, http.StatusOK, state)
}

type programRequest struct {
	Commands []string `json:"commands"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	var req programRequest
	if !decode(w, r, &req, false) {
		return
	}

	result, err := s.service.RunProgram(r.Context(), sessionID, req.Commands)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.broadcastState(sessionID, result.State)
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	var req programRequest
	if !decode(w, r, &req, false) {
		return
	}

	result, err := s.service.StartRun(r.Context(), sessionID, req.Commands)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.broadcastState(sessionID, result.State)
	respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleStepRun(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	result, err := s.service.StepRun(r.Context(), sessionID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if result.Step.Done {
		s.broadcastState(sessionID, result.State)
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleAbortRun(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	state, err := s.service.AbortRun(r.Context(), sessionID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.broadcastState(sessionID, state)
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	state, err := s.service.Reset(r.Context(), sessionID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.broadcastState(sessionID, state)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": state.Message,
		"state":   state,
	})
}

// Level Pack Handlers

func (s *Server) handleListPacks(w http.ResponseWriter, r *http.Request) {
	packs, err := s.service.ListPacks(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, packs)
}

func (s *Server) handleGetPack(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(mux.Vars(r)["name"], ".json")
	pack, err := s.service.LoadPack(r.Context(), name)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pack)
}

// handleSavePack stores the posted pack under ?id=, or under its name
// lowercased with spaces replaced by dashes
func (s *Server) handleSavePack(w http.ResponseWriter, r *http.Request) {
	var pack engine.LevelPack
	if !decode(w, r, &pack, false) {
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		id = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(pack.Name)), " ", "-")
	}
	if id == "" {
		respondError(w, http.StatusBadRequest, "Pack name is required")
		return
	}

	if err := s.service.SavePack(r.Context(), id, &pack); err != nil {
		s.fail(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Level pack saved successfully",
		"pack_id": id,
	})
}

// levelSolution is one entry of the solutions response
type levelSolution struct {
	LevelID   int              `json:"level_id"`
	Name      string           `json:"name"`
	Solvable  bool             `json:"solvable"`
	Program   []engine.Command `json:"program,omitempty"`
	Treasures int              `json:"treasures"`
	Error     string           `json:"error,omitempty"`
}

// handleSolvePack returns the shortest winning program of every level.
// ?collect=all asks for routes that pick up every treasure. A level whose
// search exceeds the solver budget fails the whole request with 422.
func (s *Server) handleSolvePack(w http.ResponseWriter, r *http.Request) {
	pack, err := s.service.LoadPack(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.fail(w, err)
		return
	}
	opts := solver.Options{CollectAll: r.URL.Query().Get("collect") == "all"}

	out := make([]levelSolution, 0, len(pack.Levels))
	for i := range pack.Levels {
		def := &pack.Levels[i]
		entry := levelSolution{LevelID: def.ID, Name: def.Name}
		sol, err := solver.Solve(r.Context(), def, opts)
		if r.Context().Err() != nil {
			return
		}
		if errors.Is(err, solver.ErrSearchLimit) {
			s.fail(w, fmt.Errorf("level %d: %w", def.ID, err))
			return
		}
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Solvable = true
			entry.Program = sol.Program
			entry.Treasures = sol.Treasures
		}
		out = append(out, entry)
	}
	respondJSON(w, http.StatusOK, out)
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session parameter required")
		return
	}

	state, err := s.service.GetLevelState(r.Context(), sessionID)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.hub.ServeWS(w, r, sessionID, state)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

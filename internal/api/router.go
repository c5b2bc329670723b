// Package api exposes the game over HTTP. Sessions live in memory; the
// auto-save slot in SQLite survives restarts.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/nhkhanh/cardfall/internal/agents"
	"github.com/nhkhanh/cardfall/internal/config"
	"github.com/nhkhanh/cardfall/internal/db"
	"github.com/nhkhanh/cardfall/internal/game"
	mw "github.com/nhkhanh/cardfall/internal/middleware"
	"github.com/nhkhanh/cardfall/internal/validation"
)

// tokenTTL is how long issued session tokens stay valid.
const tokenTTL = 24 * time.Hour

// session is one running game bound to its owner.
type session struct {
	engine *game.Engine
	userID string
	demo   bool
}

// Server handles HTTP requests.
type Server struct {
	router    chi.Router
	db        *db.DB
	auth      *mw.Auth
	architect *agents.ArchitectAgent
	writer    *agents.WriterAgent
	llmReady  bool
	deckSize  int

	sessions   map[string]*session
	sessionsMu sync.RWMutex
}

// NewServer wires the router with the shared dependencies.
func NewServer(cfg *config.Config, database *db.DB) *Server {
	client := agents.NewOpenRouterClient(cfg.OpenRouterKey, cfg.OpenRouterModel)
	s := &Server{
		router:    chi.NewRouter(),
		db:        database,
		auth:      mw.NewAuth(cfg.JWTSecret),
		architect: agents.NewArchitectAgent(client),
		writer:    agents.NewWriterAgent(client),
		llmReady:  cfg.OpenRouterKey != "",
		deckSize:  cfg.DeckCapacity,
		sessions:  make(map[string]*session),
	}
	s.setupRoutes(cfg)
	return s
}

func (s *Server) setupRoutes(cfg *config.Config) {
	s.router.Use(chimw.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.SetHeader("Content-Type", "application/json"))
	s.router.Use(mw.NewRateLimiter(cfg.RateLimit).Middleware)
	s.router.Use(mw.SecurityHeaders)
	s.router.Use(mw.MaxBodySize(cfg.MaxBodyBytes))

	s.router.Post("/api/auth/token", s.issueToken)

	s.router.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/api/games", s.createGame)
		r.Get("/api/games", s.listGames)
		r.Get("/api/games/{id}", s.getGame)
		r.Post("/api/games/{id}/draw", s.drawCard)
		r.Post("/api/games/{id}/resolve", s.resolveCard)
		r.Post("/api/games/{id}/generate", s.generate)
		r.Post("/api/games/{id}/resurrect", s.resurrect)
		r.Get("/api/games/{id}/dag", s.getDAG)
		r.Get("/api/games/{id}/events", s.getEvents)
		r.Post("/api/games/{id}/save", s.saveGame)
		r.Post("/api/games/{id}/load", s.loadGame)
		r.Get("/api/saves", s.listSaves)
		r.Delete("/api/saves/{slug}", s.deleteSave)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response wraps every API payload.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError sanitizes 5xx messages so internals never leak to clients.
func writeError(w http.ResponseWriter, status int, message string) {
	if status >= 500 {
		message = "Internal server error"
	}
	writeJSON(w, status, Response{Success: false, Error: message})
}

// getSession looks up a session and enforces ownership.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) *session {
	gameID := chi.URLParam(r, "id")
	if err := validation.ValidateGameID(gameID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid game ID")
		return nil
	}

	s.sessionsMu.RLock()
	sess, ok := s.sessions[gameID]
	s.sessionsMu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Game not found")
		return nil
	}
	if sess.userID != mw.UserID(r) {
		writeError(w, http.StatusForbidden, "Access denied")
		return nil
	}
	return sess
}

// refillWeek tops up the deck: demo sessions use the bundled pool, live
// sessions call the writer. A failed writer batch falls back to the demo
// pool so the player is never left without cards.
func (s *Server) refillWeek(r *http.Request, sess *session) {
	if sess.demo {
		sess.engine.PrepareDemoWeek()
		return
	}
	if !sess.engine.BeginGeneration() {
		return
	}
	defer sess.engine.FinishGeneration()

	genCtx := sess.engine.GetGenerationContext()
	batch, err := s.writer.GenerateBatch(r.Context(), genCtx)
	if err != nil {
		slog.Warn("card generation failed, using offline pool", "error", err)
		sess.engine.RequeueJobs(genCtx.Jobs)
		sess.engine.PrepareDemoWeek()
		return
	}
	sess.engine.ProcessBatchOutput(batch, genCtx.IsSeasonStart)
}

// gameSummary is the session state block shared by several endpoints.
func gameSummary(gameID string, sess *session) map[string]any {
	state := sess.engine.State()
	return map[string]any{
		"game_id":               gameID,
		"world_name":            state.WorldName,
		"date":                  state.DateDisplay(),
		"elapsed":               state.ElapsedDisplay(),
		"life_number":           state.LifeNumber,
		"snapshot":              state.Snapshot(),
		"deck":                  sess.engine.DeckStatus(),
		"week_over":             sess.engine.IsWeekOver(),
		"awaiting_resurrection": sess.engine.AwaitingResurrection(),
		"demo":                  sess.demo,
	}
}

// issueToken mints a session token. The caller names itself; there is no
// account system.
func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "Missing user_id")
		return
	}
	if err := validation.ValidateGameID(req.UserID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user_id")
		return
	}

	token, err := s.auth.IssueToken(req.UserID, tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]string{"token": token}})
}

// createGame builds a world and deals the first week. Without LLM
// credentials every game is a demo game.
func (s *Server) createGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Theme     string `json:"theme"`
		StatCount int    `json:"stat_count"`
		Demo      bool   `json:"demo"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if err := validation.ValidateTheme(req.Theme); err != nil {
		writeError(w, http.StatusBadRequest, "Theme too long")
		return
	}

	demo := req.Demo || !s.llmReady
	var (
		schema *agents.WorldGenSchema
		err    error
	)
	if demo {
		schema = game.DemoWorld()
	} else {
		schema, err = s.architect.GenerateWorld(r.Context(), req.Theme, req.StatCount)
		if err != nil {
			writeError(w, http.StatusBadGateway, "World generation failed")
			return
		}
	}

	engine := game.NewEngineWithDeckSize(s.deckSize)
	if err := engine.BuildFromSchema(schema, req.StatCount); err != nil {
		writeError(w, http.StatusBadRequest, "Generated world is not playable")
		return
	}

	gameID := uuid.NewString()
	sess := &session{engine: engine, userID: mw.UserID(r), demo: demo}
	s.refillWeek(r, sess)

	s.sessionsMu.Lock()
	s.sessions[gameID] = sess
	s.sessionsMu.Unlock()

	writeJSON(w, http.StatusCreated, Response{Success: true, Data: gameSummary(gameID, sess)})
}

func (s *Server) listGames(w http.ResponseWriter, r *http.Request) {
	userID := mw.UserID(r)

	s.sessionsMu.RLock()
	var out []map[string]any
	for id, sess := range s.sessions {
		if sess.userID == userID {
			out = append(out, gameSummary(id, sess))
		}
	}
	s.sessionsMu.RUnlock()

	writeJSON(w, http.StatusOK, Response{Success: true, Data: out})
}

func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: gameSummary(chi.URLParam(r, "id"), sess)})
}

// drawCard returns the next card, refilling the deck first when the week ran
// out.
func (s *Server) drawCard(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}

	if sess.engine.IsWeekOver() {
		s.refillWeek(r, sess)
	}

	card := sess.engine.DrawCard()
	if card == nil {
		writeError(w, http.StatusConflict, "No cards available")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: card})
}

// resolveCard applies the player's choice and reports the fallout: stat
// changes, death, or a story ending.
func (s *Server) resolveCard(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}

	var req struct {
		CardID    string `json:"card_id"`
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validation.ValidateCardID(req.CardID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid card ID")
		return
	}
	if err := validation.ValidateDirection(req.Direction); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid direction")
		return
	}

	if sess.engine.AwaitingResurrection() {
		writeError(w, http.StatusConflict, "Awaiting resurrection")
		return
	}

	result, err := sess.engine.ResolveByID(req.CardID, req.Direction)
	if err != nil {
		writeError(w, http.StatusConflict, "Card is no longer active")
		return
	}

	data := map[string]any{
		"result": result,
		"state":  gameSummary(chi.URLParam(r, "id"), sess),
	}

	if info := sess.engine.CheckDeath(); info != nil {
		sess.engine.HandleDeath(info)
		data["death"] = info
	} else if ending := sess.engine.CheckEnding(); ending != nil {
		data["ending"] = map[string]any{
			"node_id":     ending.ID,
			"ending_text": ending.EndingText,
		}
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// generate forces a batch refill when the deck reports consumption past the
// threshold, or when the client wants a fresh week early.
func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}
	s.refillWeek(r, sess)
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]any{
		"deck": sess.engine.DeckStatus(),
	}})
}

// resurrect completes the death flow after the death card was dismissed.
func (s *Server) resurrect(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}
	if !sess.engine.AwaitingResurrection() {
		writeError(w, http.StatusConflict, "No resurrection pending")
		return
	}

	karma := sess.engine.CompleteResurrection()
	s.refillWeek(r, sess)

	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]any{
		"karma_tags": karma,
		"state":      gameSummary(chi.URLParam(r, "id"), sess),
	}})
}

func (s *Server) getDAG(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: sess.engine.VisualGraph()})
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: sess.engine.GetAllEventsForDisplay()})
}

func (s *Server) saveGame(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}

	save, err := sess.engine.ExportSave()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to export save")
		return
	}
	if err := s.db.PutSave(mw.UserID(r), save); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store save")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]string{"world_slug": save.WorldSlug}})
}

// loadGame reverts the session to its auto-save slot and deals a fresh week.
func (s *Server) loadGame(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}

	slug := game.WorldToSlug(sess.engine.State().WorldName)
	save, err := s.db.GetSave(mw.UserID(r), slug)
	if errors.Is(err, db.ErrSaveNotFound) {
		writeError(w, http.StatusNotFound, "No save for this world")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load save")
		return
	}

	if err := sess.engine.RestoreSave(save); err != nil {
		writeError(w, http.StatusInternalServerError, "Save could not be restored")
		return
	}
	s.refillWeek(r, sess)

	writeJSON(w, http.StatusOK, Response{Success: true, Data: gameSummary(chi.URLParam(r, "id"), sess)})
}

func (s *Server) listSaves(w http.ResponseWriter, r *http.Request) {
	metas, err := s.db.ListSaves(mw.UserID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list saves")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: metas})
}

func (s *Server) deleteSave(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := validation.ValidateWorldSlug(slug); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid world slug")
		return
	}
	if err := s.db.DeleteSave(mw.UserID(r), slug); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete save")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

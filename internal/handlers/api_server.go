// Package handlers exposes the engine over HTTP and WebSocket. All
// state-changing traffic is mediated here and funneled into the per-session
// coordinator, which is what closes the concurrent-writer gap the realtime
// store leaves open.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/classparty/classparty/internal/errs"
	"github.com/classparty/classparty/internal/game"
	"github.com/classparty/classparty/internal/identity"
	"github.com/classparty/classparty/internal/models"
	"github.com/classparty/classparty/internal/projection"
	"github.com/classparty/classparty/internal/session"
	"github.com/classparty/classparty/internal/store"
)

// Server wires the registry, runtime and store behind the HTTP surface.
type Server struct {
	Store    store.Store
	Registry *session.Registry
	Runtime  *game.Runtime
	Log      *logrus.Logger

	mu    sync.Mutex
	notes map[uuid.UUID][]chan game.PrivateNote
}

// NewServer builds the HTTP server and registers it as the runtime's
// private-note channel.
func NewServer(st store.Store, reg *session.Registry, rt *game.Runtime, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	s := &Server{
		Store:    st,
		Registry: reg,
		Runtime:  rt,
		Log:      log,
		notes:    make(map[uuid.UUID][]chan game.PrivateNote),
	}
	rt.SetPrivateFn(s.deliverPrivate)
	return s
}

// Routes mounts every endpoint on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session/create", s.handleCreate)
	mux.HandleFunc("POST /session/{id}/join", s.handleJoin)
	mux.HandleFunc("POST /session/{id}/leave", s.handleLeave)
	mux.HandleFunc("POST /session/{id}/start", s.handleStart)
	mux.HandleFunc("POST /session/{id}/cancel", s.handleCancel)
	mux.HandleFunc("PUT /session/{id}/settings", s.handleSettings)
	mux.HandleFunc("GET /session/{id}/view", s.handleView)
	mux.HandleFunc("GET /session/{id}/ws", s.handleWS)
	return mux
}

type createRequest struct {
	ClassID    uuid.UUID       `json:"class_id"`
	GameType   models.GameType `json:"game_type"`
	MaxPlayers int             `json:"max_players"`
	Settings   json.RawMessage `json:"settings,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	who, err := s.authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	var settings models.Settings
	if len(req.Settings) > 0 {
		settings, err = models.DecodeSettings(req.GameType, req.Settings)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	sess, err := s.Registry.CreateSession(r.Context(), req.ClassID, who.UserID, req.GameType, req.MaxPlayers, settings)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	who, sessionID, ok := s.authSession(w, r)
	if !ok {
		return
	}
	player, err := s.Registry.JoinSession(r.Context(), sessionID, who.UserID, who.DisplayName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, player)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	who, sessionID, ok := s.authSession(w, r)
	if !ok {
		return
	}
	if err := s.Registry.LeaveSession(r.Context(), sessionID, who.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	who, sessionID, ok := s.authSession(w, r)
	if !ok {
		return
	}
	sess, err := s.Registry.StartSession(r.Context(), sessionID, who.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	who, sessionID, ok := s.authSession(w, r)
	if !ok {
		return
	}
	if err := s.Registry.CancelSession(r.Context(), sessionID, who.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	who, sessionID, ok := s.authSession(w, r)
	if !ok {
		return
	}
	sess, err := s.Store.GetSession(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	settings, err := models.DecodeSettings(sess.GameType, raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Registry.UpdateSettings(r.Context(), sessionID, who.UserID, settings); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleView returns the viewer's full projection, the resync path after a
// disconnect or a dropped subscription.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	who, sessionID, ok := s.authSession(w, r)
	if !ok {
		return
	}
	view, err := s.snapshotView(r, sessionID, who.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// snapshotView re-folds the whole event log for one viewer.
func (s *Server) snapshotView(r *http.Request, sessionID, userID uuid.UUID) (*projection.View, error) {
	sess, err := s.Store.GetSession(r.Context(), sessionID)
	if err != nil {
		return nil, err
	}
	players, err := s.Store.ListPlayers(r.Context(), sessionID)
	if err != nil {
		return nil, err
	}
	events, err := s.Store.ListEvents(r.Context(), sessionID, 0, 0)
	if err != nil {
		return nil, err
	}
	view := projection.Replay(sess, players, events, viewerNumber(players, userID))
	return &view, nil
}

// viewerNumber maps a user to their assigned number, 0 before assignment.
func viewerNumber(players []*models.Player, userID uuid.UUID) int {
	for _, p := range players {
		if p.UserID == userID {
			return p.Number
		}
	}
	return 0
}

// authenticate extracts and verifies the identity token from the
// Authorization header or the token cookie.
func (s *Server) authenticate(r *http.Request) (*identity.Descriptor, error) {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if tok == "" || tok == r.Header.Get("Authorization") {
		if c, err := r.Cookie("token"); err == nil {
			tok = c.Value
		}
	}
	if tok == "" {
		return nil, errors.New("missing identity token")
	}
	return identity.VerifyToken(tok)
}

// authSession authenticates and parses the {id} path segment. On failure it
// has already written the response.
func (s *Server) authSession(w http.ResponseWriter, r *http.Request) (*identity.Descriptor, uuid.UUID, bool) {
	who, err := s.authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return nil, uuid.Nil, false
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return nil, uuid.Nil, false
	}
	return who, id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Warnf("write response: %v", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindForbidden:
		status = http.StatusForbidden
	case errs.KindInvalidState:
		status = http.StatusConflict
	case errs.KindStore:
		status = http.StatusBadGateway
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"kind":  string(errs.KindOf(err)),
	})
}

// deliverPrivate fans a private note out to every live connection the
// recipient holds.
func (s *Server) deliverPrivate(userID uuid.UUID, note game.PrivateNote) {
	s.mu.Lock()
	targets := make([]chan game.PrivateNote, len(s.notes[userID]))
	copy(targets, s.notes[userID])
	s.mu.Unlock()
	for _, ch := range targets {
		select {
		case ch <- note:
		default:
			s.Log.Warnf("dropped private note for user %s: channel full", userID)
		}
	}
}

func (s *Server) registerNotes(userID uuid.UUID) chan game.PrivateNote {
	ch := make(chan game.PrivateNote, 8)
	s.mu.Lock()
	s.notes[userID] = append(s.notes[userID], ch)
	s.mu.Unlock()
	return ch
}

func (s *Server) unregisterNotes(userID uuid.UUID, ch chan game.PrivateNote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.notes[userID]
	for i, c := range list {
		if c == ch {
			s.notes[userID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.notes[userID]) == 0 {
		delete(s.notes, userID)
	}
}

// afterSeq parses the optional ?after= resync cursor.
func afterSeq(r *http.Request) uint64 {
	if v := r.URL.Query().Get("after"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

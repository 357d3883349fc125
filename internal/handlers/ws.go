package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/classparty/classparty/internal/errs"
	"github.com/classparty/classparty/internal/game"
	"github.com/classparty/classparty/internal/projection"
)

const writeTimeout = 5 * time.Second

// clientMessage is the envelope for everything a connected player sends.
type clientMessage struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Action    game.Action `json:"action,omitempty"`
}

// serverMessage is the envelope for everything pushed to a player.
type serverMessage struct {
	Type      string           `json:"type"`
	RequestID string           `json:"request_id,omitempty"`
	Error     string           `json:"error,omitempty"`
	Kind      string           `json:"kind,omitempty"`
	View      *projection.View `json:"view,omitempty"`
	Note      *game.PrivateNote `json:"note,omitempty"`
}

// handleWS upgrades the connection and streams per-viewer projections. Each
// connection folds the event log independently, so two players watching the
// same session can see different role information.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	who, sessionID, ok := s.authSession(w, r)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{"classparty"},
	})
	if err != nil {
		s.Log.Warnf("websocket accept: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection closed")

	ctx := r.Context()
	log := s.Log.WithFields(logrus.Fields{"session_id": sessionID, "user_id": who.UserID})

	sess, err := s.Store.GetSession(ctx, sessionID)
	if err != nil {
		s.closeWithError(ctx, conn, err)
		return
	}
	players, err := s.Store.ListPlayers(ctx, sessionID)
	if err != nil {
		s.closeWithError(ctx, conn, err)
		return
	}

	// Subscribe before replaying so nothing lands in the gap. The projector
	// drops any event whose sequence it has already folded.
	evCh, cancelEv, err := s.Store.SubscribeEvents(ctx, sessionID)
	if err != nil {
		s.closeWithError(ctx, conn, err)
		return
	}
	defer cancelEv()
	sessCh, cancelSess, err := s.Store.SubscribeSession(ctx, sessionID)
	if err != nil {
		s.closeWithError(ctx, conn, err)
		return
	}
	defer cancelSess()
	playersCh, cancelPlayers, err := s.Store.SubscribePlayers(ctx, sessionID)
	if err != nil {
		s.closeWithError(ctx, conn, err)
		return
	}
	defer cancelPlayers()

	noteCh := s.registerNotes(who.UserID)
	defer s.unregisterNotes(who.UserID, noteCh)

	events, err := s.Store.ListEvents(ctx, sessionID, afterSeq(r), 0)
	if err != nil {
		s.closeWithError(ctx, conn, err)
		return
	}
	proj := projection.New(sess, players, viewerNumber(players, who.UserID))
	for _, ev := range events {
		proj.Apply(ev)
	}

	out := make(chan serverMessage, 32)
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	go s.readPump(readCtx, conn, sessionID, who.UserID, out, cancelRead)

	if !s.push(ctx, conn, serverMessage{Type: "view", View: viewOf(proj)}) {
		return
	}
	log.Info("websocket session attached")

	for {
		select {
		case <-readCtx.Done():
			return
		case ev, open := <-evCh:
			if !open {
				conn.Close(websocket.StatusGoingAway, "subscription lost, resync")
				return
			}
			proj.Apply(ev)
			if !s.push(ctx, conn, serverMessage{Type: "view", View: viewOf(proj)}) {
				return
			}
		case sess, open := <-sessCh:
			if !open {
				conn.Close(websocket.StatusGoingAway, "subscription lost, resync")
				return
			}
			proj.SetSession(sess)
			if !s.push(ctx, conn, serverMessage{Type: "view", View: viewOf(proj)}) {
				return
			}
		case players, open := <-playersCh:
			if !open {
				conn.Close(websocket.StatusGoingAway, "subscription lost, resync")
				return
			}
			proj.SetPlayers(players)
			if !s.push(ctx, conn, serverMessage{Type: "view", View: viewOf(proj)}) {
				return
			}
		case note := <-noteCh:
			if !s.push(ctx, conn, serverMessage{Type: "private", Note: &note}) {
				return
			}
		case msg := <-out:
			if !s.push(ctx, conn, msg) {
				return
			}
		}
	}
}

// readPump decodes client messages and routes actions to the session's
// coordinator. Replies go through out so the writer stays single-threaded.
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, sessionID, userID uuid.UUID, out chan<- serverMessage, cancel context.CancelFunc) {
	defer cancel()
	for {
		var msg clientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return
		}
		switch msg.Type {
		case "action":
			reply := serverMessage{Type: "ack", RequestID: msg.RequestID}
			if err := s.submitAction(ctx, sessionID, userID, msg.Action); err != nil {
				reply.Type = "error"
				reply.Error = err.Error()
				reply.Kind = string(errs.KindOf(err))
			}
			select {
			case out <- reply:
			case <-ctx.Done():
				return
			}
		case "ping":
			select {
			case out <- serverMessage{Type: "pong", RequestID: msg.RequestID}:
			case <-ctx.Done():
				return
			}
		default:
			select {
			case out <- serverMessage{Type: "error", RequestID: msg.RequestID, Error: "unknown message type", Kind: string(errs.KindValidation)}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// submitAction hands a gameplay action to the live coordinator.
func (s *Server) submitAction(ctx context.Context, sessionID, userID uuid.UUID, act game.Action) error {
	coord, ok := s.Runtime.Get(sessionID)
	if !ok {
		return errs.InvalidStatef("session is not running")
	}
	return coord.Submit(ctx, userID, act)
}

// push writes one message with a deadline; false means the connection is gone.
func (s *Server) push(ctx context.Context, conn *websocket.Conn, msg serverMessage) bool {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, conn, msg); err != nil {
		s.Log.Debugf("websocket write: %v", err)
		return false
	}
	return true
}

func (s *Server) closeWithError(ctx context.Context, conn *websocket.Conn, err error) {
	msg := serverMessage{Type: "error", Error: err.Error(), Kind: string(errs.KindOf(err))}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = wsjson.Write(wctx, conn, msg)
	conn.Close(websocket.StatusPolicyViolation, "request rejected")
}

func viewOf(p *projection.Projector) *projection.View {
	v := p.View()
	return &v
}

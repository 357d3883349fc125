package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/classparty/classparty/internal/game"
	"github.com/classparty/classparty/internal/models"
	"github.com/classparty/classparty/internal/store"
)

// Sweep cadence and the idle age after which an active session is presumed
// abandoned. A classroom round produces an event at least every couple of
// minutes, so half an hour of silence means everyone walked away.
const (
	SweepInterval = time.Minute
	MaxIdle       = 30 * time.Minute
)

// Sweeper cancels active sessions whose event log has gone quiet. Timers only
// fire while a coordinator is healthy; the sweeper is the backstop for
// sessions whose players simply left.
type Sweeper struct {
	st      store.Store
	runtime *game.Runtime
	log     *logrus.Logger
	mirror  game.EventMirror
	maxIdle time.Duration
}

// NewSweeper builds a sweeper over the realtime store.
func NewSweeper(st store.Store, runtime *game.Runtime, log *logrus.Logger, maxIdle time.Duration) *Sweeper {
	if log == nil {
		log = logrus.New()
	}
	if maxIdle <= 0 {
		maxIdle = MaxIdle
	}
	return &Sweeper{
		st:      st,
		runtime: runtime,
		log:     log,
		maxIdle: maxIdle,
	}
}

// SetMirror wires the event mirror for sweep-authored events.
func (s *Sweeper) SetMirror(m game.EventMirror) { s.mirror = m }

// Run sweeps on a fixed interval until the context ends.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = SweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep cancels every active session idle past the threshold and returns how
// many it cancelled.
func (s *Sweeper) Sweep(ctx context.Context) int {
	sessions, err := s.st.ListSessions(ctx, models.StatusActive)
	if err != nil {
		s.log.Warnf("sweep: list sessions: %v", err)
		return 0
	}

	swept := 0
	for _, sess := range sessions {
		idleSince, err := s.lastActivity(ctx, sess)
		if err != nil {
			s.log.Warnf("sweep: last activity for %s: %v", sess.ID, err)
			continue
		}
		if time.Since(idleSince) < s.maxIdle {
			continue
		}
		if s.cancel(ctx, sess) {
			swept++
		}
	}
	return swept
}

func (s *Sweeper) lastActivity(ctx context.Context, sess *models.Session) (time.Time, error) {
	events, err := s.st.ListEvents(ctx, sess.ID, 0, 0)
	if err != nil {
		return time.Time{}, err
	}
	if len(events) == 0 {
		return sess.CreatedAt, nil
	}
	return events[len(events)-1].CreatedAt, nil
}

func (s *Sweeper) cancel(ctx context.Context, sess *models.Session) bool {
	active := models.StatusActive
	cancelled := models.StatusCancelled
	if _, err := s.st.UpdateSession(ctx, sess.ID, store.SessionPatch{
		Status:       &cancelled,
		ExpectStatus: &active,
	}); err != nil {
		// Lost to a concurrent finish or cancel; nothing to do.
		return false
	}
	s.runtime.Stop(sess.ID)

	ev := models.Event{
		SessionID: sess.ID,
		Author:    models.SystemAuthor,
		Type:      models.EventSessionCancelled,
		Payload:   models.CancelledPayload{Reason: "inactivity"},
	}
	if err := s.st.AppendEvent(ctx, &ev); err != nil {
		s.log.Warnf("sweep: append cancel event for %s: %v", sess.ID, err)
		return true
	}
	if s.mirror != nil {
		if err := s.mirror.Publish(ctx, ev); err != nil {
			s.log.Warnf("sweep: mirror publish for %s: %v", sess.ID, err)
		}
	}
	s.log.WithField("session", sess.ID).Info("session cancelled after inactivity")
	return true
}

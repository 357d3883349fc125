package game

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/classparty/classparty/internal/models"
	"github.com/classparty/classparty/internal/store"
)

// Runtime tracks the live coordinator for every active session in this
// process.
type Runtime struct {
	mu           sync.Mutex
	coordinators map[uuid.UUID]*Coordinator

	st        store.Store
	log       *logrus.Logger
	mirror    EventMirror
	privateFn PrivateFn
}

// NewRuntime builds an empty runtime. Mirror and privateFn may be nil.
func NewRuntime(st store.Store, log *logrus.Logger) *Runtime {
	if log == nil {
		log = logrus.New()
	}
	return &Runtime{
		coordinators: make(map[uuid.UUID]*Coordinator),
		st:           st,
		log:          log,
	}
}

// SetMirror wires the event mirror used by coordinators launched later.
func (r *Runtime) SetMirror(m EventMirror) { r.mirror = m }

// SetPrivateFn wires private-note delivery for coordinators launched later.
func (r *Runtime) SetPrivateFn(fn PrivateFn) { r.privateFn = fn }

// Launch starts the coordinator for a session that just became Active.
func (r *Runtime) Launch(ctx context.Context, sess *models.Session, players []*models.Player) (*Coordinator, error) {
	c, err := NewCoordinator(sess, players, Config{
		Store:     r.st,
		Log:       r.log,
		Rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
		PrivateFn: r.privateFn,
		Mirror:    r.mirror,
		OnFinished: func(id uuid.UUID) {
			r.mu.Lock()
			delete(r.coordinators, id)
			r.mu.Unlock()
		},
	})
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.coordinators[sess.ID] = c
	r.mu.Unlock()
	go c.Run(ctx)
	return c, nil
}

// Get returns the live coordinator for a session, if any.
func (r *Runtime) Get(id uuid.UUID) (*Coordinator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coordinators[id]
	return c, ok
}

// Stop halts and forgets a session's coordinator, used on cancellation.
func (r *Runtime) Stop(id uuid.UUID) {
	r.mu.Lock()
	c, ok := r.coordinators[id]
	delete(r.coordinators, id)
	r.mu.Unlock()
	if ok {
		c.Stop()
	}
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/classparty/classparty/internal/errs"
	"github.com/classparty/classparty/internal/models"
)

// subscriber channel depth. A subscriber that falls this far behind is
// unsubscribed and must resync from a snapshot.
const subBuffer = 64

// MemoryStore is the in-process realtime store used for single-node
// deployments and tests. Sessions, players and event logs live in maps
// guarded by one mutex; subscriptions fan out over buffered channels.
type MemoryStore struct {
	mu       sync.Mutex
	log      *logrus.Logger
	sessions map[uuid.UUID]*sessionRecord
}

type sessionRecord struct {
	session models.Session
	players map[uuid.UUID]models.Player
	events  []models.Event

	nextSub     int
	eventSubs   map[int]chan models.Event
	sessionSubs map[int]chan models.Session
	playerSubs  map[int]chan []*models.Player
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(log *logrus.Logger) *MemoryStore {
	if log == nil {
		log = logrus.New()
	}
	return &MemoryStore{
		log:      log,
		sessions: make(map[uuid.UUID]*sessionRecord),
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return errs.InvalidStatef("session %s already exists", s.ID)
	}
	m.sessions[s.ID] = &sessionRecord{
		session:     *s,
		players:     make(map[uuid.UUID]models.Player),
		eventSubs:   make(map[int]chan models.Event),
		sessionSubs: make(map[int]chan models.Session),
		playerSubs:  make(map[int]chan []*models.Player),
	}
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return nil, errs.Storef(nil, "session %s not found", id)
	}
	s := rec.session
	return &s, nil
}

func (m *MemoryStore) ListSessions(_ context.Context, status models.SessionStatus) ([]*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Session
	for _, rec := range m.sessions {
		if rec.session.Status != status {
			continue
		}
		s := rec.session
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, id uuid.UUID, patch SessionPatch) (*models.Session, error) {
	m.mu.Lock()
	rec, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, errs.Storef(nil, "session %s not found", id)
	}
	if patch.ExpectStatus != nil && rec.session.Status != *patch.ExpectStatus {
		got := rec.session.Status
		m.mu.Unlock()
		return nil, errs.InvalidStatef("session %s is %s, expected %s", id, got, *patch.ExpectStatus)
	}
	if patch.Status != nil {
		rec.session.Status = *patch.Status
	}
	if patch.Settings != nil {
		rec.session.Settings = patch.Settings
	}
	updated := rec.session
	subs := collectSubs(rec.sessionSubs)
	m.mu.Unlock()

	for _, ch := range subs {
		pushNonBlocking(m.log, ch, updated, "session")
	}
	return &updated, nil
}

func (m *MemoryStore) PutPlayer(_ context.Context, p *models.Player) error {
	m.mu.Lock()
	rec, ok := m.sessions[p.SessionID]
	if !ok {
		m.mu.Unlock()
		return errs.Storef(nil, "session %s not found", p.SessionID)
	}
	rec.players[p.UserID] = *p
	m.notifyPlayersLocked(rec)
	return nil
}

func (m *MemoryStore) RemovePlayer(_ context.Context, sessionID, userID uuid.UUID) error {
	m.mu.Lock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return errs.Storef(nil, "session %s not found", sessionID)
	}
	delete(rec.players, userID)
	m.notifyPlayersLocked(rec)
	return nil
}

// notifyPlayersLocked snapshots the player map and fans it out. Takes
// ownership of releasing the mutex.
func (m *MemoryStore) notifyPlayersLocked(rec *sessionRecord) {
	snapshot := playersSnapshot(rec)
	subs := collectSubs(rec.playerSubs)
	m.mu.Unlock()
	for _, ch := range subs {
		pushNonBlocking(m.log, ch, snapshot, "players")
	}
}

func (m *MemoryStore) ListPlayers(_ context.Context, sessionID uuid.UUID) ([]*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, errs.Storef(nil, "session %s not found", sessionID)
	}
	return playersSnapshot(rec), nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, ev *models.Event) error {
	m.mu.Lock()
	rec, ok := m.sessions[ev.SessionID]
	if !ok {
		m.mu.Unlock()
		return errs.Storef(nil, "session %s not found", ev.SessionID)
	}
	ev.ID = uuid.New()
	ev.Seq = uint64(len(rec.events)) + 1
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	rec.events = append(rec.events, *ev)
	stored := *ev
	subs := collectSubs(rec.eventSubs)
	m.mu.Unlock()

	for _, ch := range subs {
		pushNonBlocking(m.log, ch, stored, "event")
	}
	return nil
}

func (m *MemoryStore) ListEvents(_ context.Context, sessionID uuid.UUID, afterSeq uint64, limit int) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, errs.Storef(nil, "session %s not found", sessionID)
	}
	// Seq is the 1-based index into the log, so the slice offset is direct.
	if afterSeq >= uint64(len(rec.events)) {
		return nil, nil
	}
	tail := rec.events[afterSeq:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]models.Event, len(tail))
	copy(out, tail)
	return out, nil
}

func (m *MemoryStore) SubscribeEvents(_ context.Context, sessionID uuid.UUID) (<-chan models.Event, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil, errs.Storef(nil, "session %s not found", sessionID)
	}
	id := rec.nextSub
	rec.nextSub++
	ch := make(chan models.Event, subBuffer)
	rec.eventSubs[id] = ch
	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, live := rec.eventSubs[id]; live {
			delete(rec.eventSubs, id)
			close(ch)
		}
	}
	return ch, cancel, nil
}

func (m *MemoryStore) SubscribeSession(_ context.Context, sessionID uuid.UUID) (<-chan models.Session, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil, errs.Storef(nil, "session %s not found", sessionID)
	}
	id := rec.nextSub
	rec.nextSub++
	ch := make(chan models.Session, subBuffer)
	rec.sessionSubs[id] = ch
	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, live := rec.sessionSubs[id]; live {
			delete(rec.sessionSubs, id)
			close(ch)
		}
	}
	return ch, cancel, nil
}

func (m *MemoryStore) SubscribePlayers(_ context.Context, sessionID uuid.UUID) (<-chan []*models.Player, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil, errs.Storef(nil, "session %s not found", sessionID)
	}
	id := rec.nextSub
	rec.nextSub++
	ch := make(chan []*models.Player, subBuffer)
	rec.playerSubs[id] = ch
	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, live := rec.playerSubs[id]; live {
			delete(rec.playerSubs, id)
			close(ch)
		}
	}
	return ch, cancel, nil
}

func playersSnapshot(rec *sessionRecord) []*models.Player {
	out := make([]*models.Player, 0, len(rec.players))
	for _, p := range rec.players {
		cp := p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

func collectSubs[T any](subs map[int]chan T) []chan T {
	out := make([]chan T, 0, len(subs))
	for _, ch := range subs {
		out = append(out, ch)
	}
	return out
}

// pushNonBlocking drops the notification if the subscriber's buffer is full;
// the subscriber is expected to resync from a snapshot when it catches up.
func pushNonBlocking[T any](log *logrus.Logger, ch chan T, v T, what string) {
	defer func() {
		// A subscriber may cancel concurrently with a fan-out; sending on its
		// closed channel is not an error worth crashing over.
		if r := recover(); r != nil {
			log.Warnf("store: dropped %s notification to closed subscriber", what)
		}
	}()
	select {
	case ch <- v:
	default:
		log.Warnf("store: slow subscriber, dropped %s notification", what)
	}
}

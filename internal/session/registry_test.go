package session

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classparty/classparty/internal/errs"
	"github.com/classparty/classparty/internal/game"
	"github.com/classparty/classparty/internal/models"
	"github.com/classparty/classparty/internal/store"
)

type registryFixture struct {
	t       *testing.T
	st      *store.MemoryStore
	runtime *game.Runtime
	reg     *Registry
	creator uuid.UUID
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	st := store.NewMemoryStore(nil)
	rt := game.NewRuntime(st, nil)
	return &registryFixture{
		t:       t,
		st:      st,
		runtime: rt,
		reg:     NewRegistry(st, rt, nil),
		creator: uuid.New(),
	}
}

// create opens a waiting session and joins the creator plus extras more users.
func (f *registryFixture) create(gt models.GameType, maxPlayers, extras int) (*models.Session, []uuid.UUID) {
	f.t.Helper()
	ctx := context.Background()
	sess, err := f.reg.CreateSession(ctx, uuid.New(), f.creator, gt, maxPlayers, nil)
	require.NoError(f.t, err)

	users := []uuid.UUID{f.creator}
	_, err = f.reg.JoinSession(ctx, sess.ID, f.creator, "host")
	require.NoError(f.t, err)
	for i := 0; i < extras; i++ {
		u := uuid.New()
		users = append(users, u)
		_, err = f.reg.JoinSession(ctx, sess.ID, u, "")
		require.NoError(f.t, err)
	}
	return sess, users
}

func TestCreateSessionValidation(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	_, err := f.reg.CreateSession(ctx, uuid.New(), f.creator, models.GameQuiz, 1, nil)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = f.reg.CreateSession(ctx, uuid.New(), f.creator, models.GameQuiz, 4, models.MafiaSettings{MafiaCount: 1})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err), "settings for the wrong game type")

	sess, err := f.reg.CreateSession(ctx, uuid.New(), f.creator, models.GameQuiz, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, sess.Status)
	assert.IsType(t, models.QuizSettings{}, sess.Settings, "defaults filled in")
}

func TestJoinSessionRules(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	sess, users := f.create(models.GameTruthOrDare, 2, 1)

	// Full session.
	_, err := f.reg.JoinSession(ctx, sess.ID, uuid.New(), "late")
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	// Duplicate join.
	_, err = f.reg.JoinSession(ctx, sess.ID, users[1], "again")
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))
}

func TestJoinAfterCancelFails(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	sess, _ := f.create(models.GameTruthOrDare, 4, 1)

	require.NoError(t, f.reg.CancelSession(ctx, sess.ID, f.creator))

	_, err := f.reg.JoinSession(ctx, sess.ID, uuid.New(), "")
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))

	// Cancelling twice is also invalid: cancelled is terminal.
	err = f.reg.CancelSession(ctx, sess.ID, f.creator)
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))
}

func TestStartAssignsNumberPermutation(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	sess, _ := f.create(models.GameTruthOrDare, 6, 5)

	started, err := f.reg.StartSession(ctx, sess.ID, f.creator)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, started.Status)

	players, err := f.st.ListPlayers(ctx, sess.ID)
	require.NoError(t, err)
	numbers := make([]int, 0, len(players))
	for _, p := range players {
		numbers = append(numbers, p.Number)
	}
	sort.Ints(numbers)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, numbers, "numbers must be a permutation of 1..N")

	_, ok := f.runtime.Get(sess.ID)
	assert.True(t, ok, "coordinator launched")
	f.runtime.Stop(sess.ID)
}

func TestStartPermissionAndStateChecks(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	sess, users := f.create(models.GameTruthOrDare, 4, 1)

	_, err := f.reg.StartSession(ctx, sess.ID, users[1])
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	_, err = f.reg.StartSession(ctx, sess.ID, f.creator)
	require.NoError(t, err)

	// A second start finds the session already active.
	_, err = f.reg.StartSession(ctx, sess.ID, f.creator)
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))
	f.runtime.Stop(sess.ID)
}

// gatedStore pauses one ListPlayers call after arm so a second start attempt
// can be interleaved past the waiting-status check.
type gatedStore struct {
	store.Store
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) arm() {
	g.mu.Lock()
	g.armed = true
	g.entered = make(chan struct{})
	g.release = make(chan struct{})
	g.mu.Unlock()
}

func (g *gatedStore) ListPlayers(ctx context.Context, sessionID uuid.UUID) ([]*models.Player, error) {
	g.mu.Lock()
	hold := g.armed
	g.armed = false
	entered, release := g.entered, g.release
	g.mu.Unlock()
	if hold {
		close(entered)
		<-release
	}
	return g.Store.ListPlayers(ctx, sessionID)
}

func TestConcurrentStartLosesWithoutTouchingPlayers(t *testing.T) {
	mem := store.NewMemoryStore(nil)
	gs := &gatedStore{Store: mem}
	rt := game.NewRuntime(gs, nil)
	reg := NewRegistry(gs, rt, nil)
	ctx := context.Background()
	creator := uuid.New()

	sess, err := reg.CreateSession(ctx, uuid.New(), creator, models.GameTruthOrDare, 4, nil)
	require.NoError(t, err)
	_, err = reg.JoinSession(ctx, sess.ID, creator, "host")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = reg.JoinSession(ctx, sess.ID, uuid.New(), "")
		require.NoError(t, err)
	}

	// The slow attempt passes the waiting check, then stalls on its roster
	// read while a second attempt runs to completion.
	gs.arm()
	slowErr := make(chan error, 1)
	go func() {
		_, err := reg.StartSession(ctx, sess.ID, creator)
		slowErr <- err
	}()
	<-gs.entered

	_, err = reg.StartSession(ctx, sess.ID, creator)
	require.NoError(t, err)
	defer rt.Stop(sess.ID)

	players, err := mem.ListPlayers(ctx, sess.ID)
	require.NoError(t, err)
	want := make(map[uuid.UUID]int, len(players))
	for _, p := range players {
		want[p.UserID] = p.Number
	}

	close(gs.release)
	err = <-slowErr
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))

	players, err = mem.ListPlayers(ctx, sess.ID)
	require.NoError(t, err)
	for _, p := range players {
		assert.Equal(t, want[p.UserID], p.Number, "the completed start's numbering must survive the losing attempt")
	}
}

func TestStartRequiresEnoughPlayers(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	sess, err := f.reg.CreateSession(ctx, uuid.New(), f.creator, models.GameQuiz, 4, nil)
	require.NoError(t, err)
	_, err = f.reg.JoinSession(ctx, sess.ID, f.creator, "host")
	require.NoError(t, err)

	_, err = f.reg.StartSession(ctx, sess.ID, f.creator)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestStartBlocksInvalidMafiaSettings(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	// 2 mafia among 4 players violates the minority requirement.
	sess, err := f.reg.CreateSession(ctx, uuid.New(), f.creator, models.GameMafia, 4,
		models.MafiaSettings{MafiaCount: 2})
	require.NoError(t, err)
	_, err = f.reg.JoinSession(ctx, sess.ID, f.creator, "host")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = f.reg.JoinSession(ctx, sess.ID, uuid.New(), "")
		require.NoError(t, err)
	}

	_, err = f.reg.StartSession(ctx, sess.ID, f.creator)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestStartDealsMafiaRoleDeck(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	sess, err := f.reg.CreateSession(ctx, uuid.New(), f.creator, models.GameMafia, 6,
		models.MafiaSettings{MafiaCount: 1, DoctorCount: 1, DetectiveCount: 1})
	require.NoError(t, err)
	_, err = f.reg.JoinSession(ctx, sess.ID, f.creator, "host")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = f.reg.JoinSession(ctx, sess.ID, uuid.New(), "")
		require.NoError(t, err)
	}

	_, err = f.reg.StartSession(ctx, sess.ID, f.creator)
	require.NoError(t, err)
	defer f.runtime.Stop(sess.ID)

	players, err := f.st.ListPlayers(ctx, sess.ID)
	require.NoError(t, err)
	counts := make(map[models.Role]int)
	for _, p := range players {
		counts[p.Role]++
	}
	assert.Equal(t, 1, counts[models.RoleMafia])
	assert.Equal(t, 1, counts[models.RoleDoctor])
	assert.Equal(t, 1, counts[models.RoleDetective])
	assert.Equal(t, 3, counts[models.RoleCivilian])
}

func TestUpdateSettingsIsAdvisory(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	sess, users := f.create(models.GameMafia, 4, 1)

	// Non-creator may not edit.
	err := f.reg.UpdateSettings(ctx, sess.ID, users[1], models.MafiaSettings{MafiaCount: 1})
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	// Unstartable settings save fine; only start is blocked.
	require.NoError(t, f.reg.UpdateSettings(ctx, sess.ID, f.creator, models.MafiaSettings{MafiaCount: 3}))
	got, err := f.st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MafiaSettings{MafiaCount: 3}, got.Settings)
}

func TestLeaveWaitingSessionRemovesPlayer(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	sess, users := f.create(models.GameTruthOrDare, 4, 1)

	require.NoError(t, f.reg.LeaveSession(ctx, sess.ID, users[1]))
	players, err := f.st.ListPlayers(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, players, 1)

	// The freed seat can be retaken.
	_, err = f.reg.JoinSession(ctx, sess.ID, users[1], "back")
	require.NoError(t, err)
}

func TestCancelAppendsClosingEvent(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	sess, _ := f.create(models.GameTruthOrDare, 4, 1)

	require.NoError(t, f.reg.CancelSession(ctx, sess.ID, f.creator))

	got, err := f.st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	events, err := f.st.ListEvents(ctx, sess.ID, 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, models.EventSessionCancelled, last.Type)
	assert.Equal(t, models.CancelledPayload{Reason: "host"}, last.Payload)
}

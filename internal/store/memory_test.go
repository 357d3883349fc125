package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classparty/classparty/internal/errs"
	"github.com/classparty/classparty/internal/models"
)

func newTestSession(t *testing.T, m *MemoryStore) *models.Session {
	t.Helper()
	sess := &models.Session{
		ID:         uuid.New(),
		ClassID:    uuid.New(),
		CreatorID:  uuid.New(),
		GameType:   models.GameTruthOrDare,
		MaxPlayers: 4,
		Status:     models.StatusWaiting,
		Settings:   models.TruthOrDareSettings{},
		CreatedAt:  time.Now(),
	}
	require.NoError(t, m.CreateSession(context.Background(), sess))
	return sess
}

func TestAppendEventAssignsContiguousSeq(t *testing.T) {
	m := NewMemoryStore(nil)
	sess := newTestSession(t, m)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ev := models.Event{
			SessionID: sess.ID,
			Author:    models.SystemAuthor,
			Type:      models.EventSystem,
			Payload:   models.SystemPayload{Message: "tick"},
		}
		require.NoError(t, m.AppendEvent(ctx, &ev))
		assert.Equal(t, uint64(i+1), ev.Seq)
		assert.NotEqual(t, uuid.Nil, ev.ID)
		assert.False(t, ev.CreatedAt.IsZero())
	}

	events, err := m.ListEvents(ctx, sess.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Seq, "log order must match seq order")
	}
}

func TestListEventsCursorAndLimit(t *testing.T) {
	m := NewMemoryStore(nil)
	sess := newTestSession(t, m)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ev := models.Event{SessionID: sess.ID, Type: models.EventSystem, Payload: models.SystemPayload{}}
		require.NoError(t, m.AppendEvent(ctx, &ev))
	}

	tail, err := m.ListEvents(ctx, sess.ID, 7, 0)
	require.NoError(t, err)
	require.Len(t, tail, 3)
	assert.Equal(t, uint64(8), tail[0].Seq)

	page, err := m.ListEvents(ctx, sess.ID, 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 4)
	assert.Equal(t, uint64(3), page[0].Seq)

	empty, err := m.ListEvents(ctx, sess.ID, 99, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestConditionalUpdateGuardsTransitions(t *testing.T) {
	m := NewMemoryStore(nil)
	sess := newTestSession(t, m)
	ctx := context.Background()

	active := models.StatusActive
	waiting := models.StatusWaiting
	updated, err := m.UpdateSession(ctx, sess.ID, SessionPatch{Status: &active, ExpectStatus: &waiting})
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, updated.Status)

	// The same conditional write again fails: the expectation no longer holds.
	_, err = m.UpdateSession(ctx, sess.ID, SessionPatch{Status: &active, ExpectStatus: &waiting})
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))
}

func TestPlayersSnapshotSortedByNumber(t *testing.T) {
	m := NewMemoryStore(nil)
	sess := newTestSession(t, m)
	ctx := context.Background()

	for _, n := range []int{3, 1, 2} {
		p := models.NewPlayer(sess.ID, uuid.New(), "")
		p.Number = n
		require.NoError(t, m.PutPlayer(ctx, p))
	}

	players, err := m.ListPlayers(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, players, 3)
	for i, p := range players {
		assert.Equal(t, i+1, p.Number)
	}
}

func TestRemovePlayer(t *testing.T) {
	m := NewMemoryStore(nil)
	sess := newTestSession(t, m)
	ctx := context.Background()

	p := models.NewPlayer(sess.ID, uuid.New(), "")
	require.NoError(t, m.PutPlayer(ctx, p))
	require.NoError(t, m.RemovePlayer(ctx, sess.ID, p.UserID))

	players, err := m.ListPlayers(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, players)
}

func TestSubscribeEventsDeliversInOrder(t *testing.T) {
	m := NewMemoryStore(nil)
	sess := newTestSession(t, m)
	ctx := context.Background()

	ch, cancel, err := m.SubscribeEvents(ctx, sess.ID)
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < 3; i++ {
		ev := models.Event{SessionID: sess.ID, Type: models.EventSystem, Payload: models.SystemPayload{}}
		require.NoError(t, m.AppendEvent(ctx, &ev))
	}

	for want := uint64(1); want <= 3; want++ {
		select {
		case ev := <-ch:
			assert.Equal(t, want, ev.Seq)
		case <-time.After(time.Second):
			t.Fatalf("event %d never arrived", want)
		}
	}
}

func TestSubscribeCancelIsIdempotent(t *testing.T) {
	m := NewMemoryStore(nil)
	sess := newTestSession(t, m)

	_, cancel, err := m.SubscribeEvents(context.Background(), sess.ID)
	require.NoError(t, err)
	cancel()
	cancel() // second cancel must not panic on the closed channel
}

func TestSlowSubscriberIsSkippedNotBlocked(t *testing.T) {
	m := NewMemoryStore(nil)
	sess := newTestSession(t, m)
	ctx := context.Background()

	_, cancel, err := m.SubscribeEvents(ctx, sess.ID)
	require.NoError(t, err)
	defer cancel()

	// Overflow the subscriber buffer without ever draining it. Appends must
	// keep succeeding; the overflow is simply dropped.
	for i := 0; i < subBuffer+10; i++ {
		ev := models.Event{SessionID: sess.ID, Type: models.EventSystem, Payload: models.SystemPayload{}}
		require.NoError(t, m.AppendEvent(ctx, &ev))
	}

	events, err := m.ListEvents(ctx, sess.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, events, subBuffer+10)
}

func TestSessionUpdateNotifiesSubscribers(t *testing.T) {
	m := NewMemoryStore(nil)
	sess := newTestSession(t, m)
	ctx := context.Background()

	ch, cancel, err := m.SubscribeSession(ctx, sess.ID)
	require.NoError(t, err)
	defer cancel()

	cancelled := models.StatusCancelled
	_, err = m.UpdateSession(ctx, sess.ID, SessionPatch{Status: &cancelled})
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, models.StatusCancelled, got.Status)
	case <-time.After(time.Second):
		t.Fatal("session update never arrived")
	}
}

func TestUnknownSessionErrors(t *testing.T) {
	m := NewMemoryStore(nil)
	ctx := context.Background()

	_, err := m.GetSession(ctx, uuid.New())
	assert.Equal(t, errs.KindStore, errs.KindOf(err))

	ev := models.Event{SessionID: uuid.New(), Type: models.EventSystem, Payload: models.SystemPayload{}}
	assert.Error(t, m.AppendEvent(ctx, &ev))
}

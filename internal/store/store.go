// Package store defines the shared realtime store the engine coordinates
// through: small mutable session/player records plus an append-only event log
// with change subscription. The store offers no transactions; the strongest
// primitive is the conditional session update, and everything else relies on
// the engine's single-writer discipline.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/classparty/classparty/internal/models"
)

// SessionPatch is a partial update of a session record.
type SessionPatch struct {
	Status   *models.SessionStatus
	Settings models.Settings

	// ExpectStatus makes the update conditional: it fails with an
	// invalid-state error unless the stored status matches. This is the
	// check-and-set used to guard exactly-once lifecycle transitions.
	ExpectStatus *models.SessionStatus
}

// Store is the realtime store surface the engine consumes.
//
// SubscribeEvents delivers events at-least-once in append order. Slow
// subscribers may be dropped; dropped subscribers resync via ListEvents.
type Store interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	UpdateSession(ctx context.Context, id uuid.UUID, patch SessionPatch) (*models.Session, error)
	// ListSessions returns snapshots of every session in the given status.
	ListSessions(ctx context.Context, status models.SessionStatus) ([]*models.Session, error)

	PutPlayer(ctx context.Context, p *models.Player) error
	RemovePlayer(ctx context.Context, sessionID, userID uuid.UUID) error
	ListPlayers(ctx context.Context, sessionID uuid.UUID) ([]*models.Player, error)

	// AppendEvent assigns the event's ID, Seq and CreatedAt and appends it.
	AppendEvent(ctx context.Context, ev *models.Event) error
	// ListEvents returns events with Seq > afterSeq, oldest first, up to limit.
	// limit <= 0 means no limit.
	ListEvents(ctx context.Context, sessionID uuid.UUID, afterSeq uint64, limit int) ([]models.Event, error)

	SubscribeEvents(ctx context.Context, sessionID uuid.UUID) (<-chan models.Event, func(), error)
	SubscribeSession(ctx context.Context, sessionID uuid.UUID) (<-chan models.Session, func(), error)
	SubscribePlayers(ctx context.Context, sessionID uuid.UUID) (<-chan []*models.Player, func(), error)
}

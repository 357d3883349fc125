package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a Mafia role. Everyone outside Mafia sessions is a civilian.
type Role string

const (
	RoleCivilian  Role = "civilian"
	RoleMafia     Role = "mafia"
	RoleDoctor    Role = "doctor"
	RoleDetective Role = "detective"
)

// Player is one participant in a session.
//
// Number is 0 until StartSession assigns the anonymizing permutation; after
// that it is unique within the session and never changes. All in-game
// messaging addresses players by number, not by name.
type Player struct {
	SessionID   uuid.UUID `json:"session_id"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Number      int       `json:"number,omitempty"`
	IsAlive     bool      `json:"is_alive"`
	Role        Role      `json:"role,omitempty"`
	Score       int       `json:"score"`
	Active      bool      `json:"active"`
	JoinedAt    time.Time `json:"joined_at"`
}

// NewPlayer builds a waiting-room player with game defaults.
func NewPlayer(sessionID, userID uuid.UUID, displayName string) *Player {
	return &Player{
		SessionID:   sessionID,
		UserID:      userID,
		DisplayName: displayName,
		IsAlive:     true,
		Role:        RoleCivilian,
		Active:      true,
		JoinedAt:    time.Now(),
	}
}

package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GameType identifies which party game a session runs.
type GameType string

const (
	GameTruthOrDare GameType = "truth_or_dare"
	GameMafia       GameType = "mafia"
	GameQuiz        GameType = "quiz"
)

// SessionStatus is the session lifecycle state.
type SessionStatus string

const (
	StatusWaiting   SessionStatus = "waiting"
	StatusActive    SessionStatus = "active"
	StatusFinished  SessionStatus = "finished"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// CanTransition reports whether the lifecycle permits moving from s to next.
// Waiting -> Active -> Finished is monotonic; Cancelled is reachable from
// Waiting or Active only.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case StatusWaiting:
		return next == StatusActive || next == StatusCancelled
	case StatusActive:
		return next == StatusFinished || next == StatusCancelled
	default:
		return false
	}
}

// Session is one instance of a party game tied to a class.
type Session struct {
	ID         uuid.UUID     `json:"id"`
	ClassID    uuid.UUID     `json:"class_id"`
	CreatorID  uuid.UUID     `json:"creator_id"`
	GameType   GameType      `json:"game_type"`
	MaxPlayers int           `json:"max_players"`
	Status     SessionStatus `json:"status"`
	Settings   Settings      `json:"settings"`
	CreatedAt  time.Time     `json:"created_at"`
}

// sessionJSON mirrors Session with the settings held raw so the variant can
// be decoded per game type.
type sessionJSON struct {
	ID         uuid.UUID       `json:"id"`
	ClassID    uuid.UUID       `json:"class_id"`
	CreatorID  uuid.UUID       `json:"creator_id"`
	GameType   GameType        `json:"game_type"`
	MaxPlayers int             `json:"max_players"`
	Status     SessionStatus   `json:"status"`
	Settings   json.RawMessage `json:"settings,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (s Session) MarshalJSON() ([]byte, error) {
	out := sessionJSON{
		ID:         s.ID,
		ClassID:    s.ClassID,
		CreatorID:  s.CreatorID,
		GameType:   s.GameType,
		MaxPlayers: s.MaxPlayers,
		Status:     s.Status,
		CreatedAt:  s.CreatedAt,
	}
	if s.Settings != nil {
		raw, err := json.Marshal(s.Settings)
		if err != nil {
			return nil, fmt.Errorf("marshal %s settings: %w", s.GameType, err)
		}
		out.Settings = raw
	}
	return json.Marshal(out)
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var in sessionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.ID = in.ID
	s.ClassID = in.ClassID
	s.CreatorID = in.CreatorID
	s.GameType = in.GameType
	s.MaxPlayers = in.MaxPlayers
	s.Status = in.Status
	s.CreatedAt = in.CreatedAt
	if len(in.Settings) > 0 {
		settings, err := DecodeSettings(in.GameType, in.Settings)
		if err != nil {
			return err
		}
		s.Settings = settings
	}
	return nil
}

package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of a session event.
type EventType string

const (
	// Truth-or-Dare round events.
	EventRoundStart     EventType = "round_start"
	EventChoice         EventType = "choice"
	EventQuestion       EventType = "question"
	EventAnswer         EventType = "answer"
	EventRoundAbandoned EventType = "round_abandoned"

	// Mafia events.
	EventVote             EventType = "vote"
	EventPlayerEliminated EventType = "player_eliminated"
	EventGameEnded        EventType = "game_ended"

	// Quiz events.
	EventQuizQuestion EventType = "quiz_question"
	EventQuizAnswer   EventType = "quiz_answer"
	EventQuizResults  EventType = "quiz_results"
	EventQuizFinished EventType = "quiz_finished"

	// Shared events.
	EventPhaseChange      EventType = "phase_change"
	EventPlayerLeft       EventType = "player_left"
	EventSystem           EventType = "system"
	EventSessionCancelled EventType = "session_cancelled"
)

// Payload is the typed per-kind event body. One concrete type per EventType;
// DecodePayload switches exhaustively so a malformed or unknown payload is an
// error, never a silently dropped field.
type Payload interface {
	Kind() EventType
}

// SystemAuthor is the author number used for events the engine appends itself.
const SystemAuthor = 0

// Event is one immutable entry in a session's append-only log. The log is
// ground truth; denormalized session fields only mirror the latest fold.
type Event struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	// Seq is assigned by the store on append, starting at 1.
	Seq uint64 `json:"seq"`
	// Author is the acting player's number, or SystemAuthor for engine events.
	Author    int       `json:"author,omitempty"`
	Type      EventType `json:"type"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// RoundStartPayload announces a freshly drawn Truth-or-Dare pairing.
type RoundStartPayload struct {
	Round        int `json:"round"`
	AskerNumber  int `json:"asker_number"`
	TargetNumber int `json:"target_number"`
}

func (RoundStartPayload) Kind() EventType { return EventRoundStart }

// ChoicePayload records the target's pick of truth or dare.
type ChoicePayload struct {
	Choice string `json:"choice"` // "truth" or "dare"
}

func (ChoicePayload) Kind() EventType { return EventChoice }

// QuestionPayload records the asker's prompt.
type QuestionPayload struct {
	Question string `json:"question"`
}

func (QuestionPayload) Kind() EventType { return EventQuestion }

// AnswerPayload records the target's answer.
type AnswerPayload struct {
	Answer string `json:"answer"`
}

func (AnswerPayload) Kind() EventType { return EventAnswer }

// RoundAbandonedPayload records a round dropped by timeout.
type RoundAbandonedPayload struct {
	Round int    `json:"round"`
	Stage string `json:"stage"` // sub-phase that timed out
}

func (RoundAbandonedPayload) Kind() EventType { return EventRoundAbandoned }

// VotePayload records a day-phase vote against a player number.
type VotePayload struct {
	TargetNumber int `json:"target_number"`
}

func (VotePayload) Kind() EventType { return EventVote }

// EliminatedPayload records a player leaving play.
type EliminatedPayload struct {
	Number int    `json:"number"`
	Cause  string `json:"cause"` // "night_kill", "day_vote" or "forfeit"
	Round  int    `json:"round,omitempty"`
}

func (EliminatedPayload) Kind() EventType { return EventPlayerEliminated }

// GameEndedPayload closes a Mafia session and reveals all roles.
type GameEndedPayload struct {
	Winner string       `json:"winner"` // "mafia" or "civilians"
	Roles  map[int]Role `json:"roles"`  // player number -> role
}

func (GameEndedPayload) Kind() EventType { return EventGameEnded }

// QuizQuestionPayload announces one quiz question. The correct option index
// is withheld until the results event.
type QuizQuestionPayload struct {
	Index        int      `json:"index"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	TimeLimitSec int      `json:"time_limit_sec"`
}

func (QuizQuestionPayload) Kind() EventType { return EventQuizQuestion }

// QuizAnswerPayload records one player's submission for a question.
type QuizAnswerPayload struct {
	Index   int  `json:"index"`
	Option  int  `json:"option"`
	Correct bool `json:"correct"`
}

func (QuizAnswerPayload) Kind() EventType { return EventQuizAnswer }

// QuizResultsPayload closes one question and publishes the running scores.
type QuizResultsPayload struct {
	Index         int         `json:"index"`
	CorrectOption int         `json:"correct_option"`
	Answered      []int       `json:"answered"` // player numbers that submitted
	Scores        map[int]int `json:"scores"`   // player number -> score
}

func (QuizResultsPayload) Kind() EventType { return EventQuizResults }

// QuizFinishedPayload ends the quiz with the final scoreboard.
type QuizFinishedPayload struct {
	Scores  map[int]int `json:"scores"`
	Winners []int       `json:"winners"`
}

func (QuizFinishedPayload) Kind() EventType { return EventQuizFinished }

// PhaseChangePayload records a state-machine transition.
type PhaseChangePayload struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Round int    `json:"round,omitempty"`
}

func (PhaseChangePayload) Kind() EventType { return EventPhaseChange }

// PlayerLeftPayload records a forfeit during an active session. The player's
// number stays assigned; only their participation ends.
type PlayerLeftPayload struct {
	Number int `json:"number"`
}

func (PlayerLeftPayload) Kind() EventType { return EventPlayerLeft }

// SystemPayload carries free-form engine notices (stalemates, announcements).
type SystemPayload struct {
	Message string `json:"message"`
}

func (SystemPayload) Kind() EventType { return EventSystem }

// CancelledPayload closes a session without a result. Consumers match on the
// event type, not on notice prose.
type CancelledPayload struct {
	// Reason is "host" for an explicit cancel or "inactivity" for the sweep.
	Reason string `json:"reason,omitempty"`
}

func (CancelledPayload) Kind() EventType { return EventSessionCancelled }

type eventJSON struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	Seq       uint64          `json:"seq"`
	Author    int             `json:"author,omitempty"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("event %s has no payload", e.Type)
	}
	if e.Payload.Kind() != e.Type {
		return nil, fmt.Errorf("event type %s carries %s payload", e.Type, e.Payload.Kind())
	}
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.Type, err)
	}
	return json.Marshal(eventJSON{
		ID:        e.ID,
		SessionID: e.SessionID,
		Seq:       e.Seq,
		Author:    e.Author,
		Type:      e.Type,
		Payload:   raw,
		CreatedAt: e.CreatedAt,
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var in eventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	payload, err := DecodePayload(in.Type, in.Payload)
	if err != nil {
		return err
	}
	e.ID = in.ID
	e.SessionID = in.SessionID
	e.Seq = in.Seq
	e.Author = in.Author
	e.Type = in.Type
	e.Payload = payload
	e.CreatedAt = in.CreatedAt
	return nil
}

// DecodePayload decodes the payload variant for an event type.
func DecodePayload(t EventType, raw json.RawMessage) (Payload, error) {
	var payload Payload
	switch t {
	case EventRoundStart:
		payload = &RoundStartPayload{}
	case EventChoice:
		payload = &ChoicePayload{}
	case EventQuestion:
		payload = &QuestionPayload{}
	case EventAnswer:
		payload = &AnswerPayload{}
	case EventRoundAbandoned:
		payload = &RoundAbandonedPayload{}
	case EventVote:
		payload = &VotePayload{}
	case EventPlayerEliminated:
		payload = &EliminatedPayload{}
	case EventGameEnded:
		payload = &GameEndedPayload{}
	case EventQuizQuestion:
		payload = &QuizQuestionPayload{}
	case EventQuizAnswer:
		payload = &QuizAnswerPayload{}
	case EventQuizResults:
		payload = &QuizResultsPayload{}
	case EventQuizFinished:
		payload = &QuizFinishedPayload{}
	case EventPhaseChange:
		payload = &PhaseChangePayload{}
	case EventPlayerLeft:
		payload = &PlayerLeftPayload{}
	case EventSystem:
		payload = &SystemPayload{}
	case EventSessionCancelled:
		payload = &CancelledPayload{}
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return deref(payload), nil
}

// deref returns the value form so decoded payloads compare equal to the
// literals the engine appends.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *RoundStartPayload:
		return *v
	case *ChoicePayload:
		return *v
	case *QuestionPayload:
		return *v
	case *AnswerPayload:
		return *v
	case *RoundAbandonedPayload:
		return *v
	case *VotePayload:
		return *v
	case *EliminatedPayload:
		return *v
	case *GameEndedPayload:
		return *v
	case *QuizQuestionPayload:
		return *v
	case *QuizAnswerPayload:
		return *v
	case *QuizResultsPayload:
		return *v
	case *QuizFinishedPayload:
		return *v
	case *PlayerLeftPayload:
		return *v
	case *SystemPayload:
		return *v
	case *CancelledPayload:
		return *v
	case *PhaseChangePayload:
		return *v
	default:
		return p
	}
}

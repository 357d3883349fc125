// Package projection folds a session's append-only event log into the
// read-only view one client displays. The fold is per-viewer: roles and life
// status stay hidden from everyone except their owner until a player is
// eliminated or the game ends.
package projection

import (
	"sort"

	"github.com/google/uuid"

	"github.com/classparty/classparty/internal/models"
)

// PlayerView is one roster entry as the viewer may see it.
type PlayerView struct {
	Number      int         `json:"number"`
	DisplayName string      `json:"display_name"`
	Alive       bool        `json:"alive"`
	Active      bool        `json:"active"`
	Role        models.Role `json:"role,omitempty"` // set only when revealed
	Score       int         `json:"score"`
}

// TurnView is the current Truth-or-Dare round.
type TurnView struct {
	Round        int    `json:"round"`
	AskerNumber  int    `json:"asker_number"`
	TargetNumber int    `json:"target_number"`
	Choice       string `json:"choice,omitempty"`
	Question     string `json:"question,omitempty"`
	Answer       string `json:"answer,omitempty"`
}

// QuestionView is the open quiz question, with the correct option withheld.
type QuestionView struct {
	Index        int      `json:"index"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	TimeLimitSec int      `json:"time_limit_sec"`
}

// View is the presentation-layer snapshot, recomputed on every notification.
type View struct {
	SessionID   uuid.UUID            `json:"session_id"`
	GameType    models.GameType      `json:"game_type"`
	Status      models.SessionStatus `json:"status"`
	Phase       string               `json:"phase,omitempty"`
	Round       int                  `json:"round,omitempty"`
	Players     []PlayerView         `json:"players"`
	CurrentTurn *TurnView            `json:"current_turn,omitempty"`
	Question    *QuestionView        `json:"question,omitempty"`
	Votes       map[int]int          `json:"votes,omitempty"` // voter -> target, this phase
	Scoreboard  map[int]int          `json:"scoreboard,omitempty"`
	Winner      string               `json:"winner,omitempty"`
	Feed        []models.Event       `json:"feed"`
	LastSeq     uint64               `json:"last_seq"`
}

// Projector folds events incrementally for one viewer. Zero viewer number
// means a spectator who never sees hidden roles.
type Projector struct {
	viewer  int
	session models.Session
	players map[int]*models.Player

	phase      string
	round      int
	turn       *TurnView
	question   *QuestionView
	votes      map[int]int
	scoreboard map[int]int
	winner     string
	ended      bool
	feed       []models.Event
	lastSeq    uint64
}

// New builds a projector over the session snapshot for one viewer.
func New(sess *models.Session, players []*models.Player, viewerNumber int) *Projector {
	p := &Projector{
		viewer:  viewerNumber,
		session: *sess,
		votes:   map[int]int{},
		players: make(map[int]*models.Player, len(players)),
	}
	p.SetPlayers(players)
	return p
}

// SetSession refreshes the mutable session record on a store notification.
func (p *Projector) SetSession(sess models.Session) { p.session = sess }

// SetPlayers refreshes the roster on a store notification.
func (p *Projector) SetPlayers(players []*models.Player) {
	p.players = make(map[int]*models.Player, len(players))
	for _, pl := range players {
		cp := *pl
		if cp.Number > 0 {
			p.players[cp.Number] = &cp
		} else {
			// Waiting-room players have no number yet; key negatively by
			// join order so they still show on the roster.
			p.players[-(len(p.players) + 1)] = &cp
		}
	}
}

// Apply folds one event. Events arrive at-least-once; anything at or below
// the last folded sequence is dropped.
func (p *Projector) Apply(ev models.Event) {
	if ev.Seq <= p.lastSeq {
		return
	}
	p.lastSeq = ev.Seq
	p.feed = append(p.feed, ev)

	switch payload := ev.Payload.(type) {
	case models.PhaseChangePayload:
		p.phase = payload.To
		if payload.Round > 0 {
			p.round = payload.Round
		}
		p.votes = map[int]int{} // VoteTally clears on every phase change
	case models.RoundStartPayload:
		p.turn = &TurnView{
			Round:        payload.Round,
			AskerNumber:  payload.AskerNumber,
			TargetNumber: payload.TargetNumber,
		}
		p.round = payload.Round
	case models.ChoicePayload:
		if p.turn != nil {
			p.turn.Choice = payload.Choice
		}
	case models.QuestionPayload:
		if p.turn != nil {
			p.turn.Question = payload.Question
		}
	case models.AnswerPayload:
		if p.turn != nil {
			p.turn.Answer = payload.Answer
		}
	case models.RoundAbandonedPayload:
		p.turn = nil
	case models.VotePayload:
		p.votes[ev.Author] = payload.TargetNumber
	case models.EliminatedPayload:
		if pl, ok := p.players[payload.Number]; ok {
			pl.IsAlive = false
		}
	case models.PlayerLeftPayload:
		if pl, ok := p.players[payload.Number]; ok {
			pl.Active = false
		}
	case models.GameEndedPayload:
		p.ended = true
		p.winner = payload.Winner
		for n, role := range payload.Roles {
			if pl, ok := p.players[n]; ok {
				pl.Role = role
			}
		}
	case models.QuizQuestionPayload:
		p.question = &QuestionView{
			Index:        payload.Index,
			Prompt:       payload.Prompt,
			Options:      payload.Options,
			TimeLimitSec: payload.TimeLimitSec,
		}
		p.round = payload.Index + 1
	case models.QuizAnswerPayload:
		// Scores move on the results event; the feed entry is enough here.
	case models.QuizResultsPayload:
		p.question = nil
		p.scoreboard = payload.Scores
		for n, score := range payload.Scores {
			if pl, ok := p.players[n]; ok {
				pl.Score = score
			}
		}
	case models.QuizFinishedPayload:
		p.ended = true
		p.scoreboard = payload.Scores
	case models.SystemPayload:
		// Feed only.
	case models.CancelledPayload:
		p.ended = true
	}

	if p.session.Status == models.StatusCancelled {
		p.ended = true
	}
}

// View materializes the current snapshot with role redaction applied.
func (p *Projector) View() View {
	v := View{
		SessionID:  p.session.ID,
		GameType:   p.session.GameType,
		Status:     p.session.Status,
		Phase:      p.phase,
		Round:      p.round,
		Winner:     p.winner,
		Feed:       p.feed,
		LastSeq:    p.lastSeq,
		Scoreboard: p.scoreboard,
	}
	if p.turn != nil {
		t := *p.turn
		v.CurrentTurn = &t
	}
	if p.question != nil {
		q := *p.question
		v.Question = &q
	}
	if len(p.votes) > 0 {
		v.Votes = make(map[int]int, len(p.votes))
		for voter, target := range p.votes {
			v.Votes[voter] = target
		}
	}
	v.Players = make([]PlayerView, 0, len(p.players))
	numbers := make([]int, 0, len(p.players))
	for n := range p.players {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	hideNames := p.namesHidden()
	for _, n := range numbers {
		pl := p.players[n]
		pv := PlayerView{
			Number:      pl.Number,
			DisplayName: pl.DisplayName,
			Alive:       pl.IsAlive,
			Active:      pl.Active,
			Score:       pl.Score,
		}
		if hideNames && pl.Number != p.viewer {
			pv.DisplayName = ""
		}
		if p.roleRevealed(pl) {
			pv.Role = pl.Role
		}
		v.Players = append(v.Players, pv)
	}
	return v
}

// namesHidden reports whether anonymous Truth-or-Dare strips display names,
// leaving only the assigned numbers once the session is underway.
func (p *Projector) namesHidden() bool {
	s, ok := p.session.Settings.(models.TruthOrDareSettings)
	return ok && s.Anonymous && p.session.Status == models.StatusActive
}

// roleRevealed applies the hiding rule: own role always, everyone once the
// game is over, and eliminated players immediately.
func (p *Projector) roleRevealed(pl *models.Player) bool {
	if p.session.GameType != models.GameMafia {
		return false
	}
	if p.ended || p.session.Status.Terminal() {
		return true
	}
	if pl.Number == p.viewer {
		return true
	}
	return !pl.IsAlive
}

// Replay folds an event slice into a fresh view, used for resync after
// reconnect: the event stream is ground truth and a full re-fold resolves
// any partial failure.
func Replay(sess *models.Session, players []*models.Player, events []models.Event, viewerNumber int) View {
	proj := New(sess, players, viewerNumber)
	for _, ev := range events {
		proj.Apply(ev)
	}
	return proj.View()
}

// Package game runs the per-session turn and phase state machines. Each
// active session is owned by exactly one Coordinator goroutine; every
// state-changing action is mailed to that goroutine and answered on a reply
// channel. The store offers no transactions, so this single-writer actor is
// what makes role assignment, phase resolution and tally counting happen
// exactly once.
package game

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/classparty/classparty/internal/errs"
	"github.com/classparty/classparty/internal/models"
	"github.com/classparty/classparty/internal/store"
)

// ActionType names a player- or host-submitted move.
type ActionType string

const (
	ActionChoice     ActionType = "choice"      // target picks truth or dare
	ActionQuestion   ActionType = "question"    // asker writes the prompt
	ActionAnswer     ActionType = "answer"      // target answers
	ActionVote       ActionType = "vote"        // day-phase vote
	ActionNight      ActionType = "night"       // special-role night action
	ActionQuizAnswer ActionType = "quiz_answer" // answer the active question
	ActionAdvance    ActionType = "advance"     // creator-only phase advance
)

// Action is one submitted move. Fields beyond Type are read per action kind.
type Action struct {
	Type   ActionType `json:"type"`
	Choice string     `json:"choice,omitempty"` // ActionChoice: "truth" or "dare"
	Text   string     `json:"text,omitempty"`   // ActionQuestion / ActionAnswer
	Target int        `json:"target,omitempty"` // ActionVote / ActionNight: player number
	Option int        `json:"option,omitempty"` // ActionQuizAnswer: option index
}

// PrivateNote is information delivered to a single player outside the public
// event log: the role dealt at start and detective inspection results.
// Keeping these off the log is what keeps roles hidden from other clients.
type PrivateNote struct {
	Type    string      `json:"type"` // "role" or "inspection"
	Role    models.Role `json:"role,omitempty"`
	Target  int         `json:"target,omitempty"`
	IsMafia bool        `json:"is_mafia,omitempty"`
}

// PrivateFn delivers a note to one player's connection. May be nil.
type PrivateFn func(userID uuid.UUID, note PrivateNote)

// OnFinishedFunc runs after the coordinator marks its session terminal.
type OnFinishedFunc func(sessionID uuid.UUID)

// machine is implemented once per game type. All methods run on the
// coordinator goroutine; no internal locking.
type machine interface {
	// begin fires the opening events once the session is Active.
	begin() error
	// handle applies one submitted action for an active player.
	handle(p *models.Player, act Action) error
	// timeout fires when the armed phase timer elapses in the named stage.
	timeout(stage string) error
	// forfeit removes a player from play after they leave mid-session.
	forfeit(p *models.Player) error
	// phase names the current stage for projections and logs.
	phase() string
}

type actionMsg struct {
	userID uuid.UUID
	act    Action
	reply  chan error
}

type timeoutMsg struct {
	seq   int
	stage string
}

type stopMsg struct {
	reply chan struct{}
}

// Coordinator owns one active session's game state.
type Coordinator struct {
	sessionID uuid.UUID
	session   *models.Session
	st        store.Store
	log       *logrus.Entry
	rng       *rand.Rand

	players map[int]*models.Player   // by assigned number
	byUser  map[uuid.UUID]int        // userID -> number
	mach    machine

	inbox chan interface{}
	done  chan struct{}

	timer    *time.Timer
	timerSeq int // stale-timer guard, bumped on every re-arm

	privateFn  PrivateFn
	mirror     EventMirror
	onFinished OnFinishedFunc
	finished   bool
}

// EventMirror receives a copy of every appended event, typically to queue it
// for the archiver. Failures are logged, never fatal to play.
type EventMirror interface {
	Publish(ctx context.Context, ev models.Event) error
}

// Config carries the coordinator's collaborators.
type Config struct {
	Store      store.Store
	Log        *logrus.Logger
	Rand       *rand.Rand
	PrivateFn  PrivateFn
	Mirror     EventMirror
	OnFinished OnFinishedFunc
}

// NewCoordinator builds the actor for a session that just went Active.
// Players must already carry their assigned numbers (and roles, for Mafia).
func NewCoordinator(sess *models.Session, players []*models.Player, cfg Config) (*Coordinator, error) {
	logger := cfg.Log
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	c := &Coordinator{
		sessionID:  sess.ID,
		session:    sess,
		st:         cfg.Store,
		log:        logger.WithField("session", sess.ID),
		rng:        cfg.Rand,
		players:    make(map[int]*models.Player, len(players)),
		byUser:     make(map[uuid.UUID]int, len(players)),
		inbox:      make(chan interface{}, 32),
		done:       make(chan struct{}),
		privateFn:  cfg.PrivateFn,
		mirror:     cfg.Mirror,
		onFinished: cfg.OnFinished,
	}
	for _, p := range players {
		if p.Number < 1 {
			return nil, errs.InvalidStatef("player %s has no assigned number", p.UserID)
		}
		cp := *p
		c.players[p.Number] = &cp
		c.byUser[p.UserID] = p.Number
	}
	switch sess.GameType {
	case models.GameTruthOrDare:
		c.mach = newTruthOrDare(c)
	case models.GameMafia:
		c.mach = newMafia(c)
	case models.GameQuiz:
		c.mach = newQuiz(c)
	default:
		return nil, errs.Validationf("unknown game type %q", sess.GameType)
	}
	return c, nil
}

// Run executes the actor loop until the session ends, Stop is called, or the
// context is cancelled. Call it on its own goroutine.
func (c *Coordinator) Run(ctx context.Context) {
	defer c.stopTimer()
	defer close(c.done)

	if err := c.mach.begin(); err != nil {
		c.log.Errorf("begin failed: %v", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-c.inbox:
			switch msg := raw.(type) {
			case actionMsg:
				msg.reply <- c.dispatch(msg.userID, msg.act)
				if c.finished {
					return
				}
			case timeoutMsg:
				if msg.seq != c.timerSeq {
					continue // stale timer
				}
				if err := c.mach.timeout(msg.stage); err != nil {
					c.log.Errorf("timeout in %s: %v", msg.stage, err)
				}
				if c.finished {
					return
				}
			case stopMsg:
				close(msg.reply)
				return
			}
		}
	}
}

// Submit mails an action to the actor and waits for its verdict.
func (c *Coordinator) Submit(ctx context.Context, userID uuid.UUID, act Action) error {
	msg := actionMsg{userID: userID, act: act, reply: make(chan error, 1)}
	select {
	case c.inbox <- msg:
	case <-c.done:
		return errs.InvalidStatef("session %s has ended", c.sessionID)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-msg.reply:
		return err
	case <-c.done:
		return errs.InvalidStatef("session %s has ended", c.sessionID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Forfeit processes a player leaving an active session. The player record
// stays, the number stays assigned; only participation ends.
func (c *Coordinator) Forfeit(ctx context.Context, userID uuid.UUID) error {
	return c.Submit(ctx, userID, Action{Type: actionForfeit})
}

// actionForfeit is internal; clients leave via the registry, not by
// submitting this directly.
const actionForfeit ActionType = "forfeit"

// Stop halts the actor without finishing the session, used on cancellation.
func (c *Coordinator) Stop() {
	msg := stopMsg{reply: make(chan struct{})}
	select {
	case c.inbox <- msg:
		<-msg.reply
	case <-c.done:
	}
}

// Done is closed once the actor loop has exited.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Phase reports the machine's current stage. Safe only for logging and
// diagnostics; authoritative state lives in the event log.
func (c *Coordinator) Phase() string { return c.mach.phase() }

func (c *Coordinator) dispatch(userID uuid.UUID, act Action) error {
	number, ok := c.byUser[userID]
	if !ok {
		return errs.Forbiddenf("user %s is not in session %s", userID, c.sessionID)
	}
	p := c.players[number]
	if act.Type == actionForfeit {
		if !p.Active {
			return nil // already forfeited, no-op
		}
		return c.mach.forfeit(p)
	}
	if !p.Active {
		return errs.InvalidStatef("player %d has forfeited", number)
	}
	return c.mach.handle(p, act)
}

// --- services shared by the machines; all run on the actor goroutine ---

// append writes one event to the log and mirrors it. author is the acting
// player's number, or models.SystemAuthor.
func (c *Coordinator) append(author int, payload models.Payload) error {
	ev := models.Event{
		SessionID: c.sessionID,
		Author:    author,
		Type:      payload.Kind(),
		Payload:   payload,
	}
	if err := c.st.AppendEvent(context.Background(), &ev); err != nil {
		return errs.Storef(err, "append %s event", ev.Type)
	}
	if c.mirror != nil {
		if err := c.mirror.Publish(context.Background(), ev); err != nil {
			c.log.Warnf("mirror publish %s: %v", ev.Type, err)
		}
	}
	return nil
}

// changePhase appends the transition event.
func (c *Coordinator) changePhase(from, to string, round int) error {
	return c.append(models.SystemAuthor, models.PhaseChangePayload{From: from, To: to, Round: round})
}

// schedule arms the phase timer, replacing any previous one.
func (c *Coordinator) schedule(d time.Duration, stage string) {
	c.stopTimer()
	c.timerSeq++
	seq := c.timerSeq
	c.timer = time.AfterFunc(d, func() {
		select {
		case c.inbox <- timeoutMsg{seq: seq, stage: stage}:
		case <-c.done:
		}
	})
}

func (c *Coordinator) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerSeq++
}

// tell delivers a private note to one player, bypassing the public log.
func (c *Coordinator) tell(number int, note PrivateNote) {
	p, ok := c.players[number]
	if !ok || c.privateFn == nil {
		return
	}
	c.privateFn(p.UserID, note)
}

// putPlayer mirrors a player's denormalized fields back to the store.
func (c *Coordinator) putPlayer(p *models.Player) {
	if err := c.st.PutPlayer(context.Background(), p); err != nil {
		c.log.Warnf("put player %d: %v", p.Number, err)
	}
}

// finish marks the session Finished with a conditional write and stops the
// actor after the current message.
func (c *Coordinator) finish() error {
	active := models.StatusActive
	done := models.StatusFinished
	_, err := c.st.UpdateSession(context.Background(), c.sessionID, store.SessionPatch{
		Status:       &done,
		ExpectStatus: &active,
	})
	if err != nil {
		return errs.Storef(err, "finish session")
	}
	c.finished = true
	c.stopTimer()
	if c.onFinished != nil {
		c.onFinished(c.sessionID)
	}
	return nil
}

// alive returns active, living player numbers in ascending order.
func (c *Coordinator) alive() []int {
	out := make([]int, 0, len(c.players))
	for n := 1; n <= len(c.players); n++ {
		if p, ok := c.players[n]; ok && p.Active && p.IsAlive {
			out = append(out, n)
		}
	}
	return out
}

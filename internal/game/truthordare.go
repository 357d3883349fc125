package game

import (
	"time"

	"github.com/classparty/classparty/internal/errs"
	"github.com/classparty/classparty/internal/models"
)

// Truth-or-Dare sub-phases.
const (
	StageAwaitChoice   = "await_choice"
	StageAwaitQuestion = "await_question"
	StageAwaitAnswer   = "await_answer"
)

// Sub-phase deadlines. A stage that elapses with no submission abandons the
// round and a fresh pair is drawn.
const (
	choiceTimeout   = 15 * time.Second
	questionTimeout = 30 * time.Second
	answerTimeout   = 60 * time.Second
)

// truthOrDare runs rounds of asker/target prompting. Each round the selector
// draws a distinct pair, then the round walks choice -> question -> answer.
// An abandoned pair still counts toward the anti-repeat history, so a
// timed-out pairing is not immediately redrawn.
type truthOrDare struct {
	c     *Coordinator
	sel   *Selector
	round int
	stage string

	askerNumber  int
	targetNumber int
}

func newTruthOrDare(c *Coordinator) *truthOrDare {
	return &truthOrDare{c: c, sel: NewSelector(c.rng)}
}

func (t *truthOrDare) phase() string { return t.stage }

func (t *truthOrDare) begin() error {
	return t.startRound()
}

func (t *truthOrDare) startRound() error {
	pool := t.activeNumbers()
	if len(pool) < 2 {
		if err := t.c.append(models.SystemAuthor, models.SystemPayload{
			Message: "not enough players remain to continue",
		}); err != nil {
			return err
		}
		return t.c.finish()
	}
	t.round++
	t.askerNumber, t.targetNumber = t.sel.NextPair(pool)
	t.stage = StageAwaitChoice
	if err := t.c.append(models.SystemAuthor, models.RoundStartPayload{
		Round:        t.round,
		AskerNumber:  t.askerNumber,
		TargetNumber: t.targetNumber,
	}); err != nil {
		return err
	}
	t.c.schedule(choiceTimeout, StageAwaitChoice)
	return nil
}

func (t *truthOrDare) handle(p *models.Player, act Action) error {
	switch act.Type {
	case ActionChoice:
		if t.stage != StageAwaitChoice {
			return errs.InvalidStatef("no choice expected in %s", t.stage)
		}
		if p.Number != t.targetNumber {
			return errs.Forbiddenf("player %d is not this round's target", p.Number)
		}
		if act.Choice != "truth" && act.Choice != "dare" {
			return errs.Validationf("choice must be truth or dare, got %q", act.Choice)
		}
		if err := t.c.append(p.Number, models.ChoicePayload{Choice: act.Choice}); err != nil {
			return err
		}
		t.stage = StageAwaitQuestion
		t.c.schedule(questionTimeout, StageAwaitQuestion)
		return nil

	case ActionQuestion:
		if t.stage != StageAwaitQuestion {
			return errs.InvalidStatef("no question expected in %s", t.stage)
		}
		if p.Number != t.askerNumber {
			return errs.Forbiddenf("player %d is not this round's asker", p.Number)
		}
		if act.Text == "" {
			return errs.Validationf("question must not be empty")
		}
		if err := t.c.append(p.Number, models.QuestionPayload{Question: act.Text}); err != nil {
			return err
		}
		t.stage = StageAwaitAnswer
		t.c.schedule(answerTimeout, StageAwaitAnswer)
		return nil

	case ActionAnswer:
		if t.stage != StageAwaitAnswer {
			return errs.InvalidStatef("no answer expected in %s", t.stage)
		}
		if p.Number != t.targetNumber {
			return errs.Forbiddenf("player %d is not this round's target", p.Number)
		}
		if act.Text == "" {
			return errs.Validationf("answer must not be empty")
		}
		if err := t.c.append(p.Number, models.AnswerPayload{Answer: act.Text}); err != nil {
			return err
		}
		return t.startRound()

	default:
		return errs.InvalidStatef("action %s has no meaning in truth-or-dare", act.Type)
	}
}

func (t *truthOrDare) timeout(stage string) error {
	if stage != t.stage {
		return nil
	}
	if err := t.c.append(models.SystemAuthor, models.RoundAbandonedPayload{
		Round: t.round,
		Stage: stage,
	}); err != nil {
		return err
	}
	return t.startRound()
}

func (t *truthOrDare) forfeit(p *models.Player) error {
	p.Active = false
	t.c.putPlayer(p)
	t.sel.Forget(p.Number)
	if err := t.c.append(models.SystemAuthor, models.PlayerLeftPayload{Number: p.Number}); err != nil {
		return err
	}
	// A departed asker or target orphans the running round.
	if p.Number == t.askerNumber || p.Number == t.targetNumber {
		if err := t.c.append(models.SystemAuthor, models.RoundAbandonedPayload{
			Round: t.round,
			Stage: t.stage,
		}); err != nil {
			return err
		}
		return t.startRound()
	}
	return nil
}

func (t *truthOrDare) activeNumbers() []int {
	out := make([]int, 0, len(t.c.players))
	for n := 1; n <= len(t.c.players); n++ {
		if p, ok := t.c.players[n]; ok && p.Active {
			out = append(out, n)
		}
	}
	return out
}

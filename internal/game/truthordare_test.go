package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classparty/classparty/internal/models"
)

func todFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, models.GameTruthOrDare, models.TruthOrDareSettings{}, nil, 21)
	f.begin()
	return f
}

// currentPair reads the running round's pair off the machine.
func currentPair(f *fixture) (asker, target int) {
	m := f.c.mach.(*truthOrDare)
	return m.askerNumber, m.targetNumber
}

func TestTruthOrDareRoundFlow(t *testing.T) {
	f := todFixture(t)

	starts := f.eventsOf(models.EventRoundStart)
	require.Len(t, starts, 1)
	p := starts[0].Payload.(models.RoundStartPayload)
	assert.NotEqual(t, p.AskerNumber, p.TargetNumber)

	asker, target := currentPair(f)
	require.NoError(t, f.act(target, Action{Type: ActionChoice, Choice: "truth"}))
	require.NoError(t, f.act(asker, Action{Type: ActionQuestion, Text: "what is your favorite class?"}))
	require.NoError(t, f.act(target, Action{Type: ActionAnswer, Text: "recess"}))

	// A completed round immediately opens the next one.
	assert.Len(t, f.eventsOf(models.EventRoundStart), 2)
	assert.Equal(t, StageAwaitChoice, f.c.Phase())
}

func TestTruthOrDareEnforcesTurnOrder(t *testing.T) {
	f := todFixture(t)
	asker, target := currentPair(f)

	// Only the target chooses.
	err := f.act(asker, Action{Type: ActionChoice, Choice: "dare"})
	require.Error(t, err)

	// A question before the choice is out of order.
	err = f.act(asker, Action{Type: ActionQuestion, Text: "too early"})
	require.Error(t, err)

	require.NoError(t, f.act(target, Action{Type: ActionChoice, Choice: "dare"}))

	// Only the asker writes the prompt, and it must not be empty.
	err = f.act(target, Action{Type: ActionQuestion, Text: "not my line"})
	require.Error(t, err)
	err = f.act(asker, Action{Type: ActionQuestion})
	require.Error(t, err)
}

func TestTruthOrDareRejectsBadChoice(t *testing.T) {
	f := todFixture(t)
	_, target := currentPair(f)
	err := f.act(target, Action{Type: ActionChoice, Choice: "maybe"})
	require.Error(t, err)
}

func TestTruthOrDareTimeoutAbandonsRound(t *testing.T) {
	f := todFixture(t)

	require.NoError(t, f.timeout(StageAwaitChoice))

	abandoned := f.eventsOf(models.EventRoundAbandoned)
	require.Len(t, abandoned, 1)
	p := abandoned[0].Payload.(models.RoundAbandonedPayload)
	assert.Equal(t, 1, p.Round)
	assert.Equal(t, StageAwaitChoice, p.Stage)

	// A fresh pair was drawn.
	assert.Len(t, f.eventsOf(models.EventRoundStart), 2)
	assert.Equal(t, StageAwaitChoice, f.c.Phase())
}

func TestTruthOrDareStaleTimeoutIgnored(t *testing.T) {
	f := todFixture(t)
	_, target := currentPair(f)
	require.NoError(t, f.act(target, Action{Type: ActionChoice, Choice: "truth"}))

	// The choice timer fires after the stage moved on; nothing should happen.
	require.NoError(t, f.timeout(StageAwaitChoice))
	assert.Empty(t, f.eventsOf(models.EventRoundAbandoned))
	assert.Equal(t, StageAwaitQuestion, f.c.Phase())
}

func TestTruthOrDareForfeitOfPairAbandonsRound(t *testing.T) {
	f := todFixture(t)
	asker, _ := currentPair(f)

	require.NoError(t, f.forfeit(asker))

	require.Len(t, f.eventsOf(models.EventPlayerLeft), 1)
	require.Len(t, f.eventsOf(models.EventRoundAbandoned), 1)
	// Three players remain, so a new round starts without the leaver.
	starts := f.eventsOf(models.EventRoundStart)
	require.Len(t, starts, 2)
	p := starts[1].Payload.(models.RoundStartPayload)
	assert.NotEqual(t, asker, p.AskerNumber)
	assert.NotEqual(t, asker, p.TargetNumber)
}

func TestTruthOrDareFinishesBelowTwoPlayers(t *testing.T) {
	f := todFixture(t)

	require.NoError(t, f.forfeit(1))
	require.NoError(t, f.forfeit(2))
	require.NoError(t, f.forfeit(3))

	assert.Equal(t, models.StatusFinished, f.status())
	sys := f.eventsOf(models.EventSystem)
	require.NotEmpty(t, sys)
	assert.Contains(t, sys[len(sys)-1].Payload.(models.SystemPayload).Message, "not enough players")
}

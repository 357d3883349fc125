package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classparty/classparty/internal/models"
	"github.com/classparty/classparty/internal/rules"
)

func quizFixture(t *testing.T, players int) *fixture {
	t.Helper()
	roles := make([]models.Role, players)
	for i := range roles {
		roles[i] = models.RoleCivilian
	}
	f := newFixture(t, models.GameQuiz, models.QuizSettings{Difficulty: models.DifficultyEasy}, roles, 9)
	f.begin()
	return f
}

func TestQuizOnlyQuizMasterAdvances(t *testing.T) {
	f := quizFixture(t, 3)

	err := f.act(2, Action{Type: ActionAdvance})
	require.Error(t, err)
	assert.Equal(t, PhaseLobby, f.c.Phase())

	require.NoError(t, f.act(1, Action{Type: ActionAdvance}))
	assert.Equal(t, PhaseQuestionActive, f.c.Phase())

	qs := f.eventsOf(models.EventQuizQuestion)
	require.Len(t, qs, 1)
	p := qs[0].Payload.(models.QuizQuestionPayload)
	assert.Equal(t, 0, p.Index)
	assert.NotEmpty(t, p.Options)
}

func TestQuizFirstAnswerWins(t *testing.T) {
	f := quizFixture(t, 3)
	require.NoError(t, f.act(1, Action{Type: ActionAdvance}))

	correct := rules.QuestionSet(models.DifficultyEasy)[0].Correct
	wrong := (correct + 1) % len(rules.QuestionSet(models.DifficultyEasy)[0].Options)

	require.NoError(t, f.act(2, Action{Type: ActionQuizAnswer, Option: wrong}))

	// The second submission must not overwrite the first.
	err := f.act(2, Action{Type: ActionQuizAnswer, Option: correct})
	require.Error(t, err)

	answers := f.eventsOf(models.EventQuizAnswer)
	require.Len(t, answers, 1)
	a := answers[0].Payload.(models.QuizAnswerPayload)
	assert.Equal(t, wrong, a.Option)
	assert.False(t, a.Correct)
}

func TestQuizTimeoutScoresOnlySubmitted(t *testing.T) {
	// Scenario: three players, one answers correctly, the question times
	// out. Only the answering player scores and the results name them.
	f := quizFixture(t, 3)
	require.NoError(t, f.act(1, Action{Type: ActionAdvance}))

	correct := rules.QuestionSet(models.DifficultyEasy)[0].Correct
	require.NoError(t, f.act(2, Action{Type: ActionQuizAnswer, Option: correct}))

	require.NoError(t, f.timeout(PhaseQuestionActive))
	assert.Equal(t, PhaseQuestionResults, f.c.Phase())

	results := f.eventsOf(models.EventQuizResults)
	require.Len(t, results, 1)
	r := results[0].Payload.(models.QuizResultsPayload)
	assert.Equal(t, correct, r.CorrectOption)
	assert.Equal(t, []int{2}, r.Answered)
	assert.Equal(t, map[int]int{1: 0, 2: pointsPerCorrect, 3: 0}, r.Scores)
}

func TestQuizClosesEarlyWhenAllAnswered(t *testing.T) {
	f := quizFixture(t, 2)
	require.NoError(t, f.act(1, Action{Type: ActionAdvance}))

	require.NoError(t, f.act(1, Action{Type: ActionQuizAnswer, Option: 0}))
	assert.Equal(t, PhaseQuestionActive, f.c.Phase())
	require.NoError(t, f.act(2, Action{Type: ActionQuizAnswer, Option: 1}))
	assert.Equal(t, PhaseQuestionResults, f.c.Phase())
}

func TestQuizRunsToCompletion(t *testing.T) {
	f := quizFixture(t, 2)
	questions := rules.QuestionSet(models.DifficultyEasy)

	require.NoError(t, f.act(1, Action{Type: ActionAdvance}))
	for i := range questions {
		// Player 2 answers every question correctly, player 1 never does.
		require.NoError(t, f.act(2, Action{Type: ActionQuizAnswer, Option: questions[i].Correct}))
		require.NoError(t, f.timeout(PhaseQuestionActive))
		require.NoError(t, f.act(1, Action{Type: ActionAdvance}))
	}

	assert.Equal(t, PhaseFinished, f.c.Phase())
	fin := f.eventsOf(models.EventQuizFinished)
	require.Len(t, fin, 1)
	p := fin[0].Payload.(models.QuizFinishedPayload)
	assert.Equal(t, []int{2}, p.Winners)
	assert.Equal(t, len(questions)*pointsPerCorrect, p.Scores[2])
	assert.Equal(t, 0, p.Scores[1])
	assert.Equal(t, models.StatusFinished, f.status())
}

func TestQuizAnswerValidation(t *testing.T) {
	f := quizFixture(t, 2)

	// No question open yet.
	err := f.act(2, Action{Type: ActionQuizAnswer, Option: 0})
	require.Error(t, err)

	require.NoError(t, f.act(1, Action{Type: ActionAdvance}))
	err = f.act(2, Action{Type: ActionQuizAnswer, Option: 99})
	require.Error(t, err)
}

func TestQuizMasterForfeitEndsQuiz(t *testing.T) {
	f := quizFixture(t, 3)
	require.NoError(t, f.act(1, Action{Type: ActionAdvance}))

	require.NoError(t, f.forfeit(1))

	assert.Equal(t, PhaseFinished, f.c.Phase())
	require.Len(t, f.eventsOf(models.EventQuizFinished), 1)
	assert.Equal(t, models.StatusFinished, f.status())
}

func TestQuizPlayerForfeitMayCloseQuestion(t *testing.T) {
	f := quizFixture(t, 3)
	require.NoError(t, f.act(1, Action{Type: ActionAdvance}))

	require.NoError(t, f.act(1, Action{Type: ActionQuizAnswer, Option: 0}))
	require.NoError(t, f.act(2, Action{Type: ActionQuizAnswer, Option: 0}))
	assert.Equal(t, PhaseQuestionActive, f.c.Phase())

	// The only unanswered player leaving closes the question.
	require.NoError(t, f.forfeit(3))
	assert.Equal(t, PhaseQuestionResults, f.c.Phase())
}

package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classparty/classparty/internal/models"
)

func TestValidateMafia(t *testing.T) {
	tests := []struct {
		name    string
		players int
		s       models.MafiaSettings
		ok      bool
	}{
		{"classic four player", 4, models.MafiaSettings{MafiaCount: 1, DoctorCount: 1, DetectiveCount: 1}, true},
		{"large class", 12, models.MafiaSettings{MafiaCount: 3, DoctorCount: 1, DetectiveCount: 2}, true},
		{"no mafia", 6, models.MafiaSettings{MafiaCount: 0}, false},
		{"too many mafia", 10, models.MafiaSettings{MafiaCount: 4}, false},
		{"too many doctors", 8, models.MafiaSettings{MafiaCount: 1, DoctorCount: 2}, false},
		{"too many detectives", 8, models.MafiaSettings{MafiaCount: 1, DetectiveCount: 3}, false},
		{"mafia exactly half", 4, models.MafiaSettings{MafiaCount: 2}, false},
		{"mafia majority", 3, models.MafiaSettings{MafiaCount: 2}, false},
		{"no civilians left", 3, models.MafiaSettings{MafiaCount: 1, DoctorCount: 1, DetectiveCount: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(models.GameMafia, tt.players, tt.s)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateQuiz(t *testing.T) {
	assert.NoError(t, Validate(models.GameQuiz, 3, models.QuizSettings{Difficulty: models.DifficultyHard}))
	assert.Error(t, Validate(models.GameQuiz, 3, models.QuizSettings{Difficulty: "impossible"}))
}

func TestValidateMismatchedSettings(t *testing.T) {
	assert.Error(t, Validate(models.GameQuiz, 3, models.MafiaSettings{MafiaCount: 1}))
	assert.Error(t, Validate(models.GameMafia, 3, nil))
}

func TestQuestionSetPerDifficulty(t *testing.T) {
	for _, d := range []models.Difficulty{models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard} {
		qs := QuestionSet(d)
		require.NotEmpty(t, qs, "difficulty %s", d)
		for _, q := range qs {
			assert.NotEmpty(t, q.Prompt)
			assert.GreaterOrEqual(t, q.Correct, 0)
			assert.Less(t, q.Correct, len(q.Options))
			assert.Greater(t, q.TimeLimitSec, 0)
		}
	}
}

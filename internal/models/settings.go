package models

import (
	"encoding/json"
	"fmt"
)

// Settings is the per-game-type settings variant attached to a session.
type Settings interface {
	Game() GameType
}

// Difficulty selects a quiz question bank.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// MafiaSettings holds the special-role counts drawn at session start.
type MafiaSettings struct {
	MafiaCount     int `json:"mafia_count"`
	DoctorCount    int `json:"doctor_count"`
	DetectiveCount int `json:"detective_count"`
}

func (MafiaSettings) Game() GameType { return GameMafia }

// QuizSettings selects the question set played.
type QuizSettings struct {
	Difficulty Difficulty `json:"difficulty"`
}

func (QuizSettings) Game() GameType { return GameQuiz }

// TruthOrDareSettings toggles whether prompts are shown anonymously.
type TruthOrDareSettings struct {
	Anonymous bool `json:"anonymous"`
}

func (TruthOrDareSettings) Game() GameType { return GameTruthOrDare }

// DefaultSettings returns the zero-config settings for a game type.
func DefaultSettings(gt GameType) Settings {
	switch gt {
	case GameMafia:
		return MafiaSettings{MafiaCount: 1}
	case GameQuiz:
		return QuizSettings{Difficulty: DifficultyEasy}
	default:
		return TruthOrDareSettings{Anonymous: true}
	}
}

// DecodeSettings decodes the settings variant for a game type.
func DecodeSettings(gt GameType, raw json.RawMessage) (Settings, error) {
	switch gt {
	case GameMafia:
		var s MafiaSettings
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode mafia settings: %w", err)
		}
		return s, nil
	case GameQuiz:
		var s QuizSettings
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode quiz settings: %w", err)
		}
		return s, nil
	case GameTruthOrDare:
		var s TruthOrDareSettings
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode truth-or-dare settings: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown game type %q", gt)
	}
}

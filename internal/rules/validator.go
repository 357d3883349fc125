// Package rules validates per-game settings against the player count and
// owns the quiz question banks. Validation is blocking at StartSession and
// advisory while the host edits settings pre-start.
package rules

import (
	"github.com/classparty/classparty/internal/errs"
	"github.com/classparty/classparty/internal/models"
)

// Role count bounds for Mafia sessions.
const (
	MinMafia     = 1
	MaxMafia     = 3
	MaxDoctor    = 1
	MaxDetective = 2
)

// Validate checks settings for a game type at a given player count.
// Returns a validation error describing the first violated bound, or nil.
func Validate(gt models.GameType, playerCount int, settings models.Settings) error {
	if settings == nil {
		return errs.Validationf("missing settings for %s", gt)
	}
	if settings.Game() != gt {
		return errs.Validationf("settings are for %s, session is %s", settings.Game(), gt)
	}

	switch s := settings.(type) {
	case models.MafiaSettings:
		return validateMafia(playerCount, s)
	case models.QuizSettings:
		if _, ok := questionBanks[s.Difficulty]; !ok {
			return errs.Validationf("unknown quiz difficulty %q", s.Difficulty)
		}
		return nil
	case models.TruthOrDareSettings:
		// Both anonymity modes are always playable.
		return nil
	default:
		return errs.Validationf("unsupported settings type for %s", gt)
	}
}

// validateMafia enforces the role-count bounds. Beyond the per-role ranges,
// mafia must be strictly fewer than half of all players and at least one
// plain civilian must remain after the special roles are dealt.
func validateMafia(playerCount int, s models.MafiaSettings) error {
	if s.MafiaCount < MinMafia || s.MafiaCount > MaxMafia {
		return errs.Validationf("mafia count %d out of range [%d,%d]", s.MafiaCount, MinMafia, MaxMafia)
	}
	if s.DoctorCount < 0 || s.DoctorCount > MaxDoctor {
		return errs.Validationf("doctor count %d out of range [0,%d]", s.DoctorCount, MaxDoctor)
	}
	if s.DetectiveCount < 0 || s.DetectiveCount > MaxDetective {
		return errs.Validationf("detective count %d out of range [0,%d]", s.DetectiveCount, MaxDetective)
	}
	civilians := playerCount - s.MafiaCount - s.DoctorCount - s.DetectiveCount
	if civilians < 1 {
		return errs.Validationf("%d players leave no civilians after %d special roles",
			playerCount, s.MafiaCount+s.DoctorCount+s.DetectiveCount)
	}
	if s.MafiaCount*2 >= playerCount {
		return errs.Validationf("%d mafia would not be a minority of %d players", s.MafiaCount, playerCount)
	}
	return nil
}

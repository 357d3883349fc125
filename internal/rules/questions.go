package rules

import "github.com/classparty/classparty/internal/models"

// Question is one quiz prompt with its answer options. Correct indexes into
// Options and is never sent to clients before the question closes.
type Question struct {
	Prompt       string
	Options      []string
	Correct      int
	TimeLimitSec int
}

// QuestionSet returns the fixed ordered question set for a difficulty, or
// nil if the difficulty is unknown. Callers must not mutate the result.
func QuestionSet(d models.Difficulty) []Question {
	return questionBanks[d]
}

var questionBanks = map[models.Difficulty][]Question{
	models.DifficultyEasy: {
		{
			Prompt:       "How many continents are there?",
			Options:      []string{"five", "six", "seven", "eight"},
			Correct:      2,
			TimeLimitSec: 15,
		},
		{
			Prompt:       "Which planet is known as the Red Planet?",
			Options:      []string{"Venus", "Mars", "Jupiter", "Mercury"},
			Correct:      1,
			TimeLimitSec: 15,
		},
		{
			Prompt:       "What is the largest ocean on Earth?",
			Options:      []string{"Atlantic", "Indian", "Arctic", "Pacific"},
			Correct:      3,
			TimeLimitSec: 15,
		},
		{
			Prompt:       "How many sides does a hexagon have?",
			Options:      []string{"five", "six", "seven", "eight"},
			Correct:      1,
			TimeLimitSec: 15,
		},
		{
			Prompt:       "Which animal is the tallest living land animal?",
			Options:      []string{"elephant", "giraffe", "ostrich", "moose"},
			Correct:      1,
			TimeLimitSec: 15,
		},
	},
	models.DifficultyMedium: {
		{
			Prompt:       "Which element has the chemical symbol Fe?",
			Options:      []string{"fluorine", "iron", "lead", "tin"},
			Correct:      1,
			TimeLimitSec: 20,
		},
		{
			Prompt:       "In which year did the Berlin Wall fall?",
			Options:      []string{"1987", "1989", "1991", "1993"},
			Correct:      1,
			TimeLimitSec: 20,
		},
		{
			Prompt:       "What is the capital of Australia?",
			Options:      []string{"Sydney", "Melbourne", "Canberra", "Perth"},
			Correct:      2,
			TimeLimitSec: 20,
		},
		{
			Prompt:       "How many strings does a standard violin have?",
			Options:      []string{"three", "four", "five", "six"},
			Correct:      1,
			TimeLimitSec: 20,
		},
		{
			Prompt:       "Which gas makes up most of Earth's atmosphere?",
			Options:      []string{"oxygen", "carbon dioxide", "nitrogen", "argon"},
			Correct:      2,
			TimeLimitSec: 20,
		},
	},
	models.DifficultyHard: {
		{
			Prompt:       "Which mathematician proved Fermat's Last Theorem?",
			Options:      []string{"Andrew Wiles", "Terence Tao", "Grigori Perelman", "Paul Erdős"},
			Correct:      0,
			TimeLimitSec: 30,
		},
		{
			Prompt:       "What is the smallest prime number greater than 100?",
			Options:      []string{"101", "103", "107", "109"},
			Correct:      0,
			TimeLimitSec: 30,
		},
		{
			Prompt:       "Which country has the longest coastline in the world?",
			Options:      []string{"Russia", "Australia", "Canada", "Norway"},
			Correct:      2,
			TimeLimitSec: 30,
		},
		{
			Prompt:       "In what year was the first programmable computer, the Z3, completed?",
			Options:      []string{"1936", "1941", "1946", "1951"},
			Correct:      1,
			TimeLimitSec: 30,
		},
		{
			Prompt:       "Which composer wrote the opera 'The Magic Flute'?",
			Options:      []string{"Beethoven", "Haydn", "Mozart", "Schubert"},
			Correct:      2,
			TimeLimitSec: 30,
		},
	},
}

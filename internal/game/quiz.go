package game

import (
	"time"

	"github.com/classparty/classparty/internal/errs"
	"github.com/classparty/classparty/internal/models"
	"github.com/classparty/classparty/internal/rules"
)

// Quiz phases.
const (
	PhaseLobby           = "lobby"
	PhaseQuestionActive  = "question_active"
	PhaseQuestionResults = "question_results"
	PhaseFinished        = "finished"
)

// pointsPerCorrect is the fixed score increment for a correct first answer.
const pointsPerCorrect = 100

// quiz walks a fixed ordered question set. The session creator is the
// quiz-master: they trigger the first question and advance past each results
// screen. Questions close on their own timer, or early once every remaining
// player has answered.
type quiz struct {
	c         *Coordinator
	questions []rules.Question
	stage     string
	index     int
	answers   map[int]int // player number -> chosen option for the open question
}

func newQuiz(c *Coordinator) *quiz {
	settings, _ := c.session.Settings.(models.QuizSettings)
	return &quiz{
		c:         c,
		questions: rules.QuestionSet(settings.Difficulty),
		stage:     PhaseLobby,
		index:     -1,
		answers:   make(map[int]int),
	}
}

func (q *quiz) phase() string { return q.stage }

func (q *quiz) begin() error {
	if len(q.questions) == 0 {
		return errs.Validationf("no question set for this difficulty")
	}
	return q.c.append(models.SystemAuthor, models.SystemPayload{
		Message: "quiz ready, waiting for the quiz-master to start",
	})
}

func (q *quiz) handle(p *models.Player, act Action) error {
	switch act.Type {
	case ActionAdvance:
		if p.UserID != q.c.session.CreatorID {
			return errs.Forbiddenf("only the quiz-master may advance the quiz")
		}
		switch q.stage {
		case PhaseLobby:
			return q.askQuestion(0)
		case PhaseQuestionResults:
			if q.index+1 < len(q.questions) {
				return q.askQuestion(q.index + 1)
			}
			return q.finishQuiz()
		default:
			return errs.InvalidStatef("cannot advance during %s", q.stage)
		}

	case ActionQuizAnswer:
		return q.handleAnswer(p, act.Option)

	default:
		return errs.InvalidStatef("action %s has no meaning in quiz", act.Type)
	}
}

func (q *quiz) handleAnswer(p *models.Player, option int) error {
	if q.stage != PhaseQuestionActive {
		return errs.InvalidStatef("no question is open")
	}
	// First submission wins; repeats never touch the score.
	if _, dup := q.answers[p.Number]; dup {
		return errs.InvalidStatef("player %d already answered question %d", p.Number, q.index)
	}
	question := q.questions[q.index]
	if option < 0 || option >= len(question.Options) {
		return errs.Validationf("option %d out of range", option)
	}
	q.answers[p.Number] = option
	correct := option == question.Correct
	if correct {
		p.Score += pointsPerCorrect
		q.c.putPlayer(p)
	}
	if err := q.c.append(p.Number, models.QuizAnswerPayload{
		Index:   q.index,
		Option:  option,
		Correct: correct,
	}); err != nil {
		return err
	}
	if len(q.answers) >= q.activeCount() {
		return q.resolveQuestion()
	}
	return nil
}

func (q *quiz) askQuestion(index int) error {
	from := q.stage
	q.index = index
	q.answers = make(map[int]int)
	q.stage = PhaseQuestionActive
	if err := q.c.changePhase(from, PhaseQuestionActive, index+1); err != nil {
		return err
	}
	question := q.questions[index]
	if err := q.c.append(models.SystemAuthor, models.QuizQuestionPayload{
		Index:        index,
		Prompt:       question.Prompt,
		Options:      question.Options,
		TimeLimitSec: question.TimeLimitSec,
	}); err != nil {
		return err
	}
	q.c.schedule(time.Duration(question.TimeLimitSec)*time.Second, PhaseQuestionActive)
	return nil
}

// resolveQuestion closes the open question regardless of unanswered players.
func (q *quiz) resolveQuestion() error {
	q.c.stopTimer()
	q.stage = PhaseQuestionResults
	if err := q.c.changePhase(PhaseQuestionActive, PhaseQuestionResults, q.index+1); err != nil {
		return err
	}
	answered := make([]int, 0, len(q.answers))
	for n := 1; n <= len(q.c.players); n++ {
		if _, ok := q.answers[n]; ok {
			answered = append(answered, n)
		}
	}
	return q.c.append(models.SystemAuthor, models.QuizResultsPayload{
		Index:         q.index,
		CorrectOption: q.questions[q.index].Correct,
		Answered:      answered,
		Scores:        q.scoreboard(),
	})
}

func (q *quiz) finishQuiz() error {
	q.stage = PhaseFinished
	scores := q.scoreboard()
	top := 0
	for _, s := range scores {
		if s > top {
			top = s
		}
	}
	winners := make([]int, 0, 1)
	for n := 1; n <= len(q.c.players); n++ {
		if scores[n] == top {
			winners = append(winners, n)
		}
	}
	if err := q.c.append(models.SystemAuthor, models.QuizFinishedPayload{
		Scores:  scores,
		Winners: winners,
	}); err != nil {
		return err
	}
	return q.c.finish()
}

func (q *quiz) timeout(stage string) error {
	if stage != PhaseQuestionActive || q.stage != PhaseQuestionActive {
		return nil
	}
	return q.resolveQuestion()
}

func (q *quiz) forfeit(p *models.Player) error {
	p.Active = false
	q.c.putPlayer(p)
	if err := q.c.append(models.SystemAuthor, models.PlayerLeftPayload{Number: p.Number}); err != nil {
		return err
	}
	delete(q.answers, p.Number)
	// Without its quiz-master the quiz cannot advance; close it out.
	if p.UserID == q.c.session.CreatorID {
		if err := q.c.append(models.SystemAuthor, models.SystemPayload{
			Message: "the quiz-master left, ending the quiz",
		}); err != nil {
			return err
		}
		return q.finishQuiz()
	}
	if q.stage == PhaseQuestionActive && len(q.answers) >= q.activeCount() {
		return q.resolveQuestion()
	}
	return nil
}

func (q *quiz) activeCount() int {
	n := 0
	for _, p := range q.c.players {
		if p.Active {
			n++
		}
	}
	return n
}

func (q *quiz) scoreboard() map[int]int {
	scores := make(map[int]int, len(q.c.players))
	for n, p := range q.c.players {
		scores[n] = p.Score
	}
	return scores
}

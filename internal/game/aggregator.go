package game

import (
	"fmt"

	"funquiz-service/internal/domain"
)

// Aggregator collects per-question results into the submission vectors.
type Aggregator struct {
	total     int
	answers   [domain.QuestionsPerQuiz]int
	timeLefts [domain.QuestionsPerQuiz]int
	recorded  [domain.QuestionsPerQuiz]bool
}

func NewAggregator() *Aggregator {
	a := &Aggregator{}
	for i := range a.answers {
		a.answers[i] = domain.NoAnswer
	}
	return a
}

// Record stores the result for its question slot. Each slot is written once.
func (a *Aggregator) Record(r Result) error {
	i := r.QuestionIndex
	if i < 0 || i >= domain.QuestionsPerQuiz {
		return fmt.Errorf("%w: question index %d", domain.ErrInvalidInput, i)
	}
	if a.recorded[i] {
		return fmt.Errorf("%w: question %d already answered", domain.ErrWrongPhase, i)
	}
	a.recorded[i] = true
	a.answers[i] = r.Selected
	a.timeLefts[i] = r.TimeLeft
	a.total += r.Points
	return nil
}

func (a *Aggregator) Total() int { return a.total }

// Count returns how many questions have a recorded result.
func (a *Aggregator) Count() int {
	n := 0
	for _, ok := range a.recorded {
		if ok {
			n++
		}
	}
	return n
}

// Submission builds the contract payload; every question must be recorded.
func (a *Aggregator) Submission(quizID int64) (domain.ScoreSubmission, error) {
	if a.Count() != domain.QuestionsPerQuiz {
		return domain.ScoreSubmission{}, domain.ErrIncomplete
	}
	return domain.ScoreSubmission{
		QuizID:    quizID,
		Answers:   a.answers,
		TimeLefts: a.timeLefts,
	}, nil
}

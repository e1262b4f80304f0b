package game

import "funquiz-service/internal/domain"

// Result is the outcome of a single answer.
type Result struct {
	QuestionIndex int  `json:"questionIndex"`
	Selected      int  `json:"selected"`
	TimeLeft      int  `json:"timeLeft"`
	Correct       bool `json:"correct"`
	Points        int  `json:"points"`
}

// Evaluate scores one answer. A correct answer earns the base points plus a bonus of up to the
// base points, scaled by the fraction of time left and floored. The contract recomputes the same
// value from the submitted answers and time-lefts, so this must stay integer-exact.
func Evaluate(q domain.Question, selected, timeLeft int) Result {
	if timeLeft < 0 {
		timeLeft = 0
	}
	if timeLeft > q.TimeLimit {
		timeLeft = q.TimeLimit
	}
	res := Result{Selected: selected, TimeLeft: timeLeft}
	if selected == domain.NoAnswer || selected != q.CorrectAnswerIndex {
		return res
	}
	res.Correct = true
	res.Points = q.Points
	if q.TimeLimit > 0 {
		res.Points += q.Points * timeLeft / q.TimeLimit
	}
	return res
}

// Replay recomputes the total score of a submission against quiz content.
func Replay(quiz domain.Quiz, sub domain.ScoreSubmission) (int, error) {
	if len(quiz.Questions) != domain.QuestionsPerQuiz {
		return 0, domain.ErrInvalidQuiz
	}
	total := 0
	for i, q := range quiz.Questions {
		total += Evaluate(q, sub.Answers[i], sub.TimeLefts[i]).Points
	}
	return total, nil
}

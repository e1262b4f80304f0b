package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MaxTitleLength       = 50
	MaxDescriptionLength = 200
	DefaultTimeLimit     = 15
	DefaultPoints        = 100
	etherDecimals        = 18
)

// CreateQuizInput is what a creator submits before the createQuiz transaction is built.
type CreateQuizInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
}

// Validate checks the input locally; invalid input never reaches the contract.
func (in CreateQuizInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: quiz title is required", ErrInvalidInput)
	}
	if len([]rune(in.Title)) > MaxTitleLength {
		return fmt.Errorf("%w: quiz title exceeds %d characters", ErrInvalidInput, MaxTitleLength)
	}
	if strings.TrimSpace(in.Description) == "" {
		return fmt.Errorf("%w: quiz description is required", ErrInvalidInput)
	}
	if len([]rune(in.Description)) > MaxDescriptionLength {
		return fmt.Errorf("%w: quiz description exceeds %d characters", ErrInvalidInput, MaxDescriptionLength)
	}
	if len(in.Questions) != QuestionsPerQuiz {
		return fmt.Errorf("%w: expected %d questions, got %d", ErrInvalidInput, QuestionsPerQuiz, len(in.Questions))
	}
	for i, q := range in.Questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	return nil
}

// Validate checks a single question.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: question text is required", ErrInvalidInput)
	}
	for i, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("%w: option %c is empty", ErrInvalidInput, 'A'+i)
		}
	}
	if q.CorrectAnswerIndex < 0 || q.CorrectAnswerIndex >= OptionsPerQuestion {
		return fmt.Errorf("%w: correct answer index %d out of range", ErrInvalidInput, q.CorrectAnswerIndex)
	}
	if q.TimeLimit <= 0 {
		return fmt.Errorf("%w: time limit must be positive", ErrInvalidInput)
	}
	if q.Points <= 0 {
		return fmt.Errorf("%w: points must be positive", ErrInvalidInput)
	}
	return nil
}

// ParseEther converts a decimal ether amount such as "0.5" into wei. Only positive amounts are accepted.
func ParseEther(raw string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: fee %q is not a number", ErrInvalidInput, raw)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("%w: fee must be greater than zero", ErrInvalidInput)
	}
	wei := d.Shift(etherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("%w: fee %q has more than %d decimals", ErrInvalidInput, raw, etherDecimals)
	}
	return wei.BigInt(), nil
}

// FormatEther renders a wei amount as a decimal ether string.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}

package domain

import (
	"strings"
	"time"
)

const (
	QuestionsPerQuiz   = 10
	OptionsPerQuestion = 4
	// NoAnswer is the sentinel option index recorded when a question times out.
	NoAnswer = -1
)

// Question models an MCQ question with exactly one correct option.
type Question struct {
	Text               string                     `json:"questionText"`
	Options            [OptionsPerQuestion]string `json:"options"`
	CorrectAnswerIndex int                        `json:"correctAnswerIndex"`
	TimeLimit          int                        `json:"timeLimit"` // seconds
	Points             int                        `json:"points"`
}

// Quiz mirrors the quiz record held by the quiz contract. It is immutable once created.
type Quiz struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Creator     string     `json:"creator"`
	Questions   []Question `json:"questions"`
}

// PublicQuestions strips the correct answer so quizzes can be sent to players.
func (q Quiz) PublicQuestions() []PublicQuestion {
	out := make([]PublicQuestion, len(q.Questions))
	for i, question := range q.Questions {
		out[i] = PublicQuestion{
			Text:      question.Text,
			Options:   question.Options,
			TimeLimit: question.TimeLimit,
			Points:    question.Points,
		}
	}
	return out
}

// PublicQuestion is a question without its answer key.
type PublicQuestion struct {
	Text      string                     `json:"questionText"`
	Options   [OptionsPerQuestion]string `json:"options"`
	TimeLimit int                        `json:"timeLimit"`
	Points    int                        `json:"points"`
}

// ScoreSubmission is the payload sent once per play session to the quiz contract.
type ScoreSubmission struct {
	QuizID    int64                 `json:"quizId"`
	Answers   [QuestionsPerQuiz]int `json:"answers"`
	TimeLefts [QuestionsPerQuiz]int `json:"timeLefts"`
}

// LeaderboardEntry is a (player, score) pair read from the contract.
type LeaderboardEntry struct {
	Player string `json:"player"`
	Score  int64  `json:"score"`
}

// Leaderboard captures the ordered scoreboard for a quiz.
type Leaderboard struct {
	QuizID  int64              `json:"quizId"`
	Entries []LeaderboardEntry `json:"entries"`
}

// Wallet is the caller's chain identity. It is passed explicitly instead of living in globals.
type Wallet struct {
	Address   string `json:"address"`
	Connected bool   `json:"connected"`
}

// NewWallet builds a connected wallet for addr, or a disconnected one when addr is empty.
func NewWallet(addr string) Wallet {
	addr = NormalizeAddress(addr)
	return Wallet{Address: addr, Connected: addr != ""}
}

// NormalizeAddress lower-cases a hex address; the indexer keys accounts that way.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// CreatedQuiz is a quiz summary in a player summary.
type CreatedQuiz struct {
	QuizID      int64  `json:"quizId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// CompletedQuiz is a recorded score in a player summary.
type CompletedQuiz struct {
	QuizID int64 `json:"quizId"`
	Score  int64 `json:"score"`
}

// PlayerSummary answers "what has this address done" for community verification.
type PlayerSummary struct {
	Address            string          `json:"address"`
	LastChecked        time.Time       `json:"lastChecked"`
	HasCreatedQuiz     bool            `json:"hasCreatedQuiz"`
	CompletedQuizCount int             `json:"completedQuizCount"`
	CreatedQuizzes     []CreatedQuiz   `json:"createdQuizzes"`
	CompletedQuizzes   []CompletedQuiz `json:"completedQuizzes"`
}

// Summarize fills the derived fields of a summary.
func Summarize(addr string, created []CreatedQuiz, completed []CompletedQuiz, now time.Time) PlayerSummary {
	if created == nil {
		created = []CreatedQuiz{}
	}
	if completed == nil {
		completed = []CompletedQuiz{}
	}
	return PlayerSummary{
		Address:            NormalizeAddress(addr),
		LastChecked:        now.UTC(),
		HasCreatedQuiz:     len(created) > 0,
		CompletedQuizCount: len(completed),
		CreatedQuizzes:     created,
		CompletedQuizzes:   completed,
	}
}

// CardDetails are the user-entered fields printed on an ID card.
type CardDetails struct {
	Name      string `json:"name"`
	Residence string `json:"residence"`
	Rank      string `json:"somniaRank"`
	FavGame   string `json:"favGame"`
	RubyScore string `json:"rubyScore"`
	KaitoRank string `json:"kaitoRank"`
}

// Attributes lists the non-empty details as NFT traits, in a fixed order.
func (d CardDetails) Attributes() []CardAttribute {
	fields := []CardAttribute{
		{TraitType: "name", Value: d.Name},
		{TraitType: "residence", Value: d.Residence},
		{TraitType: "somniaRank", Value: d.Rank},
		{TraitType: "favGame", Value: d.FavGame},
		{TraitType: "rubyScore", Value: d.RubyScore},
		{TraitType: "kaitoRank", Value: d.KaitoRank},
	}
	out := make([]CardAttribute, 0, len(fields))
	for _, f := range fields {
		if f.Value != "" {
			out = append(out, f)
		}
	}
	return out
}

// CardAttribute is one ERC-721 metadata trait.
type CardAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// CardMetadata is the JSON document pinned to IPFS and referenced by the minted token.
type CardMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Attributes  []CardAttribute `json:"attributes"`
}

// IPFSURI formats a content hash the way token metadata references it.
func IPFSURI(hash string) string {
	return "ipfs://" + hash
}

package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"funquiz-service/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	owner  = "0x00000000000000000000000000000000000000aa"
	player = "0x00000000000000000000000000000000000000bb"
)

func quizInput() domain.CreateQuizInput {
	questions := make([]domain.Question, domain.QuestionsPerQuiz)
	for i := range questions {
		questions[i] = domain.Question{
			Text:               "Question",
			Options:            [domain.OptionsPerQuestion]string{"a", "b", "c", "d"},
			CorrectAnswerIndex: 1,
			TimeLimit:          10,
			Points:             100,
		}
	}
	return domain.CreateQuizInput{Title: "Chain", Description: "on chain", Questions: questions}
}

func TestDecodeQuizFromABI(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(quizABIJSON))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	method, ok := parsed.Methods["getQuizById"]
	if !ok {
		t.Fatalf("getQuizById missing from abi")
	}

	in := quizInput()
	questions, err := questionTuples(in.Questions)
	if err != nil {
		t.Fatalf("questionTuples: %v", err)
	}
	raw := quizTuple{
		Id:          big.NewInt(3),
		Creator:     common.HexToAddress(owner),
		Title:       in.Title,
		Description: in.Description,
		Questions:   questions,
	}
	packed, err := method.Outputs.Pack(raw)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	out, err := method.Outputs.Unpack(packed)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}

	quiz, err := decodeQuiz(3, out)
	if err != nil {
		t.Fatalf("decodeQuiz: %v", err)
	}
	if quiz.ID != 3 || quiz.Title != "Chain" || quiz.Creator != owner {
		t.Fatalf("unexpected quiz header %+v", quiz)
	}
	if len(quiz.Questions) != domain.QuestionsPerQuiz {
		t.Fatalf("expected 10 questions, got %d", len(quiz.Questions))
	}
	if quiz.Questions[4] != in.Questions[4] {
		t.Fatalf("question mismatch: %+v vs %+v", quiz.Questions[4], in.Questions[4])
	}
}

func TestDecodeQuizZeroCreatorIsNotFound(t *testing.T) {
	parsed, _ := abi.JSON(strings.NewReader(quizABIJSON))
	method := parsed.Methods["getQuizById"]
	questions, _ := questionTuples(quizInput().Questions)
	packed, err := method.Outputs.Pack(quizTuple{Id: big.NewInt(0), Questions: questions})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	out, err := method.Outputs.Unpack(packed)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if _, err := decodeQuiz(9, out); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestSubmitAnswersPacksNoAnswer(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(quizABIJSON))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	sub := domain.ScoreSubmission{QuizID: 1}
	for i := range sub.Answers {
		sub.Answers[i] = domain.NoAnswer
	}
	answers, timeLefts := submissionArgs(sub)
	if answers[0] != -1 {
		t.Fatalf("expected -1 sentinel, got %d", answers[0])
	}
	if _, err := parsed.Pack("submitAnswers", big.NewInt(1), answers, timeLefts); err != nil {
		t.Fatalf("pack submitAnswers: %v", err)
	}
}

func TestCardABIParses(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(cardABIJSON))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	for _, name := range []string{"safeMint", "mintFee", "setMintFee", "withdraw", "owner"} {
		if _, ok := parsed.Methods[name]; !ok {
			t.Fatalf("method %s missing", name)
		}
	}
}

func TestSimulatedQuizPayAndSubmit(t *testing.T) {
	ctx := context.Background()
	fee := big.NewInt(1000)
	sim := NewSimulatedQuiz(owner, big.NewInt(5000), fee)
	id := sim.Seed(owner, quizInput())
	if id != 1 {
		t.Fatalf("expected first quiz id 1, got %d", id)
	}

	tx, err := sim.PayToPlay(ctx, player, id, fee)
	if err != nil {
		t.Fatalf("PayToPlay: %v", err)
	}
	if paid, _ := sim.HasPaidToPlay(ctx, id, player); paid {
		t.Fatalf("payment should not apply before confirmation")
	}
	if err := tx.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if paid, _ := sim.HasPaidToPlay(ctx, id, player); !paid {
		t.Fatalf("expected paid after confirmation")
	}

	again, _ := sim.PayToPlay(ctx, player, id, fee)
	if err := again.Wait(ctx); !errors.Is(err, domain.ErrCallFailed) {
		t.Fatalf("expected double pay to revert, got %v", err)
	}

	sub := domain.ScoreSubmission{QuizID: id}
	for i := range sub.Answers {
		sub.Answers[i] = 1
		sub.TimeLefts[i] = 5
	}
	tx, _ = sim.SubmitAnswers(ctx, player, sub)
	if err := tx.Wait(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	score, _ := sim.PlayerScore(ctx, id, player)
	if score != 1500 {
		t.Fatalf("expected 10 x 150, got %d", score)
	}
	players, scores, _ := sim.Leaderboard(ctx, id)
	if len(players) != 1 || players[0] != player || scores[0] != 1500 {
		t.Fatalf("unexpected leaderboard %v %v", players, scores)
	}
	balance, _ := sim.ContractBalance(ctx)
	if balance.Cmp(fee) != 0 {
		t.Fatalf("expected balance %s, got %s", fee, balance)
	}
}

func TestSimulatedQuizSubmitWithoutPaymentReverts(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulatedQuiz(owner, big.NewInt(1), big.NewInt(1))
	id := sim.Seed(owner, quizInput())
	tx, err := sim.SubmitAnswers(ctx, player, domain.ScoreSubmission{QuizID: id})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := tx.Wait(ctx); !errors.Is(err, domain.ErrCallFailed) {
		t.Fatalf("expected revert, got %v", err)
	}
}

func TestSimulatedRejectedSigner(t *testing.T) {
	sim := NewSimulatedQuiz(owner, big.NewInt(1), big.NewInt(1))
	sim.RejectSigner(player)
	if _, err := sim.PayToPlay(context.Background(), player, 1, big.NewInt(1)); !errors.Is(err, domain.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestSimulatedOwnerOnly(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulatedQuiz(owner, big.NewInt(1), big.NewInt(1))
	tx, _ := sim.SetPlayQuizFee(ctx, player, big.NewInt(99))
	if err := tx.Wait(ctx); !errors.Is(err, domain.ErrCallFailed) {
		t.Fatalf("expected non-owner revert, got %v", err)
	}
	tx, _ = sim.SetPlayQuizFee(ctx, owner, big.NewInt(99))
	if err := tx.Wait(ctx); err != nil {
		t.Fatalf("owner set fee: %v", err)
	}
	if fee, _ := sim.PlayQuizFee(ctx); fee.Int64() != 99 {
		t.Fatalf("expected fee 99, got %s", fee)
	}
}

func TestSimulatedCardMint(t *testing.T) {
	ctx := context.Background()
	card := NewSimulatedCard(owner, big.NewInt(10))
	tx, err := card.SafeMint(ctx, player, player, "ipfs://meta", big.NewInt(10))
	if err != nil {
		t.Fatalf("SafeMint: %v", err)
	}
	if err := tx.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	tokens := card.Tokens()
	if len(tokens) != 1 || tokens[0].URI != "ipfs://meta" || tokens[0].Owner != player {
		t.Fatalf("unexpected tokens %+v", tokens)
	}

	low, _ := card.SafeMint(ctx, player, player, "ipfs://x", big.NewInt(1))
	if err := low.Wait(ctx); !errors.Is(err, domain.ErrCallFailed) {
		t.Fatalf("expected insufficient fee revert, got %v", err)
	}
}

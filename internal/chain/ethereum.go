package chain

import (
	"context"
	"crypto/ecdsa"
	_ "embed"
	"fmt"
	"math/big"
	"strings"

	"funquiz-service/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

//go:embed abi/funquiz.json
var quizABIJSON string

//go:embed abi/funcard.json
var cardABIJSON string

// Backend is a JSON-RPC connection plus the key that signs transactions for this service.
type Backend struct {
	client  *ethclient.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address
}

// Dial connects to rpcURL. privateKeyHex may be empty for a read-only backend.
func Dial(ctx context.Context, rpcURL string, chainID int64, privateKeyHex string) (*Backend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	b := &Backend{client: client, chainID: big.NewInt(chainID)}
	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		b.key = key
		b.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return b, nil
}

func (b *Backend) Close() { b.client.Close() }

// SignerAddress is the lower-cased address of the signing key, or "" when read-only.
func (b *Backend) SignerAddress() string {
	if b.key == nil {
		return ""
	}
	return domain.NormalizeAddress(b.from.Hex())
}

func (b *Backend) transactor(ctx context.Context, from string, value *big.Int) (*bind.TransactOpts, error) {
	if b.key == nil {
		return nil, fmt.Errorf("%w: no signing key configured", domain.ErrRejected)
	}
	if from != "" && !strings.EqualFold(from, b.from.Hex()) {
		return nil, fmt.Errorf("%w: signer %s cannot sign for %s", domain.ErrRejected, b.SignerAddress(), from)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(b.key, b.chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRejected, err)
	}
	opts.Context = ctx
	opts.Value = value
	return opts, nil
}

type boundContract struct {
	backend *Backend
	address common.Address
	bound   *bind.BoundContract
}

func newBoundContract(backend *Backend, address, abiJSON string) (*boundContract, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid contract address %q", address)
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	addr := common.HexToAddress(address)
	return &boundContract{
		backend: backend,
		address: addr,
		bound:   bind.NewBoundContract(addr, parsed, backend.client, backend.client, backend.client),
	}, nil
}

func (c *boundContract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCallFailed, method, err)
	}
	return out, nil
}

func (c *boundContract) callBig(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *boundContract) callAddress(ctx context.Context, method string) (string, error) {
	out, err := c.call(ctx, method)
	if err != nil {
		return "", err
	}
	addr := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	return domain.NormalizeAddress(addr.Hex()), nil
}

func (c *boundContract) transact(ctx context.Context, from string, value *big.Int, method string, args ...interface{}) (Tx, error) {
	opts, err := c.backend.transactor(ctx, from, value)
	if err != nil {
		return nil, err
	}
	tx, err := c.bound.Transact(opts, method, args...)
	if err != nil {
		return nil, classifySendError(method, err)
	}
	return &ethTx{tx: tx, client: c.backend.client}, nil
}

func classifySendError(method string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rejected") || strings.Contains(msg, "denied") {
		return fmt.Errorf("%w: %s: %v", domain.ErrRejected, method, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrCallFailed, method, err)
}

type ethTx struct {
	tx     *types.Transaction
	client *ethclient.Client
}

func (t *ethTx) Hash() string { return t.tx.Hash().Hex() }

func (t *ethTx) Wait(ctx context.Context) error {
	receipt, err := bind.WaitMined(ctx, t.client, t.tx)
	if err != nil {
		return fmt.Errorf("%w: wait %s: %v", domain.ErrCallFailed, t.Hash(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: transaction %s reverted", domain.ErrCallFailed, t.Hash())
	}
	return nil
}

// questionTuple and quizTuple mirror the ABI tuples field by field, tags included, so decoded
// values convert into them.
type questionTuple struct {
	QuestionText       string    `json:"questionText"`
	Options            [4]string `json:"options"`
	CorrectAnswerIndex uint8     `json:"correctAnswerIndex"`
	TimeLimit          *big.Int  `json:"timeLimit"`
	Points             *big.Int  `json:"points"`
}

type quizTuple struct {
	Id          *big.Int          `json:"id"`
	Creator     common.Address    `json:"creator"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Questions   [10]questionTuple `json:"questions"`
}

func (q quizTuple) toDomain() domain.Quiz {
	quiz := domain.Quiz{
		ID:          q.Id.Int64(),
		Title:       q.Title,
		Description: q.Description,
		Creator:     domain.NormalizeAddress(q.Creator.Hex()),
		Questions:   make([]domain.Question, len(q.Questions)),
	}
	for i, t := range q.Questions {
		quiz.Questions[i] = domain.Question{
			Text:               t.QuestionText,
			Options:            t.Options,
			CorrectAnswerIndex: int(t.CorrectAnswerIndex),
			TimeLimit:          int(bigInt64(t.TimeLimit)),
			Points:             int(bigInt64(t.Points)),
		}
	}
	return quiz
}

func questionTuples(questions []domain.Question) ([10]questionTuple, error) {
	var out [10]questionTuple
	if len(questions) != len(out) {
		return out, domain.ErrInvalidQuiz
	}
	for i, q := range questions {
		out[i] = questionTuple{
			QuestionText:       q.Text,
			Options:            q.Options,
			CorrectAnswerIndex: uint8(q.CorrectAnswerIndex),
			TimeLimit:          big.NewInt(int64(q.TimeLimit)),
			Points:             big.NewInt(int64(q.Points)),
		}
	}
	return out, nil
}

func bigInt64(v *big.Int) int64 {
	if v == nil {
		return 0
	}
	return v.Int64()
}

// EthQuizContract talks to the deployed quiz contract.
type EthQuizContract struct {
	*boundContract
}

func NewEthQuizContract(backend *Backend, address string) (*EthQuizContract, error) {
	bc, err := newBoundContract(backend, address, quizABIJSON)
	if err != nil {
		return nil, err
	}
	return &EthQuizContract{boundContract: bc}, nil
}

func (c *EthQuizContract) GetQuizByID(ctx context.Context, quizID int64) (domain.Quiz, error) {
	out, err := c.call(ctx, "getQuizById", big.NewInt(quizID))
	if err != nil {
		return domain.Quiz{}, err
	}
	return decodeQuiz(quizID, out)
}

func decodeQuiz(quizID int64, out []interface{}) (domain.Quiz, error) {
	raw := *abi.ConvertType(out[0], new(quizTuple)).(*quizTuple)
	if raw.Creator == (common.Address{}) {
		return domain.Quiz{}, fmt.Errorf("quiz %d: %w", quizID, domain.ErrQuizNotFound)
	}
	return raw.toDomain(), nil
}

func (c *EthQuizContract) PlayQuizFee(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "playQuizFee")
}

func (c *EthQuizContract) CreateQuizFee(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "createQuizFee")
}

func (c *EthQuizContract) HasPaidToPlay(ctx context.Context, quizID int64, player string) (bool, error) {
	out, err := c.call(ctx, "hasPaidToPlay", big.NewInt(quizID), common.HexToAddress(player))
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (c *EthQuizContract) PlayerScore(ctx context.Context, quizID int64, player string) (int64, error) {
	score, err := c.callBig(ctx, "getPlayerScore", big.NewInt(quizID), common.HexToAddress(player))
	if err != nil {
		return 0, err
	}
	return score.Int64(), nil
}

func (c *EthQuizContract) Leaderboard(ctx context.Context, quizID int64) ([]string, []int64, error) {
	out, err := c.call(ctx, "getLeaderboardData", big.NewInt(quizID))
	if err != nil {
		return nil, nil, err
	}
	addrs := *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address)
	raw := *abi.ConvertType(out[1], new([]*big.Int)).(*[]*big.Int)
	players := make([]string, len(addrs))
	for i, a := range addrs {
		players[i] = domain.NormalizeAddress(a.Hex())
	}
	scores := make([]int64, len(raw))
	for i, s := range raw {
		scores[i] = bigInt64(s)
	}
	return players, scores, nil
}

func (c *EthQuizContract) QuizCounter(ctx context.Context) (int64, error) {
	n, err := c.callBig(ctx, "quizCounter")
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}

func (c *EthQuizContract) ContractBalance(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "getContractBalance")
}

func (c *EthQuizContract) Owner(ctx context.Context) (string, error) {
	return c.callAddress(ctx, "owner")
}

func (c *EthQuizContract) CreateQuiz(ctx context.Context, from string, in domain.CreateQuizInput, fee *big.Int) (Tx, error) {
	questions, err := questionTuples(in.Questions)
	if err != nil {
		return nil, err
	}
	return c.transact(ctx, from, fee, "createQuiz", in.Title, in.Description, questions)
}

func (c *EthQuizContract) PayToPlay(ctx context.Context, from string, quizID int64, fee *big.Int) (Tx, error) {
	return c.transact(ctx, from, fee, "payToPlay", big.NewInt(quizID))
}

func (c *EthQuizContract) SubmitAnswers(ctx context.Context, from string, sub domain.ScoreSubmission) (Tx, error) {
	answers, timeLefts := submissionArgs(sub)
	return c.transact(ctx, from, nil, "submitAnswers", big.NewInt(sub.QuizID), answers, timeLefts)
}

func submissionArgs(sub domain.ScoreSubmission) ([10]int8, [10]*big.Int) {
	var answers [10]int8
	var timeLefts [10]*big.Int
	for i := range sub.Answers {
		answers[i] = int8(sub.Answers[i])
		timeLefts[i] = big.NewInt(int64(sub.TimeLefts[i]))
	}
	return answers, timeLefts
}

func (c *EthQuizContract) SetCreateQuizFee(ctx context.Context, from string, fee *big.Int) (Tx, error) {
	return c.transact(ctx, from, nil, "setCreateQuizFee", fee)
}

func (c *EthQuizContract) SetPlayQuizFee(ctx context.Context, from string, fee *big.Int) (Tx, error) {
	return c.transact(ctx, from, nil, "setPlayQuizFee", fee)
}

func (c *EthQuizContract) Withdraw(ctx context.Context, from string) (Tx, error) {
	return c.transact(ctx, from, nil, "withdraw")
}

// EthCardContract talks to the deployed ID card contract.
type EthCardContract struct {
	*boundContract
}

func NewEthCardContract(backend *Backend, address string) (*EthCardContract, error) {
	bc, err := newBoundContract(backend, address, cardABIJSON)
	if err != nil {
		return nil, err
	}
	return &EthCardContract{boundContract: bc}, nil
}

func (c *EthCardContract) MintFee(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "mintFee")
}

func (c *EthCardContract) ContractBalance(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "getContractBalance")
}

func (c *EthCardContract) Owner(ctx context.Context) (string, error) {
	return c.callAddress(ctx, "owner")
}

func (c *EthCardContract) SafeMint(ctx context.Context, from, to, uri string, fee *big.Int) (Tx, error) {
	return c.transact(ctx, from, fee, "safeMint", common.HexToAddress(to), uri)
}

func (c *EthCardContract) SetMintFee(ctx context.Context, from string, fee *big.Int) (Tx, error) {
	return c.transact(ctx, from, nil, "setMintFee", fee)
}

func (c *EthCardContract) Withdraw(ctx context.Context, from string) (Tx, error) {
	return c.transact(ctx, from, nil, "withdraw")
}

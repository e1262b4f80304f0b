package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"funquiz-service/internal/chain"
	"funquiz-service/internal/domain"
	"funquiz-service/internal/txn"
	"github.com/google/uuid"
)

// DefaultCardTTL is how long a generated card waits to be minted.
const DefaultCardTTL = time.Hour

// Renderer turns card details into a PNG.
type Renderer interface {
	Render(ctx context.Context, details domain.CardDetails, profileImage string) ([]byte, error)
}

// Pinner stores content on IPFS and returns its content hash.
type Pinner interface {
	PinFile(ctx context.Context, name string, data []byte) (string, error)
	PinJSON(ctx context.Context, name string, v any) (string, error)
}

// CardDraft is a rendered card that has not been minted yet.
type CardDraft struct {
	ID        string             `json:"id"`
	Owner     string             `json:"owner"`
	Details   domain.CardDetails `json:"details"`
	Image     []byte             `json:"image,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

// CardStats is the admin view of the card contract.
type CardStats struct {
	Owner      string `json:"owner"`
	Balance    string `json:"balance"`
	BalanceWei string `json:"balanceWei"`
	MintFee    string `json:"mintFee"`
	MintFeeWei string `json:"mintFeeWei"`
}

// CardService renders, pins and mints ID cards.
type CardService struct {
	log      *slog.Logger
	reader   *CachedReader
	card     chain.CardContract
	tracker  *txn.Tracker
	renderer Renderer
	pinner   Pinner
	drafts   Cache
	ttl      time.Duration
	now      func() time.Time
}

func NewCardService(log *slog.Logger, reader *CachedReader, card chain.CardContract, tracker *txn.Tracker, renderer Renderer, pinner Pinner, drafts Cache, ttl time.Duration) *CardService {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultCardTTL
	}
	return &CardService{
		log:      log,
		reader:   reader,
		card:     card,
		tracker:  tracker,
		renderer: renderer,
		pinner:   pinner,
		drafts:   drafts,
		ttl:      ttl,
		now:      time.Now,
	}
}

func draftKey(id string) string { return "card:" + id }

// Generate renders a card for the wallet and keeps it until it is minted or expires.
func (s *CardService) Generate(ctx context.Context, wallet domain.Wallet, details domain.CardDetails, profileImage string) (CardDraft, error) {
	if !wallet.Connected {
		return CardDraft{}, domain.ErrWalletDisconnected
	}
	if strings.TrimSpace(details.Name) == "" {
		return CardDraft{}, fmt.Errorf("%w: card name is required", domain.ErrInvalidInput)
	}
	image, err := s.renderer.Render(ctx, details, profileImage)
	if err != nil {
		return CardDraft{}, err
	}
	draft := CardDraft{
		ID:        uuid.NewString(),
		Owner:     wallet.Address,
		Details:   details,
		Image:     image,
		CreatedAt: s.now().UTC(),
	}
	raw, err := json.Marshal(draft)
	if err != nil {
		return CardDraft{}, fmt.Errorf("encode card: %w", err)
	}
	if err := s.drafts.Set(ctx, draftKey(draft.ID), raw, s.ttl); err != nil {
		return CardDraft{}, fmt.Errorf("store card: %w", err)
	}
	s.log.Info("card generated", "card", draft.ID, "player", wallet.Address, "bytes", len(image))
	return draft, nil
}

// Draft returns a generated card. A card that was never generated or has expired is ErrNotReady.
func (s *CardService) Draft(ctx context.Context, id string) (CardDraft, error) {
	raw, ok, err := s.drafts.Get(ctx, draftKey(id))
	if err != nil {
		return CardDraft{}, fmt.Errorf("load card: %w", err)
	}
	if !ok {
		return CardDraft{}, fmt.Errorf("card %s: %w", id, domain.ErrNotReady)
	}
	var draft CardDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return CardDraft{}, fmt.Errorf("decode card: %w", err)
	}
	if len(draft.Image) == 0 {
		return CardDraft{}, fmt.Errorf("card %s: %w", id, domain.ErrNotReady)
	}
	return draft, nil
}

// Mint pins the card image and its metadata, then sends safeMint with the current mint fee.
func (s *CardService) Mint(ctx context.Context, wallet domain.Wallet, id string) (*txn.Handle, error) {
	if !wallet.Connected {
		return nil, domain.ErrWalletDisconnected
	}
	draft, err := s.Draft(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.Owner != wallet.Address {
		return nil, fmt.Errorf("%w: card belongs to another wallet", domain.ErrInvalidInput)
	}
	fee, err := s.reader.MintFee(ctx)
	if err != nil {
		return nil, err
	}
	uri, err := s.pin(ctx, draft)
	if err != nil {
		return nil, err
	}
	return s.tracker.Submit(ctx, txn.Operation{
		Action: "mint:" + wallet.Address,
		From:   wallet.Address,
		Send: func(ctx context.Context) (txn.Transaction, error) {
			return s.card.SafeMint(ctx, wallet.Address, wallet.Address, uri, fee)
		},
		Invalidates: []string{KeyCardBalance},
		OnSettled: func(st txn.Status) {
			if st.IsConfirmed() {
				_ = s.drafts.Delete(context.Background(), draftKey(id))
			}
		},
	})
}

func (s *CardService) pin(ctx context.Context, draft CardDraft) (string, error) {
	fileName := "FunCard_" + strings.Join(strings.Fields(draft.Details.Name), "_") + ".png"
	imageHash, err := s.pinner.PinFile(ctx, fileName, draft.Image)
	if err != nil {
		return "", err
	}
	meta := domain.CardMetadata{
		Name:        "FunCard - " + draft.Details.Name,
		Description: fmt.Sprintf("A unique Somnia Community ID Card for %s.", draft.Details.Name),
		Image:       domain.IPFSURI(imageHash),
		Attributes:  draft.Details.Attributes(),
	}
	metaHash, err := s.pinner.PinJSON(ctx, meta.Name, meta)
	if err != nil {
		return "", err
	}
	s.log.Info("card pinned", "card", draft.ID, "image", imageHash, "metadata", metaHash)
	return domain.IPFSURI(metaHash), nil
}

func (s *CardService) Stats(ctx context.Context) (CardStats, error) {
	owner, err := s.reader.CardOwner(ctx)
	if err != nil {
		return CardStats{}, err
	}
	balance, err := s.reader.CardBalance(ctx)
	if err != nil {
		return CardStats{}, err
	}
	fee, err := s.reader.MintFee(ctx)
	if err != nil {
		return CardStats{}, err
	}
	return CardStats{
		Owner:      owner,
		Balance:    domain.FormatEther(balance),
		BalanceWei: balance.String(),
		MintFee:    domain.FormatEther(fee),
		MintFeeWei: fee.String(),
	}, nil
}

// SetMintFee changes the mint fee; the amount is a decimal ether string.
func (s *CardService) SetMintFee(ctx context.Context, wallet domain.Wallet, amount string) (*txn.Handle, error) {
	if err := requireOwner(ctx, wallet, s.reader.CardOwner); err != nil {
		return nil, err
	}
	fee, err := domain.ParseEther(amount)
	if err != nil {
		return nil, err
	}
	return s.submitOwner(ctx, wallet.Address, "admin:card:mint-fee", KeyMintFee, func(ctx context.Context) (chain.Tx, error) {
		return s.card.SetMintFee(ctx, wallet.Address, fee)
	})
}

func (s *CardService) Withdraw(ctx context.Context, wallet domain.Wallet) (*txn.Handle, error) {
	if err := requireOwner(ctx, wallet, s.reader.CardOwner); err != nil {
		return nil, err
	}
	return s.submitOwner(ctx, wallet.Address, "admin:card:withdraw", KeyCardBalance, func(ctx context.Context) (chain.Tx, error) {
		return s.card.Withdraw(ctx, wallet.Address)
	})
}

func (s *CardService) submitOwner(ctx context.Context, from, action, key string, send func(context.Context) (chain.Tx, error)) (*txn.Handle, error) {
	return s.tracker.Submit(ctx, txn.Operation{
		Action: action,
		From:   from,
		Send: func(ctx context.Context) (txn.Transaction, error) {
			return send(ctx)
		},
		Invalidates: []string{key},
	})
}

package postgres

import (
	"context"
	"fmt"

	"funquiz-service/internal/domain"
	"funquiz-service/internal/txn"
	"github.com/jackc/pgx/v4/pgxpool"
)

// DefaultListLimit caps ListByAddress when no limit is given.
const DefaultListLimit = 50

// Ledger keeps every settled transaction in Postgres.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) Record(ctx context.Context, st txn.Status) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO transactions (action, sender, state, tx_hash, error, settled_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		st.Action, domain.NormalizeAddress(st.From), string(st.State), st.Hash, st.Error, st.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}

// ListByAddress returns the transactions sent by address, newest first.
func (l *Ledger) ListByAddress(ctx context.Context, address string, limit int) ([]txn.Status, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := l.pool.Query(ctx,
		`SELECT action, sender, state, tx_hash, error, settled_at FROM transactions WHERE sender=$1 ORDER BY settled_at DESC, id DESC LIMIT $2`,
		domain.NormalizeAddress(address), limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []txn.Status{}
	for rows.Next() {
		var st txn.Status
		var state string
		if err := rows.Scan(&st.Action, &st.From, &state, &st.Hash, &st.Error, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		st.State = txn.State(state)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

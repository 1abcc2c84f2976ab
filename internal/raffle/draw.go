package raffle

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"raffle-ledger/internal/ledger"
)

// Source yields uniformly distributed integers in [0, n).
type Source interface {
	Int63n(n int64) (int64, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(n int64) (int64, error)

func (f SourceFunc) Int63n(n int64) (int64, error) { return f(n) }

type cryptoSource struct{}

// CryptoSource draws from crypto/rand.
func CryptoSource() Source { return cryptoSource{} }

func (cryptoSource) Int63n(n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("random bound must be > 0, got %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return v.Int64(), nil
}

// DrawResult is the outcome of one draw.
type DrawResult struct {
	ParticipantID string    `json:"id"`
	EntryID       uint64    `json:"entry_id,omitempty"`
	TotalChances  int64     `json:"total"`
	DrawnAt       time.Time `json:"drawn_at"`
}

// DrawEngine picks one chance uniformly over all ledger rows. Participants
// with more rows win proportionally more often; no aggregate is consulted.
// Draws are read-only and independent of each other.
type DrawEngine struct {
	ledger ledger.Ledger
	source Source
	now    func() time.Time
}

func NewDrawEngine(l ledger.Ledger, source Source, now func() time.Time) *DrawEngine {
	if source == nil {
		source = CryptoSource()
	}
	if now == nil {
		now = time.Now
	}
	return &DrawEngine{ledger: l, source: source, now: now}
}

// Draw returns ledger.ErrEmptyLedger when there is nothing to draw from.
func (e *DrawEngine) Draw(ctx context.Context) (DrawResult, error) {
	chance, total, err := e.ledger.ChanceAt(ctx, e.source.Int63n)
	if err != nil {
		return DrawResult{}, err
	}
	return DrawResult{
		ParticipantID: chance.ParticipantID,
		EntryID:       chance.EntryID,
		TotalChances:  total,
		DrawnAt:       e.now(),
	}, nil
}

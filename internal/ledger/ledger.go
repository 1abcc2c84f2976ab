// Package ledger stores raffle chances. Every chance is one row; the weighted
// store allows many rows per identifier, the unique store at most one.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrDuplicateIdentifier = errors.New("identifier already registered")
	ErrNotFound            = errors.New("identifier has no chances")
	ErrEmptyLedger         = errors.New("ledger is empty")
	// ErrBadPick marks a draw whose random source failed or returned an
	// offset outside the ledger. It is not a storage failure.
	ErrBadPick = errors.New("draw pick failed")
	// ErrStorage marks failures of the underlying database. Callers may retry.
	ErrStorage = errors.New("ledger storage failure")
)

// Mode selects the ledger variant.
type Mode string

const (
	ModeWeighted Mode = "weighted"
	ModeUnique   Mode = "unique"
)

// ParseMode accepts "weighted" or "unique" in any casing.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeWeighted, ModeUnique:
		return m, nil
	default:
		return "", fmt.Errorf("unknown ledger mode %q", s)
	}
}

// Tally is the number of chances held by one identifier.
type Tally struct {
	ParticipantID string `json:"id" gorm:"column:participant_id"`
	Chances       int64  `json:"chances" gorm:"column:chances"`
}

// Chance is a single ledger row as seen by readers.
type Chance struct {
	EntryID       uint64    `json:"entry_id,omitempty"`
	ParticipantID string    `json:"participant_id"`
	ChanceValue   int64     `json:"chance_value"`
	Batch         string    `json:"batch,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Batch describes the rows written by one BulkInsertChances call.
type Batch struct {
	ID            string
	ParticipantID string
	Chances       int64
	ChanceValue   int64
	CreatedAt     time.Time
}

// PickFunc returns an offset in [0, total).
type PickFunc func(total int64) (int64, error)

// Ledger is the chance store shared by both raffle variants.
type Ledger interface {
	Mode() Mode

	// BulkInsertChances inserts chanceCount rows for participantID atomically.
	BulkInsertChances(ctx context.Context, participantID string, chanceCount, chanceValue int64, now time.Time) (Batch, error)
	// DeleteOneChance removes the most recently inserted row for participantID.
	DeleteOneChance(ctx context.Context, participantID string) error
	DeleteAllForIdentifier(ctx context.Context, participantID string) (int64, error)
	ClearAll(ctx context.Context) error

	TotalChances(ctx context.Context) (int64, error)
	SummaryByIdentifier(ctx context.Context) ([]Tally, error)
	// ChanceAt counts the rows and returns the one at the offset chosen by
	// pick, both inside a single read transaction.
	ChanceAt(ctx context.Context, pick PickFunc) (Chance, int64, error)

	Snapshot(ctx context.Context) ([]Chance, error)
	Replace(ctx context.Context, chances []Chance) error
}

// Options tune the stores.
type Options struct {
	// InsertBatchSize is the number of rows per INSERT statement.
	InsertBatchSize int
}

const defaultInsertBatchSize = 500

// New builds the ledger for mode on top of db.
func New(db *gorm.DB, mode Mode, opts Options) (Ledger, error) {
	if opts.InsertBatchSize <= 0 {
		opts.InsertBatchSize = defaultInsertBatchSize
	}
	switch mode {
	case ModeWeighted:
		return NewWeightedStore(db, opts), nil
	case ModeUnique:
		return NewUniqueStore(db, opts), nil
	default:
		return nil, fmt.Errorf("unknown ledger mode %q", mode)
	}
}

func storageErr(op string, err error) error {
	if err == nil || errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("ledger %s: %w: %w", op, ErrStorage, err)
}

// txErr passes ledger sentinels through untouched and wraps everything else.
func txErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrEmptyLedger), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicateIdentifier), errors.Is(err, ErrBadPick),
		errors.Is(err, ErrStorage):
		return err
	default:
		return storageErr(op, err)
	}
}

// pickOffset asks pick for an offset and checks it lies in [0, total).
func pickOffset(pick PickFunc, total int64) (int64, error) {
	offset, err := pick(total)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBadPick, err)
	}
	if offset < 0 || offset >= total {
		return 0, fmt.Errorf("%w: offset %d outside [0, %d)", ErrBadPick, offset, total)
	}
	return offset, nil
}

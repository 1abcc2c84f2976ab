// Package raffle ties validation, the chance ledger, the draw engine and the
// summary view into the operations exposed to the HTTP layer and the CLI.
package raffle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raffle-ledger/internal/ledger"
	"raffle-ledger/internal/metrics"
	"raffle-ledger/internal/util"

	"github.com/google/logger"
)

// ErrModeMismatch is returned when restoring a snapshot taken in another mode.
var ErrModeMismatch = errors.New("snapshot mode does not match ledger mode")

// Rules convert contributions into chances for the weighted ledger.
type Rules struct {
	UnitSize             int64
	MaxChancesPerRequest int64
}

// Grant describes the chances added by one registration.
type Grant struct {
	ParticipantID string    `json:"id"`
	Chances       int64     `json:"chances"`
	Amount        int64     `json:"amount,omitempty"`
	ChanceValue   int64     `json:"chance_value,omitempty"`
	Batch         string    `json:"batch,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Service struct {
	ledger ledger.Ledger
	rules  Rules
	draws  *DrawEngine
	view   *SummaryView
	source Source
	now    func() time.Time
}

type Option func(*Service)

// WithSource replaces the crypto/rand draw source.
func WithSource(src Source) Option {
	return func(s *Service) { s.source = src }
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(l ledger.Ledger, rules Rules, opts ...Option) *Service {
	s := &Service{
		ledger: l,
		rules:  rules,
		source: CryptoSource(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.draws = NewDrawEngine(l, s.source, s.now)
	s.view = NewSummaryView(l, rules.UnitSize)
	return s
}

func (s *Service) Mode() ledger.Mode { return s.ledger.Mode() }

func (s *Service) Rules() Rules { return s.rules }

// Register validates the identifier and, in weighted mode, converts amount
// into chances before touching the ledger. Unique mode ignores amount.
func (s *Service) Register(ctx context.Context, rawID string, amount *int64) (Grant, error) {
	grant, err := s.register(ctx, rawID, amount)
	metrics.Observe("register", outcome(err))
	if err != nil {
		logFailure("register", rawID, err)
		return Grant{}, err
	}
	metrics.ChancesGranted.Add(float64(grant.Chances))
	logger.Infof("raffle: granted %d chance(s) to %s", grant.Chances, grant.ParticipantID)
	return grant, nil
}

func (s *Service) register(ctx context.Context, rawID string, amount *int64) (Grant, error) {
	id, err := util.ValidateIdentifier(rawID)
	if err != nil {
		return Grant{}, err
	}

	chances, value := int64(1), int64(0)
	if s.ledger.Mode() == ledger.ModeWeighted {
		if amount == nil {
			return Grant{}, fmt.Errorf("%w: amount is required", util.ErrInvalidAmount)
		}
		chances, err = util.ContributionToChances(*amount, s.rules.UnitSize, s.rules.MaxChancesPerRequest)
		if err != nil {
			return Grant{}, err
		}
		value = s.rules.UnitSize
	}

	batch, err := s.ledger.BulkInsertChances(ctx, id, chances, value, s.now())
	if err != nil {
		return Grant{}, err
	}

	grant := Grant{
		ParticipantID: batch.ParticipantID,
		Chances:       batch.Chances,
		ChanceValue:   batch.ChanceValue,
		Batch:         batch.ID,
		CreatedAt:     batch.CreatedAt,
	}
	if amount != nil && s.ledger.Mode() == ledger.ModeWeighted {
		grant.Amount = *amount
	}
	return grant, nil
}

// RemoveOne takes back the most recently added chance of rawID.
func (s *Service) RemoveOne(ctx context.Context, rawID string) error {
	id, err := util.ValidateIdentifier(rawID)
	if err == nil {
		err = s.ledger.DeleteOneChance(ctx, id)
	}
	metrics.Observe("remove_one", outcome(err))
	if err != nil {
		logFailure("remove one", rawID, err)
		return err
	}
	logger.Infof("raffle: removed one chance of %s", id)
	return nil
}

// RemoveAll deletes every chance of rawID and reports how many were removed.
func (s *Service) RemoveAll(ctx context.Context, rawID string) (int64, error) {
	id, err := util.ValidateIdentifier(rawID)
	var removed int64
	if err == nil {
		removed, err = s.ledger.DeleteAllForIdentifier(ctx, id)
	}
	metrics.Observe("remove_all", outcome(err))
	if err != nil {
		logFailure("remove all", rawID, err)
		return 0, err
	}
	logger.Infof("raffle: removed %d chance(s) of %s", removed, id)
	return removed, nil
}

func (s *Service) Clear(ctx context.Context) error {
	err := s.ledger.ClearAll(ctx)
	metrics.Observe("clear", outcome(err))
	if err != nil {
		logFailure("clear", "", err)
		return err
	}
	logger.Info("raffle: ledger cleared")
	return nil
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	return s.view.Summary(ctx)
}

func (s *Service) TotalEntries(ctx context.Context) (int64, error) {
	return s.view.TotalEntries(ctx)
}

func (s *Service) Draw(ctx context.Context) (DrawResult, error) {
	res, err := s.draws.Draw(ctx)
	metrics.Draws.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		logFailure("draw", "", err)
		return DrawResult{}, err
	}
	logger.Infof("raffle: drew %s out of %d chance(s)", res.ParticipantID, res.TotalChances)
	return res, nil
}

// Snapshot exports every chance, for backups.
func (s *Service) Snapshot(ctx context.Context) ([]ledger.Chance, error) {
	return s.ledger.Snapshot(ctx)
}

// Restore replaces the ledger with chances exported in mode.
func (s *Service) Restore(ctx context.Context, mode ledger.Mode, chances []ledger.Chance) error {
	if mode != s.ledger.Mode() {
		return fmt.Errorf("%w: snapshot %s, ledger %s", ErrModeMismatch, mode, s.ledger.Mode())
	}
	err := s.ledger.Replace(ctx, chances)
	metrics.Observe("restore", outcome(err))
	if err != nil {
		logFailure("restore", "", err)
		return err
	}
	logger.Infof("raffle: ledger restored with %d chance(s)", len(chances))
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, util.ErrInvalidIdentifier), errors.Is(err, util.ErrInvalidAmount),
		errors.Is(err, util.ErrNotAMultiple), errors.Is(err, util.ErrOutOfRange):
		return "invalid"
	case errors.Is(err, ledger.ErrDuplicateIdentifier):
		return "duplicate"
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrEmptyLedger):
		return "empty"
	case errors.Is(err, ledger.ErrStorage):
		return "storage"
	default:
		return "error"
	}
}

// logFailure logs storage problems loudly and expected outcomes quietly.
func logFailure(op, id string, err error) {
	if o := outcome(err); o == "storage" || o == "error" {
		logger.Errorf("raffle: %s %q: %v", op, id, err)
		return
	}
	logger.Infof("raffle: %s %q rejected: %v", op, id, err)
}

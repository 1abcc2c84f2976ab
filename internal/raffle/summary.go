package raffle

import (
	"context"

	"raffle-ledger/internal/ledger"
)

// Summary is the per-identifier view of the ledger.
type Summary struct {
	Mode         ledger.Mode    `json:"mode"`
	TotalEntries int64          `json:"total_entries"`
	Totals       []ledger.Tally `json:"totals"`
	UnitSize     int64          `json:"unit_size,omitempty"`
}

// SummaryView is a read-only projection recomputed on every call.
type SummaryView struct {
	ledger   ledger.Ledger
	unitSize int64
}

func NewSummaryView(l ledger.Ledger, unitSize int64) *SummaryView {
	return &SummaryView{ledger: l, unitSize: unitSize}
}

// Summary derives the total from the tallies of the same read, so the two
// always agree.
func (v *SummaryView) Summary(ctx context.Context) (Summary, error) {
	totals, err := v.ledger.SummaryByIdentifier(ctx)
	if err != nil {
		return Summary{}, err
	}
	var total int64
	for _, t := range totals {
		total += t.Chances
	}
	s := Summary{
		Mode:         v.ledger.Mode(),
		TotalEntries: total,
		Totals:       totals,
	}
	if s.Mode == ledger.ModeWeighted {
		s.UnitSize = v.unitSize
	}
	return s, nil
}

func (v *SummaryView) TotalEntries(ctx context.Context) (int64, error) {
	return v.ledger.TotalChances(ctx)
}

// Share returns the probability of t winning a single draw, in percent.
func (s Summary) Share(t ledger.Tally) float64 {
	if s.TotalEntries == 0 {
		return 0
	}
	return float64(t.Chances) * 100 / float64(s.TotalEntries)
}

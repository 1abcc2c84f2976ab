package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"raffle-ledger/internal/models"
	"raffle-ledger/internal/util"

	"gorm.io/gorm"
)

// UniqueStore keeps one row per identifier in the participants table; each
// participant holds exactly one chance.
type UniqueStore struct {
	db        *gorm.DB
	batchSize int
}

func NewUniqueStore(db *gorm.DB, opts Options) *UniqueStore {
	if opts.InsertBatchSize <= 0 {
		opts.InsertBatchSize = defaultInsertBatchSize
	}
	return &UniqueStore{db: db, batchSize: opts.InsertBatchSize}
}

func (s *UniqueStore) Mode() Mode { return ModeUnique }

// BulkInsertChances registers participantID once. chanceCount must be 1 and
// chanceValue is ignored.
func (s *UniqueStore) BulkInsertChances(ctx context.Context, participantID string, chanceCount, _ int64, now time.Time) (Batch, error) {
	id, err := util.ValidateIdentifier(participantID)
	if err != nil {
		return Batch{}, err
	}
	if chanceCount != 1 {
		return Batch{}, fmt.Errorf("%w: unique ledger grants exactly 1 chance, got %d", util.ErrOutOfRange, chanceCount)
	}

	err = s.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Participant{}).
			Where("participant_id = ?", id).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateIdentifier
		}
		return tx.Create(&models.Participant{ParticipantID: id, CreatedAt: now}).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = ErrDuplicateIdentifier
	}
	if errors.Is(err, ErrDuplicateIdentifier) {
		return Batch{}, fmt.Errorf("%w: %s", ErrDuplicateIdentifier, id)
	}
	if err != nil {
		return Batch{}, storageErr("insert", err)
	}
	return Batch{ParticipantID: id, Chances: 1, CreatedAt: now}, nil
}

// DeleteOneChance removes the participant, since its only chance is also the
// most recent one.
func (s *UniqueStore) DeleteOneChance(ctx context.Context, participantID string) error {
	_, err := s.DeleteAllForIdentifier(ctx, participantID)
	return err
}

func (s *UniqueStore) DeleteAllForIdentifier(ctx context.Context, participantID string) (int64, error) {
	id, err := util.ValidateIdentifier(participantID)
	if err != nil {
		return 0, err
	}

	res := s.db.WithContext(ctx).Where("participant_id = ?", id).Delete(&models.Participant{})
	if res.Error != nil {
		return 0, storageErr("delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return res.RowsAffected, nil
}

func (s *UniqueStore) ClearAll(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.Participant{}).Error
	return storageErr("clear", err)
}

func (s *UniqueStore) TotalChances(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Participant{}).Count(&total).Error; err != nil {
		return 0, storageErr("count", err)
	}
	return total, nil
}

func (s *UniqueStore) SummaryByIdentifier(ctx context.Context) ([]Tally, error) {
	tallies := make([]Tally, 0)
	err := s.db.WithContext(ctx).Model(&models.Participant{}).
		Select("participant_id, 1 AS chances").
		Order("participant_id ASC").
		Scan(&tallies).Error
	if err != nil {
		return nil, storageErr("summary", err)
	}
	return tallies, nil
}

func (s *UniqueStore) ChanceAt(ctx context.Context, pick PickFunc) (Chance, int64, error) {
	var (
		chance Chance
		total  int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Participant{}).Count(&total).Error; err != nil {
			return err
		}
		if total == 0 {
			return ErrEmptyLedger
		}
		offset, err := pickOffset(pick, total)
		if err != nil {
			return err
		}

		var p models.Participant
		if err := tx.Order("created_at ASC, participant_id ASC").Offset(int(offset)).Take(&p).Error; err != nil {
			return err
		}
		chance = Chance{ParticipantID: p.ParticipantID, CreatedAt: p.CreatedAt}
		return nil
	})
	if err != nil {
		return Chance{}, 0, txErr("draw", err)
	}
	return chance, total, nil
}

func (s *UniqueStore) Snapshot(ctx context.Context) ([]Chance, error) {
	var rows []models.Participant
	if err := s.db.WithContext(ctx).Order("created_at ASC, participant_id ASC").Find(&rows).Error; err != nil {
		return nil, storageErr("snapshot", err)
	}
	chances := make([]Chance, 0, len(rows))
	for _, p := range rows {
		chances = append(chances, Chance{ParticipantID: p.ParticipantID, CreatedAt: p.CreatedAt})
	}
	return chances, nil
}

// Replace swaps the whole ledger for chances. Duplicate identifiers in the
// input are rejected before anything is written.
func (s *UniqueStore) Replace(ctx context.Context, chances []Chance) error {
	seen := make(map[string]struct{}, len(chances))
	rows := make([]models.Participant, 0, len(chances))
	for _, c := range chances {
		id, err := util.ValidateIdentifier(c.ParticipantID)
		if err != nil {
			return err
		}
		key := strings.ToLower(id)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateIdentifier, id)
		}
		seen[key] = struct{}{}
		rows = append(rows, models.Participant{ParticipantID: id, CreatedAt: c.CreatedAt})
	}

	err := s.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Participant{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, s.batchSize).Error
	})
	return storageErr("replace", err)
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raffle-ledger/internal/models"
	"raffle-ledger/internal/util"

	"github.com/google/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WeightedStore keeps one row per chance in the entries table.
type WeightedStore struct {
	db        *gorm.DB
	batchSize int
}

func NewWeightedStore(db *gorm.DB, opts Options) *WeightedStore {
	if opts.InsertBatchSize <= 0 {
		opts.InsertBatchSize = defaultInsertBatchSize
	}
	return &WeightedStore{db: db, batchSize: opts.InsertBatchSize}
}

func (s *WeightedStore) Mode() Mode { return ModeWeighted }

// BulkInsertChances writes every row of the batch in one transaction. The
// context is detached from cancellation first: once accepted, the batch
// either commits or rolls back as a whole.
func (s *WeightedStore) BulkInsertChances(ctx context.Context, participantID string, chanceCount, chanceValue int64, now time.Time) (Batch, error) {
	id, err := util.ValidateIdentifier(participantID)
	if err != nil {
		return Batch{}, err
	}
	if chanceCount < 1 {
		return Batch{}, fmt.Errorf("%w: chance count %d", util.ErrOutOfRange, chanceCount)
	}
	if chanceValue < 0 {
		return Batch{}, fmt.Errorf("%w: chance value %d", util.ErrInvalidAmount, chanceValue)
	}

	batch := Batch{
		ID:            uuid.NewString(),
		ParticipantID: id,
		Chances:       chanceCount,
		ChanceValue:   chanceValue,
		CreatedAt:     now,
	}

	err = s.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		// 沿用该 ID 已有记录的大小写，保证汇总时展示一致
		var first models.Entry
		err := tx.Select("participant_id").
			Where("participant_id = ?", id).
			Order("id ASC").
			Take(&first).Error
		switch {
		case err == nil:
			batch.ParticipantID = first.ParticipantID
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		rows := make([]models.Entry, chanceCount)
		for i := range rows {
			rows[i] = models.Entry{
				ParticipantID: batch.ParticipantID,
				ChanceValue:   chanceValue,
				Batch:         batch.ID,
				CreatedAt:     now,
			}
		}
		return tx.CreateInBatches(rows, s.batchSize).Error
	})
	if err != nil {
		logger.Warningf("ledger: batch %s for %s rolled back: %v", batch.ID, id, err)
		return Batch{}, storageErr("bulk insert", err)
	}
	return batch, nil
}

func (s *WeightedStore) DeleteOneChance(ctx context.Context, participantID string) error {
	id, err := util.ValidateIdentifier(participantID)
	if err != nil {
		return err
	}

	db := s.db.WithContext(ctx)
	latest := db.Model(&models.Entry{}).
		Select("id").
		Where("participant_id = ?", id).
		Order("id DESC").
		Limit(1)
	res := db.Where("id = (?)", latest).Delete(&models.Entry{})
	if res.Error != nil {
		return storageErr("delete one", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *WeightedStore) DeleteAllForIdentifier(ctx context.Context, participantID string) (int64, error) {
	id, err := util.ValidateIdentifier(participantID)
	if err != nil {
		return 0, err
	}

	res := s.db.WithContext(ctx).Where("participant_id = ?", id).Delete(&models.Entry{})
	if res.Error != nil {
		return 0, storageErr("delete all", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return res.RowsAffected, nil
}

func (s *WeightedStore) ClearAll(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.Entry{}).Error
	return storageErr("clear", err)
}

func (s *WeightedStore) TotalChances(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Entry{}).Count(&total).Error; err != nil {
		return 0, storageErr("count", err)
	}
	return total, nil
}

// SummaryByIdentifier groups rows by identifier (case-insensitive column
// collation), most chances first, ties by identifier.
func (s *WeightedStore) SummaryByIdentifier(ctx context.Context) ([]Tally, error) {
	tallies := make([]Tally, 0)
	err := s.db.WithContext(ctx).Model(&models.Entry{}).
		Select("participant_id, COUNT(*) AS chances").
		Group("participant_id").
		Order("chances DESC, participant_id ASC").
		Scan(&tallies).Error
	if err != nil {
		return nil, storageErr("summary", err)
	}
	return tallies, nil
}

func (s *WeightedStore) ChanceAt(ctx context.Context, pick PickFunc) (Chance, int64, error) {
	var (
		chance Chance
		total  int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Entry{}).Count(&total).Error; err != nil {
			return err
		}
		if total == 0 {
			return ErrEmptyLedger
		}
		offset, err := pickOffset(pick, total)
		if err != nil {
			return err
		}

		var e models.Entry
		if err := tx.Order("id ASC").Offset(int(offset)).Take(&e).Error; err != nil {
			return err
		}
		chance = entryToChance(e)
		return nil
	})
	if err != nil {
		return Chance{}, 0, txErr("draw", err)
	}
	return chance, total, nil
}

func (s *WeightedStore) Snapshot(ctx context.Context) ([]Chance, error) {
	var rows []models.Entry
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, storageErr("snapshot", err)
	}
	chances := make([]Chance, 0, len(rows))
	for _, e := range rows {
		chances = append(chances, entryToChance(e))
	}
	return chances, nil
}

// Replace swaps the whole ledger for chances in one transaction. Rows keep
// their value, batch and timestamp; ids are reassigned in slice order.
func (s *WeightedStore) Replace(ctx context.Context, chances []Chance) error {
	rows := make([]models.Entry, 0, len(chances))
	for _, c := range chances {
		id, err := util.ValidateIdentifier(c.ParticipantID)
		if err != nil {
			return err
		}
		if c.ChanceValue < 0 {
			return fmt.Errorf("%w: chance value %d", util.ErrInvalidAmount, c.ChanceValue)
		}
		rows = append(rows, models.Entry{
			ParticipantID: id,
			ChanceValue:   c.ChanceValue,
			Batch:         c.Batch,
			CreatedAt:     c.CreatedAt,
		})
	}

	err := s.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Entry{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, s.batchSize).Error
	})
	return storageErr("replace", err)
}

func entryToChance(e models.Entry) Chance {
	return Chance{
		EntryID:       e.ID,
		ParticipantID: e.ParticipantID,
		ChanceValue:   e.ChanceValue,
		Batch:         e.Batch,
		CreatedAt:     e.CreatedAt,
	}
}

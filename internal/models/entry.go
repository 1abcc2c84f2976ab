package models

import "time"

// Entry is one chance in the weighted ledger. A participant's chances equal
// the number of rows carrying their identifier.
type Entry struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	ParticipantID string    `gorm:"type:varchar(32) COLLATE NOCASE;not null;index"` // 不区分大小写
	ChanceValue   int64     `gorm:"not null"`                                       // 每个 chance 对应的贡献额（当时的换算单位）
	Batch         string    `gorm:"size:36;index"`                                  // 同一次登记插入的行共享同一个 batch
	CreatedAt     time.Time `gorm:"index;not null"`
}

package models

import "time"

// Backup is an encrypted ledger snapshot stored on disk.
type Backup struct {
	ID        uint   `gorm:"primaryKey"`
	Mode      string `gorm:"size:16;not null"`
	FileName  string `gorm:"size:128;not null"`
	FilePath  string `gorm:"size:512;not null"`
	Size      int64
	Chances   int64
	CreatedAt time.Time
}

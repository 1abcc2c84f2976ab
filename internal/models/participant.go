package models

import "time"

// Participant is a row of the unique ledger: one identifier, one chance.
// The primary key compares case-insensitively.
type Participant struct {
	ParticipantID string    `gorm:"primaryKey;type:varchar(32) COLLATE NOCASE"`
	CreatedAt     time.Time `gorm:"index;not null"`
}

package models

import "time"

// AuditLog records admin operations against the ledger.
type AuditLog struct {
	ID        uint   `gorm:"primaryKey"`
	Actor     string `gorm:"size:32;index"`
	Method    string `gorm:"size:16"`
	PathEnc   string `gorm:"size:1024"` // 加密后的路径
	ActionEnc string `gorm:"size:4096"` // 加密后的动作（方法 + 路径 + 请求体）
	Status    int    `gorm:"default:0"`
	IP        string `gorm:"size:64"`
	UserAgent string `gorm:"size:255"`
	CreatedAt time.Time
}

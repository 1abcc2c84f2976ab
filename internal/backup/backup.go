// Package backup writes encrypted ledger snapshots to disk and restores them.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"raffle-ledger/internal/ledger"
	"raffle-ledger/internal/models"
	"raffle-ledger/internal/util"

	"github.com/google/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("backup not found")
	// ErrCorrupt 表示备份文件无法读取、解密或解析
	ErrCorrupt = errors.New("backup file unreadable")
)

// Ledger is the part of the raffle service a backup needs.
type Ledger interface {
	Mode() ledger.Mode
	Snapshot(ctx context.Context) ([]ledger.Chance, error)
	Restore(ctx context.Context, mode ledger.Mode, chances []ledger.Chance) error
}

// snapshot 是写入备份文件的内容结构
type snapshot struct {
	Mode    ledger.Mode     `json:"mode"`
	Created time.Time       `json:"created"`
	Chances []ledger.Chance `json:"chances"`
}

type Manager struct {
	DB         *gorm.DB
	Ledger     Ledger
	Dir        string
	EncryptKey string
	now        func() time.Time
}

func NewManager(db *gorm.DB, l Ledger, dir, encryptKey string) *Manager {
	return &Manager{DB: db, Ledger: l, Dir: dir, EncryptKey: encryptKey, now: time.Now}
}

// Create 生成当前账本的加密备份文件并登记
func (m *Manager) Create(ctx context.Context) (models.Backup, error) {
	chances, err := m.Ledger.Snapshot(ctx)
	if err != nil {
		return models.Backup{}, err
	}

	data := snapshot{Mode: m.Ledger.Mode(), Created: m.now(), Chances: chances}
	raw, err := json.Marshal(&data)
	if err != nil {
		return models.Backup{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	enc, err := util.EncryptAES(m.EncryptKey, raw)
	if err != nil {
		return models.Backup{}, fmt.Errorf("encrypt snapshot: %w", err)
	}

	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return models.Backup{}, fmt.Errorf("create backup dir: %w", err)
	}
	fileName := fmt.Sprintf("backup-%s-%s.bin", data.Mode, uuid.New().String())
	filePath := filepath.Join(m.Dir, fileName)
	if err := os.WriteFile(filePath, enc, 0o600); err != nil {
		return models.Backup{}, fmt.Errorf("write backup: %w", err)
	}

	b := models.Backup{
		Mode:     string(data.Mode),
		FileName: fileName,
		FilePath: filePath,
		Size:     int64(len(enc)),
		Chances:  int64(len(chances)),
	}
	if err := m.DB.WithContext(ctx).Create(&b).Error; err != nil {
		_ = os.Remove(filePath)
		return models.Backup{}, fmt.Errorf("save backup record: %w", err)
	}
	logger.Infof("backup: %s written with %d chance(s)", fileName, b.Chances)
	return b, nil
}

// List 按时间倒序列出备份
func (m *Manager) List(ctx context.Context) ([]models.Backup, error) {
	var list []models.Backup
	if err := m.DB.WithContext(ctx).Order("created_at DESC, id DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	return list, nil
}

func (m *Manager) Get(ctx context.Context, id uint) (models.Backup, error) {
	var b models.Backup
	if err := m.DB.WithContext(ctx).First(&b, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Backup{}, ErrNotFound
		}
		return models.Backup{}, fmt.Errorf("get backup: %w", err)
	}
	return b, nil
}

// Delete 先删文件，再删记录
func (m *Manager) Delete(ctx context.Context, id uint) error {
	b, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := os.Remove(b.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warningf("backup: remove %s: %v", b.FilePath, err)
	}
	if err := m.DB.WithContext(ctx).Delete(&b).Error; err != nil {
		return fmt.Errorf("delete backup record: %w", err)
	}
	return nil
}

// Restore 用备份内容整体替换账本，返回恢复的 chance 数
func (m *Manager) Restore(ctx context.Context, id uint) (int, error) {
	b, err := m.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	data, err := m.read(b)
	if err != nil {
		return 0, err
	}
	if err := m.Ledger.Restore(ctx, data.Mode, data.Chances); err != nil {
		return 0, err
	}
	logger.Infof("backup: restored %s (%d chance(s))", b.FileName, len(data.Chances))
	return len(data.Chances), nil
}

func (m *Manager) read(b models.Backup) (snapshot, error) {
	enc, err := os.ReadFile(b.FilePath)
	if err != nil {
		return snapshot{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	raw, err := util.DecryptAES(m.EncryptKey, enc)
	if err != nil {
		return snapshot{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	var data snapshot
	if err := json.Unmarshal(raw, &data); err != nil {
		return snapshot{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return data, nil
}

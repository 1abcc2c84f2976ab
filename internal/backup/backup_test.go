package backup

import (
	"context"
	"os"
	"testing"

	"raffle-ledger/internal/ledger"
	"raffle-ledger/internal/raffle"
	"raffle-ledger/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amount(v int64) *int64 { return &v }

func newManager(t *testing.T, mode ledger.Mode) (*Manager, *raffle.Service) {
	db := testutil.GetEmptyTestDB(t)
	l, err := ledger.New(db, mode, ledger.Options{})
	require.NoError(t, err)
	svc := raffle.NewService(l, raffle.Rules{UnitSize: 200, MaxChancesPerRequest: 5000})
	return NewManager(db, svc, t.TempDir(), "backup-key"), svc
}

func TestManager_CreateRestore(t *testing.T) {
	ctx := context.Background()
	m, svc := newManager(t, ledger.ModeWeighted)

	_, err := svc.Register(ctx, "Alice", amount(600))
	require.NoError(t, err)
	_, err = svc.Register(ctx, "Bob", amount(200))
	require.NoError(t, err)

	b, err := m.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "weighted", b.Mode)
	assert.EqualValues(t, 4, b.Chances)
	assert.FileExists(t, b.FilePath)

	// 文件内容是密文
	raw, err := os.ReadFile(b.FilePath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Alice")

	require.NoError(t, svc.Clear(ctx))
	_, err = svc.Register(ctx, "Carol", amount(200))
	require.NoError(t, err)

	n, err := m.Restore(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ledger.Tally{
		{ParticipantID: "Alice", Chances: 3},
		{ParticipantID: "Bob", Chances: 1},
	}, summary.Totals)
}

func TestManager_ListDelete(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, ledger.ModeUnique)

	first, err := m.Create(ctx)
	require.NoError(t, err)
	second, err := m.Create(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.FileName, second.FileName)

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	require.NoError(t, m.Delete(ctx, first.ID))
	assert.NoFileExists(t, first.FilePath)
	assert.ErrorIs(t, m.Delete(ctx, first.ID), ErrNotFound)

	_, err = m.Get(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_RestoreRejectsOtherMode(t *testing.T) {
	ctx := context.Background()
	m, svc := newManager(t, ledger.ModeUnique)
	_, err := svc.Register(ctx, "Bob", nil)
	require.NoError(t, err)
	b, err := m.Create(ctx)
	require.NoError(t, err)

	// 同一个数据库上换成加权账本
	l, err := ledger.New(m.DB, ledger.ModeWeighted, ledger.Options{})
	require.NoError(t, err)
	weighted := NewManager(m.DB, raffle.NewService(l, raffle.Rules{UnitSize: 200, MaxChancesPerRequest: 10}), m.Dir, m.EncryptKey)

	_, err = weighted.Restore(ctx, b.ID)
	assert.ErrorIs(t, err, raffle.ErrModeMismatch)
}

func TestManager_RestoreCorrupt(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, ledger.ModeWeighted)
	b, err := m.Create(ctx)
	require.NoError(t, err)

	wrongKey := NewManager(m.DB, m.Ledger, m.Dir, "other-key")
	_, err = wrongKey.Restore(ctx, b.ID)
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, os.WriteFile(b.FilePath, []byte("garbage"), 0o600))
	_, err = m.Restore(ctx, b.ID)
	assert.ErrorIs(t, err, ErrCorrupt)
}

package refs

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"contentvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestEnv 搭建基于内存 SQLite 的测试环境
func setupTestEnv(t *testing.T) *Manager {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mgr, err := NewManager(db)
	require.NoError(t, err)
	return mgr
}

func TestManager_HeadLifecycle(t *testing.T) {
	mgr := setupTestEnv(t)
	ctx := context.Background()

	// 初始状态应该是 NoHead
	_, _, err := mgr.Current(ctx)
	assert.ErrorIs(t, err, ErrNoHead)

	require.NoError(t, mgr.SetCurrent(ctx, "main", "c1"))
	branch, commit, err := mgr.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
	assert.Equal(t, types.Hash("c1"), commit)

	require.NoError(t, mgr.SetCurrent(ctx, "feature", "c2"))
	branch, commit, err = mgr.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "feature", branch)
	assert.Equal(t, types.Hash("c2"), commit)
}

func TestManager_PendingMerges(t *testing.T) {
	mgr := setupTestEnv(t)
	ctx := context.Background()
	require.NoError(t, mgr.SetCurrent(ctx, "main", "c1"))

	require.NoError(t, mgr.AddPendingMerge(ctx, "feature", "f1"))
	require.NoError(t, mgr.AddPendingMerge(ctx, "feature", "f2"))
	require.NoError(t, mgr.AddPendingMerge(ctx, "hotfix", "h1"))

	merges, err := mgr.PendingMerges(ctx)
	require.NoError(t, err)
	require.Len(t, merges, 2)
	assert.Equal(t, PendingMerge{Branch: "feature", Head: "f2"}, merges[0])

	require.NoError(t, mgr.CompleteCommit(ctx, "main", "c2"))
	merges, err = mgr.PendingMerges(ctx)
	require.NoError(t, err)
	assert.Empty(t, merges)

	_, commit, err := mgr.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Hash("c2"), commit)
}

func TestManager_PendingResolves(t *testing.T) {
	mgr := setupTestEnv(t)
	ctx := context.Background()
	path := types.NewCanonicalPath("a.txt")

	require.NoError(t, mgr.AddPendingResolve(ctx, PendingResolve{
		Path: path.String(), SourceBranch: "feature", BaseHash: "h0", IncomingHash: "h2",
	}))

	r, err := mgr.PendingResolve(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "h2", r.IncomingHash)

	require.NoError(t, mgr.MarkResolved(ctx, path))
	assert.ErrorIs(t, mgr.MarkResolved(ctx, path), ErrNotPending)
	_, err = mgr.PendingResolve(ctx, path)
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestManager_AbortMerge(t *testing.T) {
	mgr := setupTestEnv(t)
	ctx := context.Background()
	require.NoError(t, mgr.AddPendingMerge(ctx, "feature", "f1"))
	require.NoError(t, mgr.AddPendingResolve(ctx, PendingResolve{Path: "x"}))

	require.NoError(t, mgr.AbortMerge(ctx))
	merges, _ := mgr.PendingMerges(ctx)
	resolves, _ := mgr.PendingResolves(ctx)
	assert.Empty(t, merges)
	assert.Empty(t, resolves)
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspace.db")
	mgr, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, mgr.SetCurrent(context.Background(), "main", "c1"))
	require.NoError(t, mgr.Close())

	mgr, err = Open(path)
	require.NoError(t, err)
	defer mgr.Close()
	branch, _, err := mgr.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

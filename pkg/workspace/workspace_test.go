package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"contentvault/pkg/core"
	"contentvault/pkg/exporter"
	"contentvault/pkg/merge"
	"contentvault/pkg/meta"
	"contentvault/pkg/storage/memory"
	"contentvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// shared 是多个工作区共用的仓库索引和内容存储
type shared struct {
	repo  *meta.Repository
	blobs *memory.Provider
}

func newShared(t *testing.T) *shared {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	mdb := meta.NewWithConn(db)
	require.NoError(t, mdb.Migrate())
	return &shared{repo: meta.NewRepository(mdb), blobs: memory.NewProvider()}
}

func (s *shared) workspace(t *testing.T, owner string) *Workspace {
	t.Helper()
	w, err := Init(context.Background(), t.TempDir(), s.repo, s.blobs, Options{Owner: owner})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func write(t *testing.T, w *Workspace, p, content string) string {
	t.Helper()
	full := filepath.Join(w.Root(), filepath.FromSlash(p))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	return full
}

func read(t *testing.T, w *Workspace, p string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(w.Root(), filepath.FromSlash(p)))
	require.NoError(t, err)
	return string(data)
}

func path(w *Workspace, p string) string {
	return filepath.Join(w.Root(), filepath.FromSlash(p))
}

// modify 编辑已提交的文件
func modify(t *testing.T, w *Workspace, p, content string) {
	t.Helper()
	require.NoError(t, w.EditFiles(context.Background(), path(w, p)))
	write(t, w, p, content)
}

func TestInitAndOpen(t *testing.T) {
	s := newShared(t)
	ctx := context.Background()
	w := s.workspace(t, "alice")

	st, err := w.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultBranch, st.Branch)
	assert.False(t, st.Behind)
	assert.Empty(t, st.Changes)

	// 重复初始化失败
	_, err = Init(ctx, w.Root(), s.repo, s.blobs, Options{})
	assert.ErrorIs(t, err, ErrAlreadyWorkspace)

	// 从子目录打开
	sub := filepath.Join(w.Root(), "nested", "dir")
	require.NoError(t, os.MkdirAll(sub, 0755))
	again, err := Open(sub, s.repo, s.blobs, nil)
	require.NoError(t, err)
	defer again.Close()
	assert.Equal(t, w.Spec().ID, again.Spec().ID)
	assert.Equal(t, "alice", again.Spec().Owner)

	_, err = Open(t.TempDir(), s.repo, s.blobs, nil)
	assert.ErrorIs(t, err, ErrNotWorkspace)
}

func TestCommitAndCheckoutElsewhere(t *testing.T) {
	s := newShared(t)
	ctx := context.Background()
	w := s.workspace(t, "alice")

	write(t, w, "README.md", "hello")
	write(t, w, "data/set/a.bin", "aaa")
	write(t, w, "data/.env", "SECRET=1")

	added, err := w.AddFiles(ctx, path(w, "README.md"), path(w, "data"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.CanonicalPath{"README.md", "data/set/a.bin"}, added)

	c, err := w.Commit(ctx, "first")
	require.NoError(t, err)
	assert.Len(t, c.Parents, 1)

	_, err = w.Commit(ctx, "again")
	assert.ErrorIs(t, err, ErrNothingToCommit)

	info, err := os.Stat(path(w, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0444), info.Mode().Perm())

	// 另一个工作区检出相同内容
	other := s.workspace(t, "bob")
	assert.Equal(t, "hello", read(t, other, "README.md"))
	assert.Equal(t, "aaa", read(t, other, "data/set/a.bin"))

	log, err := other.Log(ctx, 0)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, c.ID, log[0].ID)
}

func TestEditDeleteRevert(t *testing.T) {
	s := newShared(t)
	ctx := context.Background()
	w := s.workspace(t, "alice")

	write(t, w, "a.txt", "v1")
	write(t, w, "b.txt", "b")
	_, err := w.AddFiles(ctx, path(w, "a.txt"), path(w, "b.txt"))
	require.NoError(t, err)
	_, err = w.Commit(ctx, "init")
	require.NoError(t, err)

	modify(t, w, "a.txt", "v2")
	require.NoError(t, w.DeleteFiles(ctx, path(w, "b.txt")))
	assert.NoFileExists(t, path(w, "b.txt"))

	st, err := w.Status(ctx)
	require.NoError(t, err)
	require.Len(t, st.Changes, 2)
	assert.Equal(t, core.ChangeEdit, st.Changes[0].Type)
	assert.Equal(t, core.ChangeDelete, st.Changes[1].Type)

	require.NoError(t, w.RevertFiles(ctx, path(w, "a.txt"), path(w, "b.txt")))
	assert.Equal(t, "v1", read(t, w, "a.txt"))
	assert.Equal(t, "b", read(t, w, "b.txt"))

	st, err = w.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Changes)

	err = w.EditFiles(ctx, path(w, "missing.txt"))
	assert.ErrorIs(t, err, ErrNotTracked)

	_, err = w.AddFiles(ctx, filepath.Join(t.TempDir(), "outside"))
	assert.Error(t, err)
}

func TestCommitRejectsMovedBranch(t *testing.T) {
	s := newShared(t)
	ctx := context.Background()
	alice := s.workspace(t, "alice")
	bob := s.workspace(t, "bob")

	write(t, alice, "a.txt", "alice")
	_, err := alice.AddFiles(ctx, path(alice, "a.txt"))
	require.NoError(t, err)
	_, err = alice.Commit(ctx, "from alice")
	require.NoError(t, err)

	write(t, bob, "b.txt", "bob")
	_, err = bob.AddFiles(ctx, path(bob, "b.txt"))
	require.NoError(t, err)
	_, err = bob.Commit(ctx, "from bob")
	assert.ErrorIs(t, err, ErrBranchMoved)

	st, err := bob.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Behind)

	// 有本地变化时不能同步
	_, err = bob.Sync(ctx)
	assert.ErrorIs(t, err, ErrDirty)
}

func TestBranchesAndFastForwardMerge(t *testing.T) {
	s := newShared(t)
	ctx := context.Background()
	w := s.workspace(t, "alice")

	write(t, w, "a.txt", "H0")
	_, err := w.AddFiles(ctx, path(w, "a.txt"))
	require.NoError(t, err)
	_, err = w.Commit(ctx, "c0")
	require.NoError(t, err)

	_, err = w.CreateBranch(ctx, "feature")
	require.NoError(t, err)
	require.NoError(t, w.SwitchBranch(ctx, "feature"))

	write(t, w, "b.txt", "H1")
	_, err = w.AddFiles(ctx, path(w, "b.txt"))
	require.NoError(t, err)
	c1, err := w.Commit(ctx, "c1")
	require.NoError(t, err)

	// 切回 main，b.txt 消失
	require.NoError(t, w.SwitchBranch(ctx, "main"))
	assert.NoFileExists(t, path(w, "b.txt"))

	res, err := w.Merge(ctx, "feature")
	require.NoError(t, err)
	assert.True(t, res.FastForward)
	assert.Equal(t, "H1", read(t, w, "b.txt"))

	st, err := w.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", st.Branch)
	assert.Equal(t, c1.ID, st.Commit)
	assert.False(t, st.Behind)

	branches, err := w.Branches(ctx)
	require.NoError(t, err)
	require.Len(t, branches, 2)
	assert.Equal(t, branches[0].Head, branches[1].Head)
}

func TestMergeConflictResolveCommit(t *testing.T) {
	s := newShared(t)
	ctx := context.Background()
	w := s.workspace(t, "alice")

	write(t, w, "a.txt", "H0")
	write(t, w, "b.txt", "b0")
	_, err := w.AddFiles(ctx, path(w, "a.txt"), path(w, "b.txt"))
	require.NoError(t, err)
	_, err = w.Commit(ctx, "base")
	require.NoError(t, err)

	_, err = w.CreateBranch(ctx, "feature")
	require.NoError(t, err)
	require.NoError(t, w.SwitchBranch(ctx, "feature"))
	modify(t, w, "a.txt", "H2")
	modify(t, w, "b.txt", "b2")
	feature, err := w.Commit(ctx, "feature work")
	require.NoError(t, err)

	require.NoError(t, w.SwitchBranch(ctx, "main"))
	modify(t, w, "a.txt", "H1")
	mainHead, err := w.Commit(ctx, "main work")
	require.NoError(t, err)

	res, err := w.Merge(ctx, "feature")
	var incomplete *merge.IncompleteError
	require.True(t, errors.As(err, &incomplete), "expected IncompleteError, got %v", err)
	assert.Equal(t, []types.CanonicalPath{"a.txt"}, incomplete.Paths)
	require.NotNil(t, res)

	assert.Equal(t, "H1", read(t, w, "a.txt"))
	assert.Equal(t, "b2", read(t, w, "b.txt"))

	// 冲突文件合并后立即可写，并作为编辑记录
	fi, err := os.Stat(path(w, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, exporter.WritableMode, fi.Mode().Perm())
	e, ok := w.changes.Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, core.ChangeEdit, e.Type)

	// 有冲突时不能提交
	_, err = w.Commit(ctx, "too early")
	assert.ErrorIs(t, err, ErrUnresolved)

	write(t, w, "a.txt", "H1+H2")
	require.NoError(t, w.Resolve(ctx, path(w, "a.txt")))

	merged, err := w.Commit(ctx, "merge feature")
	require.NoError(t, err)
	assert.Equal(t, []types.Hash{mainHead.ID, feature.ID}, merged.Parents)

	st, err := w.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.PendingMerges)
	assert.Empty(t, st.PendingResolves)

	// 之后再合并已经是最新
	res, err = w.Merge(ctx, "feature")
	require.NoError(t, err)
	assert.True(t, res.UpToDate)
}

func TestMergeRejectedWhileMergePending(t *testing.T) {
	s := newShared(t)
	ctx := context.Background()
	w := s.workspace(t, "alice")

	write(t, w, "a.txt", "a0")
	_, err := w.AddFiles(ctx, path(w, "a.txt"))
	require.NoError(t, err)
	_, err = w.Commit(ctx, "base")
	require.NoError(t, err)

	_, err = w.CreateBranch(ctx, "feature")
	require.NoError(t, err)
	require.NoError(t, w.SwitchBranch(ctx, "feature"))
	modify(t, w, "a.txt", "a2")
	_, err = w.Commit(ctx, "feature edit")
	require.NoError(t, err)

	// main 删除了同一个文件，冲突不会留下本地变化
	require.NoError(t, w.SwitchBranch(ctx, "main"))
	require.NoError(t, w.DeleteFiles(ctx, path(w, "a.txt")))
	_, err = w.Commit(ctx, "main delete")
	require.NoError(t, err)
	_, err = w.CreateBranch(ctx, "other")
	require.NoError(t, err)

	_, err = w.Merge(ctx, "feature")
	var incomplete *merge.IncompleteError
	require.True(t, errors.As(err, &incomplete), "expected IncompleteError, got %v", err)
	assert.True(t, w.changes.IsEmpty())

	_, err = w.Merge(ctx, "other")
	assert.ErrorIs(t, err, ErrMergeInProgress)
	assert.ErrorIs(t, w.SwitchBranch(ctx, "other"), ErrMergeInProgress)

	st, err := w.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, st.PendingMerges, 1)
	assert.Len(t, st.PendingResolves, 1)
}

func TestAbortMerge(t *testing.T) {
	s := newShared(t)
	ctx := context.Background()
	w := s.workspace(t, "alice")

	write(t, w, "a.txt", "a0")
	_, err := w.AddFiles(ctx, path(w, "a.txt"))
	require.NoError(t, err)
	_, err = w.Commit(ctx, "base")
	require.NoError(t, err)

	_, err = w.CreateBranch(ctx, "feature")
	require.NoError(t, err)
	require.NoError(t, w.SwitchBranch(ctx, "feature"))
	write(t, w, "new.txt", "n")
	_, err = w.AddFiles(ctx, path(w, "new.txt"))
	require.NoError(t, err)
	_, err = w.Commit(ctx, "feature")
	require.NoError(t, err)

	require.NoError(t, w.SwitchBranch(ctx, "main"))
	modify(t, w, "a.txt", "a1")
	_, err = w.Commit(ctx, "main")
	require.NoError(t, err)

	_, err = w.Merge(ctx, "feature")
	require.NoError(t, err)
	assert.FileExists(t, path(w, "new.txt"))

	// 合并进行中不能切换分支
	assert.ErrorIs(t, w.SwitchBranch(ctx, "feature"), ErrDirty)

	require.NoError(t, w.AbortMerge(ctx))
	assert.NoFileExists(t, path(w, "new.txt"))
	st, err := w.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Changes)
	assert.Empty(t, st.PendingMerges)
}

func TestLocks(t *testing.T) {
	s := newShared(t)
	ctx := context.Background()
	alice := s.workspace(t, "alice")

	write(t, alice, "model.bin", "weights")
	_, err := alice.AddFiles(ctx, path(alice, "model.bin"))
	require.NoError(t, err)
	_, err = alice.Commit(ctx, "add model")
	require.NoError(t, err)

	bob := s.workspace(t, "bob")
	require.NoError(t, alice.Lock(ctx, path(alice, "model.bin")))

	err = bob.EditFiles(ctx, path(bob, "model.bin"))
	assert.ErrorIs(t, err, meta.ErrLockHeld)
	err = bob.DeleteFiles(ctx, path(bob, "model.bin"))
	assert.ErrorIs(t, err, meta.ErrLockHeld)

	// 持有者自己可以编辑
	require.NoError(t, alice.EditFiles(ctx, path(alice, "model.bin")))

	locks, err := bob.Locks(ctx)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "alice", locks[0].Owner)

	require.NoError(t, alice.Unlock(ctx, path(alice, "model.bin")))
	require.NoError(t, bob.EditFiles(ctx, path(bob, "model.bin")))
}

package merge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"contentvault/pkg/core"
	"contentvault/pkg/exporter"
	"contentvault/pkg/meta"
	"contentvault/pkg/refs"
	"contentvault/pkg/storage"
	"contentvault/pkg/storage/memory"
	"contentvault/pkg/treebuilder"
	"contentvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	repo   *meta.Repository
	blobs  *memory.Provider
	state  *refs.Manager
	exp    *exporter.Exporter
	dir    string
	engine *Engine
}

func openDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mdb := meta.NewWithConn(openDB(t, t.Name()+"_repo"))
	require.NoError(t, mdb.Migrate())
	repo := meta.NewRepository(mdb)

	state, err := refs.NewManager(openDB(t, t.Name()+"_state"))
	require.NoError(t, err)

	blobs := memory.NewProvider()
	exp := exporter.NewExporter(blobs, repo, nil)
	dir := t.TempDir()
	return &fixture{
		repo:   repo,
		blobs:  blobs,
		state:  state,
		exp:    exp,
		dir:    dir,
		engine: NewEngine(repo, state, exp, dir, nil),
	}
}

func (f *fixture) blob(t *testing.T, content string) string {
	t.Helper()
	id, err := storage.WriteAll(context.Background(), f.blobs, []byte(content))
	require.NoError(t, err)
	return id.String()
}

// commit 在 branch 上提交 files (内容为空表示删除)，返回新提交
func (f *fixture) commit(t *testing.T, branch string, files map[string]string, extraParents ...types.Hash) *core.Commit {
	t.Helper()
	ctx := context.Background()

	b, err := f.repo.ReadBranch(ctx, branch)
	require.NoError(t, err)
	var prevRoot types.Hash
	if !b.Head.IsZero() {
		prev, err := f.repo.ReadCommit(ctx, b.Head)
		require.NoError(t, err)
		prevRoot = prev.RootHash
	}

	var changes []core.Change
	for p, content := range files {
		path := types.NewCanonicalPath(p)
		if content == "" {
			changes = append(changes, core.NewChange(path, "", core.ChangeDelete))
			continue
		}
		changes = append(changes, core.NewChange(path, f.blob(t, content), core.ChangeEdit))
	}
	root, err := treebuilder.NewBuilder(f.repo).UpdateTreeFromChanges(ctx, prevRoot, changes)
	require.NoError(t, err)

	parents := []types.Hash{}
	if !b.Head.IsZero() {
		parents = append(parents, b.Head)
	}
	parents = append(parents, extraParents...)
	c, err := core.NewCommit("tester", "update "+branch, changes, root, parents)
	require.NoError(t, err)
	require.NoError(t, f.repo.InsertCommit(ctx, c))

	b.Head = c.ID
	require.NoError(t, f.repo.UpdateBranch(ctx, b))
	return c
}

// fork 从 parent 的 head 创建新分支
func (f *fixture) fork(t *testing.T, name, parent string) {
	t.Helper()
	ctx := context.Background()
	p, err := f.repo.ReadBranch(ctx, parent)
	require.NoError(t, err)
	require.NoError(t, f.repo.InsertBranch(ctx, &core.Branch{Name: name, Head: p.Head, Parent: parent}))
}

// checkout 把 branch 的内容写到工作区
func (f *fixture) checkout(t *testing.T, branch string) types.Hash {
	t.Helper()
	ctx := context.Background()
	b, err := f.repo.ReadBranch(ctx, branch)
	require.NoError(t, err)
	c, err := f.repo.ReadCommit(ctx, b.Head)
	require.NoError(t, err)
	require.NoError(t, f.exp.DownloadTree(ctx, c.RootHash, f.dir, nil))
	require.NoError(t, f.state.SetCurrent(ctx, branch, b.Head))
	return b.Head
}

func (f *fixture) read(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.dir, filepath.FromSlash(p)))
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) init(t *testing.T, files map[string]string) *core.Commit {
	t.Helper()
	require.NoError(t, f.repo.InsertBranch(context.Background(), &core.Branch{Name: "main"}))
	return f.commit(t, "main", files)
}

func TestMerge_FastForward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c0 := f.init(t, map[string]string{"a.txt": "H0"})
	f.fork(t, "feature", "main")
	c1 := f.commit(t, "feature", map[string]string{"b.txt": "H1"})

	local := f.checkout(t, "main")
	require.Equal(t, c0.ID, local)

	res, err := f.engine.Merge(ctx, "main", "feature", local)
	require.NoError(t, err)
	assert.True(t, res.FastForward)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, c1.ID, res.Head)

	main, err := f.repo.ReadBranch(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, c1.ID, main.Head)

	assert.Equal(t, "H0", f.read(t, "a.txt"))
	assert.Equal(t, "H1", f.read(t, "b.txt"))
	assert.Equal(t, f.blob(t, "H1"), types.NewIdentifier([]byte(f.read(t, "b.txt"))).String())

	// 快进不产生待提交的合并
	pending, err := f.state.PendingMerges(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMerge_UpToDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.init(t, map[string]string{"a.txt": "1"})
	f.fork(t, "feature", "main")
	f.commit(t, "main", map[string]string{"a.txt": "2"})
	local := f.checkout(t, "main")

	res, err := f.engine.Merge(ctx, "main", "feature", local)
	require.NoError(t, err)
	assert.True(t, res.UpToDate)
}

func TestMerge_NonConflicting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := f.init(t, map[string]string{"a.txt": "a0", "b.txt": "b0", "gone.txt": "x"})
	f.fork(t, "feature", "main")
	f.commit(t, "feature", map[string]string{"b.txt": "b1", "new/c.txt": "c1"})
	f.commit(t, "feature", map[string]string{"gone.txt": ""})
	src, err := f.repo.ReadBranch(ctx, "feature")
	require.NoError(t, err)

	f.commit(t, "main", map[string]string{"a.txt": "a1"})
	local := f.checkout(t, "main")

	res, err := f.engine.Merge(ctx, "main", "feature", local)
	require.NoError(t, err)
	assert.False(t, res.FastForward)
	assert.Equal(t, base.ID, res.Base)
	assert.Empty(t, res.Conflicts)
	assert.Len(t, res.Applied, 3)

	assert.Equal(t, "a1", f.read(t, "a.txt"))
	assert.Equal(t, "b1", f.read(t, "b.txt"))
	assert.Equal(t, "c1", f.read(t, "new/c.txt"))
	assert.NoFileExists(t, filepath.Join(f.dir, "gone.txt"))

	pending, err := f.state.PendingMerges(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "feature", pending[0].Branch)
	assert.Equal(t, src.Head.String(), pending[0].Head)

	// 当前分支的 head 不变，合并在下次提交时完成
	main, err := f.repo.ReadBranch(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, local, main.Head)
}

func TestMerge_Conflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.init(t, map[string]string{"a.txt": "H0", "b.txt": "b0"})
	f.fork(t, "feature", "main")
	f.commit(t, "feature", map[string]string{"a.txt": "H2", "b.txt": "b2"})
	f.commit(t, "main", map[string]string{"a.txt": "H1"})
	local := f.checkout(t, "main")

	res, err := f.engine.Merge(ctx, "main", "feature", local)
	require.Error(t, err)

	var incomplete *IncompleteError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, []types.CanonicalPath{"a.txt"}, incomplete.Paths)

	require.NotNil(t, res)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, f.blob(t, "H0"), res.Conflicts[0].Base)
	assert.Equal(t, f.blob(t, "H2"), res.Conflicts[0].Incoming)
	assert.Equal(t, f.blob(t, "H1"), res.Conflicts[0].Current)

	// 冲突文件保持当前分支的版本，其余变化照常应用
	assert.Equal(t, "H1", f.read(t, "a.txt"))
	assert.Equal(t, "b2", f.read(t, "b.txt"))

	// 冲突文件可以直接修改
	fi, err := os.Stat(filepath.Join(f.dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, exporter.WritableMode, fi.Mode().Perm())

	resolves, err := f.state.PendingResolves(ctx)
	require.NoError(t, err)
	require.Len(t, resolves, 1)
	assert.Equal(t, "a.txt", resolves[0].Path)
	assert.Equal(t, "feature", resolves[0].SourceBranch)

	pending, err := f.state.PendingMerges(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestMerge_MostRecentChangeWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.init(t, map[string]string{"a.txt": "v0"})
	f.fork(t, "feature", "main")
	f.commit(t, "feature", map[string]string{"a.txt": "v1"})
	f.commit(t, "feature", map[string]string{"a.txt": "v2"})
	f.commit(t, "main", map[string]string{"other.txt": "o"})
	local := f.checkout(t, "main")

	res, err := f.engine.Merge(ctx, "main", "feature", local)
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, core.ChangeEdit, res.Applied[0].Change.Type)
	assert.Equal(t, "v2", f.read(t, "a.txt"))
}

func TestMerge_RequiresSyncedWorkspace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c0 := f.init(t, map[string]string{"a.txt": "1"})
	f.fork(t, "feature", "main")
	f.commit(t, "feature", map[string]string{"b.txt": "2"})
	f.commit(t, "main", map[string]string{"a.txt": "3"})

	_, err := f.engine.Merge(ctx, "main", "feature", c0.ID)
	assert.ErrorIs(t, err, ErrNotSynced)

	_, err = f.engine.Merge(ctx, "main", "main", c0.ID)
	assert.ErrorIs(t, err, ErrSameBranch)
}

func TestAncestorsAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c0 := f.init(t, map[string]string{"a": "0"})
	f.fork(t, "feature", "main")
	c1 := f.commit(t, "feature", map[string]string{"b": "1"})
	c2 := f.commit(t, "main", map[string]string{"c": "2"})
	// 合并提交带两个父节点
	c3 := f.commit(t, "main", map[string]string{"b": "1"}, c1.ID)

	anc, err := Ancestors(ctx, f.repo, c3.ID)
	require.NoError(t, err)
	assert.Len(t, anc, 4)
	for _, id := range []types.Hash{c0.ID, c1.ID, c2.ID, c3.ID} {
		assert.Contains(t, anc, id)
	}

	hist, err := History(ctx, f.repo, c3.ID, "")
	require.NoError(t, err)
	ids := make([]types.Hash, len(hist))
	for i, c := range hist {
		ids[i] = c.ID
	}
	assert.Equal(t, []types.Hash{c3.ID, c2.ID, c0.ID}, ids)

	hist, err = History(ctx, f.repo, c3.ID, c0.ID)
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}

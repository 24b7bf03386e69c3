// Package workspace 把仓库索引、内容存储和本地目录组织成一个可提交、可合并的工作区
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"contentvault/pkg/core"
	"contentvault/pkg/exporter"
	"contentvault/pkg/ignore"
	"contentvault/pkg/index"
	"contentvault/pkg/merge"
	"contentvault/pkg/meta"
	"contentvault/pkg/refs"
	"contentvault/pkg/storage"
	"contentvault/pkg/treebuilder"
	"contentvault/pkg/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	DirName       = ".cv"
	SpecFile      = "workspace.yaml"
	StateFile     = "workspace.db"
	ChangesFile   = "changes.json"
	DefaultBranch = "main"
)

var (
	ErrNotWorkspace     = errors.New("not a contentvault workspace (run 'cv init')")
	ErrAlreadyWorkspace = errors.New("workspace already initialized")
	ErrOutsideWorkspace = errors.New("path is outside the workspace")
	ErrNotTracked       = errors.New("path is not tracked")
	ErrDirty            = errors.New("workspace has uncommitted changes")
	ErrNothingToCommit  = errors.New("nothing to commit, working tree clean")
	ErrUnresolved       = errors.New("merge has unresolved conflicts")
	ErrBranchMoved      = errors.New("branch has moved since last sync (run 'cv sync' first)")
	ErrMergeInProgress  = errors.New("merge in progress (commit or abort it first)")
)

// Repository 是工作区用到的仓库索引操作，由 meta.Repository 实现
type Repository interface {
	merge.Repository
	InsertBranch(ctx context.Context, b *core.Branch) error
	ListBranches(ctx context.Context) ([]*core.Branch, error)
	InsertCommit(ctx context.Context, c *core.Commit) error
	ListCommits(ctx context.Context, from types.Hash, depth int) ([]*core.Commit, error)
	AcquireLock(ctx context.Context, l meta.Lock) error
	ReleaseLock(ctx context.Context, domain string, path types.CanonicalPath, workspace string) error
	ListLocks(ctx context.Context, domain string) ([]meta.Lock, error)
}

// Spec 保存在 .cv/workspace.yaml
type Spec struct {
	ID         string    `yaml:"id"`
	Owner      string    `yaml:"owner"`
	LockDomain string    `yaml:"lock_domain"`
	CreatedAt  time.Time `yaml:"created_at"`
}

type Options struct {
	Owner      string
	LockDomain string
	Branch     string
	Logger     *zap.Logger
}

type Workspace struct {
	root  string
	spec  Spec
	repo  Repository
	blobs storage.Provider

	state   *refs.Manager
	changes *index.Index
	ignore  *ignore.Matcher
	exp     *exporter.Exporter
	builder *treebuilder.Builder
	merger  *merge.Engine
	logger  *zap.Logger
}

// Init 在 root 下创建工作区并检出 opts.Branch (默认 main)
// 仓库中还没有该分支时创建一个空的根提交
func Init(ctx context.Context, root string, repo Repository, blobs storage.Provider, opts Options) (*Workspace, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(root, DirName)
	if _, err := os.Stat(filepath.Join(dir, SpecFile)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyWorkspace, dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	spec := Spec{
		ID:         uuid.NewString(),
		Owner:      opts.Owner,
		LockDomain: opts.LockDomain,
		CreatedAt:  time.Now().UTC(),
	}
	if spec.Owner == "" {
		spec.Owner = "contentvault"
	}
	if spec.LockDomain == "" {
		spec.LockDomain = "default"
	}
	data, err := yaml.Marshal(&spec)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, SpecFile), data, 0644); err != nil {
		return nil, err
	}

	w, err := open(root, spec, repo, blobs, opts.Logger)
	if err != nil {
		return nil, err
	}

	branch := opts.Branch
	if branch == "" {
		branch = DefaultBranch
	}
	b, err := w.repo.ReadBranch(ctx, branch)
	if errors.Is(err, meta.ErrBranchNotFound) {
		b, err = w.createRootBranch(ctx, branch)
	}
	if err != nil {
		w.Close()
		return nil, err
	}

	if err := w.checkout(ctx, "", b); err != nil {
		w.Close()
		return nil, err
	}
	w.logger.Info("workspace initialized",
		zap.String("root", root),
		zap.String("id", spec.ID),
		zap.String("branch", b.Name),
	)
	return w, nil
}

// Open 向上查找包含 .cv 的目录并加载工作区
func Open(start string, repo Repository, blobs storage.Provider, logger *zap.Logger) (*Workspace, error) {
	root, err := FindRoot(start)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(root, DirName, SpecFile))
	if err != nil {
		return nil, err
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("corrupted %s: %w", SpecFile, err)
	}
	return open(root, spec, repo, blobs, logger)
}

// FindRoot 从 start 向上查找工作区根目录
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, DirName, SpecFile)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotWorkspace
		}
		dir = parent
	}
}

func open(root string, spec Spec, repo Repository, blobs storage.Provider, logger *zap.Logger) (*Workspace, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Join(root, DirName)

	state, err := refs.Open(filepath.Join(dir, StateFile))
	if err != nil {
		return nil, err
	}
	changes, err := index.NewIndex(filepath.Join(dir, ChangesFile))
	if err != nil {
		state.Close()
		return nil, err
	}
	matcher, err := ignore.NewMatcher(root)
	if err != nil {
		state.Close()
		return nil, err
	}

	exp := exporter.NewExporter(blobs, repo, logger)
	return &Workspace{
		root:    root,
		spec:    spec,
		repo:    repo,
		blobs:   blobs,
		state:   state,
		changes: changes,
		ignore:  matcher,
		exp:     exp,
		builder: treebuilder.NewBuilder(repo),
		merger:  merge.NewEngine(repo, state, exp, root, logger),
		logger:  logger,
	}, nil
}

func (w *Workspace) Close() error {
	return w.state.Close()
}

func (w *Workspace) Root() string { return w.root }
func (w *Workspace) Spec() Spec   { return w.spec }

// createRootBranch 创建只包含空目录树的根提交
func (w *Workspace) createRootBranch(ctx context.Context, name string) (*core.Branch, error) {
	root, err := w.builder.UpdateTreeFromChanges(ctx, "", nil)
	if err != nil {
		return nil, err
	}
	c, err := core.NewCommit(w.spec.Owner, "initial commit", nil, root, nil)
	if err != nil {
		return nil, err
	}
	if err := w.repo.InsertCommit(ctx, c); err != nil {
		return nil, err
	}
	b := &core.Branch{Name: name, Head: c.ID}
	if err := w.repo.InsertBranch(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// checkout 把工作区从 from 所在的提交切换到 b 的 head
func (w *Workspace) checkout(ctx context.Context, from types.Hash, b *core.Branch) error {
	oldRoot, err := w.rootOf(ctx, from)
	if err != nil {
		return err
	}
	newRoot, err := w.rootOf(ctx, b.Head)
	if err != nil {
		return err
	}
	if oldRoot.IsZero() {
		err = w.exp.DownloadTree(ctx, newRoot, w.root, nil)
	} else {
		_, err = w.exp.SyncTree(ctx, oldRoot, newRoot, w.root)
	}
	if err != nil {
		return fmt.Errorf("checkout %s: %w", b.Name, err)
	}
	return w.state.SetCurrent(ctx, b.Name, b.Head)
}

func (w *Workspace) rootOf(ctx context.Context, id types.Hash) (types.Hash, error) {
	if id.IsZero() {
		return "", nil
	}
	c, err := w.repo.ReadCommit(ctx, id)
	if err != nil {
		return "", err
	}
	return c.RootHash, nil
}

// head 返回当前分支名、工作区所在提交和它的根目录树
func (w *Workspace) head(ctx context.Context) (string, types.Hash, types.Hash, error) {
	branch, commit, err := w.state.Current(ctx)
	if err != nil {
		return "", "", "", err
	}
	root, err := w.rootOf(ctx, commit)
	if err != nil {
		return "", "", "", err
	}
	return branch, commit, root, nil
}

// canonical 把 OS 路径 (绝对路径或相对于当前目录) 转换为工作区路径
func (w *Workspace) canonical(p string) (types.CanonicalPath, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, p)
	}
	return types.NewCanonicalPath(rel), nil
}

// hashFile 流式计算本地文件的内容 ID
func (w *Workspace) hashFile(p types.CanonicalPath) (types.Identifier, error) {
	f, err := os.Open(p.ToOS(w.root))
	if err != nil {
		return types.Identifier{}, err
	}
	defer f.Close()

	h := types.NewHasher(types.DefaultAlgorithm)
	if _, err := io.Copy(h, f); err != nil {
		return types.Identifier{}, err
	}
	return h.Identifier(), nil
}

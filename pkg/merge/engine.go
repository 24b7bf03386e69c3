// Package merge 实现分支合并: 快进、合并基点查找以及冲突标记
package merge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"contentvault/pkg/core"
	"contentvault/pkg/exporter"
	"contentvault/pkg/refs"
	"contentvault/pkg/treebuilder"
	"contentvault/pkg/types"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrSameBranch       = errors.New("cannot merge a branch into itself")
	ErrNotSynced        = errors.New("workspace is not synced to the branch head")
	ErrNoCommonAncestor = errors.New("branches have no common ancestor")
)

// Repository 是合并需要的仓库索引操作
type Repository interface {
	treebuilder.TreeStore
	ReadBranch(ctx context.Context, name string) (*core.Branch, error)
	UpdateBranch(ctx context.Context, b *core.Branch) error
	ReadCommit(ctx context.Context, id types.Hash) (*core.Commit, error)
}

// State 记录工作区的合并状态
type State interface {
	AddPendingMerge(ctx context.Context, branch string, head types.Hash) error
	AddPendingResolve(ctx context.Context, r refs.PendingResolve) error
}

// WorkingCopy 修改本地文件
type WorkingCopy interface {
	SyncTree(ctx context.Context, oldRoot, newRoot types.Hash, targetDir string) (*exporter.SyncResult, error)
	ReplaceFile(ctx context.Context, id string, p types.CanonicalPath, targetDir string) error
	MakeWritable(p types.CanonicalPath, targetDir string) error
}

// Conflict 是两边自合并基点以来都修改过的路径
type Conflict struct {
	Path     types.CanonicalPath
	Base     string // 合并基点上的内容，空表示不存在
	Incoming string // 来源分支上的内容，空表示被删除
	Current  string // 当前分支上的内容，空表示被删除
}

// Applied 是直接写入工作区的来源分支变化
type Applied struct {
	Change   core.Change
	Previous string
}

type Result struct {
	UpToDate    bool
	FastForward bool
	Base        types.Hash
	// Head 是合并后当前分支的 head
	Head      types.Hash
	Applied   []Applied
	Conflicts []Conflict
}

// IncompleteError 表示合并状态已保存，但有路径需要手动解决
type IncompleteError struct {
	Paths []types.CanonicalPath
}

func (e *IncompleteError) Error() string {
	names := make([]string, len(e.Paths))
	for i, p := range e.Paths {
		names[i] = p.String()
	}
	return fmt.Sprintf("merge incomplete, %d conflict(s) need resolving: %s", len(e.Paths), strings.Join(names, ", "))
}

type Engine struct {
	repo   Repository
	state  State
	files  WorkingCopy
	root   string
	logger *zap.Logger
}

// NewEngine root 是工作区根目录
func NewEngine(repo Repository, state State, files WorkingCopy, root string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{repo: repo, state: state, files: files, root: root, logger: logger}
}

// Merge 把 source 合并进 current。local 是工作区当前所在的提交
// 有冲突时同时返回 Result 和 *IncompleteError
func (e *Engine) Merge(ctx context.Context, current, source string, local types.Hash) (*Result, error) {
	if current == source {
		return nil, ErrSameBranch
	}
	cur, err := e.repo.ReadBranch(ctx, current)
	if err != nil {
		return nil, err
	}
	src, err := e.repo.ReadBranch(ctx, source)
	if err != nil {
		return nil, err
	}

	// 1. 来源分支的全部祖先
	sourceAncestors, err := Ancestors(ctx, e.repo, src.Head)
	if err != nil {
		return nil, fmt.Errorf("collect ancestors of %s: %w", source, err)
	}

	// 来源分支已经包含在当前分支中
	if src.Head == cur.Head {
		return &Result{UpToDate: true, Head: cur.Head}, nil
	}
	currentAncestors, err := Ancestors(ctx, e.repo, cur.Head)
	if err != nil {
		return nil, fmt.Errorf("collect ancestors of %s: %w", current, err)
	}
	if _, ok := currentAncestors[src.Head]; ok {
		return &Result{UpToDate: true, Head: cur.Head}, nil
	}

	// 2. 快进
	if _, ok := sourceAncestors[cur.Head]; ok {
		return e.fastForward(ctx, cur, src, local)
	}

	// 3. 真正的合并要求工作区停在分支 head 上
	if local != cur.Head {
		return nil, fmt.Errorf("%w: workspace at %s, %s at %s", ErrNotSynced, local, current, cur.Head)
	}

	// 4. 沿当前分支线性查找合并基点
	history, err := History(ctx, e.repo, cur.Head, "")
	if err != nil {
		return nil, err
	}
	baseIdx := slices.IndexFunc(history, func(c *core.Commit) bool {
		_, ok := sourceAncestors[c.ID]
		return ok
	})
	if baseIdx < 0 {
		return nil, fmt.Errorf("%w: %s and %s", ErrNoCommonAncestor, current, source)
	}
	base := history[baseIdx]

	// 5. 两边自基点以来的变化，靠近 head 的优先
	modified := changeMap(history[:baseIdx])
	sourceHistory, err := History(ctx, e.repo, src.Head, base.ID)
	if err != nil {
		return nil, err
	}
	toUpdate := changeMap(sourceHistory)

	e.logger.Info("merging",
		zap.String("current", current),
		zap.String("source", source),
		zap.String("base", base.ID.String()),
		zap.Int("incoming_changes", len(toUpdate)),
	)

	curRoot, err := e.rootOf(ctx, cur.Head)
	if err != nil {
		return nil, err
	}

	result := &Result{Base: base.ID, Head: cur.Head}
	var errs error
	paths := make([]types.CanonicalPath, 0, len(toUpdate))
	for p := range toUpdate {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	// 6. 逐个路径处理，单个路径失败不中断
	for _, p := range paths {
		incoming := toUpdate[p]
		if _, both := modified[p]; both {
			baseHash, err := lookup(ctx, e.repo, base.RootHash, p)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			current, err := lookup(ctx, e.repo, curRoot, p)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			// 冲突文件留在工作区里原地解决
			if current != "" {
				if err := e.files.MakeWritable(p, e.root); err != nil {
					errs = multierr.Append(errs, err)
					continue
				}
			}
			conflict := Conflict{Path: p, Base: baseHash, Incoming: incoming, Current: current}
			err = e.state.AddPendingResolve(ctx, refs.PendingResolve{
				Path:         p.String(),
				SourceBranch: source,
				BaseHash:     baseHash,
				IncomingHash: incoming,
			})
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("record conflict %q: %w", p, err))
				continue
			}
			result.Conflicts = append(result.Conflicts, conflict)
			continue
		}

		previous, err := lookup(ctx, e.repo, curRoot, p)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if previous == incoming {
			continue
		}
		if err := e.files.ReplaceFile(ctx, incoming, p, e.root); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("apply %q: %w", p, err))
			continue
		}
		result.Applied = append(result.Applied, Applied{
			Change:   core.NewChange(p, incoming, changeType(previous, incoming)),
			Previous: previous,
		})
	}

	// 7. 来源 head 在下次提交时成为额外的父节点
	if err := e.state.AddPendingMerge(ctx, source, src.Head); err != nil {
		return nil, multierr.Append(errs, fmt.Errorf("record pending merge: %w", err))
	}

	if len(result.Conflicts) > 0 {
		incomplete := &IncompleteError{}
		for _, c := range result.Conflicts {
			incomplete.Paths = append(incomplete.Paths, c.Path)
		}
		errs = multierr.Append(errs, incomplete)
	}
	return result, errs
}

func (e *Engine) fastForward(ctx context.Context, cur, src *core.Branch, local types.Hash) (*Result, error) {
	oldRoot, err := e.rootOf(ctx, local)
	if err != nil {
		return nil, err
	}
	newRoot, err := e.rootOf(ctx, src.Head)
	if err != nil {
		return nil, err
	}

	cur.Head = src.Head
	if err := e.repo.UpdateBranch(ctx, cur); err != nil {
		return nil, fmt.Errorf("fast-forward %s: %w", cur.Name, err)
	}
	e.logger.Info("fast-forward",
		zap.String("branch", cur.Name),
		zap.String("head", src.Head.String()),
	)

	result := &Result{FastForward: true, Head: src.Head}
	_, err = e.files.SyncTree(ctx, oldRoot, newRoot, e.root)
	return result, err
}

func (e *Engine) rootOf(ctx context.Context, id types.Hash) (types.Hash, error) {
	if id.IsZero() {
		return "", nil
	}
	c, err := e.repo.ReadCommit(ctx, id)
	if err != nil {
		return "", err
	}
	return c.RootHash, nil
}

// CommitReader 读取提交
type CommitReader interface {
	ReadCommit(ctx context.Context, id types.Hash) (*core.Commit, error)
}

// Ancestors 返回 head 及其全部祖先 (包括所有父节点)
func Ancestors(ctx context.Context, commits CommitReader, head types.Hash) (map[types.Hash]struct{}, error) {
	seen := make(map[types.Hash]struct{})
	if head.IsZero() {
		return seen, nil
	}
	stack := []types.Hash{head}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		c, err := commits.ReadCommit(ctx, id)
		if err != nil {
			return nil, err
		}
		stack = append(stack, c.Parents...)
	}
	return seen, nil
}

// History 沿第一父节点从 head 走到 stop (不含) 或根，顺序为 head 到根
func History(ctx context.Context, commits CommitReader, head, stop types.Hash) ([]*core.Commit, error) {
	var out []*core.Commit
	for next := head; !next.IsZero() && next != stop; {
		c, err := commits.ReadCommit(ctx, next)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		next, _ = c.FirstParent()
	}
	return out, nil
}

// changeMap 按 head 到基点的顺序扫描，同一路径只保留第一次看到的内容
func changeMap(history []*core.Commit) map[types.CanonicalPath]string {
	out := make(map[types.CanonicalPath]string)
	for _, c := range history {
		for _, ch := range c.Changes {
			if _, ok := out[ch.Path]; ok {
				continue
			}
			out[ch.Path] = ch.Hash
		}
	}
	return out
}

func lookup(ctx context.Context, trees treebuilder.TreeStore, root types.Hash, p types.CanonicalPath) (string, error) {
	if root.IsZero() {
		return "", nil
	}
	h, err := treebuilder.FindFileHashInTree(ctx, trees, root, p)
	if errors.Is(err, treebuilder.ErrPathNotFound) {
		return "", nil
	}
	return h, err
}

func changeType(previous, incoming string) core.ChangeType {
	switch {
	case incoming == "":
		return core.ChangeDelete
	case previous == "":
		return core.ChangeAdd
	default:
		return core.ChangeEdit
	}
}

package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"

	"contentvault/pkg/core"
	"contentvault/pkg/merge"
	"contentvault/pkg/treebuilder"
	"contentvault/pkg/types"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// CreateBranch 从当前分支的 head 创建新分支，不切换
func (w *Workspace) CreateBranch(ctx context.Context, name string) (*core.Branch, error) {
	current, _, err := w.state.Current(ctx)
	if err != nil {
		return nil, err
	}
	from, err := w.repo.ReadBranch(ctx, current)
	if err != nil {
		return nil, err
	}
	b := &core.Branch{Name: name, Head: from.Head, Parent: current}
	if err := w.repo.InsertBranch(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// clean 检查没有本地变化和未完成的合并
func (w *Workspace) clean(ctx context.Context) error {
	if !w.changes.IsEmpty() {
		return ErrDirty
	}
	merges, err := w.state.PendingMerges(ctx)
	if err != nil {
		return err
	}
	resolves, err := w.state.PendingResolves(ctx)
	if err != nil {
		return err
	}
	if len(merges) > 0 || len(resolves) > 0 {
		return ErrMergeInProgress
	}
	return nil
}

// SwitchBranch 切换到 name 并把工作区同步到它的 head
func (w *Workspace) SwitchBranch(ctx context.Context, name string) error {
	if err := w.clean(ctx); err != nil {
		return err
	}
	_, local, err := w.state.Current(ctx)
	if err != nil {
		return err
	}
	b, err := w.repo.ReadBranch(ctx, name)
	if err != nil {
		return err
	}
	return w.checkout(ctx, local, b)
}

// Sync 把工作区更新到当前分支最新的 head
func (w *Workspace) Sync(ctx context.Context) (types.Hash, error) {
	if err := w.clean(ctx); err != nil {
		return "", err
	}
	branch, local, err := w.state.Current(ctx)
	if err != nil {
		return "", err
	}
	b, err := w.repo.ReadBranch(ctx, branch)
	if err != nil {
		return "", err
	}
	if b.Head == local {
		return local, nil
	}
	if err := w.checkout(ctx, local, b); err != nil {
		return "", err
	}
	return b.Head, nil
}

// Merge 把 source 合并进当前分支
// 冲突时返回的 error 包含 *merge.IncompleteError，合并状态已经保存
func (w *Workspace) Merge(ctx context.Context, source string) (*merge.Result, error) {
	if err := w.clean(ctx); err != nil {
		return nil, err
	}
	branch, local, err := w.state.Current(ctx)
	if err != nil {
		return nil, err
	}

	result, mergeErr := w.merger.Merge(ctx, branch, source, local)
	if result == nil {
		return nil, mergeErr
	}

	if result.UpToDate {
		return result, mergeErr
	}
	if result.FastForward {
		if err := w.state.SetCurrent(ctx, branch, result.Head); err != nil {
			return nil, multierr.Append(mergeErr, err)
		}
		return result, mergeErr
	}

	// 直接应用的变化在下次提交时写入
	for _, a := range result.Applied {
		w.changes.Track(a.Change.Path, a.Change.Type, a.Previous)
	}
	// 冲突文件已经可写，按编辑记录
	for _, c := range result.Conflicts {
		if c.Current != "" {
			w.changes.Track(c.Path, core.ChangeEdit, c.Current)
		}
	}
	if err := w.changes.Save(); err != nil {
		return nil, multierr.Append(mergeErr, err)
	}
	w.logger.Info("merge recorded",
		zap.String("branch", branch),
		zap.String("source", source),
		zap.Int("applied", len(result.Applied)),
		zap.Int("conflicts", len(result.Conflicts)),
	)
	return result, mergeErr
}

// Resolve 接受工作区中 path 的当前内容作为冲突的解决结果
func (w *Workspace) Resolve(ctx context.Context, path string) error {
	p, err := w.canonical(path)
	if err != nil {
		return err
	}
	if _, err := w.state.PendingResolve(ctx, p); err != nil {
		return err
	}
	_, _, root, err := w.head(ctx)
	if err != nil {
		return err
	}
	previous, err := w.lookup(ctx, root, p)
	if err != nil {
		return err
	}

	_, statErr := os.Stat(p.ToOS(w.root))
	switch {
	case errors.Is(statErr, os.ErrNotExist):
		if previous != "" {
			w.changes.Track(p, core.ChangeDelete, previous)
		}
	case statErr != nil:
		return statErr
	case previous == "":
		w.changes.Track(p, core.ChangeAdd, "")
	default:
		w.changes.Track(p, core.ChangeEdit, previous)
	}
	if err := w.changes.Save(); err != nil {
		return err
	}
	return w.state.MarkResolved(ctx, p)
}

// AbortMerge 撤销合并带来的本地变化并清除合并状态
func (w *Workspace) AbortMerge(ctx context.Context) error {
	merges, err := w.state.PendingMerges(ctx)
	if err != nil {
		return err
	}
	if len(merges) == 0 {
		return fmt.Errorf("no merge in progress")
	}
	for _, e := range w.changes.Sorted() {
		if e.Type == core.ChangeAdd {
			if err := os.Remove(e.Path.ToOS(w.root)); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
		if err := w.revert(ctx, e.Path); err != nil {
			return err
		}
	}
	if err := w.changes.Save(); err != nil {
		return err
	}
	return w.state.AbortMerge(ctx)
}

func (w *Workspace) Branches(ctx context.Context) ([]*core.Branch, error) {
	return w.repo.ListBranches(ctx)
}

// Log 沿第一父节点列出当前分支的历史
func (w *Workspace) Log(ctx context.Context, depth int) ([]*core.Commit, error) {
	branch, _, err := w.state.Current(ctx)
	if err != nil {
		return nil, err
	}
	b, err := w.repo.ReadBranch(ctx, branch)
	if err != nil {
		return nil, err
	}
	return w.repo.ListCommits(ctx, b.Head, depth)
}

// Tree 读取当前提交中 dir 对应的目录树
func (w *Workspace) Tree(ctx context.Context, dir string) (*core.Tree, error) {
	_, _, root, err := w.head(ctx)
	if err != nil {
		return nil, err
	}
	p, err := w.canonical(dir)
	if err != nil {
		return nil, err
	}
	return treebuilder.FetchTreeSubdir(ctx, w.repo, root, p)
}

package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"contentvault/pkg/core"
	"contentvault/pkg/exporter"
	"contentvault/pkg/index"
	"contentvault/pkg/meta"
	"contentvault/pkg/refs"
	"contentvault/pkg/treebuilder"
	"contentvault/pkg/types"
)

// lookup 返回 path 在 root 中的内容 ID，不存在时返回空
func (w *Workspace) lookup(ctx context.Context, root types.Hash, p types.CanonicalPath) (string, error) {
	if root.IsZero() {
		return "", nil
	}
	h, err := treebuilder.FindFileHashInTree(ctx, w.repo, root, p)
	if errors.Is(err, treebuilder.ErrPathNotFound) {
		return "", nil
	}
	return h, err
}

// expand 把参数展开为工作区中的文件，目录会被递归遍历
func (w *Workspace) expand(paths []string) ([]types.CanonicalPath, error) {
	var out []types.CanonicalPath
	for _, arg := range paths {
		p, err := w.canonical(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(p.ToOS(w.root))
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !w.ignore.Matches(p) {
				out = append(out, p)
			}
			continue
		}
		err = w.ignore.Walk(w.root, p, func(fp types.CanonicalPath, _ fs.FileInfo) error {
			out = append(out, fp)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AddFiles 记录新增文件；已在当前提交中的文件按编辑处理
func (w *Workspace) AddFiles(ctx context.Context, paths ...string) ([]types.CanonicalPath, error) {
	_, _, root, err := w.head(ctx)
	if err != nil {
		return nil, err
	}
	files, err := w.expand(paths)
	if err != nil {
		return nil, err
	}

	var added []types.CanonicalPath
	for _, p := range files {
		previous, err := w.lookup(ctx, root, p)
		if err != nil {
			return nil, err
		}
		if previous == "" {
			w.changes.Track(p, core.ChangeAdd, "")
			added = append(added, p)
			continue
		}
		id, err := w.hashFile(p)
		if err != nil {
			return nil, err
		}
		if id.String() == previous {
			continue
		}
		w.changes.Track(p, core.ChangeEdit, previous)
		added = append(added, p)
	}
	return added, w.changes.Save()
}

// EditFiles 让已提交的文件可写并记录编辑，被其他工作区锁定的文件不能编辑
func (w *Workspace) EditFiles(ctx context.Context, paths ...string) error {
	_, _, root, err := w.head(ctx)
	if err != nil {
		return err
	}
	locks, err := w.foreignLocks(ctx)
	if err != nil {
		return err
	}
	for _, arg := range paths {
		p, err := w.canonical(arg)
		if err != nil {
			return err
		}
		previous, err := w.lookup(ctx, root, p)
		if err != nil {
			return err
		}
		if previous == "" {
			return fmt.Errorf("%w: %s", ErrNotTracked, p)
		}
		if l, ok := locks[p]; ok {
			return fmt.Errorf("%w: %s (held by %s)", meta.ErrLockHeld, p, l.Owner)
		}
		if err := os.Chmod(p.ToOS(w.root), exporter.WritableMode); err != nil {
			return err
		}
		w.changes.Track(p, core.ChangeEdit, previous)
	}
	return w.changes.Save()
}

// DeleteFiles 删除已提交的文件并记录
func (w *Workspace) DeleteFiles(ctx context.Context, paths ...string) error {
	_, _, root, err := w.head(ctx)
	if err != nil {
		return err
	}
	locks, err := w.foreignLocks(ctx)
	if err != nil {
		return err
	}
	for _, arg := range paths {
		p, err := w.canonical(arg)
		if err != nil {
			return err
		}
		previous, err := w.lookup(ctx, root, p)
		if err != nil {
			return err
		}
		if previous == "" {
			// 未提交的新文件只需要取消记录
			if _, ok := w.changes.Get(p); !ok {
				return fmt.Errorf("%w: %s", ErrNotTracked, p)
			}
			w.changes.Remove(p)
			continue
		}
		if l, ok := locks[p]; ok {
			return fmt.Errorf("%w: %s (held by %s)", meta.ErrLockHeld, p, l.Owner)
		}
		if err := exporter.RemoveFile(w.root, p); err != nil {
			return err
		}
		w.changes.Track(p, core.ChangeDelete, previous)
	}
	return w.changes.Save()
}

// RevertFiles 撤销本地变化: 编辑和删除恢复为当前提交的内容，新增只取消记录
func (w *Workspace) RevertFiles(ctx context.Context, paths ...string) error {
	for _, arg := range paths {
		p, err := w.canonical(arg)
		if err != nil {
			return err
		}
		if err := w.revert(ctx, p); err != nil {
			return err
		}
	}
	return w.changes.Save()
}

func (w *Workspace) revert(ctx context.Context, p types.CanonicalPath) error {
	e, ok := w.changes.Get(p)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotTracked, p)
	}
	if e.Type != core.ChangeAdd {
		if err := w.exp.ReplaceFile(ctx, e.Previous, p, w.root); err != nil {
			return fmt.Errorf("revert %s: %w", p, err)
		}
	}
	w.changes.Remove(p)
	return nil
}

type Status struct {
	Branch          string
	Commit          types.Hash
	Changes         []index.Entry
	PendingMerges   []refs.PendingMerge
	PendingResolves []refs.PendingResolve
	// Behind 表示分支 head 已经不是工作区所在的提交
	Behind bool
}

func (w *Workspace) Status(ctx context.Context) (*Status, error) {
	branch, commit, err := w.state.Current(ctx)
	if err != nil {
		return nil, err
	}
	merges, err := w.state.PendingMerges(ctx)
	if err != nil {
		return nil, err
	}
	resolves, err := w.state.PendingResolves(ctx)
	if err != nil {
		return nil, err
	}
	b, err := w.repo.ReadBranch(ctx, branch)
	if err != nil {
		return nil, err
	}
	return &Status{
		Branch:          branch,
		Commit:          commit,
		Changes:         w.changes.Sorted(),
		PendingMerges:   merges,
		PendingResolves: resolves,
		Behind:          b.Head != commit,
	}, nil
}

// Lock 对文件加锁，其他工作区不能编辑或删除这些文件
func (w *Workspace) Lock(ctx context.Context, paths ...string) error {
	for _, arg := range paths {
		p, err := w.canonical(arg)
		if err != nil {
			return err
		}
		err = w.repo.AcquireLock(ctx, meta.Lock{
			Domain:    w.spec.LockDomain,
			Path:      p,
			Owner:     w.spec.Owner,
			Workspace: w.spec.ID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Workspace) Unlock(ctx context.Context, paths ...string) error {
	for _, arg := range paths {
		p, err := w.canonical(arg)
		if err != nil {
			return err
		}
		if err := w.repo.ReleaseLock(ctx, w.spec.LockDomain, p, w.spec.ID); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workspace) Locks(ctx context.Context) ([]meta.Lock, error) {
	return w.repo.ListLocks(ctx, w.spec.LockDomain)
}

// foreignLocks 返回被其他工作区持有的锁
func (w *Workspace) foreignLocks(ctx context.Context) (map[types.CanonicalPath]meta.Lock, error) {
	locks, err := w.repo.ListLocks(ctx, w.spec.LockDomain)
	if err != nil {
		return nil, err
	}
	out := make(map[types.CanonicalPath]meta.Lock)
	for _, l := range locks {
		if l.Workspace != w.spec.ID {
			out[l.Path] = l
		}
	}
	return out, nil
}

// Cat 把当前提交中 path 的内容写到 out
func (w *Workspace) Cat(ctx context.Context, path string, out io.Writer) error {
	_, _, root, err := w.head(ctx)
	if err != nil {
		return err
	}
	p, err := w.canonical(path)
	if err != nil {
		return err
	}
	id, err := w.lookup(ctx, root, p)
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: %s", ErrNotTracked, p)
	}
	return w.exp.ExportFile(ctx, id, out)
}

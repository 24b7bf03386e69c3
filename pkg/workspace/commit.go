package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"

	"contentvault/pkg/core"
	"contentvault/pkg/exporter"
	"contentvault/pkg/meta"
	"contentvault/pkg/storage"
	"contentvault/pkg/types"

	"go.uber.org/zap"
)

// Commit 上传本地变化、重建目录树并移动分支 head
// 父节点是工作区所在的提交加上所有待提交的合并
func (w *Workspace) Commit(ctx context.Context, message string) (*core.Commit, error) {
	if message == "" {
		return nil, errors.New("commit message cannot be empty")
	}

	resolves, err := w.state.PendingResolves(ctx)
	if err != nil {
		return nil, err
	}
	if len(resolves) > 0 {
		return nil, fmt.Errorf("%w: %d path(s), first %s", ErrUnresolved, len(resolves), resolves[0].Path)
	}
	merges, err := w.state.PendingMerges(ctx)
	if err != nil {
		return nil, err
	}
	entries := w.changes.Sorted()
	if len(entries) == 0 && len(merges) == 0 {
		return nil, ErrNothingToCommit
	}

	branchName, local, prevRoot, err := w.head(ctx)
	if err != nil {
		return nil, err
	}
	branch, err := w.repo.ReadBranch(ctx, branchName)
	if err != nil {
		return nil, err
	}
	if branch.Head != local {
		return nil, fmt.Errorf("%w: %s is at %s", ErrBranchMoved, branchName, branch.Head)
	}

	locks, err := w.foreignLocks(ctx)
	if err != nil {
		return nil, err
	}

	// 1. 上传内容
	changes := make([]core.Change, 0, len(entries))
	for _, e := range entries {
		if l, ok := locks[e.Path]; ok && e.Type != core.ChangeAdd {
			return nil, fmt.Errorf("%w: %s (held by %s)", meta.ErrLockHeld, e.Path, l.Owner)
		}
		if e.Type == core.ChangeDelete {
			changes = append(changes, core.NewChange(e.Path, "", core.ChangeDelete))
			continue
		}
		id, err := w.upload(ctx, e.Path)
		if err != nil {
			return nil, err
		}
		changes = append(changes, core.NewChange(e.Path, id.String(), e.Type))
	}

	// 2. 重建目录树
	root, err := w.builder.UpdateTreeFromChanges(ctx, prevRoot, changes)
	if err != nil {
		return nil, fmt.Errorf("failed to build tree: %w", err)
	}

	// 3. 写入提交并 CAS 更新分支
	parents := []types.Hash{local}
	for _, m := range merges {
		parents = append(parents, types.Hash(m.Head))
	}
	c, err := core.NewCommit(w.spec.Owner, message, changes, root, parents)
	if err != nil {
		return nil, err
	}
	if err := w.repo.InsertCommit(ctx, c); err != nil {
		return nil, err
	}
	branch.Head = c.ID
	if err := w.repo.UpdateBranch(ctx, branch); err != nil {
		return nil, err
	}

	// 4. 提交后的文件恢复只读
	for _, ch := range changes {
		if ch.Type == core.ChangeDelete {
			continue
		}
		if err := os.Chmod(ch.Path.ToOS(w.root), exporter.ReadOnlyMode); err != nil {
			w.logger.Warn("failed to mark file read-only", zap.String("path", ch.Path.String()), zap.Error(err))
		}
	}

	if err := w.state.CompleteCommit(ctx, branchName, c.ID); err != nil {
		return nil, err
	}
	w.changes.Reset()
	if err := w.changes.Save(); err != nil {
		// 提交已经成功，只记录警告
		w.logger.Warn("failed to clear changes", zap.Error(err))
	}

	w.logger.Info("committed",
		zap.String("branch", branchName),
		zap.String("commit", c.ID.String()),
		zap.Int("changes", len(changes)),
		zap.Int("parents", len(parents)),
	)
	return c, nil
}

// upload 计算文件的内容 ID 并写入存储
func (w *Workspace) upload(ctx context.Context, p types.CanonicalPath) (types.Identifier, error) {
	id, err := w.hashFile(p)
	if err != nil {
		return types.Identifier{}, fmt.Errorf("hash %s: %w", p, err)
	}
	f, err := os.Open(p.ToOS(w.root))
	if err != nil {
		return types.Identifier{}, err
	}
	defer f.Close()
	if err := storage.WriteFrom(ctx, w.blobs, id, f); err != nil {
		return types.Identifier{}, fmt.Errorf("upload %s: %w", p, err)
	}
	return id, nil
}

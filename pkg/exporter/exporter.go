// Package exporter 把仓库中的目录树物化到本地工作区
package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"contentvault/pkg/core"
	"contentvault/pkg/storage"
	"contentvault/pkg/treebuilder"
	"contentvault/pkg/types"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 工作区文件默认只读，只有 edit 之后才可写
const (
	ReadOnlyMode os.FileMode = 0444
	WritableMode os.FileMode = 0644
)

type RestoreCallback func(path types.CanonicalPath, id string)

type Exporter struct {
	blobs       storage.Provider
	trees       treebuilder.TreeStore
	parallelism int
	logger      *zap.Logger
}

func NewExporter(blobs storage.Provider, trees treebuilder.TreeStore, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{blobs: blobs, trees: trees, parallelism: 8, logger: logger}
}

// ExportFile 把内容写入 writer
func (e *Exporter) ExportFile(ctx context.Context, id string, w io.Writer) error {
	parsed, err := types.ParseIdentifier(id)
	if err != nil {
		return err
	}
	_, _, err = storage.CopyTo(ctx, e.blobs, parsed, w)
	return err
}

// DownloadBlob 下载内容到 dst，先写临时文件再 rename，最后标记为只读
func (e *Exporter) DownloadBlob(ctx context.Context, id string, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", dst, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".cv-download-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := e.ExportFile(ctx, id, tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("download %s to %s: %w", id, dst, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, ReadOnlyMode); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", dst, err)
	}
	return nil
}

// DownloadTree 广度优先遍历 root，把全部目录和文件写到 targetDir 下
// 单个文件失败不会中断遍历，所有错误合并后返回
func (e *Exporter) DownloadTree(ctx context.Context, root types.Hash, targetDir string, onRestore RestoreCallback) error {
	if root.IsZero() {
		return nil
	}
	type item struct {
		path types.CanonicalPath
		hash types.Hash
	}

	var (
		mu   sync.Mutex
		errs error
	)
	collect := func(err error) {
		mu.Lock()
		errs = multierr.Append(errs, err)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)

	queue := []item{{path: "", hash: root}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		tree, err := e.trees.ReadTree(ctx, cur.hash)
		if err != nil {
			collect(fmt.Errorf("read tree %q: %w", cur.path, err))
			continue
		}

		for _, d := range tree.DirectoryNodes {
			p := cur.path.Join(d.Name)
			if err := os.MkdirAll(p.ToOS(targetDir), 0755); err != nil {
				collect(fmt.Errorf("create dir %q: %w", p, err))
				continue
			}
			queue = append(queue, item{path: p, hash: types.Hash(d.Hash)})
		}

		for _, f := range tree.FileNodes {
			p := cur.path.Join(f.Name)
			id := f.Hash
			// 返回 nil，避免 errgroup 取消其它下载
			g.Go(func() error {
				if err := e.DownloadBlob(gctx, id, p.ToOS(targetDir)); err != nil {
					collect(err)
					return nil
				}
				if onRestore != nil {
					onRestore(p, id)
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	return errs
}

// SyncResult 描述 SyncTree 对工作区做了什么
type SyncResult struct {
	Updated []types.CanonicalPath
	Removed []types.CanonicalPath
}

// SyncTree 把工作区从 oldRoot 的状态更新到 newRoot
// 只下载内容变化的文件，删除 newRoot 中不存在的文件
func (e *Exporter) SyncTree(ctx context.Context, oldRoot, newRoot types.Hash, targetDir string) (*SyncResult, error) {
	oldFiles, err := treebuilder.Flatten(ctx, e.trees, oldRoot)
	if err != nil {
		return nil, fmt.Errorf("list old tree: %w", err)
	}
	newFiles, err := treebuilder.Flatten(ctx, e.trees, newRoot)
	if err != nil {
		return nil, fmt.Errorf("list new tree: %w", err)
	}

	result := &SyncResult{}
	var errs error
	for p, id := range newFiles {
		if oldFiles[p] == id {
			continue
		}
		if err := e.ReplaceFile(ctx, id, p, targetDir); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		result.Updated = append(result.Updated, p)
	}
	for p := range oldFiles {
		if _, ok := newFiles[p]; ok {
			continue
		}
		if err := RemoveFile(targetDir, p); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		result.Removed = append(result.Removed, p)
	}
	sortPaths(result.Updated)
	sortPaths(result.Removed)

	e.logger.Debug("synced tree",
		zap.String("from", oldRoot.String()),
		zap.String("to", newRoot.String()),
		zap.Int("updated", len(result.Updated)),
		zap.Int("removed", len(result.Removed)),
	)
	return result, errs
}

// ReplaceFile 用 id 的内容替换工作区中的 p，id 为空时删除
func (e *Exporter) ReplaceFile(ctx context.Context, id string, p types.CanonicalPath, targetDir string) error {
	if id == "" {
		return RemoveFile(targetDir, p)
	}
	dst := p.ToOS(targetDir)
	// 只读文件在某些平台上不能被 rename 覆盖
	if err := os.Chmod(dst, WritableMode); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return e.DownloadBlob(ctx, id, dst)
}

// MakeWritable 让工作区文件可以被直接修改，文件不存在时什么也不做
func (e *Exporter) MakeWritable(p types.CanonicalPath, targetDir string) error {
	if err := os.Chmod(p.ToOS(targetDir), WritableMode); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("make %q writable: %w", p, err)
	}
	return nil
}

// RemoveFile 删除工作区文件，并清理因此变空的父目录
func RemoveFile(targetDir string, p types.CanonicalPath) error {
	dst := p.ToOS(targetDir)
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %q: %w", p, err)
	}
	return RemoveDirRec(targetDir, p.Parent())
}

// RemoveDirRec 自下而上删除空目录，直到遇到非空目录或工作区根目录
func RemoveDirRec(targetDir string, dir types.CanonicalPath) error {
	for !dir.IsRoot() {
		err := os.Remove(dir.ToOS(targetDir))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				dir = dir.Parent()
				continue
			}
			// 非空目录
			return nil
		}
		dir = dir.Parent()
	}
	return nil
}

// TreeFiles 是 treebuilder.Flatten 的便捷包装
func (e *Exporter) TreeFiles(ctx context.Context, root types.Hash) (map[types.CanonicalPath]string, error) {
	return treebuilder.Flatten(ctx, e.trees, root)
}

// ReadTree 读取目录树，用于打印
func (e *Exporter) ReadTree(ctx context.Context, hash types.Hash) (*core.Tree, error) {
	return e.trees.ReadTree(ctx, hash)
}

// Package treebuilder 根据一组文件级变化重建目录树
package treebuilder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"contentvault/pkg/core"
	"contentvault/pkg/types"

	"golang.org/x/sync/errgroup"
)

var (
	ErrPathNotFound = errors.New("path not found in tree")
	// ErrRootNotReached 是程序错误: 重建过程没有处理到根目录
	ErrRootNotReached = errors.New("internal error: tree rebuild never reached the root")
)

// TreeStore 是仓库索引中读写目录树的部分
type TreeStore interface {
	ReadTree(ctx context.Context, hash types.Hash) (*core.Tree, error)
	SaveTree(ctx context.Context, hash types.Hash, tree *core.Tree) error
}

// Builder 负责把变化应用到已有的目录树上
type Builder struct {
	trees       TreeStore
	parallelism int
}

func NewBuilder(trees TreeStore) *Builder {
	return &Builder{trees: trees, parallelism: 8}
}

// WithParallelism 限制同一深度上并发重建的目录数
func (b *Builder) WithParallelism(n int) *Builder {
	if n > 0 {
		b.parallelism = n
	}
	return b
}

// UpdateTreeFromChanges 返回应用 changes 之后的新根目录 Hash
// previousRoot 为空表示从空树开始
func (b *Builder) UpdateTreeFromChanges(ctx context.Context, previousRoot types.Hash, changes []core.Change) (types.Hash, error) {
	// 1. 按父目录分组，并收集所有需要重建的目录 (包括全部祖先)
	byDir := make(map[types.CanonicalPath][]core.Change)
	dirs := map[types.CanonicalPath]struct{}{"": {}}
	for _, c := range changes {
		if c.Path.IsRoot() {
			return "", fmt.Errorf("change without a file name")
		}
		parent := c.Path.Parent()
		byDir[parent] = append(byDir[parent], c)
		for d := parent; ; d = d.Parent() {
			dirs[d] = struct{}{}
			if d.IsRoot() {
				break
			}
		}
	}

	// 2. 按深度分层，深的先处理
	levels := make(map[int][]types.CanonicalPath)
	maxDepth := 0
	for d := range dirs {
		depth := d.Depth()
		levels[depth] = append(levels[depth], d)
		maxDepth = max(maxDepth, depth)
	}

	var (
		mu      sync.Mutex
		rebuilt = make(map[types.CanonicalPath]map[string]types.Hash) // 父目录 -> 子目录名 -> 新 Hash (空表示已删除)
		root    types.Hash
		reached bool
	)

	// 3. 同一深度的目录互不为祖先，可以并行
	for depth := maxDepth; depth >= 0; depth-- {
		level := levels[depth]
		slices.Sort(level)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.parallelism)
		for _, dir := range level {
			mu.Lock()
			children := rebuilt[dir]
			mu.Unlock()

			g.Go(func() error {
				hash, empty, err := b.rebuildDir(gctx, previousRoot, dir, byDir[dir], children)
				if err != nil {
					return fmt.Errorf("rebuild %q: %w", dir, err)
				}

				mu.Lock()
				defer mu.Unlock()
				if dir.IsRoot() {
					root, reached = hash, true
					return nil
				}
				parent := dir.Parent()
				if rebuilt[parent] == nil {
					rebuilt[parent] = make(map[string]types.Hash)
				}
				if empty {
					rebuilt[parent][dir.Name()] = ""
				} else {
					rebuilt[parent][dir.Name()] = hash
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return "", err
		}
	}

	// 4. 没有到达根目录是不变量被破坏
	if !reached {
		return "", ErrRootNotReached
	}
	return root, nil
}

// rebuildDir 重建单个目录并保存，返回新 Hash 以及该目录是否已为空
func (b *Builder) rebuildDir(ctx context.Context, previousRoot types.Hash, dir types.CanonicalPath, changes []core.Change, children map[string]types.Hash) (types.Hash, bool, error) {
	tree, err := FetchTreeSubdir(ctx, b.trees, previousRoot, dir)
	if errors.Is(err, ErrPathNotFound) {
		tree = core.EmptyTree()
	} else if err != nil {
		return "", false, err
	} else {
		tree = tree.Clone()
	}

	for _, c := range changes {
		name := c.Path.Name()
		switch c.Type {
		case core.ChangeDelete:
			tree.RemoveFileNode(name)
		default:
			tree.AddOrUpdateFileNode(core.TreeNode{Name: name, Hash: c.Hash})
		}
	}

	for name, hash := range children {
		if hash.IsZero() {
			// 子目录已经被清空
			tree.RemoveDirNode(name)
			continue
		}
		tree.AddOrUpdateDirNode(core.TreeNode{Name: name, Hash: hash.String()})
	}

	tree.Sort()
	hash := tree.Hash()
	if err := b.trees.SaveTree(ctx, hash, tree); err != nil {
		return "", false, err
	}
	return hash, tree.IsEmpty(), nil
}

// FetchTreeSubdir 从 root 出发沿目录节点找到 dir 对应的目录树
func FetchTreeSubdir(ctx context.Context, trees TreeStore, root types.Hash, dir types.CanonicalPath) (*core.Tree, error) {
	if root.IsZero() {
		if dir.IsRoot() {
			return core.EmptyTree(), nil
		}
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, dir)
	}

	tree, err := trees.ReadTree(ctx, root)
	if err != nil {
		return nil, err
	}
	for _, name := range dir.Components() {
		node, ok := tree.FindDirNode(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, dir)
		}
		tree, err = trees.ReadTree(ctx, types.Hash(node.Hash))
		if err != nil {
			return nil, err
		}
	}
	return tree, nil
}

// FindFileHashInTree 返回 path 处文件的内容 ID
func FindFileHashInTree(ctx context.Context, trees TreeStore, root types.Hash, path types.CanonicalPath) (string, error) {
	if path.IsRoot() {
		return "", fmt.Errorf("%w: empty path", ErrPathNotFound)
	}
	dir, err := FetchTreeSubdir(ctx, trees, root, path.Parent())
	if err != nil {
		return "", err
	}
	node, ok := dir.FindFileNode(path.Name())
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	return node.Hash, nil
}

// Flatten 列出 root 下全部文件: 路径 -> 内容 ID
func Flatten(ctx context.Context, trees TreeStore, root types.Hash) (map[types.CanonicalPath]string, error) {
	out := make(map[types.CanonicalPath]string)
	if root.IsZero() {
		return out, nil
	}

	var walk func(dir types.CanonicalPath, hash types.Hash) error
	walk = func(dir types.CanonicalPath, hash types.Hash) error {
		tree, err := trees.ReadTree(ctx, hash)
		if err != nil {
			return err
		}
		for _, f := range tree.FileNodes {
			out[dir.Join(f.Name)] = f.Hash
		}
		for _, d := range tree.DirectoryNodes {
			if err := walk(dir.Join(d.Name), types.Hash(d.Hash)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk("", root); err != nil {
		return nil, err
	}
	return out, nil
}

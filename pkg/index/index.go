// Package index 记录工作区中尚未提交的本地变化
package index

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"contentvault/pkg/core"
	"contentvault/pkg/types"
)

// Entry 代表一条本地变化
type Entry struct {
	Path types.CanonicalPath `json:"path"`
	Type core.ChangeType     `json:"type"`
	// Hash 是被编辑/删除前的内容 ID，用于 revert；新增文件为空
	Previous   string    `json:"previous,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Index 管理本地变化
type Index struct {
	path    string // 物理文件路径 (.cv/changes.json)
	Entries map[types.CanonicalPath]Entry `json:"entries"`
	mu      sync.RWMutex
}

// NewIndex 加载或创建一个新的 Index
func NewIndex(indexPath string) (*Index, error) {
	idx := &Index{
		path:    indexPath,
		Entries: make(map[types.CanonicalPath]Entry),
	}

	data, err := os.ReadFile(indexPath)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, fmt.Errorf("corrupted index file: %w", err)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[types.CanonicalPath]Entry)
	}
	return idx, nil
}

// Track 记录一次变化，并与已有记录合并:
//   - add 之后 edit: 仍然是 add
//   - add 之后 delete: 记录消失
//   - delete 之后 add: 变成 edit
//   - edit 之后 delete: delete
func (i *Index) Track(path types.CanonicalPath, typ core.ChangeType, previous string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := time.Now()
	old, ok := i.Entries[path]
	if !ok {
		i.Entries[path] = Entry{Path: path, Type: typ, Previous: previous, ModifiedAt: now}
		return
	}

	next := old
	next.ModifiedAt = now
	switch {
	case old.Type == core.ChangeAdd && typ == core.ChangeDelete:
		delete(i.Entries, path)
		return
	case old.Type == core.ChangeAdd:
		// 保持 add
	case old.Type == core.ChangeDelete && typ == core.ChangeAdd:
		next.Type = core.ChangeEdit
	default:
		next.Type = typ
	}
	i.Entries[path] = next
}

func (i *Index) Get(path types.CanonicalPath) (Entry, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.Entries[path]
	return e, ok
}

// Save 先写临时文件再 rename，避免半写的 changes.json
func (i *Index) Save() error {
	i.mu.RLock()
	data, err := json.MarshalIndent(i, "", "  ")
	i.mu.RUnlock()
	if err != nil {
		return err
	}

	tmp := i.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(i.path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, i.path)
}

// Snapshot 返回当前 Entry 的副本，用于并发安全的读取
func (i *Index) Snapshot() map[types.CanonicalPath]Entry {
	i.mu.RLock()
	defer i.mu.RUnlock()

	snap := make(map[types.CanonicalPath]Entry, len(i.Entries))
	maps.Copy(snap, i.Entries)
	return snap
}

// Sorted 按路径排序返回全部记录
func (i *Index) Sorted() []Entry {
	snap := i.Snapshot()
	out := make([]Entry, 0, len(snap))
	for _, e := range snap {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if a.Path < b.Path {
			return -1
		}
		if a.Path > b.Path {
			return 1
		}
		return 0
	})
	return out
}

func (i *Index) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Entries = make(map[types.CanonicalPath]Entry)
}

// IsEmpty 检查是否有未提交的变化
func (i *Index) IsEmpty() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.Entries) == 0
}

func (i *Index) Remove(path types.CanonicalPath) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.Entries, path)
}

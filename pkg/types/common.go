// pkg/types/common.go
package types

import (
	"path"
	"path/filepath"
	"strings"
)

// Hash 代表 Tree / Commit 的唯一标识符 (SHA256 Hex String)
// 这是一个“值对象”，应当是不可变的。
type Hash string

func (h Hash) String() string { return string(h) }

// 验证 Hash 合法性
func (h Hash) IsZero() bool  { return h == "" }
func (h Hash) IsValid() bool { return len(h) == 64 } // 简单的长度检查

// CanonicalPath 是相对于工作区根目录、以 "/" 分隔的路径
// 根目录本身用空字符串表示
type CanonicalPath string

// NewCanonicalPath 把任意 OS 路径归一化
// "./a\\b/../c" -> "a/c", "." -> ""
func NewCanonicalPath(p string) CanonicalPath {
	clean := path.Clean(filepath.ToSlash(p))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "." {
		return ""
	}
	return CanonicalPath(clean)
}

func (p CanonicalPath) String() string { return string(p) }
func (p CanonicalPath) IsRoot() bool   { return p == "" }

// Parent 返回父目录，根目录下的条目返回 ""
func (p CanonicalPath) Parent() CanonicalPath {
	i := strings.LastIndexByte(string(p), '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}

// Name 返回最后一个路径组件
func (p CanonicalPath) Name() string {
	i := strings.LastIndexByte(string(p), '/')
	return string(p[i+1:])
}

// Components 按 "/" 拆分，根目录返回 nil
func (p CanonicalPath) Components() []string {
	if p.IsRoot() {
		return nil
	}
	return strings.Split(string(p), "/")
}

// Depth 是路径组件的数量 (根目录为 0)
func (p CanonicalPath) Depth() int { return len(p.Components()) }

func (p CanonicalPath) Join(name string) CanonicalPath {
	if p.IsRoot() {
		return CanonicalPath(name)
	}
	return p + "/" + CanonicalPath(name)
}

// ToOS 转换为 root 下的本地路径
func (p CanonicalPath) ToOS(root string) string {
	return filepath.Join(root, filepath.FromSlash(string(p)))
}

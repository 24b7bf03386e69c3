package core

import (
	"fmt"
	"time"

	"contentvault/pkg/types"
)

type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeEdit   ChangeType = "edit"
	ChangeDelete ChangeType = "delete"
)

// Change 是一次提交中单个文件的变化
// Delete 的 Hash 为空
type Change struct {
	Path types.CanonicalPath `cbor:"p" json:"path"`
	Hash string              `cbor:"h" json:"hash"`
	Type ChangeType          `cbor:"t" json:"type"`
}

func NewChange(path types.CanonicalPath, hash string, typ ChangeType) Change {
	if typ == ChangeDelete {
		hash = ""
	}
	return Change{Path: path, Hash: hash, Type: typ}
}

type Commit struct {
	ID types.Hash `cbor:"-" json:"id"`

	Owner     string       `cbor:"o" json:"owner"`
	Message   string       `cbor:"m" json:"message"`
	Changes   []Change     `cbor:"c" json:"changes"`
	RootHash  types.Hash   `cbor:"r" json:"root_hash"`
	Parents   []types.Hash `cbor:"p" json:"parents"`
	Timestamp int64        `cbor:"ts" json:"timestamp"`
}

// NewCommit 构造 Commit 并计算 ID
// ID 是除 ID 以外所有字段的规范化编码的 Hash
func NewCommit(owner, message string, changes []Change, root types.Hash, parents []types.Hash) (*Commit, error) {
	c := &Commit{
		Owner:     owner,
		Message:   message,
		Changes:   changes,
		RootHash:  root,
		Parents:   parents,
		Timestamp: time.Now().UnixNano(),
	}
	if err := c.Seal(); err != nil {
		return nil, err
	}
	return c, nil
}

// Seal 根据当前内容重新计算 ID
func (c *Commit) Seal() error {
	h, _, err := CalculateHash(c)
	if err != nil {
		return fmt.Errorf("failed to hash commit: %w", err)
	}
	c.ID = h
	return nil
}

// FirstParent 返回主线父提交，根提交返回 false
func (c *Commit) FirstParent() (types.Hash, bool) {
	if len(c.Parents) == 0 {
		return "", false
	}
	return c.Parents[0], true
}

// Branch 是一个有名字的提交指针
type Branch struct {
	Name    string     `json:"name"`
	Head    types.Hash `json:"head"`
	Parent  string     `json:"parent"`
	Version int64      `json:"-"`
}

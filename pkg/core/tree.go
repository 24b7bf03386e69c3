package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"contentvault/pkg/types"
)

// TreeNode 是目录里的一个条目
// 文件节点的 Hash 是内容 Identifier 的字符串形式，目录节点的 Hash 是子 Tree 的 Hash
type TreeNode struct {
	Name string `cbor:"n" json:"name"`
	Hash string `cbor:"h" json:"hash"`
}

// Tree 是一个目录的快照，子目录和文件分两张表存放
type Tree struct {
	DirectoryNodes []TreeNode `cbor:"d" json:"directory_nodes"`
	FileNodes      []TreeNode `cbor:"f" json:"file_nodes"`
}

func EmptyTree() *Tree {
	return &Tree{DirectoryNodes: []TreeNode{}, FileNodes: []TreeNode{}}
}

func (t *Tree) IsEmpty() bool {
	return len(t.DirectoryNodes) == 0 && len(t.FileNodes) == 0
}

func (t *Tree) Clone() *Tree {
	return &Tree{
		DirectoryNodes: append([]TreeNode{}, t.DirectoryNodes...),
		FileNodes:      append([]TreeNode{}, t.FileNodes...),
	}
}

// Sort 按名字排序两张表，计算 Hash 之前必须调用
func (t *Tree) Sort() {
	byName := func(a, b TreeNode) int { return strings.Compare(a.Name, b.Name) }
	slices.SortFunc(t.DirectoryNodes, byName)
	slices.SortFunc(t.FileNodes, byName)
}

// Hash 依次喂入每个目录节点、再每个文件节点的 name 和 hash 字节
// 结果只取决于节点的顺序，所以调用方要先 Sort
func (t *Tree) Hash() types.Hash {
	h := sha256.New()
	for _, n := range t.DirectoryNodes {
		h.Write([]byte(n.Name))
		h.Write([]byte(n.Hash))
	}
	for _, n := range t.FileNodes {
		h.Write([]byte(n.Name))
		h.Write([]byte(n.Hash))
	}
	return types.Hash(hex.EncodeToString(h.Sum(nil)))
}

func (t *Tree) AddOrUpdateFileNode(node TreeNode) {
	t.RemoveFileNode(node.Name)
	t.FileNodes = append(t.FileNodes, node)
}

func (t *Tree) AddOrUpdateDirNode(node TreeNode) {
	t.RemoveDirNode(node.Name)
	t.DirectoryNodes = append(t.DirectoryNodes, node)
}

func (t *Tree) RemoveFileNode(name string) {
	t.FileNodes = slices.DeleteFunc(t.FileNodes, func(n TreeNode) bool { return n.Name == name })
}

func (t *Tree) RemoveDirNode(name string) {
	t.DirectoryNodes = slices.DeleteFunc(t.DirectoryNodes, func(n TreeNode) bool { return n.Name == name })
}

func (t *Tree) FindFileNode(name string) (TreeNode, bool) {
	return findNode(t.FileNodes, name)
}

func (t *Tree) FindDirNode(name string) (TreeNode, bool) {
	return findNode(t.DirectoryNodes, name)
}

func findNode(nodes []TreeNode, name string) (TreeNode, bool) {
	for _, n := range nodes {
		if n.Name == name {
			return n, true
		}
	}
	return TreeNode{}, false
}

// Encode 把 Tree 序列化为规范化 CBOR
func (t *Tree) Encode() ([]byte, error) {
	data, err := em.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tree: %w", err)
	}
	return data, nil
}

func DecodeTree(data []byte) (*Tree, error) {
	var t Tree
	if err := dm.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode tree: %w", err)
	}
	if t.DirectoryNodes == nil {
		t.DirectoryNodes = []TreeNode{}
	}
	if t.FileNodes == nil {
		t.FileNodes = []TreeNode{}
	}
	return &t, nil
}

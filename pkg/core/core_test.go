package core

import (
	"testing"

	"contentvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_HashDeterminism(t *testing.T) {
	files := []TreeNode{
		{Name: "a.txt", Hash: "h-a"},
		{Name: "b.txt", Hash: "h-b"},
		{Name: "c.txt", Hash: "h-c"},
	}
	dirs := []TreeNode{
		{Name: "src", Hash: string(mockHash("src"))},
		{Name: "docs", Hash: string(mockHash("docs"))},
	}

	// 所有插入顺序的排列
	perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	var first types.Hash
	for _, p := range perms {
		tree := EmptyTree()
		for _, i := range p {
			tree.AddOrUpdateFileNode(files[i])
		}
		for _, i := range []int{p[0] % 2, (p[0] + 1) % 2} {
			tree.AddOrUpdateDirNode(dirs[i])
		}
		tree.Sort()

		h := tree.Hash()
		if first == "" {
			first = h
		}
		assert.Equal(t, first, h, "permutation %v", p)
	}
	assert.True(t, first.IsValid())
}

func TestTree_HashDependsOnContent(t *testing.T) {
	a := EmptyTree()
	a.AddOrUpdateFileNode(TreeNode{Name: "a.txt", Hash: "h1"})
	b := EmptyTree()
	b.AddOrUpdateFileNode(TreeNode{Name: "a.txt", Hash: "h2"})

	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestTree_RoundTrip(t *testing.T) {
	tree := EmptyTree()
	tree.AddOrUpdateDirNode(TreeNode{Name: "models", Hash: string(mockHash("m"))})
	tree.AddOrUpdateFileNode(TreeNode{Name: "readme.md", Hash: "r"})
	tree.AddOrUpdateFileNode(TreeNode{Name: "LICENSE", Hash: "l"})
	tree.Sort()

	data, err := tree.Encode()
	require.NoError(t, err)

	back, err := DecodeTree(data)
	require.NoError(t, err)

	assert.Equal(t, tree, back)
	assert.Equal(t, tree.Hash(), back.Hash())
}

func TestTree_NodeOperations(t *testing.T) {
	tree := EmptyTree()
	tree.AddOrUpdateFileNode(TreeNode{Name: "a", Hash: "1"})
	tree.AddOrUpdateFileNode(TreeNode{Name: "a", Hash: "2"})

	require.Len(t, tree.FileNodes, 1)
	node, ok := tree.FindFileNode("a")
	require.True(t, ok)
	assert.Equal(t, "2", node.Hash)

	tree.RemoveFileNode("a")
	tree.RemoveFileNode("missing")
	assert.True(t, tree.IsEmpty())

	_, ok = tree.FindDirNode("a")
	assert.False(t, ok)
}

func TestCommit_ID(t *testing.T) {
	root := mockHash("root")
	c := mustNewCommit(t, root, nil, NewChange("a.txt", "h", ChangeAdd))
	assert.True(t, c.ID.IsValid())

	// 相同内容重新 Seal 得到相同 ID
	id := c.ID
	require.NoError(t, c.Seal())
	assert.Equal(t, id, c.ID)

	// 修改任意字段都会改变 ID
	c.Message = "other"
	require.NoError(t, c.Seal())
	assert.NotEqual(t, id, c.ID)

	_, ok := c.FirstParent()
	assert.False(t, ok)

	child := mustNewCommit(t, root, []types.Hash{c.ID})
	p, ok := child.FirstParent()
	assert.True(t, ok)
	assert.Equal(t, c.ID, p)
}

func TestNewChange_DeleteClearsHash(t *testing.T) {
	c := NewChange("dir/x", "something", ChangeDelete)
	assert.Empty(t, c.Hash)
	assert.Equal(t, ChangeDelete, c.Type)
}

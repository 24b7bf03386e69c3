package core

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"contentvault/pkg/types"

	"github.com/stretchr/testify/require"
)

// mockHash 生成一个合法的 64 字符 Hash
func mockHash(input string) types.Hash {
	sum := sha256.Sum256([]byte(input))
	return types.Hash(hex.EncodeToString(sum[:]))
}

// mustNewCommit 创建 Commit，如果失败直接终止测试
func mustNewCommit(t *testing.T, root types.Hash, parents []types.Hash, changes ...Change) *Commit {
	t.Helper()
	c, err := NewCommit("alice", "msg", changes, root, parents)
	require.NoError(t, err)
	return c
}

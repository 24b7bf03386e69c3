package disk

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"contentvault/pkg/storage"
	"contentvault/pkg/types"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskProvider(t *testing.T) {
	// 1. 创建临时测试目录
	tmpDir := t.TempDir()
	p, err := NewProvider(tmpDir)
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte("hello world")
	id := types.NewIdentifier(data)

	// 2. 写入前 NotFound
	exists, err := storage.Exists(ctx, p, id)
	require.NoError(t, err)
	assert.False(t, exists)

	// 3. 写入
	got, err := storage.WriteAll(ctx, p, data)
	require.NoError(t, err)
	assert.True(t, id.Equal(got))

	// 验证文件是否真的存在于 Sharding 目录中
	expectedPath := filepath.Join(tmpDir, id.Hex()[:2], id.String())
	_, err = os.Stat(expectedPath)
	assert.NoError(t, err, "文件应该存在于 Sharding 目录中")

	// 4. 读取
	content, origin, err := storage.ReadAll(ctx, p, id)
	require.NoError(t, err)
	assert.Equal(t, data, content)
	assert.Equal(t, storage.OriginLocal, origin.Kind)
	assert.Equal(t, expectedPath, origin.Path)

	// 5. 第二次写入
	_, err = p.Write(ctx, id)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	_, err = storage.WriteAll(ctx, p, data)
	assert.NoError(t, err, "WriteAll 必须幂等")
}

func TestDiskProvider_MemFs(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	p := NewProviderWithFs(fs, "/store")

	data := []byte("in-memory filesystem")
	id := types.NewIdentifier(data)

	w, err := p.Write(ctx, id)
	require.NoError(t, err)
	_, err = w.Write(data[:5])
	require.NoError(t, err)

	// 未提交的写入对读者不可见
	_, _, err = p.Read(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = w.Write(data[5:])
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Abort(), "Close 之后 Abort 是空操作")

	content, _, err := storage.ReadAll(ctx, p, id)
	require.NoError(t, err)
	assert.Equal(t, data, content)
}

func TestDiskProvider_AbortLeavesNothing(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	p := NewProviderWithFs(fs, "/store")
	id := types.NewIdentifier([]byte("never committed"))

	w, err := p.Write(ctx, id)
	require.NoError(t, err)
	_, _ = w.Write([]byte("never"))
	require.NoError(t, w.Abort())

	entries, err := afero.ReadDir(fs, id.Hex()[:2])
	require.NoError(t, err)
	assert.Empty(t, entries, "临时文件必须被清理")

	exists, err := storage.Exists(ctx, p, id)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDiskProvider_EmptyContent(t *testing.T) {
	ctx := context.Background()
	p := NewProviderWithFs(afero.NewMemMapFs(), "/store")

	id, err := storage.WriteAll(ctx, p, nil)
	require.NoError(t, err)

	exists, err := storage.Exists(ctx, p, id)
	require.NoError(t, err)
	assert.True(t, exists)
}

// 中断的写入可能留下空文件，下一次写入必须覆盖它
func TestDiskProvider_OverwritesEmptyLeftover(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	p := NewProviderWithFs(fs, "/store")
	data := []byte("hello world")
	id := types.NewIdentifier(data)

	require.NoError(t, fs.MkdirAll(id.Hex()[:2], 0755))
	require.NoError(t, afero.WriteFile(fs, layout(id), nil, 0644))

	exists, err := storage.Exists(ctx, p, id)
	require.NoError(t, err)
	assert.False(t, exists, "空文件不算已存在")

	_, err = storage.WriteAll(ctx, p, data)
	require.NoError(t, err)

	content, _, err := storage.ReadAll(ctx, p, id)
	require.NoError(t, err)
	assert.Equal(t, data, content)

	entries, err := afero.ReadDir(fs, id.Hex()[:2])
	require.NoError(t, err)
	assert.Len(t, entries, 1, "临时文件必须被重命名，而不是残留")
}

func TestDiskProvider_Addresses(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()
	p, err := NewProvider(tmpDir)
	require.NoError(t, err)

	data := []byte("addressed")
	id := types.NewIdentifier(data)

	_, _, err = p.ReadAddress(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	addr, err := p.WriteAddress(ctx, id)
	require.NoError(t, err)
	u, err := url.Parse(addr)
	require.NoError(t, err)
	assert.Equal(t, "file", u.Scheme)

	_, err = storage.WriteAll(ctx, p, data)
	require.NoError(t, err)

	_, err = p.WriteAddress(ctx, id)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	addr, origin, err := p.ReadAddress(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.OriginLocal, origin.Kind)
	u, err = url.Parse(addr)
	require.NoError(t, err)
	onDisk, err := os.ReadFile(filepath.FromSlash(u.Path))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)
}

func TestAliasProvider(t *testing.T) {
	ctx := context.Background()
	a := NewAliasProviderWithFs(afero.NewMemMapFs())
	id := types.NewIdentifier([]byte("aliased"))

	_, err := a.ResolveAlias(ctx, "ks", "a/b:c")
	assert.ErrorIs(t, err, storage.ErrAliasNotFound)

	require.NoError(t, a.RegisterAlias(ctx, "ks", "a/b:c", id))
	err = a.RegisterAlias(ctx, "ks", "a/b:c", id)
	assert.ErrorIs(t, err, storage.ErrAliasAlreadyExists)

	got, err := a.ResolveAlias(ctx, "ks", "a/b:c")
	require.NoError(t, err)
	assert.True(t, id.Equal(got))
}

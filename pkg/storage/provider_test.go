package storage_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"contentvault/pkg/storage"
	"contentvault/pkg/storage/memory"
	"contentvault/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAll_ReadAll(t *testing.T) {
	ctx := context.Background()
	p := memory.NewProvider()

	inputs := [][]byte{nil, []byte("a"), bytes.Repeat([]byte("xyz"), 10000)}
	for _, b := range inputs {
		id, err := storage.WriteAll(ctx, p, b)
		require.NoError(t, err)
		assert.Equal(t, uint64(len(b)), id.Size())

		got, _, err := storage.ReadAll(ctx, p, id)
		require.NoError(t, err)
		assert.Equal(t, len(b), len(got))
		assert.True(t, bytes.Equal(b, got))
	}
}

func TestCopyTo(t *testing.T) {
	ctx := context.Background()
	p := memory.NewProvider()
	id, err := storage.WriteAll(ctx, p, []byte("stream me"))
	require.NoError(t, err)

	var buf bytes.Buffer
	n, origin, err := storage.CopyTo(ctx, p, id, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.Equal(t, "stream me", buf.String())
	assert.Equal(t, storage.OriginMemory, origin.Kind)
}

func TestWriteFrom(t *testing.T) {
	ctx := context.Background()
	p := memory.NewProvider()
	data := "from a reader"
	id := types.NewIdentifier([]byte(data))

	require.NoError(t, storage.WriteFrom(ctx, p, id, strings.NewReader(data)))
	require.NoError(t, storage.WriteFrom(ctx, p, id, strings.NewReader(data)), "重复写入幂等")

	got, _, err := storage.ReadAll(ctx, p, id)
	require.NoError(t, err)
	assert.Equal(t, data, string(got))
}

func TestVerifyingProvider(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewProvider()
	p := storage.NewVerifyingProvider(inner)

	// 正确的内容可以写入
	_, err := storage.WriteAll(ctx, p, []byte("honest"))
	require.NoError(t, err)

	// 错误的内容被拒绝，并且不会留下数据
	id := types.NewIdentifier([]byte("claimed"))
	w, err := p.Write(ctx, id)
	require.NoError(t, err)
	_, err = w.Write([]byte("actual"))
	require.NoError(t, err)
	assert.ErrorIs(t, w.Close(), storage.ErrCorrupted)

	exists, err := storage.Exists(ctx, inner, id)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCompressedProvider(t *testing.T) {
	for _, c := range []storage.Compression{storage.CompressionLZ4, storage.CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			ctx := context.Background()
			inner := memory.NewProvider()
			p, err := storage.NewCompressedProvider(inner, c)
			require.NoError(t, err)

			data := bytes.Repeat([]byte("compressible "), 4096)
			id, err := storage.WriteAll(ctx, p, data)
			require.NoError(t, err)

			// 底层存的是压缩后的数据
			raw, _, err := storage.ReadAll(ctx, inner, id)
			require.NoError(t, err)
			assert.Less(t, len(raw), len(data))

			got, _, err := storage.ReadAll(ctx, p, id)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}

	_, err := storage.ParseCompression("brotli")
	assert.ErrorIs(t, err, storage.ErrConfiguration)

	same, err := storage.NewCompressedProvider(memory.NewProvider(), storage.CompressionNone)
	require.NoError(t, err)
	assert.IsType(t, &memory.Provider{}, same)
}

func TestInstrumentedProvider(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := storage.NewMetrics(reg)
	p := m.Instrument("mem", memory.NewProvider())

	id, err := storage.WriteAll(ctx, p, []byte("12345"))
	require.NoError(t, err)
	_, _, err = storage.ReadAll(ctx, p, id)
	require.NoError(t, err)
	_, _, err = p.Read(ctx, types.NewIdentifier([]byte("missing")))
	require.ErrorIs(t, err, storage.ErrNotFound)

	count, err := testutil.GatherAndCount(reg, "contentvault_provider_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "write/ok, read/ok, read/not_found")
}

func TestOrigin_EncodeDecode(t *testing.T) {
	origins := []storage.Origin{
		storage.MemoryOrigin(),
		storage.LocalOrigin("/tmp/x"),
		storage.RedisOrigin("localhost:6379", "content:abc"),
		storage.AwsS3Origin("bucket", "root/abc"),
		storage.AwsDynamoDbOrigin("eu-west-1", "content", "abc"),
		storage.GrpcOrigin("cv.example:8080", storage.AwsS3Origin("bucket", "root/abc")),
	}
	for _, o := range origins {
		data, err := o.Encode()
		require.NoError(t, err)
		back, err := storage.DecodeOrigin(data)
		require.NoError(t, err)
		assert.Equal(t, o, back)
		assert.NotEmpty(t, back.String())
	}

	empty, err := storage.DecodeOrigin(nil)
	require.NoError(t, err)
	assert.Equal(t, storage.Origin{}, empty)
}

func TestScopedAliasKey(t *testing.T) {
	assert.Equal(t, "2:ks:k", storage.ScopedAliasKey("ks", "k"))
	assert.NotEqual(t, storage.ScopedAliasKey("a:b", "c"), storage.ScopedAliasKey("a", "b:c"))
	// 扁平格式保持原样
	assert.Equal(t, storage.AliasKey("a:b", "c"), storage.AliasKey("a", "b:c"))
}

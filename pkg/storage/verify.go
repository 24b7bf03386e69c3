package storage

import (
	"context"
	"fmt"
	"io"

	"contentvault/pkg/types"
)

// VerifyingProvider 在写入时重新计算 Hash，不匹配则放弃写入
// 代价是每次写入多一次完整的哈希计算，所以默认不启用
type VerifyingProvider struct {
	inner Provider
}

func NewVerifyingProvider(inner Provider) *VerifyingProvider {
	return &VerifyingProvider{inner: inner}
}

func (p *VerifyingProvider) Read(ctx context.Context, id types.Identifier) (io.ReadCloser, Origin, error) {
	return p.inner.Read(ctx, id)
}

func (p *VerifyingProvider) Write(ctx context.Context, id types.Identifier) (Writer, error) {
	w, err := p.inner.Write(ctx, id)
	if err != nil {
		return nil, err
	}
	return &verifyingWriter{id: id, inner: w, hasher: types.NewHasher(id.Algorithm())}, nil
}

type verifyingWriter struct {
	id     types.Identifier
	inner  Writer
	hasher *types.Hasher
}

func (w *verifyingWriter) Write(p []byte) (int, error) {
	w.hasher.Write(p)
	return w.inner.Write(p)
}

func (w *verifyingWriter) Close() error {
	got := w.hasher.Identifier()
	if !got.Equal(w.id) || got.Size() != w.id.Size() {
		_ = w.inner.Abort()
		return fmt.Errorf("%w: expected %s, got %s", ErrCorrupted, w.id, got)
	}
	return w.inner.Close()
}

func (w *verifyingWriter) Abort() error {
	return w.inner.Abort()
}

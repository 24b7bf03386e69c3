// Package cache 组合多个 Provider: 快速层 (缓存) + 慢速层 (事实来源)
package cache

import (
	"context"
	"errors"
	"io"

	"contentvault/pkg/storage"
	"contentvault/pkg/types"

	"go.uber.org/zap"
)

// CachingProvider 是读穿透 / 写穿透的两级 Provider
//
// 读: 先查 local，未命中再查 remote，并在读取过程中回填 local
// 写: 只以 remote 为准，local 的写入失败永远不会让写入失败
type CachingProvider struct {
	remote storage.Provider
	local  storage.Provider
	logger *zap.Logger
}

func NewCachingProvider(remote, local storage.Provider, logger *zap.Logger) *CachingProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingProvider{remote: remote, local: local, logger: logger}
}

func (p *CachingProvider) Read(ctx context.Context, id types.Identifier) (io.ReadCloser, storage.Origin, error) {
	r, origin, err := p.local.Read(ctx, id)
	if err == nil {
		return r, origin, nil
	}

	if !errors.Is(err, storage.ErrNotFound) {
		// 快速层故障: 降级为直接读慢速层，不回填
		p.logger.Warn("cache read failed, falling back to remote",
			zap.Stringer("id", id), zap.Error(err))
		return p.remote.Read(ctx, id)
	}

	r, origin, err = p.remote.Read(ctx, id)
	if err != nil {
		return nil, storage.Origin{}, err
	}

	w, err := p.local.Write(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrAlreadyExists) {
			p.logger.Warn("cache populate failed", zap.Stringer("id", id), zap.Error(err))
		}
		return r, origin, nil
	}

	return &promotingReader{src: r, dst: w, id: id, logger: p.logger}, origin, nil
}

func (p *CachingProvider) Write(ctx context.Context, id types.Identifier) (storage.Writer, error) {
	w, err := p.remote.Write(ctx, id)
	if err != nil {
		return nil, err
	}

	lw, lerr := p.local.Write(ctx, id)
	if lerr != nil {
		if !errors.Is(lerr, storage.ErrAlreadyExists) {
			p.logger.Warn("cache mirror unavailable", zap.Stringer("id", id), zap.Error(lerr))
		}
		return w, nil
	}
	return &mirroringWriter{remote: w, local: lw, id: id, logger: p.logger}, nil
}

// promotingReader 在调用方读取的同时把数据写入快速层
// 只有完整读到 EOF 时才提交回填
type promotingReader struct {
	src    io.ReadCloser
	dst    storage.Writer
	id     types.Identifier
	logger *zap.Logger
	failed bool
	done   bool
}

func (r *promotingReader) Read(b []byte) (int, error) {
	n, err := r.src.Read(b)
	if n > 0 && !r.failed && !r.done {
		if _, werr := r.dst.Write(b[:n]); werr != nil {
			r.failed = true
			r.dst.Abort()
			r.logger.Warn("cache populate failed", zap.Stringer("id", r.id), zap.Error(werr))
		}
	}
	if err == io.EOF && !r.failed && !r.done {
		r.done = true
		if cerr := r.dst.Close(); cerr != nil {
			r.logger.Warn("cache populate failed", zap.Stringer("id", r.id), zap.Error(cerr))
		}
	}
	return n, err
}

func (r *promotingReader) Close() error {
	if !r.done {
		r.done = true
		r.dst.Abort()
	}
	return r.src.Close()
}

// mirroringWriter 先提交 remote，成功后再尽力提交 local
type mirroringWriter struct {
	remote  storage.Writer
	local   storage.Writer
	id      types.Identifier
	logger  *zap.Logger
	dropped bool
}

func (w *mirroringWriter) Write(b []byte) (int, error) {
	n, err := w.remote.Write(b)
	if err != nil {
		return n, err
	}
	if !w.dropped {
		if _, lerr := w.local.Write(b[:n]); lerr != nil {
			w.dropped = true
			w.local.Abort()
			w.logger.Warn("cache mirror failed", zap.Stringer("id", w.id), zap.Error(lerr))
		}
	}
	return n, nil
}

func (w *mirroringWriter) Close() error {
	if err := w.remote.Close(); err != nil {
		w.local.Abort()
		return err
	}
	if !w.dropped {
		if err := w.local.Close(); err != nil {
			w.logger.Warn("cache mirror failed", zap.Stringer("id", w.id), zap.Error(err))
		}
	}
	return nil
}

func (w *mirroringWriter) Abort() error {
	w.local.Abort()
	return w.remote.Abort()
}

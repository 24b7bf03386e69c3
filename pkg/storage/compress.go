package storage

import (
	"context"
	"fmt"
	"io"

	"contentvault/pkg/types"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

type Compression string

const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
	CompressionZstd Compression = "zstd"
)

func ParseCompression(name string) (Compression, error) {
	switch Compression(name) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionLZ4, CompressionZstd:
		return Compression(name), nil
	default:
		return "", fmt.Errorf("%w: unknown compression %q", ErrConfiguration, name)
	}
}

// CompressedProvider 在落盘前压缩内容，读取时解压
// ID 始终对应未压缩的数据
type CompressedProvider struct {
	inner       Provider
	compression Compression
}

func NewCompressedProvider(inner Provider, c Compression) (Provider, error) {
	switch c {
	case CompressionNone:
		return inner, nil
	case CompressionLZ4, CompressionZstd:
		return &CompressedProvider{inner: inner, compression: c}, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression %q", ErrConfiguration, c)
	}
}

func (p *CompressedProvider) Read(ctx context.Context, id types.Identifier) (io.ReadCloser, Origin, error) {
	r, origin, err := p.inner.Read(ctx, id)
	if err != nil {
		return nil, Origin{}, err
	}

	switch p.compression {
	case CompressionLZ4:
		return &decompressingReader{Reader: lz4.NewReader(r), inner: r}, origin, nil
	default:
		dec, err := zstd.NewReader(r)
		if err != nil {
			r.Close()
			return nil, Origin{}, fmt.Errorf("zstd reader for %s: %w", id, err)
		}
		return &decompressingReader{Reader: dec, inner: r, release: dec.Close}, origin, nil
	}
}

func (p *CompressedProvider) Write(ctx context.Context, id types.Identifier) (Writer, error) {
	w, err := p.inner.Write(ctx, id)
	if err != nil {
		return nil, err
	}

	switch p.compression {
	case CompressionLZ4:
		return &compressingWriter{enc: lz4.NewWriter(w), inner: w}, nil
	default:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			w.Abort()
			return nil, fmt.Errorf("zstd writer for %s: %w", id, err)
		}
		return &compressingWriter{enc: enc, inner: w}, nil
	}
}

type decompressingReader struct {
	io.Reader
	inner   io.Closer
	release func()
}

func (r *decompressingReader) Close() error {
	if r.release != nil {
		r.release()
	}
	return r.inner.Close()
}

type compressingWriter struct {
	enc   io.WriteCloser
	inner Writer
}

func (w *compressingWriter) Write(p []byte) (int, error) {
	return w.enc.Write(p)
}

// Close 先冲刷压缩器，再提交底层写入
func (w *compressingWriter) Close() error {
	if err := w.enc.Close(); err != nil {
		w.inner.Abort()
		return fmt.Errorf("flush compressed stream: %w", err)
	}
	return w.inner.Close()
}

func (w *compressingWriter) Abort() error {
	return w.inner.Abort()
}

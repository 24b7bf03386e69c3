package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"contentvault/pkg/types"
)

var (
	ErrNotFound      = errors.New("content not found")
	ErrAlreadyExists = errors.New("content already exists")
	ErrConfiguration = errors.New("invalid provider configuration")
	ErrCorrupted     = errors.New("content does not match its identifier")
	ErrWriterClosed  = errors.New("writer already closed")
)

// NotFound 包装 ErrNotFound 并带上 ID，调用方用 errors.Is 判断
func NotFound(id fmt.Stringer) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func AlreadyExists(id fmt.Stringer) error {
	return fmt.Errorf("%w: %s", ErrAlreadyExists, id)
}

// Writer 是一次写入的句柄
// Close 提交写入，Abort 丢弃已写的数据；Close 成功后再 Abort 是空操作
// 推荐用法: defer w.Abort()，最后显式 w.Close()
type Writer interface {
	io.WriteCloser
	Abort() error
}

// Provider 是所有内容存储后端的统一契约
// Implementations: memory, disk, lru, cache (fast/slow), redis, s3, dynamodb, remote (gRPC).
type Provider interface {
	// Read 返回完整的字节流，ID 不存在时返回 ErrNotFound
	Read(ctx context.Context, id types.Identifier) (io.ReadCloser, Origin, error)

	// Write 返回一个写句柄，ID 已存在时返回 ErrAlreadyExists
	// 调用方必须写入 Hash 恰好等于 id 的数据，Provider 不会校验
	Write(ctx context.Context, id types.Identifier) (Writer, error)
}

// Exists 通过 Read 推导存在性：NotFound -> false，其他错误原样返回
func Exists(ctx context.Context, p Provider, id types.Identifier) (bool, error) {
	r, _, err := p.Read(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, r.Close()
}

// ReadAll 读取完整内容和来源信息
func ReadAll(ctx context.Context, p Provider, id types.Identifier) ([]byte, Origin, error) {
	r, origin, err := p.Read(ctx, id)
	if err != nil {
		return nil, Origin{}, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Origin{}, fmt.Errorf("failed to read content %s: %w", id, err)
	}
	return data, origin, nil
}

// CopyTo 把内容流式写入 w
func CopyTo(ctx context.Context, p Provider, id types.Identifier, w io.Writer) (int64, Origin, error) {
	r, origin, err := p.Read(ctx, id)
	if err != nil {
		return 0, Origin{}, err
	}
	defer r.Close()

	n, err := io.Copy(w, r)
	if err != nil {
		return n, Origin{}, fmt.Errorf("failed to copy content %s: %w", id, err)
	}
	return n, origin, nil
}

// WriteAll 计算 data 的 ID 并写入；已存在视为成功 (幂等)
func WriteAll(ctx context.Context, p Provider, data []byte) (types.Identifier, error) {
	return WriteAllWith(ctx, p, types.DefaultAlgorithm, data)
}

func WriteAllWith(ctx context.Context, p Provider, alg types.Algorithm, data []byte) (types.Identifier, error) {
	id := types.NewIdentifierWith(alg, data)
	if err := WriteContent(ctx, p, id, data); err != nil {
		return types.Identifier{}, err
	}
	return id, nil
}

// WriteContent 写入已知 ID 的数据；已存在视为成功
func WriteContent(ctx context.Context, p Provider, id types.Identifier, data []byte) error {
	w, err := p.Write(ctx, id)
	if errors.Is(err, ErrAlreadyExists) {
		return nil
	}
	if err != nil {
		return err
	}
	defer w.Abort()

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write content %s: %w", id, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to commit content %s: %w", id, err)
	}
	return nil
}

// WriteFrom 把 r 的内容写入 id
func WriteFrom(ctx context.Context, p Provider, id types.Identifier, r io.Reader) error {
	w, err := p.Write(ctx, id)
	if errors.Is(err, ErrAlreadyExists) {
		return nil
	}
	if err != nil {
		return err
	}
	defer w.Abort()

	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("failed to write content %s: %w", id, err)
	}
	return w.Close()
}

// BufferedWriter 在内存中累积数据，Close 时一次性提交
// 适合 redis / dynamodb / 内存这类整块写入的后端
type BufferedWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	commit func(data []byte) error
	closed bool
}

func NewBufferedWriter(commit func(data []byte) error) *BufferedWriter {
	return &BufferedWriter{commit: commit}
}

func (w *BufferedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrWriterClosed
	}
	return w.buf.Write(p)
}

func (w *BufferedWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWriterClosed
	}
	w.closed = true
	data := w.buf.Bytes()
	w.mu.Unlock()

	return w.commit(data)
}

func (w *BufferedWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.buf.Reset()
	return nil
}

// Package disk 把内容存放在本地文件系统上 (通过 afero，测试时可换成内存文件系统)
package disk

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"contentvault/pkg/storage"
	"contentvault/pkg/types"

	"github.com/spf13/afero"
)

// Provider 实现了 storage.Provider 和 storage.AddressProvider
type Provider struct {
	fs   afero.Fs
	root string // 仅用于 Origin 和地址展示
}

// NewProvider 在 root 目录下创建一个磁盘 Provider
func NewProvider(root string) (*Provider, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return NewProviderWithFs(afero.NewBasePathFs(afero.NewOsFs(), abs), abs), nil
}

// NewProviderWithFs 使用任意 afero.Fs (例如 afero.NewMemMapFs())
func NewProviderWithFs(fs afero.Fs, root string) *Provider {
	return &Provider{fs: fs, root: root}
}

// layout 返回 ID 对应的相对路径
// 策略：摘要的前 2 个十六进制字符作为子目录 (Sharding)
// Example: root/3f/<id string>
func layout(id types.Identifier) string {
	return filepath.Join(id.Hex()[:2], id.String())
}

func (p *Provider) fullPath(rel string) string {
	return filepath.Join(p.root, rel)
}

// present 判断文件是否完整存在
// 大小为 0 的文件只对空内容有效
func (p *Provider) present(id types.Identifier) (bool, error) {
	fi, err := p.fs.Stat(layout(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.Size() > 0 || id.Size() == 0, nil
}

func (p *Provider) Read(ctx context.Context, id types.Identifier) (io.ReadCloser, storage.Origin, error) {
	rel := layout(id)

	ok, err := p.present(id)
	if err != nil {
		return nil, storage.Origin{}, fmt.Errorf("stat %s: %w", rel, err)
	}
	if !ok {
		return nil, storage.Origin{}, storage.NotFound(id)
	}

	f, err := p.fs.Open(rel)
	if os.IsNotExist(err) {
		return nil, storage.Origin{}, storage.NotFound(id)
	}
	if err != nil {
		return nil, storage.Origin{}, fmt.Errorf("open %s: %w", rel, err)
	}
	return f, storage.LocalOrigin(p.fullPath(rel)), nil
}

func (p *Provider) Write(ctx context.Context, id types.Identifier) (storage.Writer, error) {
	rel := layout(id)

	ok, err := p.present(id)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}
	if ok {
		return nil, storage.AlreadyExists(id)
	}

	dir := filepath.Dir(rel)
	if err := p.fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	// 先写临时文件，Close 时 Rename 到最终位置
	// 这样文件要么不存在，要么是完整的
	tmp, err := afero.TempFile(p.fs, dir, "temp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	return &fileWriter{fs: p.fs, tmp: tmp, target: rel, id: id}, nil
}

type fileWriter struct {
	fs     afero.Fs
	tmp    afero.File
	target string
	id     types.Identifier
	done   bool
}

func (w *fileWriter) Write(b []byte) (int, error) {
	if w.done {
		return 0, storage.ErrWriterClosed
	}
	return w.tmp.Write(b)
}

func (w *fileWriter) Close() error {
	if w.done {
		return storage.ErrWriterClosed
	}
	w.done = true

	name := w.tmp.Name()
	if err := w.tmp.Close(); err != nil {
		w.fs.Remove(name)
		return err
	}

	// 另一个写入者已经完成了同一个 ID，内容相同，丢弃自己的副本
	// 残留的空文件不算完成，直接覆盖
	if fi, err := w.fs.Stat(w.target); err == nil && (fi.Size() > 0 || w.id.Size() == 0) {
		return w.fs.Remove(name)
	}
	if err := w.fs.Rename(name, w.target); err != nil {
		w.fs.Remove(name)
		return fmt.Errorf("rename into %s: %w", w.target, err)
	}
	return nil
}

func (w *fileWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	name := w.tmp.Name()
	w.tmp.Close()
	return w.fs.Remove(name)
}

// ReadAddress 返回 file:// 地址，只在客户端和服务端共享文件系统时可用
func (p *Provider) ReadAddress(ctx context.Context, id types.Identifier) (string, storage.Origin, error) {
	ok, err := p.present(id)
	if err != nil {
		return "", storage.Origin{}, err
	}
	if !ok {
		return "", storage.Origin{}, storage.NotFound(id)
	}
	rel := layout(id)
	return p.fileURL(rel), storage.LocalOrigin(p.fullPath(rel)), nil
}

func (p *Provider) WriteAddress(ctx context.Context, id types.Identifier) (string, error) {
	ok, err := p.present(id)
	if err != nil {
		return "", err
	}
	if ok {
		return "", storage.AlreadyExists(id)
	}
	return p.fileURL(layout(id)), nil
}

func (p *Provider) fileURL(rel string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p.fullPath(rel))}
	return u.String()
}

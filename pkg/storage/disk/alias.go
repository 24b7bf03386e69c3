package disk

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"contentvault/pkg/storage"
	"contentvault/pkg/types"

	"github.com/spf13/afero"
)

// AliasProvider 把每个别名存成一个小文件，文件内容是 ID 的字符串形式
// Layout: root/aliases/<keySpace>/<base64(key)>
type AliasProvider struct {
	fs afero.Fs
}

func NewAliasProvider(root string) (*AliasProvider, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create alias root: %w", err)
	}
	return NewAliasProviderWithFs(afero.NewBasePathFs(afero.NewOsFs(), abs)), nil
}

func NewAliasProviderWithFs(fs afero.Fs) *AliasProvider {
	return &AliasProvider{fs: fs}
}

func aliasPath(keySpace, key string) string {
	return filepath.Join("aliases",
		base64.RawURLEncoding.EncodeToString([]byte(keySpace)),
		base64.RawURLEncoding.EncodeToString([]byte(key)))
}

func (a *AliasProvider) ResolveAlias(ctx context.Context, keySpace, key string) (types.Identifier, error) {
	f, err := a.fs.Open(aliasPath(keySpace, key))
	if os.IsNotExist(err) {
		return types.Identifier{}, storage.AliasNotFound(keySpace, key)
	}
	if err != nil {
		return types.Identifier{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return types.Identifier{}, err
	}
	return types.ParseIdentifier(strings.TrimSpace(string(data)))
}

// RegisterAlias 使用 O_EXCL 创建文件，保证同一个别名只能注册一次
func (a *AliasProvider) RegisterAlias(ctx context.Context, keySpace, key string, id types.Identifier) error {
	p := aliasPath(keySpace, key)
	if err := a.fs.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}

	f, err := a.fs.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if os.IsExist(err) {
		return storage.AliasAlreadyExists(keySpace, key)
	}
	if err != nil {
		return fmt.Errorf("create alias %s: %w", p, err)
	}
	if _, err := f.Write([]byte(id.String())); err != nil {
		f.Close()
		a.fs.Remove(p)
		return err
	}
	return f.Close()
}

package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"contentvault/pkg/storage"
	"contentvault/pkg/types"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LruProvider 是有容量上限的内存 Provider，超出容量时淘汰最久未使用的内容
// 适合作为 CachingProvider 的快速层
type LruProvider struct {
	cache *lru.Cache[string, []byte]
}

func NewLruProvider(size int) (*LruProvider, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("%w: lru size %d: %v", storage.ErrConfiguration, size, err)
	}
	return &LruProvider{cache: c}, nil
}

func (p *LruProvider) Read(ctx context.Context, id types.Identifier) (io.ReadCloser, storage.Origin, error) {
	data, ok := p.cache.Get(id.String())
	if !ok {
		return nil, storage.Origin{}, storage.NotFound(id)
	}
	return io.NopCloser(bytes.NewReader(data)), storage.LruOrigin(), nil
}

func (p *LruProvider) Write(ctx context.Context, id types.Identifier) (storage.Writer, error) {
	key := id.String()
	if p.cache.Contains(key) {
		return nil, storage.AlreadyExists(id)
	}
	return storage.NewBufferedWriter(func(data []byte) error {
		p.cache.ContainsOrAdd(key, bytes.Clone(data))
		return nil
	}), nil
}

func (p *LruProvider) Len() int { return p.cache.Len() }

func (p *LruProvider) Purge() { p.cache.Purge() }

type aliasKey struct {
	keySpace, key string
}

// LruAliasProvider 是有容量上限的内存别名 Provider
// 被淘汰的别名会重新变为未注册
type LruAliasProvider struct {
	cache *lru.Cache[aliasKey, types.Identifier]
}

func NewLruAliasProvider(size int) (*LruAliasProvider, error) {
	c, err := lru.New[aliasKey, types.Identifier](size)
	if err != nil {
		return nil, fmt.Errorf("%w: lru size %d: %v", storage.ErrConfiguration, size, err)
	}
	return &LruAliasProvider{cache: c}, nil
}

func (a *LruAliasProvider) ResolveAlias(ctx context.Context, keySpace, key string) (types.Identifier, error) {
	id, ok := a.cache.Get(aliasKey{keySpace, key})
	if !ok {
		return types.Identifier{}, storage.AliasNotFound(keySpace, key)
	}
	return id, nil
}

func (a *LruAliasProvider) RegisterAlias(ctx context.Context, keySpace, key string, id types.Identifier) error {
	if ok, _ := a.cache.ContainsOrAdd(aliasKey{keySpace, key}, id); ok {
		return storage.AliasAlreadyExists(keySpace, key)
	}
	return nil
}

// Package memory 提供进程内的内容和别名存储，主要用于测试和缓存层
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"contentvault/pkg/storage"
	"contentvault/pkg/types"
)

type Provider struct {
	mu      sync.RWMutex
	content map[string][]byte
}

func NewProvider() *Provider {
	return &Provider{content: make(map[string][]byte)}
}

func (p *Provider) Read(ctx context.Context, id types.Identifier) (io.ReadCloser, storage.Origin, error) {
	p.mu.RLock()
	data, ok := p.content[id.String()]
	p.mu.RUnlock()

	if !ok {
		return nil, storage.Origin{}, storage.NotFound(id)
	}
	return io.NopCloser(bytes.NewReader(data)), storage.MemoryOrigin(), nil
}

func (p *Provider) Write(ctx context.Context, id types.Identifier) (storage.Writer, error) {
	key := id.String()

	p.mu.RLock()
	_, ok := p.content[key]
	p.mu.RUnlock()
	if ok {
		return nil, storage.AlreadyExists(id)
	}

	return storage.NewBufferedWriter(func(data []byte) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		// 并发写入同一个 ID 时只保留第一个 (内容相同)
		if _, exists := p.content[key]; !exists {
			p.content[key] = bytes.Clone(data)
		}
		return nil
	}), nil
}

func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.content)
}

// Clear 清空所有内容
func (p *Provider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.content = make(map[string][]byte)
}

type aliasKey struct {
	keySpace, key string
}

type AliasProvider struct {
	mu      sync.RWMutex
	aliases map[aliasKey]types.Identifier
}

func NewAliasProvider() *AliasProvider {
	return &AliasProvider{aliases: make(map[aliasKey]types.Identifier)}
}

func (a *AliasProvider) ResolveAlias(ctx context.Context, keySpace, key string) (types.Identifier, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	id, ok := a.aliases[aliasKey{keySpace, key}]
	if !ok {
		return types.Identifier{}, storage.AliasNotFound(keySpace, key)
	}
	return id, nil
}

func (a *AliasProvider) RegisterAlias(ctx context.Context, keySpace, key string, id types.Identifier) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := aliasKey{keySpace, key}
	if _, ok := a.aliases[k]; ok {
		return storage.AliasAlreadyExists(keySpace, key)
	}
	a.aliases[k] = id
	return nil
}

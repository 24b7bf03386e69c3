// Package redis 把内容和别名存放在 Redis 中，适合小对象的共享缓存
package redis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"contentvault/pkg/storage"
	"contentvault/pkg/types"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Config struct {
	URL       string // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	KeyPrefix string
}

// Provider 同时实现 storage.Provider 和 storage.AliasProvider
type Provider struct {
	client    *redis.Client
	host      string
	keyPrefix string
	logger    *zap.Logger
}

func NewProvider(ctx context.Context, cfg Config, logger *zap.Logger) (*Provider, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis url: %v", storage.ErrConfiguration, err)
	}
	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return NewProviderWithClient(client, opts.Addr, cfg.KeyPrefix, logger), nil
}

func NewProviderWithClient(client *redis.Client, host, keyPrefix string, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{client: client, host: host, keyPrefix: keyPrefix, logger: logger}
}

func (p *Provider) Close() error {
	return p.client.Close()
}

func (p *Provider) String() string {
	return fmt.Sprintf("redis(host: %s, key prefix: %s)", p.host, p.keyPrefix)
}

// ContentKey 生成内容的 Redis Key
func ContentKey(prefix string, id types.Identifier) string {
	if prefix == "" {
		return "content:" + id.String()
	}
	return prefix + ":content:" + id.String()
}

func AliasKey(prefix, keySpace, key string) string {
	if prefix == "" {
		return "alias:" + storage.AliasKey(keySpace, key)
	}
	return prefix + ":alias:" + storage.AliasKey(keySpace, key)
}

func (p *Provider) Read(ctx context.Context, id types.Identifier) (io.ReadCloser, storage.Origin, error) {
	key := ContentKey(p.keyPrefix, id)

	data, err := p.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.Origin{}, storage.NotFound(id)
	}
	if err != nil {
		return nil, storage.Origin{}, fmt.Errorf("failed to get content from redis for key %s: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(data)), storage.RedisOrigin(p.host, key), nil
}

func (p *Provider) Write(ctx context.Context, id types.Identifier) (storage.Writer, error) {
	key := ContentKey(p.keyPrefix, id)

	n, err := p.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check redis key %s: %w", key, err)
	}
	if n > 0 {
		return nil, storage.AlreadyExists(id)
	}

	return storage.NewBufferedWriter(func(data []byte) error {
		// Close 没有 ctx，给上传一个独立的超时
		wctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// SETNX: 并发写入同一个 Key 时只有一个会生效
		created, err := p.client.SetNX(wctx, key, data, 0).Result()
		if err != nil {
			return fmt.Errorf("failed to set content in redis for key %s: %w", key, err)
		}
		if !created {
			p.logger.Debug("redis content already written by another writer", zap.String("key", key))
		}
		return nil
	}), nil
}

func (p *Provider) ResolveAlias(ctx context.Context, keySpace, key string) (types.Identifier, error) {
	k := AliasKey(p.keyPrefix, keySpace, key)

	raw, err := p.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return types.Identifier{}, storage.AliasNotFound(keySpace, key)
	}
	if err != nil {
		return types.Identifier{}, fmt.Errorf("failed to get alias from redis for key %s: %w", k, err)
	}
	return types.ParseIdentifier(raw)
}

func (p *Provider) RegisterAlias(ctx context.Context, keySpace, key string, id types.Identifier) error {
	k := AliasKey(p.keyPrefix, keySpace, key)

	created, err := p.client.SetNX(ctx, k, id.String(), 0).Result()
	if err != nil {
		return fmt.Errorf("failed to set alias in redis for key %s: %w", k, err)
	}
	if !created {
		return storage.AliasAlreadyExists(keySpace, key)
	}
	return nil
}

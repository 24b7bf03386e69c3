package app

import (
	"context"
	"fmt"

	"contentvault/pkg/client"
	"contentvault/pkg/config"
	"contentvault/pkg/service"
	"contentvault/pkg/storage"
	"contentvault/pkg/storage/cache"
	"contentvault/pkg/storage/disk"
	"contentvault/pkg/storage/dynamodb"
	"contentvault/pkg/storage/memory"
	"contentvault/pkg/storage/redis"
	"contentvault/pkg/storage/remote"
	s3store "contentvault/pkg/storage/s3"
	"contentvault/pkg/storage/sqlstore"

	"go.uber.org/zap"
)

// Built 是根据配置创建的 Provider
// Addresses 非空时，底层存储可以生成直传 URL
type Built struct {
	Provider  storage.Provider
	Addresses storage.AddressProvider
}

// BuildProvider 根据 type 创建 Provider，并按配置叠加压缩、校验和指标
func (a *App) BuildProvider(ctx context.Context, name string, cfg config.ProviderConfig) (*Built, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := a.buildBase(ctx, name, cfg)
	if err != nil {
		return nil, err
	}

	built := &Built{Provider: base}
	if addr, ok := base.(storage.AddressProvider); ok {
		built.Addresses = addr
	}

	compression, _ := storage.ParseCompression(cfg.Compression)
	if compression != storage.CompressionNone {
		if built.Provider, err = storage.NewCompressedProvider(built.Provider, compression); err != nil {
			return nil, err
		}
		// 落盘的是压缩后的字节，不能再直传
		built.Addresses = nil
	}
	if cfg.VerifyWrites {
		built.Provider = storage.NewVerifyingProvider(built.Provider)
	}
	if a.Metrics != nil {
		built.Provider = a.Metrics.Instrument(name, built.Provider)
	}
	return built, nil
}

func (a *App) buildBase(ctx context.Context, name string, cfg config.ProviderConfig) (storage.Provider, error) {
	switch cfg.Type {
	case config.TypeMemory:
		return memory.NewProvider(), nil

	case config.TypeLru:
		size, err := cfg.LruSize()
		if err != nil {
			return nil, err
		}
		return cache.NewLruProvider(size)

	case config.TypeLocal:
		return disk.NewProvider(a.resolve(cfg.Path))

	case config.TypeRedis:
		p, err := redis.NewProvider(ctx, redis.Config{URL: cfg.URL, KeyPrefix: cfg.KeyPrefix}, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		return p, nil

	case config.TypeGrpc:
		c, err := client.NewCVClient(cfg.APIURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		return remote.NewProvider(ctx, c.Content, cfg.APIURL, cfg.DataSpace, a.Logger)

	case config.TypeAwsS3:
		index, err := a.buildIndex(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s3store.NewProvider(ctx, s3store.Config{
			Endpoint:        cfg.Endpoint,
			Region:          cfg.Region,
			Bucket:          cfg.Bucket,
			Root:            cfg.Root,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			PresignTTL:      cfg.PresignTTL,
		}, index, a.Logger)

	case config.TypeAwsDynamoDb:
		table, err := dynamodb.NewTable(ctx, dynamoConfig(cfg))
		if err != nil {
			return nil, err
		}
		return dynamodb.NewProvider(table), nil

	case config.TypeCaching:
		slow, err := a.BuildProvider(ctx, name+".slow", *cfg.Slow)
		if err != nil {
			return nil, fmt.Errorf("slow tier: %w", err)
		}
		fast, err := a.BuildProvider(ctx, name+".fast", *cfg.Fast)
		if err != nil {
			return nil, fmt.Errorf("fast tier: %w", err)
		}
		return cache.NewCachingProvider(slow.Provider, fast.Provider, a.Logger), nil
	}
	return nil, fmt.Errorf("%w: unsupported provider type %q", storage.ErrConfiguration, cfg.Type)
}

// buildIndex 为 S3 选择对象索引
func (a *App) buildIndex(ctx context.Context, cfg config.ProviderConfig) (s3store.Index, error) {
	switch cfg.Index {
	case config.IndexDynamoDb:
		table, err := dynamodb.NewTable(ctx, dynamoConfig(cfg))
		if err != nil {
			return nil, err
		}
		return dynamodb.NewIndex(table), nil
	case config.IndexSQL:
		if err := sqlstore.Migrate(a.DB.GetConn()); err != nil {
			return nil, err
		}
		return sqlstore.NewIndex(a.DB.GetConn()), nil
	}
	return nil, nil
}

func dynamoConfig(cfg config.ProviderConfig) dynamodb.Config {
	return dynamodb.Config{
		Endpoint:        cfg.Endpoint,
		Region:          cfg.Region,
		Table:           cfg.Table,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	}
}

// BuildAliasProvider 根据配置创建别名 Provider
func (a *App) BuildAliasProvider(ctx context.Context, cfg config.ProviderConfig) (storage.AliasProvider, error) {
	if err := cfg.ValidateAlias(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case config.TypeMemory:
		return memory.NewAliasProvider(), nil
	case config.TypeLru:
		size, err := cfg.LruSize()
		if err != nil {
			return nil, err
		}
		return cache.NewLruAliasProvider(size)
	case config.TypeLocal:
		return disk.NewAliasProvider(a.resolve(cfg.Path))
	case config.TypeRedis:
		p, err := redis.NewProvider(ctx, redis.Config{URL: cfg.URL, KeyPrefix: cfg.KeyPrefix}, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		return p, nil
	case config.TypeGrpc:
		c, err := client.NewCVClient(cfg.APIURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		return remote.NewAliasProvider(c.Content, cfg.DataSpace), nil
	case config.TypeAwsDynamoDb:
		table, err := dynamodb.NewTable(ctx, dynamoConfig(cfg))
		if err != nil {
			return nil, err
		}
		return dynamodb.NewAliasProvider(table), nil
	case config.TypeSQL:
		if err := sqlstore.Migrate(a.DB.GetConn()); err != nil {
			return nil, err
		}
		return sqlstore.NewAliasProvider(a.DB.GetConn()), nil
	}
	return nil, fmt.Errorf("%w: unsupported alias provider type %q", storage.ErrConfiguration, cfg.Type)
}

// BuildDataSpaces 创建服务端配置的全部数据空间
func (a *App) BuildDataSpaces(ctx context.Context) ([]*service.DataSpace, error) {
	var spaces []*service.DataSpace
	for _, dc := range a.Config.Server.DataSpaces {
		built, err := a.BuildProvider(ctx, dc.Name, dc.Storage)
		if err != nil {
			return nil, fmt.Errorf("data space %s: %w", dc.Name, err)
		}
		threshold, err := dc.Threshold()
		if err != nil {
			return nil, err
		}
		ds := &service.DataSpace{
			Name:          dc.Name,
			Provider:      built.Provider,
			SizeThreshold: threshold,
		}
		// 只有配置了阈值才走 URL 直传
		if dc.SizeThreshold != "" {
			ds.Addresses = built.Addresses
		}
		if dc.Aliases != nil {
			if ds.Aliases, err = a.BuildAliasProvider(ctx, *dc.Aliases); err != nil {
				return nil, fmt.Errorf("data space %s aliases: %w", dc.Name, err)
			}
		}
		a.Logger.Info("data space ready",
			zap.String("name", dc.Name),
			zap.String("type", dc.Storage.Type),
			zap.Bool("direct_transfer", ds.Addresses != nil),
			zap.Uint64("size_threshold", threshold),
		)
		spaces = append(spaces, ds)
	}
	return spaces, nil
}

// Package config 定义配置文件的结构，provider 配置是一个按 type 区分的联合体
package config

import (
	"fmt"
	"time"

	"contentvault/pkg/storage"

	"github.com/docker/go-units"
)

// Provider 类型
const (
	TypeMemory      = "memory"
	TypeLru         = "lru"
	TypeLocal       = "local"
	TypeRedis       = "redis"
	TypeGrpc        = "grpc"
	TypeAwsS3       = "aws-s3"
	TypeAwsDynamoDb = "aws-dynamodb"
	TypeCaching     = "caching"
	TypeSQL         = "sql"
)

// S3 对象索引的类型
const (
	IndexNone     = ""
	IndexDynamoDb = "dynamodb"
	IndexSQL      = "sql"
)

type Config struct {
	File string `mapstructure:"-"`

	LogLevel   string           `mapstructure:"log_level"`
	User       UserConfig       `mapstructure:"user"`
	Repository RepositoryConfig `mapstructure:"repository"`
	Storage    ProviderConfig   `mapstructure:"storage"`
	Server     ServerConfig     `mapstructure:"server"`
}

type UserConfig struct {
	Name       string `mapstructure:"name"`
	LockDomain string `mapstructure:"lock_domain"`
}

// RepositoryConfig 对应 meta.Config
type RepositoryConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
	Debug    bool   `mapstructure:"debug"`
}

// ProviderConfig 描述一个内容或别名 Provider，Type 决定哪些字段有效:
//
//	memory
//	lru          size
//	local        path
//	redis        url, key_prefix
//	grpc         api_url, data_space
//	aws-s3       bucket, root, endpoint, region, index (dynamodb: table / sql)
//	aws-dynamodb region, table, endpoint
//	caching      fast, slow
//	sql          (仅别名) 使用仓库索引的数据库
type ProviderConfig struct {
	Type string `mapstructure:"type"`

	Size string `mapstructure:"size"`
	Path string `mapstructure:"path"`

	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`

	APIURL    string `mapstructure:"api_url"`
	DataSpace string `mapstructure:"data_space"`

	Bucket          string        `mapstructure:"bucket"`
	Root            string        `mapstructure:"root"`
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	Table           string        `mapstructure:"table"`
	Index           string        `mapstructure:"index"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	PresignTTL      time.Duration `mapstructure:"presign_ttl"`

	Fast *ProviderConfig `mapstructure:"fast"`
	Slow *ProviderConfig `mapstructure:"slow"`

	// 任意 Provider 都可以叠加的选项
	Compression  string `mapstructure:"compression"`
	VerifyWrites bool   `mapstructure:"verify_writes"`
}

type ServerConfig struct {
	Listen        string            `mapstructure:"listen"`
	MetricsListen string            `mapstructure:"metrics_listen"`
	DataSpaces    []DataSpaceConfig `mapstructure:"data_spaces"`
}

type DataSpaceConfig struct {
	Name    string          `mapstructure:"name"`
	Storage ProviderConfig  `mapstructure:"storage"`
	Aliases *ProviderConfig `mapstructure:"aliases"`
	// SizeThreshold 例如 "4MiB"，超过的内容通过预签名 URL 传输
	SizeThreshold string `mapstructure:"size_threshold"`
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", storage.ErrConfiguration, fmt.Sprintf(format, args...))
}

// LruSize 解析 lru 的容量，支持 "10k" 这样的写法
func (p *ProviderConfig) LruSize() (int, error) {
	if p.Size == "" {
		return 0, configErr("lru provider requires size")
	}
	n, err := units.FromHumanSize(p.Size)
	if err != nil || n <= 0 {
		return 0, configErr("invalid lru size %q", p.Size)
	}
	return int(n), nil
}

// Threshold 解析数据空间的大小阈值，空表示不限制
func (d *DataSpaceConfig) Threshold() (uint64, error) {
	if d.SizeThreshold == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(d.SizeThreshold)
	if err != nil || n < 0 {
		return 0, configErr("data space %q: invalid size_threshold %q", d.Name, d.SizeThreshold)
	}
	return uint64(n), nil
}

// Validate 检查各类型必需的字段
func (p *ProviderConfig) Validate() error {
	switch p.Type {
	case TypeMemory:
	case TypeLru:
		if _, err := p.LruSize(); err != nil {
			return err
		}
	case TypeLocal:
		if p.Path == "" {
			return configErr("local provider requires path")
		}
	case TypeRedis:
		if p.URL == "" {
			return configErr("redis provider requires url")
		}
	case TypeGrpc:
		if p.APIURL == "" || p.DataSpace == "" {
			return configErr("grpc provider requires api_url and data_space")
		}
	case TypeAwsS3:
		if p.Bucket == "" {
			return configErr("aws-s3 provider requires bucket")
		}
		switch p.Index {
		case IndexNone, IndexSQL:
		case IndexDynamoDb:
			if p.Table == "" {
				return configErr("aws-s3 dynamodb index requires table")
			}
		default:
			return configErr("unknown aws-s3 index %q", p.Index)
		}
	case TypeAwsDynamoDb:
		if p.Table == "" {
			return configErr("aws-dynamodb provider requires table")
		}
	case TypeCaching:
		if p.Fast == nil || p.Slow == nil {
			return configErr("caching provider requires fast and slow")
		}
		if err := p.Fast.Validate(); err != nil {
			return fmt.Errorf("fast: %w", err)
		}
		if err := p.Slow.Validate(); err != nil {
			return fmt.Errorf("slow: %w", err)
		}
	case "":
		return configErr("provider type is required")
	default:
		return configErr("unsupported provider type %q", p.Type)
	}
	if p.Compression != "" {
		if _, err := storage.ParseCompression(p.Compression); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAlias 别名 Provider 只支持部分类型
func (p *ProviderConfig) ValidateAlias() error {
	switch p.Type {
	case TypeMemory, TypeSQL:
		return nil
	case TypeLru, TypeLocal, TypeRedis, TypeGrpc, TypeAwsDynamoDb:
		return p.Validate()
	default:
		return configErr("unsupported alias provider type %q", p.Type)
	}
}

func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	seen := make(map[string]bool)
	for _, ds := range c.Server.DataSpaces {
		if ds.Name == "" {
			return configErr("data space without name")
		}
		if seen[ds.Name] {
			return configErr("duplicate data space %q", ds.Name)
		}
		seen[ds.Name] = true
		if err := ds.Storage.Validate(); err != nil {
			return fmt.Errorf("data space %s: %w", ds.Name, err)
		}
		if ds.Aliases != nil {
			if err := ds.Aliases.ValidateAlias(); err != nil {
				return fmt.Errorf("data space %s aliases: %w", ds.Name, err)
			}
		}
		if _, err := ds.Threshold(); err != nil {
			return err
		}
	}
	return nil
}

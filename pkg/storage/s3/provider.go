// Package s3 把内容存放在 S3 (或兼容 S3 的 MinIO) 中
// 可选地配合一个独立的索引 (DynamoDB / SQL)，两者一起构成完整的读写语义
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"contentvault/pkg/storage"
	"contentvault/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// Index 是与对象存储配对的键值索引: ID -> 对象 Key
type Index interface {
	// Lookup 未注册时返回 storage.ErrNotFound
	Lookup(ctx context.Context, id types.Identifier) (string, error)
	// Register 已注册时返回 storage.ErrAlreadyExists
	Register(ctx context.Context, id types.Identifier, key string) error
}

// ObjectAPI 是 Provider 用到的 S3 客户端子集 (*s3.Client 满足它)
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// PresignAPI 生成直传地址 (*s3.PresignClient 满足它)
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config 用于初始化 Provider
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	Root            string // 对象 Key 的前缀
	AccessKeyID     string
	SecretAccessKey string
	PresignTTL      time.Duration
}

// Provider 实现了 storage.Provider 和 storage.AddressProvider
type Provider struct {
	client     *s3.Client // 只在 NewProvider 创建时存在
	objects    ObjectAPI
	presign    PresignAPI
	index      Index // 可以为 nil，此时只依赖对象存储本身
	bucket     string
	root       string
	presignTTL time.Duration
	logger     *zap.Logger
}

// LoadAWSConfig 加载 Region 和可选的静态凭证
// 没有显式凭证时走默认链 (环境变量、~/.aws、IAM Role)
func LoadAWSConfig(ctx context.Context, region, accessKeyID, secretAccessKey string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return awsCfg, nil
}

// NewProvider 初始化 S3 客户端
func NewProvider(ctx context.Context, cfg Config, index Index, logger *zap.Logger) (*Provider, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", storage.ErrConfiguration)
	}

	awsCfg, err := LoadAWSConfig(ctx, cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// 如果指定了 Endpoint (比如 MinIO 的 localhost:9000)，则覆盖默认值
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// MinIO 必须强制使用 Path Style
			o.UsePathStyle = true
		}
	})

	p := NewProviderWithClients(client, s3.NewPresignClient(client), index, cfg.Bucket, cfg.Root, logger)
	p.client = client
	if cfg.PresignTTL > 0 {
		p.presignTTL = cfg.PresignTTL
	}
	return p, nil
}

// EnsureBucket 检查 Bucket 是否存在，不存在则尝试创建
// 生产环境建议手动管理 Bucket
func (p *Provider) EnsureBucket(ctx context.Context) error {
	if p.client == nil {
		return fmt.Errorf("%w: no s3 client", storage.ErrConfiguration)
	}
	if _, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.bucket)}); err == nil {
		return nil
	}
	if _, err := p.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(p.bucket)}); err != nil {
		return fmt.Errorf("failed to ensure bucket %s exists: %w", p.bucket, err)
	}
	return nil
}

func NewProviderWithClients(objects ObjectAPI, presign PresignAPI, index Index, bucket, root string, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		objects:    objects,
		presign:    presign,
		index:      index,
		bucket:     bucket,
		root:       strings.Trim(root, "/"),
		presignTTL: 15 * time.Minute,
		logger:     logger,
	}
}

func (p *Provider) String() string {
	return fmt.Sprintf("aws-s3(s3://%s/%s)", p.bucket, p.root)
}

// objectKey 将 ID 转换为 S3 Key
func (p *Provider) objectKey(id types.Identifier) string {
	if p.root == "" {
		return id.String()
	}
	return path.Join(p.root, id.String())
}

func isNotFound(err error) bool {
	var notFound *s3types.NotFound
	var noKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noKey) {
		return true
	}
	// 兼容性：某些 S3 实现可能返回 generic 404 error string
	return strings.Contains(err.Error(), "StatusCode: 404")
}

// resolveKey 查索引，没有索引时直接使用确定性的 Key
func (p *Provider) resolveKey(ctx context.Context, id types.Identifier) (string, error) {
	if p.index == nil {
		return p.objectKey(id), nil
	}
	key, err := p.index.Lookup(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", storage.NotFound(id)
		}
		return "", fmt.Errorf("index lookup for %s: %w", id, err)
	}
	return key, nil
}

// exists 只有索引和对象都存在时才算存在
func (p *Provider) exists(ctx context.Context, id types.Identifier) (string, bool, error) {
	key, err := p.resolveKey(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return p.objectKey(id), false, nil
	}
	if err != nil {
		return "", false, err
	}

	_, err = p.objects.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return key, true, nil
	}
	if isNotFound(err) {
		return key, false, nil
	}
	return "", false, fmt.Errorf("s3 head %s failed: %w", key, err)
}

func (p *Provider) Read(ctx context.Context, id types.Identifier) (io.ReadCloser, storage.Origin, error) {
	key, err := p.resolveKey(ctx, id)
	if err != nil {
		return nil, storage.Origin{}, err
	}

	resp, err := p.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		// 将 AWS 的 NoSuchKey 错误映射为我们自己的 NotFound
		if isNotFound(err) {
			return nil, storage.Origin{}, storage.NotFound(id)
		}
		return nil, storage.Origin{}, fmt.Errorf("s3 get %s failed: %w", key, err)
	}
	return resp.Body, storage.AwsS3Origin(p.bucket, key), nil
}

func (p *Provider) Write(ctx context.Context, id types.Identifier) (storage.Writer, error) {
	key, ok, err := p.exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, storage.AlreadyExists(id)
	}

	return storage.NewBufferedWriter(func(data []byte) error {
		wctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		_, err := p.objects.PutObject(wctx, &s3.PutObjectInput{
			Bucket:        aws.String(p.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String("application/octet-stream"),
		})
		if err != nil {
			return fmt.Errorf("s3 put %s failed: %w", key, err)
		}
		return p.register(wctx, id, key)
	}), nil
}

func (p *Provider) register(ctx context.Context, id types.Identifier, key string) error {
	if p.index == nil {
		return nil
	}
	err := p.index.Register(ctx, id, key)
	if err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
		return fmt.Errorf("index register for %s: %w", id, err)
	}
	return nil
}

func (p *Provider) ReadAddress(ctx context.Context, id types.Identifier) (string, storage.Origin, error) {
	key, ok, err := p.exists(ctx, id)
	if err != nil {
		return "", storage.Origin{}, err
	}
	if !ok {
		return "", storage.Origin{}, storage.NotFound(id)
	}

	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.presignTTL))
	if err != nil {
		return "", storage.Origin{}, fmt.Errorf("presign get %s: %w", key, err)
	}
	return req.URL, storage.AwsS3Origin(p.bucket, key), nil
}

// WriteAddress 先在索引中预留条目，再返回预签名的上传地址
// 上传完成之前读取仍然返回 NotFound (对象不存在)
func (p *Provider) WriteAddress(ctx context.Context, id types.Identifier) (string, error) {
	key, ok, err := p.exists(ctx, id)
	if err != nil {
		return "", err
	}
	if ok {
		return "", storage.AlreadyExists(id)
	}
	if err := p.register(ctx, id, key); err != nil {
		return "", err
	}

	req, err := p.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.presignTTL))
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}
	p.logger.Debug("issued upload address", zap.Stringer("id", id), zap.String("key", key))
	return req.URL, nil
}

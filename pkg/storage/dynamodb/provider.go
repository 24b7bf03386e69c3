// Package dynamodb 在一张 DynamoDB 表中保存小内容、别名以及 S3 对象索引
// 三类记录共用同一个二进制分区键 "id"，由首字节区分
package dynamodb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"contentvault/pkg/storage"
	s3store "contentvault/pkg/storage/s3"
	"contentvault/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	keyAttr  = "id"
	dataAttr = "data"

	prefixContent byte = 0x00
	prefixAlias   byte = 0x01
	prefixIndex   byte = 0x02

	// DynamoDB 单个 Item 最大 400KB
	MaxItemSize = 400 * 1024
)

// TableAPI 是用到的 DynamoDB 客户端子集 (*dynamodb.Client 满足它)
type TableAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type Config struct {
	Endpoint        string
	Region          string
	Table           string
	AccessKeyID     string
	SecretAccessKey string
}

// Table 封装一张表，Provider / AliasProvider / Index 都建立在它之上
type Table struct {
	api    TableAPI
	region string
	name   string
}

func NewTable(ctx context.Context, cfg Config) (*Table, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("%w: dynamodb table is required", storage.ErrConfiguration)
	}
	awsCfg, err := s3store.LoadAWSConfig(ctx, cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, err
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewTableWithClient(client, cfg.Region, cfg.Table), nil
}

func NewTableWithClient(api TableAPI, region, name string) *Table {
	return &Table{api: api, region: region, name: name}
}

func itemKey(prefix byte, body []byte) map[string]ddbtypes.AttributeValue {
	key := make([]byte, 0, len(body)+1)
	key = append(key, prefix)
	key = append(key, body...)
	return map[string]ddbtypes.AttributeValue{keyAttr: &ddbtypes.AttributeValueMemberB{Value: key}}
}

// get 返回 data 属性，Item 不存在时 ok 为 false
func (t *Table) get(ctx context.Context, key map[string]ddbtypes.AttributeValue) ([]byte, bool, error) {
	out, err := t.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.name),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("dynamodb get from %s failed: %w", t.name, err)
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}
	attr, ok := out.Item[dataAttr].(*ddbtypes.AttributeValueMemberB)
	if !ok {
		return nil, false, fmt.Errorf("dynamodb item in %s has no binary %q attribute", t.name, dataAttr)
	}
	return attr.Value, true, nil
}

// putIfAbsent 条件写入，键已存在时 created 为 false
func (t *Table) putIfAbsent(ctx context.Context, key map[string]ddbtypes.AttributeValue, data []byte) (bool, error) {
	item := map[string]ddbtypes.AttributeValue{
		keyAttr:  key[keyAttr],
		dataAttr: &ddbtypes.AttributeValueMemberB{Value: data},
	}
	_, err := t.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(t.name),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#k)"),
		ExpressionAttributeNames: map[string]string{
			"#k": keyAttr,
		},
	})
	if err != nil {
		var ccf *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("dynamodb put into %s failed: %w", t.name, err)
	}
	return true, nil
}

// Provider 把内容直接存成 Item，只适合小对象
type Provider struct {
	table *Table
}

func NewProvider(table *Table) *Provider {
	return &Provider{table: table}
}

func (p *Provider) String() string {
	return fmt.Sprintf("aws-dynamodb(%s/%s)", p.table.region, p.table.name)
}

func (p *Provider) Read(ctx context.Context, id types.Identifier) (io.ReadCloser, storage.Origin, error) {
	data, ok, err := p.table.get(ctx, itemKey(prefixContent, id.Bytes()))
	if err != nil {
		return nil, storage.Origin{}, err
	}
	if !ok {
		return nil, storage.Origin{}, storage.NotFound(id)
	}
	return io.NopCloser(bytes.NewReader(data)), storage.AwsDynamoDbOrigin(p.table.region, p.table.name, id.String()), nil
}

func (p *Provider) Write(ctx context.Context, id types.Identifier) (storage.Writer, error) {
	key := itemKey(prefixContent, id.Bytes())
	_, ok, err := p.table.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, storage.AlreadyExists(id)
	}
	if id.Size() > MaxItemSize {
		return nil, fmt.Errorf("%w: %s exceeds dynamodb item size limit", storage.ErrConfiguration, id)
	}

	return storage.NewBufferedWriter(func(data []byte) error {
		wctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		// 并发写入同一内容时条件失败也算成功
		_, err := p.table.putIfAbsent(wctx, key, data)
		return err
	}), nil
}

// AliasProvider 别名 Item 的 data 为目标 ID 的二进制形式
type AliasProvider struct {
	table *Table
}

func NewAliasProvider(table *Table) *AliasProvider {
	return &AliasProvider{table: table}
}

func (a *AliasProvider) ResolveAlias(ctx context.Context, keySpace, key string) (types.Identifier, error) {
	data, ok, err := a.table.get(ctx, itemKey(prefixAlias, []byte(storage.ScopedAliasKey(keySpace, key))))
	if err != nil {
		return types.Identifier{}, err
	}
	if !ok {
		return types.Identifier{}, storage.AliasNotFound(keySpace, key)
	}
	return types.IdentifierFromBytes(data)
}

func (a *AliasProvider) RegisterAlias(ctx context.Context, keySpace, key string, id types.Identifier) error {
	created, err := a.table.putIfAbsent(ctx, itemKey(prefixAlias, []byte(storage.ScopedAliasKey(keySpace, key))), id.Bytes())
	if err != nil {
		return err
	}
	if !created {
		return storage.AliasAlreadyExists(keySpace, key)
	}
	return nil
}

// Index 为 S3 Provider 保存 ID -> 对象 Key
type Index struct {
	table *Table
}

var _ s3store.Index = (*Index)(nil)

func NewIndex(table *Table) *Index {
	return &Index{table: table}
}

func (i *Index) Lookup(ctx context.Context, id types.Identifier) (string, error) {
	data, ok, err := i.table.get(ctx, itemKey(prefixIndex, id.Bytes()))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", storage.NotFound(id)
	}
	return string(data), nil
}

func (i *Index) Register(ctx context.Context, id types.Identifier, key string) error {
	created, err := i.table.putIfAbsent(ctx, itemKey(prefixIndex, id.Bytes()), []byte(key))
	if err != nil {
		return err
	}
	if !created {
		return storage.AlreadyExists(id)
	}
	return nil
}

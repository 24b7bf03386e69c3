package storage

import (
	"fmt"

	"contentvault/pkg/core"
)

type OriginKind string

const (
	OriginMemory      OriginKind = "memory"
	OriginLocal       OriginKind = "local"
	OriginLru         OriginKind = "lru"
	OriginRedis       OriginKind = "redis"
	OriginAwsS3       OriginKind = "aws-s3"
	OriginAwsDynamoDb OriginKind = "aws-dynamodb"
	OriginGrpc        OriginKind = "grpc"
)

// Origin 记录内容实际是从哪里读出来的
// 随 gRPC 响应一起以 CBOR 编码传回客户端
type Origin struct {
	Kind OriginKind `cbor:"k"`

	Path   string `cbor:"p,omitempty"` // local
	Host   string `cbor:"h,omitempty"` // redis
	Key    string `cbor:"y,omitempty"` // redis, s3
	Bucket string `cbor:"b,omitempty"` // s3
	Region string `cbor:"r,omitempty"` // dynamodb
	Table  string `cbor:"t,omitempty"` // dynamodb
	ID     string `cbor:"i,omitempty"` // dynamodb

	// grpc: 服务端报告的 Origin
	Upstream *Origin `cbor:"u,omitempty"`
}

func MemoryOrigin() Origin { return Origin{Kind: OriginMemory} }
func LruOrigin() Origin    { return Origin{Kind: OriginLru} }

func LocalOrigin(path string) Origin { return Origin{Kind: OriginLocal, Path: path} }

func RedisOrigin(host, key string) Origin {
	return Origin{Kind: OriginRedis, Host: host, Key: key}
}

func AwsS3Origin(bucket, key string) Origin {
	return Origin{Kind: OriginAwsS3, Bucket: bucket, Key: key}
}

func AwsDynamoDbOrigin(region, table, id string) Origin {
	return Origin{Kind: OriginAwsDynamoDb, Region: region, Table: table, ID: id}
}

func GrpcOrigin(host string, upstream Origin) Origin {
	return Origin{Kind: OriginGrpc, Host: host, Upstream: &upstream}
}

func (o Origin) String() string {
	switch o.Kind {
	case OriginLocal:
		return fmt.Sprintf("local(%s)", o.Path)
	case OriginRedis:
		return fmt.Sprintf("redis(%s, %s)", o.Host, o.Key)
	case OriginAwsS3:
		return fmt.Sprintf("aws-s3(s3://%s/%s)", o.Bucket, o.Key)
	case OriginAwsDynamoDb:
		return fmt.Sprintf("aws-dynamodb(%s/%s, %s)", o.Region, o.Table, o.ID)
	case OriginGrpc:
		if o.Upstream != nil {
			return fmt.Sprintf("grpc(%s, %s)", o.Host, o.Upstream)
		}
		return fmt.Sprintf("grpc(%s)", o.Host)
	default:
		return string(o.Kind)
	}
}

func (o Origin) Encode() ([]byte, error) {
	return core.Marshal(o)
}

func DecodeOrigin(data []byte) (Origin, error) {
	var o Origin
	if len(data) == 0 {
		return o, nil
	}
	if err := core.Unmarshal(data, &o); err != nil {
		return Origin{}, fmt.Errorf("failed to decode origin: %w", err)
	}
	return o, nil
}

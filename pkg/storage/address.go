package storage

import (
	"context"

	"contentvault/pkg/types"
)

// AddressProvider 为大对象生成可直接传输的地址 (如 S3 预签名 URL)
// 内容服务在超过阈值时返回这些地址，让数据绕过 RPC 通道
type AddressProvider interface {
	// ReadAddress 内容不存在时返回 ErrNotFound
	ReadAddress(ctx context.Context, id types.Identifier) (string, Origin, error)
	// WriteAddress 内容已存在时返回 ErrAlreadyExists
	WriteAddress(ctx context.Context, id types.Identifier) (string, error)
}

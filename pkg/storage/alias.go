package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"contentvault/pkg/types"
)

var (
	ErrAliasNotFound      = errors.New("alias not found")
	ErrAliasAlreadyExists = errors.New("alias already exists")
)

// AliasProvider 把 (keySpace, key) 映射到一个内容 ID
// 注册过的别名不可覆盖
type AliasProvider interface {
	ResolveAlias(ctx context.Context, keySpace, key string) (types.Identifier, error)
	RegisterAlias(ctx context.Context, keySpace, key string, id types.Identifier) error
}

func AliasNotFound(keySpace, key string) error {
	return fmt.Errorf("%w: %s/%s", ErrAliasNotFound, keySpace, key)
}

func AliasAlreadyExists(keySpace, key string) error {
	return fmt.Errorf("%w: %s/%s", ErrAliasAlreadyExists, keySpace, key)
}

// AliasKey 是 "keySpace:key" 形式的扁平 Key，和 Redis 上已有的数据保持一致
// 两个字段都可能包含 ':'，需要唯一性的后端应使用 ScopedAliasKey
func AliasKey(keySpace, key string) string {
	return keySpace + ":" + key
}

// ScopedAliasKey 在前面加上 keySpace 的长度，不同 (keySpace, key) 不会得到相同的 Key
func ScopedAliasKey(keySpace, key string) string {
	return strconv.Itoa(len(keySpace)) + ":" + keySpace + ":" + key
}

// WriteAliasContent 写入内容并注册别名
// 别名已指向同一内容时视为成功
func WriteAliasContent(ctx context.Context, p Provider, a AliasProvider, keySpace, key string, data []byte) (types.Identifier, error) {
	id, err := WriteAll(ctx, p, data)
	if err != nil {
		return types.Identifier{}, err
	}

	err = a.RegisterAlias(ctx, keySpace, key, id)
	if errors.Is(err, ErrAliasAlreadyExists) {
		existing, rerr := a.ResolveAlias(ctx, keySpace, key)
		if rerr == nil && existing.Equal(id) {
			return id, nil
		}
		return types.Identifier{}, err
	}
	if err != nil {
		return types.Identifier{}, err
	}
	return id, nil
}

// ReadAliasContent 解析别名并读取内容
func ReadAliasContent(ctx context.Context, p Provider, a AliasProvider, keySpace, key string) ([]byte, types.Identifier, error) {
	id, err := a.ResolveAlias(ctx, keySpace, key)
	if err != nil {
		return nil, types.Identifier{}, err
	}
	data, _, err := ReadAll(ctx, p, id)
	if err != nil {
		return nil, types.Identifier{}, err
	}
	return data, id, nil
}

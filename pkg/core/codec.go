package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"contentvault/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// 规范化 CBOR：相同的值永远得到相同的字节，从而得到相同的 Hash
var encOptions = cbor.EncOptions{
	Sort:          cbor.SortCanonical,
	ShortestFloat: cbor.ShortestFloatNone,
	Time:          cbor.TimeUnix,
	TimeTag:       cbor.EncTagNone,
	IndefLength:   cbor.IndefLengthForbidden,
	BigIntConvert: cbor.BigIntConvertShortest,
}

var em, _ = encOptions.EncMode()

// 解码端限制容器大小和嵌套深度 (防止恶意数据耗尽内存)
var decOptions = cbor.DecOptions{
	MaxArrayElements: 1 << 20,
	MaxMapPairs:      10000,
	MaxNestedLevels:  100,
	IndefLength:      cbor.IndefLengthForbidden,
	DupMapKey:        cbor.DupMapKeyEnforcedAPF,
	BignumTag:        cbor.BignumTagForbidden,
	TimeTag:          cbor.DecTagIgnored,
}

var dm, _ = decOptions.DecMode()

// CalculateHash 计算对象的 Hash 和序列化数据
func CalculateHash(v any) (types.Hash, []byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal object: %w", err)
	}
	sum := sha256.Sum256(data)
	return types.Hash(hex.EncodeToString(sum[:])), data, nil
}

// Marshal 使用规范化 CBOR 编码任意值
func Marshal(v any) ([]byte, error) {
	return em.Marshal(v)
}

// Unmarshal 使用受限的解码模式
func Unmarshal(data []byte, v any) error {
	return dm.Unmarshal(data, v)
}

package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"

	"github.com/zeebo/blake3"
)

// Algorithm 是内容哈希算法的标签，会被编码进 Identifier 的字符串形式
type Algorithm uint8

const (
	Blake3 Algorithm = 1
	Sha256 Algorithm = 2

	DefaultAlgorithm = Blake3
)

var ErrInvalidIdentifier = errors.New("invalid content identifier")

func (a Algorithm) String() string {
	switch a {
	case Blake3:
		return "blake3"
	case Sha256:
		return "sha256"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

func (a Algorithm) digestSize() int {
	switch a {
	case Blake3, Sha256:
		return 32
	default:
		return 0
	}
}

func (a Algorithm) newHash() hash.Hash {
	switch a {
	case Sha256:
		return sha256.New()
	default:
		return blake3.New()
	}
}

// Identifier 按内容寻址的数据 ID：算法 + 摘要 + 数据大小
// 两个 Identifier 相等当且仅当算法和摘要相同
type Identifier struct {
	alg    Algorithm
	digest []byte
	size   uint64
}

// NewIdentifier 使用默认算法计算 data 的 ID
func NewIdentifier(data []byte) Identifier {
	return NewIdentifierWith(DefaultAlgorithm, data)
}

func NewIdentifierWith(alg Algorithm, data []byte) Identifier {
	h := NewHasher(alg)
	h.Write(data)
	return h.Identifier()
}

func (id Identifier) Algorithm() Algorithm { return id.alg }
func (id Identifier) Size() uint64         { return id.size }
func (id Identifier) IsZero() bool         { return len(id.digest) == 0 }

// Digest 返回摘要的拷贝
func (id Identifier) Digest() []byte { return bytes.Clone(id.digest) }

// Hex 返回摘要的十六进制形式，适合作为存储 Key
func (id Identifier) Hex() string { return hex.EncodeToString(id.digest) }

func (id Identifier) Equal(other Identifier) bool {
	return id.alg == other.alg && bytes.Equal(id.digest, other.digest)
}

// Bytes 是二进制形式: uvarint(size) || alg || digest
func (id Identifier) Bytes() []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64+1+len(id.digest))
	buf = binary.AppendUvarint(buf, id.size)
	buf = append(buf, byte(id.alg))
	return append(buf, id.digest...)
}

// String 是无填充的 URL-safe base64 形式，用于线上传输和存储 Key
func (id Identifier) String() string {
	if id.IsZero() {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(id.Bytes())
}

func ParseIdentifier(s string) (Identifier, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Identifier{}, fmt.Errorf("%w: %q: %v", ErrInvalidIdentifier, s, err)
	}
	return IdentifierFromBytes(raw)
}

func IdentifierFromBytes(raw []byte) (Identifier, error) {
	size, n := binary.Uvarint(raw)
	if n <= 0 || len(raw) < n+1 {
		return Identifier{}, fmt.Errorf("%w: truncated size prefix", ErrInvalidIdentifier)
	}
	alg := Algorithm(raw[n])
	want := alg.digestSize()
	if want == 0 {
		return Identifier{}, fmt.Errorf("%w: unknown algorithm %d", ErrInvalidIdentifier, raw[n])
	}
	digest := raw[n+1:]
	if len(digest) != want {
		return Identifier{}, fmt.Errorf("%w: %s digest must be %d bytes, got %d", ErrInvalidIdentifier, alg, want, len(digest))
	}
	return Identifier{alg: alg, digest: bytes.Clone(digest), size: size}, nil
}

func (id Identifier) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *Identifier) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*id = Identifier{}
		return nil
	}
	parsed, err := ParseIdentifier(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Hasher 以流式方式计算 Identifier
type Hasher struct {
	alg  Algorithm
	h    hash.Hash
	size uint64
}

func NewHasher(alg Algorithm) *Hasher {
	return &Hasher{alg: alg, h: alg.newHash()}
}

func (h *Hasher) Write(p []byte) (int, error) {
	h.size += uint64(len(p))
	return h.h.Write(p)
}

func (h *Hasher) Identifier() Identifier {
	return Identifier{alg: h.alg, digest: h.h.Sum(nil), size: h.size}
}

package cvrpc

import "net/http"

// 响应中的 Status 沿用 HTTP 语义
const (
	StatusOK            = http.StatusOK        // 内容随响应内联返回
	StatusRedirect      = http.StatusNoContent // 内容通过 URL 直接传输
	StatusNotFound      = http.StatusNotFound
	StatusAlreadyExists = http.StatusConflict
)

type GetContentReaderRequest struct {
	DataSpace string `cbor:"data_space"`
	ID        string `cbor:"id"`
}

type GetContentReaderResponse struct {
	Status int32  `cbor:"status"`
	Data   []byte `cbor:"data,omitempty"`
	URL    string `cbor:"url,omitempty"`
	// Origin 是服务端 storage.Origin 的 CBOR 编码
	Origin []byte `cbor:"origin,omitempty"`
}

type GetContentWriterRequest struct {
	DataSpace string `cbor:"data_space"`
	ID        string `cbor:"id"`
}

type GetContentWriterResponse struct {
	Status int32 `cbor:"status"`
	// URL 为空表示通过 WriteContent 内联上传
	URL string `cbor:"url,omitempty"`
}

type WriteContentRequest struct {
	DataSpace string `cbor:"data_space"`
	Data      []byte `cbor:"data"`
}

type WriteContentResponse struct {
	ID string `cbor:"id"`
}

type ResolveAliasRequest struct {
	DataSpace string `cbor:"data_space"`
	KeySpace  string `cbor:"key_space"`
	Key       string `cbor:"key"`
}

type ResolveAliasResponse struct {
	Status int32 `cbor:"status"`
	// 404 时为空
	ID string `cbor:"id,omitempty"`
}

type RegisterAliasRequest struct {
	DataSpace string `cbor:"data_space"`
	KeySpace  string `cbor:"key_space"`
	Key       string `cbor:"key"`
	ID        string `cbor:"id"`
}

type RegisterAliasResponse struct {
	NewlyRegistered bool `cbor:"newly_registered"`
}

type GetConfigRequest struct {
	DataSpace string `cbor:"data_space"`
}

// GetConfigResponse 告诉客户端双方约定的内联阈值
type GetConfigResponse struct {
	SizeThreshold uint64 `cbor:"size_threshold"`
}

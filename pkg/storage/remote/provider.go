// Package remote 通过 ContentStore gRPC 服务访问远端存储
// 小对象随 RPC 内联传输，大对象通过服务端返回的 URL 直传
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	cvrpc "contentvault/pkg/api/cvrpc/v1"
	"contentvault/pkg/storage"
	"contentvault/pkg/types"

	"go.uber.org/zap"
)

type Provider struct {
	client    cvrpc.ContentStoreClient
	host      string
	dataSpace string
	threshold uint64
	http      *http.Client
	logger    *zap.Logger
}

// NewProvider 向服务端查询该 data space 的内联阈值
func NewProvider(ctx context.Context, client cvrpc.ContentStoreClient, host, dataSpace string, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := client.GetConfig(ctx, &cvrpc.GetConfigRequest{DataSpace: dataSpace})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch config for data space %q from %s: %w", dataSpace, host, err)
	}
	return &Provider{
		client:    client,
		host:      host,
		dataSpace: dataSpace,
		threshold: cfg.SizeThreshold,
		http:      &http.Client{Timeout: 10 * time.Minute},
		logger:    logger,
	}, nil
}

func (p *Provider) String() string {
	return fmt.Sprintf("grpc(%s, %s)", p.host, p.dataSpace)
}

// SizeThreshold 是双方约定的内联上限
func (p *Provider) SizeThreshold() uint64 {
	return p.threshold
}

func (p *Provider) Read(ctx context.Context, id types.Identifier) (io.ReadCloser, storage.Origin, error) {
	resp, err := p.client.GetContentReader(ctx, &cvrpc.GetContentReaderRequest{
		DataSpace: p.dataSpace,
		ID:        id.String(),
	})
	if err != nil {
		return nil, storage.Origin{}, fmt.Errorf("get content reader for %s: %w", id, err)
	}

	upstream, err := storage.DecodeOrigin(resp.Origin)
	if err != nil {
		return nil, storage.Origin{}, err
	}
	origin := storage.GrpcOrigin(p.host, upstream)

	switch resp.Status {
	case cvrpc.StatusOK:
		return io.NopCloser(bytes.NewReader(resp.Data)), origin, nil
	case cvrpc.StatusRedirect:
		body, err := p.download(ctx, id, resp.URL)
		if err != nil {
			return nil, storage.Origin{}, err
		}
		return body, origin, nil
	case cvrpc.StatusNotFound:
		return nil, storage.Origin{}, storage.NotFound(id)
	default:
		return nil, storage.Origin{}, fmt.Errorf("unexpected reader status %d for %s", resp.Status, id)
	}
}

func (p *Provider) Write(ctx context.Context, id types.Identifier) (storage.Writer, error) {
	resp, err := p.client.GetContentWriter(ctx, &cvrpc.GetContentWriterRequest{
		DataSpace: p.dataSpace,
		ID:        id.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("get content writer for %s: %w", id, err)
	}

	switch resp.Status {
	case cvrpc.StatusAlreadyExists:
		return nil, storage.AlreadyExists(id)
	case cvrpc.StatusOK, cvrpc.StatusRedirect:
	default:
		return nil, fmt.Errorf("unexpected writer status %d for %s", resp.Status, id)
	}

	// 空 URL: 内联上传
	// 上传发生在 Close 时，仍然受调用方 ctx 控制
	if resp.URL == "" {
		return storage.NewBufferedWriter(func(data []byte) error {
			out, err := p.client.WriteContent(ctx, &cvrpc.WriteContentRequest{
				DataSpace: p.dataSpace,
				Data:      data,
			})
			if err != nil {
				return fmt.Errorf("write content %s: %w", id, err)
			}
			written, err := types.ParseIdentifier(out.ID)
			if err != nil {
				return err
			}
			if !written.Equal(id) {
				return fmt.Errorf("%w: server stored %s, expected %s", storage.ErrCorrupted, written, id)
			}
			return nil
		}), nil
	}

	target := resp.URL
	return storage.NewBufferedWriter(func(data []byte) error {
		return p.upload(ctx, id, target, data)
	}), nil
}

// download 打开直传地址，支持 http(s) 和 file
func (p *Provider) download(ctx context.Context, id types.Identifier, raw string) (io.ReadCloser, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid content url for %s: %w", id, err)
	}

	switch u.Scheme {
	case "file":
		f, err := os.Open(filepath.FromSlash(u.Path))
		if os.IsNotExist(err) {
			return nil, storage.NotFound(id)
		}
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", u.Path, err)
		}
		return f, nil
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", id, err)
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, storage.NotFound(id)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("download %s: unexpected http status %s", id, resp.Status)
		}
		return resp.Body, nil
	default:
		return nil, fmt.Errorf("unsupported content url scheme %q", u.Scheme)
	}
}

func (p *Provider) upload(ctx context.Context, id types.Identifier, raw string, data []byte) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid upload url for %s: %w", id, err)
	}

	switch u.Scheme {
	case "file":
		dst := filepath.FromSlash(u.Path)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
		if err != nil {
			return err
		}
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return err
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			return err
		}
		return os.Rename(tmp.Name(), dst)
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, raw, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.ContentLength = int64(len(data))
		resp, err := p.http.Do(req)
		if err != nil {
			return fmt.Errorf("upload %s: %w", id, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("upload %s: unexpected http status %s", id, resp.Status)
		}
		p.logger.Debug("uploaded via url", zap.Stringer("id", id), zap.Int("bytes", len(data)))
		return nil
	default:
		return fmt.Errorf("unsupported upload url scheme %q", u.Scheme)
	}
}

// AliasProvider 通过同一个服务解析和注册别名
type AliasProvider struct {
	client    cvrpc.ContentStoreClient
	dataSpace string
}

func NewAliasProvider(client cvrpc.ContentStoreClient, dataSpace string) *AliasProvider {
	return &AliasProvider{client: client, dataSpace: dataSpace}
}

func (a *AliasProvider) ResolveAlias(ctx context.Context, keySpace, key string) (types.Identifier, error) {
	resp, err := a.client.ResolveAlias(ctx, &cvrpc.ResolveAliasRequest{
		DataSpace: a.dataSpace,
		KeySpace:  keySpace,
		Key:       key,
	})
	if err != nil {
		return types.Identifier{}, fmt.Errorf("resolve alias %s/%s: %w", keySpace, key, err)
	}
	if resp.Status == cvrpc.StatusNotFound || resp.ID == "" {
		return types.Identifier{}, storage.AliasNotFound(keySpace, key)
	}
	return types.ParseIdentifier(resp.ID)
}

func (a *AliasProvider) RegisterAlias(ctx context.Context, keySpace, key string, id types.Identifier) error {
	resp, err := a.client.RegisterAlias(ctx, &cvrpc.RegisterAliasRequest{
		DataSpace: a.dataSpace,
		KeySpace:  keySpace,
		Key:       key,
		ID:        id.String(),
	})
	if err != nil {
		return fmt.Errorf("register alias %s/%s: %w", keySpace, key, err)
	}
	if !resp.NewlyRegistered {
		return storage.AliasAlreadyExists(keySpace, key)
	}
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	cvrpc "contentvault/pkg/api/cvrpc/v1"
	"contentvault/pkg/storage"
	"contentvault/pkg/types"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DataSpace 是服务端对外暴露的一组存储
type DataSpace struct {
	Name      string
	Provider  storage.Provider
	Aliases   storage.AliasProvider   // 可选
	Addresses storage.AddressProvider // 可选，有它时大对象走 URL 直传
	// SizeThreshold 超过这个大小的内容不走 RPC 通道
	// 只有配置了 Addresses 才生效
	SizeThreshold uint64
}

func (d *DataSpace) threshold() uint64 {
	if d.Addresses == nil {
		return math.MaxUint64
	}
	return d.SizeThreshold
}

func (d *DataSpace) redirect(id types.Identifier) bool {
	return id.Size() > d.threshold()
}

type ContentService struct {
	cvrpc.UnimplementedContentStoreServer
	spaces map[string]*DataSpace
	logger *zap.Logger
}

func NewContentService(logger *zap.Logger, spaces ...*DataSpace) (*ContentService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := make(map[string]*DataSpace, len(spaces))
	for _, ds := range spaces {
		if ds.Provider == nil {
			return nil, fmt.Errorf("%w: data space %q has no provider", storage.ErrConfiguration, ds.Name)
		}
		if _, dup := m[ds.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate data space %q", storage.ErrConfiguration, ds.Name)
		}
		m[ds.Name] = ds
	}
	return &ContentService{spaces: m, logger: logger}, nil
}

func (s *ContentService) space(name string) (*DataSpace, error) {
	ds, ok := s.spaces[name]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown data space %q", name)
	}
	return ds, nil
}

func parseID(raw string) (types.Identifier, error) {
	id, err := types.ParseIdentifier(raw)
	if err != nil {
		return types.Identifier{}, status.Errorf(codes.InvalidArgument, "invalid content id: %v", err)
	}
	return id, nil
}

func (s *ContentService) GetConfig(ctx context.Context, req *cvrpc.GetConfigRequest) (*cvrpc.GetConfigResponse, error) {
	ds, err := s.space(req.DataSpace)
	if err != nil {
		return nil, err
	}
	return &cvrpc.GetConfigResponse{SizeThreshold: ds.threshold()}, nil
}

func (s *ContentService) GetContentReader(ctx context.Context, req *cvrpc.GetContentReaderRequest) (*cvrpc.GetContentReaderResponse, error) {
	ds, err := s.space(req.DataSpace)
	if err != nil {
		return nil, err
	}
	id, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}

	var (
		resp   cvrpc.GetContentReaderResponse
		origin storage.Origin
	)
	if ds.redirect(id) {
		resp.URL, origin, err = ds.Addresses.ReadAddress(ctx, id)
		resp.Status = cvrpc.StatusRedirect
	} else {
		resp.Data, origin, err = storage.ReadAll(ctx, ds.Provider, id)
		resp.Status = cvrpc.StatusOK
	}
	if errors.Is(err, storage.ErrNotFound) {
		return &cvrpc.GetContentReaderResponse{Status: cvrpc.StatusNotFound}, nil
	}
	if err != nil {
		s.logger.Error("read content failed", zap.String("data_space", ds.Name), zap.Stringer("id", id), zap.Error(err))
		return nil, status.Errorf(codes.Internal, "read %s: %v", id, err)
	}

	resp.Origin, err = origin.Encode()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode origin: %v", err)
	}
	return &resp, nil
}

func (s *ContentService) GetContentWriter(ctx context.Context, req *cvrpc.GetContentWriterRequest) (*cvrpc.GetContentWriterResponse, error) {
	ds, err := s.space(req.DataSpace)
	if err != nil {
		return nil, err
	}
	id, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}

	if ds.redirect(id) {
		url, err := ds.Addresses.WriteAddress(ctx, id)
		if errors.Is(err, storage.ErrAlreadyExists) {
			return &cvrpc.GetContentWriterResponse{Status: cvrpc.StatusAlreadyExists}, nil
		}
		if err != nil {
			return nil, status.Errorf(codes.Internal, "write address for %s: %v", id, err)
		}
		return &cvrpc.GetContentWriterResponse{Status: cvrpc.StatusRedirect, URL: url}, nil
	}

	exists, err := storage.Exists(ctx, ds.Provider, id)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "check %s: %v", id, err)
	}
	if exists {
		return &cvrpc.GetContentWriterResponse{Status: cvrpc.StatusAlreadyExists}, nil
	}
	// URL 为空: 客户端通过 WriteContent 内联上传
	return &cvrpc.GetContentWriterResponse{Status: cvrpc.StatusOK}, nil
}

func (s *ContentService) WriteContent(ctx context.Context, req *cvrpc.WriteContentRequest) (*cvrpc.WriteContentResponse, error) {
	ds, err := s.space(req.DataSpace)
	if err != nil {
		return nil, err
	}
	if uint64(len(req.Data)) > ds.threshold() {
		return nil, status.Errorf(codes.InvalidArgument,
			"content of %d bytes exceeds inline threshold %d", len(req.Data), ds.threshold())
	}

	id, err := storage.WriteAll(ctx, ds.Provider, req.Data)
	if err != nil {
		s.logger.Error("write content failed", zap.String("data_space", ds.Name), zap.Error(err))
		return nil, status.Errorf(codes.Internal, "write content: %v", err)
	}
	return &cvrpc.WriteContentResponse{ID: id.String()}, nil
}

func (s *ContentService) aliases(ds *DataSpace) (storage.AliasProvider, error) {
	if ds.Aliases == nil {
		return nil, status.Errorf(codes.FailedPrecondition, "data space %q has no alias provider", ds.Name)
	}
	return ds.Aliases, nil
}

func (s *ContentService) ResolveAlias(ctx context.Context, req *cvrpc.ResolveAliasRequest) (*cvrpc.ResolveAliasResponse, error) {
	ds, err := s.space(req.DataSpace)
	if err != nil {
		return nil, err
	}
	aliases, err := s.aliases(ds)
	if err != nil {
		return nil, err
	}

	id, err := aliases.ResolveAlias(ctx, req.KeySpace, req.Key)
	if errors.Is(err, storage.ErrAliasNotFound) {
		return &cvrpc.ResolveAliasResponse{Status: cvrpc.StatusNotFound}, nil
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "resolve alias: %v", err)
	}
	return &cvrpc.ResolveAliasResponse{Status: cvrpc.StatusOK, ID: id.String()}, nil
}

func (s *ContentService) RegisterAlias(ctx context.Context, req *cvrpc.RegisterAliasRequest) (*cvrpc.RegisterAliasResponse, error) {
	ds, err := s.space(req.DataSpace)
	if err != nil {
		return nil, err
	}
	aliases, err := s.aliases(ds)
	if err != nil {
		return nil, err
	}
	id, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}

	err = aliases.RegisterAlias(ctx, req.KeySpace, req.Key, id)
	if errors.Is(err, storage.ErrAliasAlreadyExists) {
		return &cvrpc.RegisterAliasResponse{NewlyRegistered: false}, nil
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "register alias: %v", err)
	}
	return &cvrpc.RegisterAliasResponse{NewlyRegistered: true}, nil
}

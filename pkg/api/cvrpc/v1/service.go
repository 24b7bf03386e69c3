package cvrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "cvrpc.v1.ContentStore"

const (
	ContentStore_GetConfig_FullMethodName        = "/cvrpc.v1.ContentStore/GetConfig"
	ContentStore_GetContentReader_FullMethodName = "/cvrpc.v1.ContentStore/GetContentReader"
	ContentStore_GetContentWriter_FullMethodName = "/cvrpc.v1.ContentStore/GetContentWriter"
	ContentStore_WriteContent_FullMethodName     = "/cvrpc.v1.ContentStore/WriteContent"
	ContentStore_ResolveAlias_FullMethodName     = "/cvrpc.v1.ContentStore/ResolveAlias"
	ContentStore_RegisterAlias_FullMethodName    = "/cvrpc.v1.ContentStore/RegisterAlias"
)

// ContentStoreClient 是 ContentStore 的客户端接口
type ContentStoreClient interface {
	GetConfig(ctx context.Context, in *GetConfigRequest, opts ...grpc.CallOption) (*GetConfigResponse, error)
	GetContentReader(ctx context.Context, in *GetContentReaderRequest, opts ...grpc.CallOption) (*GetContentReaderResponse, error)
	GetContentWriter(ctx context.Context, in *GetContentWriterRequest, opts ...grpc.CallOption) (*GetContentWriterResponse, error)
	WriteContent(ctx context.Context, in *WriteContentRequest, opts ...grpc.CallOption) (*WriteContentResponse, error)
	ResolveAlias(ctx context.Context, in *ResolveAliasRequest, opts ...grpc.CallOption) (*ResolveAliasResponse, error)
	RegisterAlias(ctx context.Context, in *RegisterAliasRequest, opts ...grpc.CallOption) (*RegisterAliasResponse, error)
}

type contentStoreClient struct {
	cc grpc.ClientConnInterface
}

func NewContentStoreClient(cc grpc.ClientConnInterface) ContentStoreClient {
	return &contentStoreClient{cc}
}

// invoke 总是使用 CBOR 编码
func (c *contentStoreClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *contentStoreClient) GetConfig(ctx context.Context, in *GetConfigRequest, opts ...grpc.CallOption) (*GetConfigResponse, error) {
	out := new(GetConfigResponse)
	if err := c.invoke(ctx, ContentStore_GetConfig_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *contentStoreClient) GetContentReader(ctx context.Context, in *GetContentReaderRequest, opts ...grpc.CallOption) (*GetContentReaderResponse, error) {
	out := new(GetContentReaderResponse)
	if err := c.invoke(ctx, ContentStore_GetContentReader_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *contentStoreClient) GetContentWriter(ctx context.Context, in *GetContentWriterRequest, opts ...grpc.CallOption) (*GetContentWriterResponse, error) {
	out := new(GetContentWriterResponse)
	if err := c.invoke(ctx, ContentStore_GetContentWriter_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *contentStoreClient) WriteContent(ctx context.Context, in *WriteContentRequest, opts ...grpc.CallOption) (*WriteContentResponse, error) {
	out := new(WriteContentResponse)
	if err := c.invoke(ctx, ContentStore_WriteContent_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *contentStoreClient) ResolveAlias(ctx context.Context, in *ResolveAliasRequest, opts ...grpc.CallOption) (*ResolveAliasResponse, error) {
	out := new(ResolveAliasResponse)
	if err := c.invoke(ctx, ContentStore_ResolveAlias_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *contentStoreClient) RegisterAlias(ctx context.Context, in *RegisterAliasRequest, opts ...grpc.CallOption) (*RegisterAliasResponse, error) {
	out := new(RegisterAliasResponse)
	if err := c.invoke(ctx, ContentStore_RegisterAlias_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// ContentStoreServer 是服务端需要实现的接口
// 实现必须嵌入 UnimplementedContentStoreServer 以保持向前兼容
type ContentStoreServer interface {
	GetConfig(context.Context, *GetConfigRequest) (*GetConfigResponse, error)
	GetContentReader(context.Context, *GetContentReaderRequest) (*GetContentReaderResponse, error)
	GetContentWriter(context.Context, *GetContentWriterRequest) (*GetContentWriterResponse, error)
	WriteContent(context.Context, *WriteContentRequest) (*WriteContentResponse, error)
	ResolveAlias(context.Context, *ResolveAliasRequest) (*ResolveAliasResponse, error)
	RegisterAlias(context.Context, *RegisterAliasRequest) (*RegisterAliasResponse, error)
	mustEmbedUnimplementedContentStoreServer()
}

type UnimplementedContentStoreServer struct{}

func (UnimplementedContentStoreServer) GetConfig(context.Context, *GetConfigRequest) (*GetConfigResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetConfig not implemented")
}
func (UnimplementedContentStoreServer) GetContentReader(context.Context, *GetContentReaderRequest) (*GetContentReaderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetContentReader not implemented")
}
func (UnimplementedContentStoreServer) GetContentWriter(context.Context, *GetContentWriterRequest) (*GetContentWriterResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetContentWriter not implemented")
}
func (UnimplementedContentStoreServer) WriteContent(context.Context, *WriteContentRequest) (*WriteContentResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method WriteContent not implemented")
}
func (UnimplementedContentStoreServer) ResolveAlias(context.Context, *ResolveAliasRequest) (*ResolveAliasResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ResolveAlias not implemented")
}
func (UnimplementedContentStoreServer) RegisterAlias(context.Context, *RegisterAliasRequest) (*RegisterAliasResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RegisterAlias not implemented")
}
func (UnimplementedContentStoreServer) mustEmbedUnimplementedContentStoreServer() {}

func RegisterContentStoreServer(s grpc.ServiceRegistrar, srv ContentStoreServer) {
	s.RegisterService(&ContentStore_ServiceDesc, srv)
}

// unaryHandler 把一元方法包装成 grpc.MethodHandler
func unaryHandler[Req any, Resp any](method string, call func(ContentStoreServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ContentStoreServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ContentStoreServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ContentStore_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ContentStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetConfig",
			Handler:    unaryHandler(ContentStore_GetConfig_FullMethodName, ContentStoreServer.GetConfig),
		},
		{
			MethodName: "GetContentReader",
			Handler:    unaryHandler(ContentStore_GetContentReader_FullMethodName, ContentStoreServer.GetContentReader),
		},
		{
			MethodName: "GetContentWriter",
			Handler:    unaryHandler(ContentStore_GetContentWriter_FullMethodName, ContentStoreServer.GetContentWriter),
		},
		{
			MethodName: "WriteContent",
			Handler:    unaryHandler(ContentStore_WriteContent_FullMethodName, ContentStoreServer.WriteContent),
		},
		{
			MethodName: "ResolveAlias",
			Handler:    unaryHandler(ContentStore_ResolveAlias_FullMethodName, ContentStoreServer.ResolveAlias),
		},
		{
			MethodName: "RegisterAlias",
			Handler:    unaryHandler(ContentStore_RegisterAlias_FullMethodName, ContentStoreServer.RegisterAlias),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cvrpc/v1/content_store",
}

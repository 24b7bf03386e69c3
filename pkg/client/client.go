package client

import (
	"fmt"
	"time"

	cvrpc "contentvault/pkg/api/cvrpc/v1"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// CVClient 封装了与 ContentVault 服务端的连接
type CVClient struct {
	conn *grpc.ClientConn
	addr string

	Content cvrpc.ContentStoreClient
}

// NewCVClient 创建并初始化客户端
// 它会立即返回，连接在后台进行
func NewCVClient(addr string, extra ...grpc.DialOption) (*CVClient, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(cvrpc.CodecName),
			grpc.MaxCallRecvMsgSize(256*1024*1024),
			grpc.MaxCallSendMsgSize(256*1024*1024),
		),
		// 保持连接活跃
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		// 这里的 err 通常只是配置错误（如地址格式不对）
		// 网络不通不会在这里报错
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", addr, err)
	}

	return &CVClient{
		conn:    conn,
		addr:    addr,
		Content: cvrpc.NewContentStoreClient(conn),
	}, nil
}

func (c *CVClient) Addr() string {
	return c.addr
}

// Close 关闭底层连接
func (c *CVClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

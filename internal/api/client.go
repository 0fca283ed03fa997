package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls the transaction service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to target without transport security.
func Dial(target string) (*Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return NewClient(conn), conn, nil
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CompileTransaction(ctx context.Context, in *CompileRequest, opts ...grpc.CallOption) (*CompileResponse, error) {
	return invoke[CompileResponse](ctx, c.cc, methodCompile, in, opts)
}

func (c *Client) SignTransaction(ctx context.Context, in *SignRequest, opts ...grpc.CallOption) (*SignResponse, error) {
	return invoke[SignResponse](ctx, c.cc, methodSign, in, opts)
}

func (c *Client) SubmitTransaction(ctx context.Context, in *SubmitRequest, opts ...grpc.CallOption) (*SubmitResponse, error) {
	return invoke[SubmitResponse](ctx, c.cc, methodSubmit, in, opts)
}

func (c *Client) GetTransaction(ctx context.Context, in *GetTransactionRequest, opts ...grpc.CallOption) (*GetTransactionResponse, error) {
	return invoke[GetTransactionResponse](ctx, c.cc, methodGet, in, opts)
}

func (c *Client) SimulateTransaction(ctx context.Context, in *SimulateRequest, opts ...grpc.CallOption) (*SimulateResponse, error) {
	return invoke[SimulateResponse](ctx, c.cc, methodSimulate, in, opts)
}

func (c *Client) EstimateTransaction(ctx context.Context, in *EstimateRequest, opts ...grpc.CallOption) (*EstimateResponse, error) {
	return invoke[EstimateResponse](ctx, c.cc, methodEstimate, in, opts)
}

// MonitorClient receives a MonitorTransaction stream.
type MonitorClient struct {
	stream grpc.ClientStream
}

// Recv returns the next update, or io.EOF once the stream has ended.
func (m *MonitorClient) Recv() (*MonitorResponse, error) {
	out := new(MonitorResponse)
	if err := m.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MonitorTransaction(ctx context.Context, in *MonitorRequest, opts ...grpc.CallOption) (*MonitorClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod(methodMonitor), withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &MonitorClient{stream: stream}, nil
}

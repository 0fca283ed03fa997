package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "txgate.transaction.v1.TransactionService"

const (
	methodCompile  = "CompileTransaction"
	methodSign     = "SignTransaction"
	methodSubmit   = "SubmitTransaction"
	methodMonitor  = "MonitorTransaction"
	methodGet      = "GetTransaction"
	methodSimulate = "SimulateTransaction"
	methodEstimate = "EstimateTransaction"
)

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// TransactionServiceServer is the server API of the transaction service.
type TransactionServiceServer interface {
	CompileTransaction(context.Context, *CompileRequest) (*CompileResponse, error)
	SignTransaction(context.Context, *SignRequest) (*SignResponse, error)
	SubmitTransaction(context.Context, *SubmitRequest) (*SubmitResponse, error)
	MonitorTransaction(*MonitorRequest, MonitorStream) error
	GetTransaction(context.Context, *GetTransactionRequest) (*GetTransactionResponse, error)
	SimulateTransaction(context.Context, *SimulateRequest) (*SimulateResponse, error)
	EstimateTransaction(context.Context, *EstimateRequest) (*EstimateResponse, error)
}

// MonitorStream is the server side of a MonitorTransaction stream.
type MonitorStream interface {
	Send(*MonitorResponse) error
	Context() context.Context
}

type monitorServerStream struct {
	grpc.ServerStream
}

func (s *monitorServerStream) Send(m *MonitorResponse) error {
	return s.ServerStream.SendMsg(m)
}

// RegisterTransactionServiceServer registers srv on s.
func RegisterTransactionServiceServer(s grpc.ServiceRegistrar, srv TransactionServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary builds the method descriptor of a request/response call.
func unary[Req, Resp any](name string, call func(TransactionServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TransactionServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(TransactionServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func monitorHandler(srv any, stream grpc.ServerStream) error {
	in := new(MonitorRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TransactionServiceServer).MonitorTransaction(in, &monitorServerStream{stream})
}

// ServiceDesc describes the transaction service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TransactionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(methodCompile, TransactionServiceServer.CompileTransaction),
		unary(methodSign, TransactionServiceServer.SignTransaction),
		unary(methodSubmit, TransactionServiceServer.SubmitTransaction),
		unary(methodGet, TransactionServiceServer.GetTransaction),
		unary(methodSimulate, TransactionServiceServer.SimulateTransaction),
		unary(methodEstimate, TransactionServiceServer.EstimateTransaction),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    methodMonitor,
			Handler:       monitorHandler,
			ServerStreams: true,
		},
	},
}

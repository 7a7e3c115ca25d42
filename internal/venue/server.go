package venue

import (
	"context"

	"google.golang.org/grpc"

	"orderflow/internal/order"
	"orderflow/internal/wire"
)

// Handler 处理一笔订单并返回场所状态字符串。
type Handler interface {
	HandleOrder(ctx context.Context, o order.Order) (string, error)
}

// HandlerFunc 将普通函数适配为 Handler。
type HandlerFunc func(ctx context.Context, o order.Order) (string, error)

func (f HandlerFunc) HandleOrder(ctx context.Context, o order.Order) (string, error) {
	return f(ctx, o)
}

// NewServer 返回注册了 HandleOrder 的 gRPC 服务端，service 为空时使用 DefaultService。
// 调用方的 opts 在默认编解码器之后生效。
func NewServer(service string, h Handler, opts ...grpc.ServerOption) *grpc.Server {
	if service == "" {
		service = DefaultService
	}
	opts = append([]grpc.ServerOption{grpc.ForceServerCodec(wire.Codec{})}, opts...)
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: service,
		HandlerType: (*Handler)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "HandleOrder",
			Handler:    handleOrder(service),
		}},
		Metadata: "api/exchange.proto",
	}, h)
	return srv
}

func handleOrder(service string) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + service + "/HandleOrder"
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		var o order.Order
		if err := dec(&o); err != nil {
			return nil, err
		}
		call := func(ctx context.Context, req any) (any, error) {
			status, err := srv.(Handler).HandleOrder(ctx, *req.(*order.Order))
			if err != nil {
				return nil, err
			}
			return &orderResponse{ExchangeStatus: status}, nil
		}
		if interceptor == nil {
			return call(ctx, &o)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, &o, info, call)
	}
}

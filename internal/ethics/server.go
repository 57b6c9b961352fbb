package ethics

import (
	"context"

	"github.com/danielpatrickdp/ouroboros/internal/adjust"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type ethicsServer interface {
	apply(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// server exposes a local adjuster over gRPC.
type server struct {
	adj adjust.EthicalAdjuster
}

func (s *server) apply(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in, err := fromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	out, err := s.adj.Apply(ctx, in)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return toStruct(out), nil
}

func applyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ethicsServer).apply(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: applyMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ethicsServer).apply(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ethicsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Apply", Handler: applyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ouroboros/ethics/v1/ethics.proto",
}

// RegisterEthicsServer serves adj as the EthicsService on s.
func RegisterEthicsServer(s grpc.ServiceRegistrar, adj adjust.EthicalAdjuster) {
	s.RegisterService(&serviceDesc, &server{adj: adj})
}

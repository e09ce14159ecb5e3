package converter

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "audioclip.converter.v1.Converter"

	probeMethod     = "/" + ServiceName + "/Probe"
	transcodeMethod = "/" + ServiceName + "/Transcode"
)

// converterServer is the handler type of the service. Messages are
// structpb.Struct so no generated code is needed on either side.
type converterServer interface {
	Probe(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Transcode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*converterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Probe", Handler: probeHandler},
		{MethodName: "Transcode", Handler: transcodeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "converter.proto",
}

func probeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(converterServer).Probe(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: probeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(converterServer).Probe(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func transcodeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(converterServer).Transcode(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: transcodeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(converterServer).Transcode(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

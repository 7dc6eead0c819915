// Package service exposes the triangulator over gRPC.
//
// Messages travel as google.protobuf.Struct so the service needs no
// generated stubs; the field layout of each message is fixed by the
// encode/decode helpers in messages.go.
package service

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "triangulator.v1.TriangulationService"

	SolveMethod         = "/" + ServiceName + "/Solve"
	LocateMethod        = "/" + ServiceName + "/Locate"
	ListStationsMethod  = "/" + ServiceName + "/ListStations"
	AddStationMethod    = "/" + ServiceName + "/AddStation"
	RemoveStationMethod = "/" + ServiceName + "/RemoveStation"
)

// TriangulationServer is the server API for TriangulationService.
type TriangulationServer interface {
	// Solve intersects two raw ECEF sight lines.
	Solve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Locate resolves an event against the server's station catalog.
	Locate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListStations returns the catalog sorted by station ID.
	ListStations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// AddStation registers a station and echoes it back.
	AddStation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// RemoveStation deletes the station named by "id".
	RemoveStation(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc is the grpc.ServiceDesc for TriangulationService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TriangulationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Solve", Handler: unaryHandler(SolveMethod, TriangulationServer.Solve)},
		{MethodName: "Locate", Handler: unaryHandler(LocateMethod, TriangulationServer.Locate)},
		{MethodName: "ListStations", Handler: unaryHandler(ListStationsMethod, TriangulationServer.ListStations)},
		{MethodName: "AddStation", Handler: unaryHandler(AddStationMethod, TriangulationServer.AddStation)},
		{MethodName: "RemoveStation", Handler: unaryHandler(RemoveStationMethod, TriangulationServer.RemoveStation)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "triangulator/v1/triangulator.proto",
}

// RegisterTriangulationServer registers srv on s.
func RegisterTriangulationServer(s grpc.ServiceRegistrar, srv TriangulationServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryCall func(TriangulationServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TriangulationServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TriangulationServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

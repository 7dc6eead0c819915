package service

import (
	"context"

	"github.com/signalsfoundry/sight-triangulator/core"
	"github.com/signalsfoundry/sight-triangulator/internal/locate"
	"github.com/signalsfoundry/sight-triangulator/internal/logging"
	"github.com/signalsfoundry/sight-triangulator/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a typed client for TriangulationService. Errors are gRPC status
// errors as returned by the server.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Solve intersects two ECEF sight lines on the server. As with
// core.Triangulate, an accepted solution that puts the target behind an
// observer is returned together with a *core.BehindObserverError.
func (c *Client) Solve(ctx context.Context, req SolveRequest, opts ...grpc.CallOption) (core.Solution, error) {
	in, err := encodeSolveRequest(req)
	if err != nil {
		return core.Solution{}, err
	}
	out, err := c.invoke(ctx, SolveMethod, in, opts...)
	if err != nil {
		return core.Solution{}, err
	}
	sol, behind, err := decodeSolution(out)
	if err != nil {
		return core.Solution{}, err
	}
	if behind != nil {
		return sol, behind
	}
	return sol, nil
}

// Locate resolves ev against the server's catalog. The returned Fix carries
// station IDs only.
func (c *Client) Locate(ctx context.Context, ev model.Event, opts ...grpc.CallOption) (locate.Fix, error) {
	in, err := encodeEvent(ev)
	if err != nil {
		return locate.Fix{}, err
	}
	out, err := c.invoke(ctx, LocateMethod, in, opts...)
	if err != nil {
		return locate.Fix{}, err
	}
	return decodeFix(out)
}

// ListStations returns the server's catalog.
func (c *Client) ListStations(ctx context.Context, opts ...grpc.CallOption) ([]model.Station, error) {
	out, err := c.invoke(ctx, ListStationsMethod, &structpb.Struct{}, opts...)
	if err != nil {
		return nil, err
	}
	return decodeStations(out)
}

// AddStation registers st in the server's catalog.
func (c *Client) AddStation(ctx context.Context, st model.Station, opts ...grpc.CallOption) (model.Station, error) {
	in, err := structpb.NewStruct(stationMap(st))
	if err != nil {
		return model.Station{}, err
	}
	out, err := c.invoke(ctx, AddStationMethod, in, opts...)
	if err != nil {
		return model.Station{}, err
	}
	return decodeStation(out)
}

// RemoveStation deletes a station from the server's catalog.
func (c *Client) RemoveStation(ctx context.Context, id string, opts ...grpc.CallOption) error {
	in, err := structpb.NewStruct(map[string]any{"id": id})
	if err != nil {
		return err
	}
	_, err = c.invoke(ctx, RemoveStationMethod, in, opts...)
	return err
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if id := logging.RequestIDFromContext(ctx); id != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, RequestIDHeader, id)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

package service

import (
	"context"
	"errors"

	"github.com/signalsfoundry/sight-triangulator/core"
	"github.com/signalsfoundry/sight-triangulator/kb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrInvalidRequest marks a request message with a missing or mistyped field.
var ErrInvalidRequest = errors.New("invalid request")

// statusCodes is checked in order; the first sentinel matched decides the code.
var statusCodes = []struct {
	target error
	code   codes.Code
}{
	{kb.ErrStationNotFound, codes.NotFound},
	{core.ErrTargetBehindObserver, codes.FailedPrecondition},
	{ErrInvalidRequest, codes.InvalidArgument},
	{core.ErrInvalidInput, codes.InvalidArgument},
	{core.ErrParallelSightLines, codes.InvalidArgument},
	{kb.ErrInvalidStation, codes.InvalidArgument},
	{kb.ErrStationExists, codes.AlreadyExists},
	{context.Canceled, codes.Canceled},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
}

// ToStatusError converts a triangulator error into a gRPC status error.
// Errors that already carry a status pass through; anything unrecognised
// becomes Internal.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, m := range statusCodes {
		if errors.Is(err, m.target) {
			return status.Error(m.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

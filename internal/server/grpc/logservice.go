package grpcserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/robindai518/libiec61850/internal/eventlog"
	"github.com/robindai518/libiec61850/internal/runtime"
)

const logServiceName = "logserver.v1.LogService"

// LogServiceServer answers log reads with protobuf Struct messages, so the
// service needs no generated code:
//
//	Stats {"name"}                       -> stats fields
//	Query {"name","from","to","limit"}   -> {"entries": [...], "next"}
type LogServiceServer interface {
	Stats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Query(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var logServiceDesc = grpc.ServiceDesc{
	ServiceName: logServiceName,
	HandlerType: (*LogServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Stats", Handler: unary("Stats", LogServiceServer.Stats)},
		{MethodName: "Query", Handler: unary("Query", LogServiceServer.Query)},
	},
	Streams: []grpc.StreamDesc{},
}

func unary(method string, call func(LogServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	full := "/" + logServiceName + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LogServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(LogServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type logService struct {
	rt *runtime.Runtime
}

func (s *logService) store(req *structpb.Struct) (*eventlog.Store, error) {
	name := req.GetFields()["name"].GetStringValue()
	l, ok := s.rt.Log(name)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown log %q", name)
	}
	return l, nil
}

func (s *logService) Stats(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	l, err := s.store(req)
	if err != nil {
		return nil, err
	}
	st := l.Stats()
	return structpb.NewStruct(map[string]interface{}{
		"name":       st.Name,
		"count":      st.Count,
		"firstSeq":   float64(st.FirstSeq),
		"lastSeq":    float64(st.LastSeq),
		"maxEntries": st.MaxEntries,
	})
}

func (s *logService) Query(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	l, err := s.store(req)
	if err != nil {
		return nil, err
	}
	f := req.GetFields()
	from := uint64(f["from"].GetNumberValue())
	to := uint64(f["to"].GetNumberValue())
	limit := int(f["limit"].GetNumberValue())
	if limit <= 0 {
		limit = 100
	}
	entries, err := l.Read(from, to, limit)
	if err != nil {
		return nil, toStatus(err)
	}
	list := make([]interface{}, 0, len(entries))
	next := max(from, 1)
	for _, e := range entries {
		list = append(list, map[string]interface{}{
			"seq":     float64(e.SequenceID),
			"entryId": e.EntryID,
			"tsMs":    float64(e.Timestamp.UnixMilli()),
			"quality": int(e.Timestamp.Quality),
			"payload": base64.StdEncoding.EncodeToString(e.Payload),
		})
		next = e.SequenceID + 1
	}
	return structpb.NewStruct(map[string]interface{}{"entries": list, "next": float64(next)})
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, eventlog.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, eventlog.ErrInvalidState):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, eventlog.ErrStorageUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, fmt.Sprint(err))
}

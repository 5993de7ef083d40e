package grpcapi

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"tinyserve/pkg/types"
)

// RequestIDKey is the metadata key carrying the request id in both directions.
const RequestIDKey = "x-request-id"

// zlog is the logger used by the interceptors.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the RPC layer.
func SetLogger(l zerolog.Logger) { zlog = l }

type ctxKey struct{}

// RequestID returns the id assigned by LoggingInterceptor, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func isModelService(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/"+ServiceName+"/")
}

func modelOf(req any) string {
	switch r := req.(type) {
	case *types.ImageArgs:
		return r.Model
	case *types.BatchImageArgs:
		return r.Model
	case *types.TextArgs:
		return r.Model
	case *types.BatchTextArgs:
		return r.Model
	case *types.StringArg:
		return r.Data
	}
	return ""
}

// LoggingInterceptor assigns a request id (reusing the caller's x-request-id
// when present), echoes it in the response header and logs each call.
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(RequestIDKey); len(v) > 0 {
				id = v[0]
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDKey, id))
		ctx = context.WithValue(ctx, ctxKey{}, id)

		method := path.Base(info.FullMethod)
		model := modelOf(req)
		zlog.Debug().Str("method", method).Str("model", model).Str("request_id", id).Msg("rpc start")
		start := time.Now()
		resp, err := handler(ctx, req)
		ev := zlog.Info()
		if err != nil {
			ev = zlog.Error().Err(err)
		}
		ev.Str("method", method).Str("model", model).Str("request_id", id).
			Str("code", status.Code(err).String()).Dur("dur", time.Since(start)).Msg("rpc end")
		return resp, err
	}
}

// MetricsInterceptor records Prometheus counters for every call.
func MetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		method := path.Base(info.FullMethod)
		rpcInflight.WithLabelValues(method).Inc()
		defer rpcInflight.WithLabelValues(method).Dec()
		start := time.Now()
		resp, err := handler(ctx, req)
		rpcRequestsTotal.WithLabelValues(method, status.Code(err).String()).Inc()
		rpcRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// RecoveryInterceptor turns a panic escaping a model service handler into an
// in-band {error} response with status OK. Panics in other services become
// codes.Internal.
func RecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			rpcPanicsTotal.Inc()
			zlog.Error().Str("method", info.FullMethod).Interface("panic", v).Msg("handler panic")
			if isModelService(info.FullMethod) {
				rpcInbandErrors.WithLabelValues(path.Base(info.FullMethod)).Inc()
				resp, err = respond(types.ErrorPayload{Error: fmt.Sprint(v)}), nil
				return
			}
			resp, err = nil, status.Errorf(codes.Internal, "panic: %v", v)
		}()
		return handler(ctx, req)
	}
}

// ConcurrencyInterceptor bounds the model service calls running at once in
// this worker. limit <= 0 disables the bound; 1 serializes every call. Health
// and reflection calls bypass it.
func ConcurrencyInterceptor(limit int) grpc.UnaryServerInterceptor {
	if limit <= 0 {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			return handler(ctx, req)
		}
	}
	sem := make(chan struct{}, limit)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !isModelService(info.FullMethod) {
			return handler(ctx, req)
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		defer func() { <-sem }()
		return handler(ctx, req)
	}
}

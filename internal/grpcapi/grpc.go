package grpcapi

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// DefaultMaxMessageBytes is the per-message limit when none is configured.
const DefaultMaxMessageBytes = 1_000_000_000

// Options configures NewGRPCServer.
type Options struct {
	// Per-message limit in both directions.
	MaxMessageBytes int
	// See ConcurrencyInterceptor.
	MaxConcurrentCalls int
}

// NewGRPCServer builds a gRPC server hosting svc, the health service and
// reflection. Health starts NOT_SERVING for both the overall server and
// ServiceName; flip it with SetServing once the listener is bound.
func NewGRPCServer(svc ModelServer, opts Options) (*grpc.Server, *health.Server) {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	s := grpc.NewServer(
		grpc.MaxRecvMsgSize(opts.MaxMessageBytes),
		grpc.MaxSendMsgSize(opts.MaxMessageBytes),
		grpc.ChainUnaryInterceptor(
			LoggingInterceptor(),
			MetricsInterceptor(),
			RecoveryInterceptor(),
			ConcurrencyInterceptor(opts.MaxConcurrentCalls),
		),
	)
	RegisterModelServer(s, svc)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	return s, hs
}

// SetServing flips the health flag of the server and ServiceName.
func SetServing(hs *health.Server, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus("", st)
	hs.SetServingStatus(ServiceName, st)
}

// DialOptions are the client options matching a server built by NewGRPCServer.
func DialOptions(maxMessageBytes int) []grpc.DialOption {
	if maxMessageBytes <= 0 {
		maxMessageBytes = DefaultMaxMessageBytes
	}
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageBytes),
			grpc.MaxCallSendMsgSize(maxMessageBytes),
		),
	}
}

package server

import (
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthhandler "community-bot/backend/internal/health/handler"
	"community-bot/backend/internal/server/interceptors"
)

// slowRPC is the duration above which successful RPCs are logged.
const slowRPC = time.Second

// Deps holds the services exposed over gRPC.
type Deps struct {
	// Health serves grpc.health.v1.Health. If nil, the health service is not registered.
	Health *healthhandler.Server
	// Reflection registers the server reflection service (for grpcurl and friends).
	Reflection bool
}

// NewGRPCServer returns a gRPC server instrumented with OpenTelemetry and request logging.
// Extra options are appended after the defaults.
func NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	skip := map[string]bool{
		healthpb.Health_Check_FullMethodName: true,
	}
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors.LoggingUnary(slowRPC, skip)),
	}
	return grpc.NewServer(append(base, opts...)...)
}

// RegisterServices registers all gRPC services on s.
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health.Server)
	}
	if deps.Reflection {
		if rs, ok := s.(reflection.GRPCServer); ok {
			reflection.Register(rs)
		}
	}
}

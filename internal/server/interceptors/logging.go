package interceptors

import (
	"context"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// LoggingUnary returns a unary server interceptor that logs every RPC that ends in a non-OK status,
// and any RPC slower than slow when slow > 0. Methods in skipMethods (e.g. health checks) are never logged.
func LoggingUnary(slow time.Duration, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		elapsed := time.Since(start)
		code := status.Code(err)
		switch {
		case code != codes.OK:
			log.Printf("grpc: %s from %s failed: code=%s duration=%s err=%v", info.FullMethod, ClientIP(ctx), code, elapsed, err)
		case slow > 0 && elapsed > slow:
			log.Printf("grpc: %s from %s slow: duration=%s", info.FullMethod, ClientIP(ctx), elapsed)
		}
		return resp, err
	}
}

// ClientIP returns the peer host for ctx, or "" when unknown.
func ClientIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String()
	}
	return host
}

package handler

import (
	"context"
	"log"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultProbeInterval is how often Run re-checks dependencies.
const DefaultProbeInterval = 10 * time.Second

const probeTimeout = 2 * time.Second

// Pinger is a dependency the process cannot serve without (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a plain ping function (e.g. the volatile store's Ping) to Pinger.
type PingFunc func(ctx context.Context) error

// PingContext calls f.
func (f PingFunc) PingContext(ctx context.Context) error {
	return f(ctx)
}

// Server wraps the standard gRPC health service and derives its status from dependency probes.
// The overall status ("") and every registered service name share the same result.
type Server struct {
	*health.Server

	mu       sync.Mutex
	probes   map[string]Pinger
	services []string
	last     healthpb.HealthCheckResponse_ServingStatus
}

// NewServer returns a health server that reports NOT_SERVING until the first Probe.
// probes maps a dependency name (used only in logs) to its pinger; nil pingers are ignored.
func NewServer(probes map[string]Pinger, services ...string) *Server {
	s := &Server{
		Server:   health.NewServer(),
		probes:   make(map[string]Pinger, len(probes)),
		services: append([]string{""}, services...),
		last:     healthpb.HealthCheckResponse_UNKNOWN,
	}
	for name, p := range probes {
		if p != nil {
			s.probes[name] = p
		}
	}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Probe pings every dependency and publishes SERVING only when all succeed.
// A failed ping is never returned as an error; it only flips the status.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	for name, p := range s.probes {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := p.PingContext(pctx)
		cancel()
		if err != nil {
			log.Printf("health: %s ping failed: %v", name, err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.set(st)
	return st
}

// Run probes immediately and then every interval until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	s.Probe(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Serving reports whether the last probe succeeded.
func (s *Server) Serving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last == healthpb.HealthCheckResponse_SERVING
}

func (s *Server) set(st healthpb.HealthCheckResponse_ServingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == s.last {
		return
	}
	if s.last != healthpb.HealthCheckResponse_UNKNOWN {
		log.Printf("health: status %s -> %s", s.last, st)
	}
	s.last = st
	for _, name := range s.services {
		s.SetServingStatus(name, st)
	}
}

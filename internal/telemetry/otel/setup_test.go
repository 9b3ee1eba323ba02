package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	providers, err := NewProviders(ctx, "", "activity-worker", false)
	if err != nil {
		t.Fatalf("NewProviders empty endpoint: %v", err)
	}
	if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
		t.Fatal("all providers should be set for empty endpoint")
	}
	if err := providers.Shutdown(ctx); err != nil {
		t.Errorf("shutdown should be no-op for empty endpoint, got error: %v", err)
	}
}

func TestNewProviders_WhitespaceEndpoint(t *testing.T) {
	providers, err := NewProviders(context.Background(), "   ", "activity-worker", false)
	if err != nil {
		t.Fatalf("NewProviders whitespace endpoint: %v", err)
	}
	if providers == nil {
		t.Fatal("providers should not be nil")
	}
}

func TestNewProviders_InvalidURL(t *testing.T) {
	for _, endpoint := range []string{"://invalid", "http://[invalid", "http://"} {
		t.Run(endpoint, func(t *testing.T) {
			if _, err := NewProviders(context.Background(), endpoint, "activity-worker", false); err == nil {
				t.Errorf("NewProviders(%q) should return error", endpoint)
			}
		})
	}
}

func TestParseEndpoint(t *testing.T) {
	testCases := []struct {
		name         string
		endpoint     string
		override     bool
		wantTarget   string
		wantInsecure bool
	}{
		{"bare host port", "collector:4317", false, "collector:4317", true},
		{"http", "http://collector:4317", false, "collector:4317", true},
		{"https", "https://collector:4317", false, "collector:4317", false},
		{"https with override", "https://collector:4317", true, "collector:4317", true},
		{"path dropped", "https://collector:4317/v1/traces", false, "collector:4317", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			target, insecure, err := parseEndpoint(tc.endpoint, tc.override)
			if err != nil {
				t.Fatalf("parseEndpoint(%q): %v", tc.endpoint, err)
			}
			if target != tc.wantTarget {
				t.Errorf("target = %q, want %q", target, tc.wantTarget)
			}
			if insecure != tc.wantInsecure {
				t.Errorf("insecure = %v, want %v", insecure, tc.wantInsecure)
			}
		})
	}
}

func TestNewProviders_HTTPEndpoint(t *testing.T) {
	ctx := context.Background()
	providers, err := NewProviders(ctx, "http://localhost:4317", "activity-worker", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	defer func() { _ = providers.Shutdown(ctx) }()
	if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
		t.Error("all providers should be created")
	}
}

func TestSetGlobal_WithProviders(t *testing.T) {
	ctx := context.Background()
	providers, err := NewProviders(ctx, "", "activity-worker", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	original := otel.GetTracerProvider()
	defer otel.SetTracerProvider(original)

	providers.SetGlobal()
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Error("global TracerProvider should be the SDK provider after SetGlobal")
	}
}

func TestProviders_Metrics(t *testing.T) {
	providers, err := NewProviders(context.Background(), "", "activity-worker", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	m, err := providers.Metrics()
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	m.EventSubmitted(context.Background(), "message")
	m.JobSkipped(context.Background(), "counter-sync")

	empty := &Providers{}
	if m, err := empty.Metrics(); err != nil || m == nil {
		t.Errorf("Metrics without MeterProvider = %v, %v; want noop", m, err)
	}
}

// Package ingest feeds telemetry produced during a test run into an archive
// builder: over OTLP gRPC from instrumented runners, or from JSONL files
// written by an OpenTelemetry Collector file exporter.
package ingest

import (
	"context"
	"fmt"
	"net"
	"sync"

	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
)

// SpanReceiver accepts batches of resource spans. archive.Builder implements
// this; implementations must be safe for concurrent Export calls.
type SpanReceiver interface {
	ReceiveSpans(ctx context.Context, resourceSpans []*tracepb.ResourceSpans) error
}

// Config holds bind settings for the OTLP receiver.
type Config struct {
	Host string // e.g. "127.0.0.1"
	Port int    // 0 for an ephemeral port
}

// Server receives OTLP trace exports over gRPC and forwards each batch to a
// SpanReceiver.
type Server struct {
	listener     net.Listener
	grpcServer   *grpc.Server
	spanReceiver SpanReceiver
	stopOnce     sync.Once
	stopChan     chan struct{}
}

// NewServer binds the listener and registers the trace service. Use port 0
// to let the OS pick; Endpoint reports the actual address.
func NewServer(cfg Config, receiver SpanReceiver) (*Server, error) {
	if receiver == nil {
		return nil, fmt.Errorf("span receiver cannot be nil")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()
	server := &Server{
		listener:     listener,
		grpcServer:   grpcServer,
		spanReceiver: receiver,
		stopChan:     make(chan struct{}),
	}

	collectortrace.RegisterTraceServiceServer(grpcServer, &traceService{receiver: receiver})
	return server, nil
}

// Start serves OTLP requests until Stop is called or ctx is cancelled.
// Typically run in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopChan:
		}
	}()

	return s.grpcServer.Serve(s.listener)
}

// Stop gracefully shuts the receiver down. Safe to call multiple times.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.grpcServer.GracefulStop()
		close(s.stopChan)
	})
}

// Endpoint returns the actual listening address, e.g. "127.0.0.1:54321".
func (s *Server) Endpoint() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

type traceService struct {
	collectortrace.UnimplementedTraceServiceServer
	receiver SpanReceiver
}

// Export handles incoming trace export requests, preserving the full
// ResourceSpans -> ScopeSpans -> Span structure.
func (t *traceService) Export(
	ctx context.Context,
	req *collectortrace.ExportTraceServiceRequest,
) (*collectortrace.ExportTraceServiceResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	if err := t.receiver.ReceiveSpans(ctx, req.ResourceSpans); err != nil {
		return nil, fmt.Errorf("failed to receive spans: %w", err)
	}

	return &collectortrace.ExportTraceServiceResponse{}, nil
}

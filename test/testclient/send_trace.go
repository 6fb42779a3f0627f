package main

import (
	"context"
	"fmt"
	"os"
	"time"

	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Simple program to send browser-test spans to a running record session.
// Usage: go run send_trace.go <endpoint>
// Example: go run send_trace.go 127.0.0.1:4317
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <endpoint>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s 127.0.0.1:4317\n", os.Args[0])
		os.Exit(1)
	}

	endpoint := os.Args[1]
	fmt.Printf("📡 Connecting to OTLP endpoint: %s\n", endpoint)

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create grpc client: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	client := collectortrace.NewTraceServiceClient(conn)

	now := time.Now()
	traceID := []byte{0xde, 0xad, 0xbe, 0xef, 0xca, 0xfe, 0xba, 0xbe, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	spans := []*tracepb.Span{
		{
			TraceId:           traceID,
			SpanId:            []byte{0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11},
			Name:              "page.goto",
			Kind:              tracepb.Span_SPAN_KIND_CLIENT,
			StartTimeUnixNano: uint64(now.UnixNano()),
			EndTimeUnixNano:   uint64(now.Add(800 * time.Millisecond).UnixNano()),
			Attributes: []*commonpb.KeyValue{
				strAttr("http.url", "https://example.com/login"),
			},
		},
		{
			TraceId:           traceID,
			SpanId:            []byte{0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x22},
			ParentSpanId:      []byte{0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11},
			Name:              "page.click",
			Kind:              tracepb.Span_SPAN_KIND_CLIENT,
			StartTimeUnixNano: uint64(now.Add(time.Second).UnixNano()),
			EndTimeUnixNano:   uint64(now.Add(1200 * time.Millisecond).UnixNano()),
			Attributes: []*commonpb.KeyValue{
				strAttr("selector", "#submit"),
			},
		},
		{
			TraceId:           traceID,
			SpanId:            []byte{0x33, 0x33, 0x33, 0x33, 0x33, 0x33, 0x33, 0x33},
			ParentSpanId:      []byte{0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11},
			Name:              "expect.toBeVisible",
			Kind:              tracepb.Span_SPAN_KIND_INTERNAL,
			StartTimeUnixNano: uint64(now.Add(1300 * time.Millisecond).UnixNano()),
			EndTimeUnixNano:   uint64(now.Add(1400 * time.Millisecond).UnixNano()),
		},
	}

	_, err = client.Export(context.Background(), &collectortrace.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{
			{
				Resource: &resourcepb.Resource{
					Attributes: []*commonpb.KeyValue{
						strAttr("service.name", "browser"),
					},
				},
				ScopeSpans: []*tracepb.ScopeSpans{
					{Spans: spans},
				},
			},
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to export spans: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Sent %d spans\n", len(spans))
}

func strAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key: key,
		Value: &commonpb.AnyValue{
			Value: &commonpb.AnyValue_StringValue{StringValue: value},
		},
	}
}

// Package archive builds and reads the portable trace archive produced for
// each browser-test execution: one test-metadata record, one aggregated OTLP
// trace file, and any screenshots captured while the test ran, packed into a
// zip with a fixed internal layout.
package archive

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// TestInfo describes the test run the archive belongs to. It is written once
// as test.json at the archive root; viewer-side code treats it as opaque.
type TestInfo struct {
	Title       string `json:"title"`
	Outcome     string `json:"outcome"`
	StartTimeMs int64  `json:"startTimeMs,omitempty"`
	DurationMs  int64  `json:"durationMs,omitempty"`
}

// Screenshot is one captured frame. TimestampMs is milliseconds since test
// start; Page and PageGUID identify the owning page instance and become part
// of the archive filename.
type Screenshot struct {
	Page        string
	PageGUID    string
	TimestampMs int64
	Data        []byte
}

// Builder accumulates span batches and screenshots for a single test
// execution. One builder per test; concurrent test executions must each use
// their own. Appends are safe from multiple goroutines.
type Builder struct {
	mu       sync.Mutex
	testInfo TestInfo
	batches  []*tracepb.ResourceSpans
	shots    []Screenshot
}

// NewBuilder creates a builder for one test execution.
func NewBuilder(info TestInfo) *Builder {
	return &Builder{testInfo: info}
}

// ReceiveSpans appends a batch of resource spans, preserving batch order.
// It implements ingest.SpanReceiver so a builder can sit directly behind an
// OTLP receiver.
func (b *Builder) ReceiveSpans(ctx context.Context, resourceSpans []*tracepb.ResourceSpans) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches = append(b.batches, resourceSpans...)
	return nil
}

// AddScreenshot records a captured frame. A frame with no image data or with
// an identity that cannot round-trip through the filename contract is
// rejected; the caller logs and moves on, the rest of the archive is
// unaffected.
func (b *Builder) AddScreenshot(s Screenshot) error {
	if len(s.Data) == 0 {
		return fmt.Errorf("screenshot %s@%s-%d: empty image data", s.Page, s.PageGUID, s.TimestampMs)
	}
	if s.Page == "" || strings.Contains(s.Page, "@") {
		return fmt.Errorf("screenshot page %q: must be non-empty and must not contain '@'", s.Page)
	}
	if s.PageGUID == "" || strings.Contains(s.PageGUID, "-") {
		return fmt.Errorf("screenshot page guid %q: must be non-empty and must not contain '-'", s.PageGUID)
	}
	if s.TimestampMs < 0 {
		return fmt.Errorf("screenshot timestamp %d: must not be negative", s.TimestampMs)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.shots = append(b.shots, s)
	return nil
}

// SpanCount returns the total number of spans appended so far.
func (b *Builder) SpanCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return countSpans(b.batches)
}

// ScreenshotCount returns the number of screenshots recorded so far.
func (b *Builder) ScreenshotCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.shots)
}

// Finalize serializes the accumulated state into archive bytes on w. The
// trace envelope and test metadata are serialized before any zip bytes are
// written, so a serialization failure produces no partial archive. A
// screenshot that fails to write is dropped with a log line and the rest of
// the archive still finalizes.
func (b *Builder) Finalize(w io.Writer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	envelope := &tracepb.TracesData{ResourceSpans: b.batches}
	traceJSON, err := protojson.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("serialize trace envelope: %w", err)
	}

	infoJSON, err := json.Marshal(b.testInfo)
	if err != nil {
		return fmt.Errorf("serialize test info: %w", err)
	}

	zw := zip.NewWriter(w)

	if err := writeEntry(zw, TestInfoPath, infoJSON); err != nil {
		return err
	}
	if err := writeEntry(zw, TraceFilePath, traceJSON); err != nil {
		return err
	}

	for _, s := range b.shots {
		name := ScreenshotFileName(s.Page, s.PageGUID, s.TimestampMs)
		if err := writeEntry(zw, ScreenshotDir+"/"+name, s.Data); err != nil {
			log.Printf("⚠️  archive: dropping screenshot %s: %v", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

func writeEntry(zw *zip.Writer, path string, data []byte) error {
	f, err := zw.Create(path)
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write archive entry %s: %w", path, err)
	}
	return nil
}

// countSpans walks the three-level ResourceSpans -> ScopeSpans -> Span shape.
func countSpans(batches []*tracepb.ResourceSpans) int {
	total := 0
	for _, rs := range batches {
		for _, ss := range rs.ScopeSpans {
			total += len(ss.Spans)
		}
	}
	return total
}

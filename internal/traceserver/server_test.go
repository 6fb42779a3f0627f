package traceserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tracedeck/tracedeck/internal/archive"
)

func testPayload(title string) *archive.Payload {
	return &archive.Payload{
		TestInfo: json.RawMessage(`{"title":"` + title + `"}`),
		TraceFiles: []archive.TraceFileEntry{
			{Name: "pw-reporter-trace.json", Content: json.RawMessage(`{"resourceSpans":[]}`)},
		},
		Screenshots: []archive.ScreenshotEntry{
			{Name: "page@g1-100.jpeg", Data: []byte{0xff, 0xd8, 0x01}},
		},
		ScreenshotMetas: []archive.ScreenshotMeta{
			{TimestampMs: 100, File: "page@g1-100.jpeg"},
		},
	}
}

// startServer runs the message loop for the duration of the test.
func startServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)
	return s
}

func TestLoadUnloadLifecycle(t *testing.T) {
	s := startServer(t)
	ctx := context.Background()

	if s.Archive() != nil {
		t.Fatal("expected no archive before load")
	}

	if err := s.Load(ctx, testPayload("first")); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	a := s.Archive()
	if a == nil {
		t.Fatal("expected resident archive after load")
	}
	if !strings.Contains(string(a.TestInfo()), "first") {
		t.Errorf("wrong test info: %s", a.TestInfo())
	}

	if err := s.Unload(ctx); err != nil {
		t.Fatalf("Unload failed: %v", err)
	}
	if s.Archive() != nil {
		t.Fatal("expected no archive after unload")
	}
}

func TestLoadReplacesFully(t *testing.T) {
	s := startServer(t)
	ctx := context.Background()

	first := testPayload("first")
	first.TraceFiles = append(first.TraceFiles, archive.TraceFileEntry{
		Name: "only-in-first.json", Content: json.RawMessage(`{}`),
	})
	if err := s.Load(ctx, first); err != nil {
		t.Fatalf("first Load failed: %v", err)
	}

	if err := s.Load(ctx, testPayload("second")); err != nil {
		t.Fatalf("second Load failed: %v", err)
	}

	a := s.Archive()
	if !strings.Contains(string(a.TestInfo()), "second") {
		t.Errorf("second load did not replace test info: %s", a.TestInfo())
	}
	if _, ok := a.TraceFile("only-in-first.json"); ok {
		t.Error("data from the first archive is still reachable")
	}
}

func TestLoadErrorKeepsPriorArchive(t *testing.T) {
	s := startServer(t)
	ctx := context.Background()

	if err := s.Load(ctx, testPayload("good")); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	bad := &archive.Payload{TestInfo: json.RawMessage(`{not json`)}
	if err := s.Load(ctx, bad); err == nil {
		t.Fatal("expected load error for malformed payload")
	}

	a := s.Archive()
	if a == nil || !strings.Contains(string(a.TestInfo()), "good") {
		t.Error("failed load clobbered the resident archive")
	}
}

func TestLoadValidatesEntries(t *testing.T) {
	s := startServer(t)
	ctx := context.Background()

	cases := []*archive.Payload{
		nil,
		{},
		{TestInfo: json.RawMessage(`{}`), TraceFiles: []archive.TraceFileEntry{{Name: "", Content: json.RawMessage(`{}`)}}},
		{TestInfo: json.RawMessage(`{}`), TraceFiles: []archive.TraceFileEntry{{Name: "t.json", Content: json.RawMessage(`{{`)}}},
		{TestInfo: json.RawMessage(`{}`), Screenshots: []archive.ScreenshotEntry{{Name: "", Data: []byte{1}}}},
	}
	for i, p := range cases {
		if err := s.Load(ctx, p); err == nil {
			t.Errorf("case %d: expected load error", i)
		}
	}
}

func TestDuplicateNamesLastWins(t *testing.T) {
	p := &archive.Payload{
		TestInfo: json.RawMessage(`{}`),
		TraceFiles: []archive.TraceFileEntry{
			{Name: "a.json", Content: json.RawMessage(`{"v":1}`)},
			{Name: "b.json", Content: json.RawMessage(`{"v":2}`)},
			{Name: "a.json", Content: json.RawMessage(`{"v":3}`)},
		},
	}
	a, err := newLoadedArchive(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, ok := a.TraceFile("a.json")
	if !ok || string(content) != `{"v":3}` {
		t.Errorf("duplicate name resolution: got %s", content)
	}

	names := a.TraceNames()
	if len(names) != 2 || names[0] != "a.json" || names[1] != "b.json" {
		t.Errorf("listing order: %v", names)
	}
}

func TestPingSynchronous(t *testing.T) {
	// Ping answers without the message loop running at all.
	s := NewServer()
	if got := s.Ping(); got.Method != ReplyPong {
		t.Errorf("Ping = %+v, want PONG", got)
	}
}

func TestInterceptSurface(t *testing.T) {
	a, err := newLoadedArchive(testPayload("t"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// /test.json
	resp, ok := Intercept(a, http.MethodGet, "/test.json")
	if !ok || resp.Status != http.StatusOK || !resp.NoCache {
		t.Errorf("/test.json: %+v ok=%v", resp, ok)
	}

	// trace listing
	resp, ok = Intercept(a, http.MethodGet, "/opentelemetry-protocol")
	if !ok {
		t.Fatal("trace listing not intercepted")
	}
	var listing traceListing
	if err := json.Unmarshal(resp.Body, &listing); err != nil {
		t.Fatalf("listing not JSON: %v", err)
	}
	if len(listing.JSONFiles) != 1 || listing.JSONFiles[0] != "pw-reporter-trace.json" {
		t.Errorf("listing = %+v", listing)
	}

	// trace file content
	resp, ok = Intercept(a, http.MethodGet, "/opentelemetry-protocol/pw-reporter-trace.json")
	if !ok || resp.Status != http.StatusOK {
		t.Errorf("trace file: %+v ok=%v", resp, ok)
	}

	// screenshot listing
	resp, ok = Intercept(a, http.MethodGet, "/screenshots")
	if !ok {
		t.Fatal("screenshot listing not intercepted")
	}
	var shots screenshotListing
	if err := json.Unmarshal(resp.Body, &shots); err != nil {
		t.Fatalf("listing not JSON: %v", err)
	}
	if len(shots.Screenshots) != 1 || shots.Screenshots[0].File != "page@g1-100.jpeg" {
		t.Errorf("screenshots = %+v", shots)
	}

	// screenshot bytes
	resp, ok = Intercept(a, http.MethodGet, "/screenshots/page@g1-100.jpeg")
	if !ok || resp.ContentType != archive.ScreenshotMIME || len(resp.Body) != 3 {
		t.Errorf("screenshot blob: %+v ok=%v", resp, ok)
	}
}

func TestInterceptMisses(t *testing.T) {
	a, err := newLoadedArchive(testPayload("t"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, path := range []string{
		"/opentelemetry-protocol/nope.json",
		"/screenshots/nope.jpeg",
	} {
		resp, ok := Intercept(a, http.MethodGet, path)
		if !ok {
			t.Errorf("%s: expected interception", path)
			continue
		}
		if resp.Status != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, resp.Status)
		}
		if !strings.Contains(resp.ContentType, "text/plain") || len(resp.Body) == 0 {
			t.Errorf("%s: miss should carry a plain-text message: %+v", path, resp)
		}
	}
}

func TestInterceptPassthrough(t *testing.T) {
	a, err := newLoadedArchive(testPayload("t"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// No archive resident
	if _, ok := Intercept(nil, http.MethodGet, "/test.json"); ok {
		t.Error("intercepted with no archive resident")
	}
	// Non-GET
	if _, ok := Intercept(a, http.MethodPost, "/test.json"); ok {
		t.Error("intercepted non-GET")
	}
	// Outside the API surface
	if _, ok := Intercept(a, http.MethodGet, "/index.html"); ok {
		t.Error("intercepted unrelated path")
	}
}

func TestHandlerHeadersAndFallthrough(t *testing.T) {
	s := startServer(t)
	if err := s.Load(context.Background(), testPayload("t")); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	fellThrough := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fellThrough = true
		w.WriteHeader(http.StatusTeapot)
	})

	ts := httptest.NewServer(s.Handler(next))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/test.json")
	if err != nil {
		t.Fatalf("GET /test.json: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	resp, err = http.Get(ts.URL + "/elsewhere")
	if err != nil {
		t.Fatalf("GET /elsewhere: %v", err)
	}
	resp.Body.Close()
	if !fellThrough || resp.StatusCode != http.StatusTeapot {
		t.Errorf("unclaimed path did not fall through: %d", resp.StatusCode)
	}
}

func TestDispatchControlFrames(t *testing.T) {
	s := startServer(t)
	ctx := context.Background()

	// PING answers PONG.
	reply, hasReply := s.dispatch(ctx, []byte(`{"method":"PING"}`))
	if !hasReply || reply.Method != ReplyPong {
		t.Errorf("PING reply = %+v", reply)
	}

	// Malformed frames still get exactly one reply.
	reply, hasReply = s.dispatch(ctx, []byte(`{nope`))
	if !hasReply || reply.Method != ReplyTraceLoadError {
		t.Errorf("malformed frame reply = %+v", reply)
	}

	// LOAD_TRACE round trip.
	frame, _ := json.Marshal(Message{Method: MethodLoadTrace, Payload: testPayload("ws")})
	reply, hasReply = s.dispatch(ctx, frame)
	if !hasReply || reply.Method != ReplyTraceLoaded {
		t.Errorf("LOAD_TRACE reply = %+v", reply)
	}
	if s.Archive() == nil {
		t.Error("archive not resident after control load")
	}

	// UNLOAD_TRACE has no reply.
	if _, hasReply = s.dispatch(ctx, []byte(`{"method":"UNLOAD_TRACE"}`)); hasReply {
		t.Error("UNLOAD_TRACE should not reply")
	}
	if s.Archive() != nil {
		t.Error("archive still resident after control unload")
	}
}

// Package traceserver is the viewer-side virtual trace server: it holds at
// most one loaded archive in memory and answers the fixed read API the
// replay UI depends on, without any real backend. Loading and unloading
// happen over an asynchronous message protocol; request interception is a
// pure function of the resident archive and the request.
package traceserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tracedeck/tracedeck/internal/archive"
)

// Message methods and reply types of the load protocol.
const (
	MethodLoadTrace   = "LOAD_TRACE"
	MethodUnloadTrace = "UNLOAD_TRACE"
	MethodPing        = "PING"

	ReplyTraceLoaded    = "TRACE_LOADED"
	ReplyTraceLoadError = "TRACE_LOAD_ERROR"
	ReplyPong           = "PONG"
)

// Message is one frame of the load protocol. Payload is set on LOAD_TRACE,
// Error on TRACE_LOAD_ERROR.
type Message struct {
	Method  string           `json:"method"`
	Error   string           `json:"error,omitempty"`
	Payload *archive.Payload `json:"payload,omitempty"`
}

// LoadedArchive is the immutable in-memory deserialization of one trace
// archive. Lookups are by name; listing order is fixed at load time.
type LoadedArchive struct {
	testInfo    json.RawMessage
	traceFiles  map[string]json.RawMessage
	traceNames  []string
	screenshots map[string][]byte
	metas       []archive.ScreenshotMeta
}

// newLoadedArchive validates and indexes a load payload. Duplicate names
// overwrite earlier entries; listing keeps first-seen position. Malformed
// payloads become load errors rather than faults.
func newLoadedArchive(p *archive.Payload) (*LoadedArchive, error) {
	if p == nil {
		return nil, fmt.Errorf("load payload is empty")
	}
	if len(p.TestInfo) == 0 || !json.Valid(p.TestInfo) {
		return nil, fmt.Errorf("test info is not valid JSON")
	}

	a := &LoadedArchive{
		testInfo:    p.TestInfo,
		traceFiles:  make(map[string]json.RawMessage, len(p.TraceFiles)),
		screenshots: make(map[string][]byte, len(p.Screenshots)),
		metas:       append([]archive.ScreenshotMeta(nil), p.ScreenshotMetas...),
	}

	for _, tf := range p.TraceFiles {
		if tf.Name == "" {
			return nil, fmt.Errorf("trace file entry with empty name")
		}
		if !json.Valid(tf.Content) {
			return nil, fmt.Errorf("trace file %s is not valid JSON", tf.Name)
		}
		if _, seen := a.traceFiles[tf.Name]; !seen {
			a.traceNames = append(a.traceNames, tf.Name)
		}
		a.traceFiles[tf.Name] = tf.Content
	}

	for _, s := range p.Screenshots {
		if s.Name == "" {
			return nil, fmt.Errorf("screenshot entry with empty name")
		}
		a.screenshots[s.Name] = s.Data
	}

	return a, nil
}

// TestInfo returns the resident test metadata.
func (a *LoadedArchive) TestInfo() json.RawMessage { return a.testInfo }

// TraceNames lists trace file names in load order.
func (a *LoadedArchive) TraceNames() []string { return a.traceNames }

// TraceFile returns the stored JSON for a trace file name.
func (a *LoadedArchive) TraceFile(name string) (json.RawMessage, bool) {
	c, ok := a.traceFiles[name]
	return c, ok
}

// Screenshot returns the stored image bytes for a screenshot name.
func (a *LoadedArchive) Screenshot(name string) ([]byte, bool) {
	b, ok := a.screenshots[name]
	return b, ok
}

// ScreenshotMetas returns the listing records for the resident screenshots.
func (a *LoadedArchive) ScreenshotMetas() []archive.ScreenshotMeta { return a.metas }

// Server owns the single mutable archive slot and runs the load-protocol
// message loop. All state transitions go through the loop, so interleaved
// loads and unloads serialize; readers see either the old or the new archive
// in full, never a mix.
type Server struct {
	mu      sync.RWMutex
	current *LoadedArchive

	requests chan controlRequest
}

type controlRequest struct {
	msg   Message
	reply chan Message // buffered; nil when no reply is expected
}

// NewServer creates a virtual trace server with no archive resident.
func NewServer() *Server {
	return &Server{
		requests: make(chan controlRequest, 16),
	}
}

// Run processes load-protocol messages until ctx is done. It must be running
// for Load and Unload to make progress; request interception works without
// it.
func (s *Server) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.requests:
			reply := s.handle(req.msg)
			if req.reply != nil {
				req.reply <- reply
			}
		}
	}
}

// handle executes one protocol message and produces its reply.
func (s *Server) handle(msg Message) Message {
	switch msg.Method {
	case MethodLoadTrace:
		loaded, err := newLoadedArchive(msg.Payload)
		if err != nil {
			return Message{Method: ReplyTraceLoadError, Error: err.Error()}
		}
		s.mu.Lock()
		s.current = loaded
		s.mu.Unlock()
		return Message{Method: ReplyTraceLoaded}

	case MethodUnloadTrace:
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		return Message{}

	case MethodPing:
		return Message{Method: ReplyPong}

	default:
		return Message{Method: ReplyTraceLoadError, Error: fmt.Sprintf("unknown method %q", msg.Method)}
	}
}

// send queues a message and waits for its reply.
func (s *Server) send(ctx context.Context, msg Message) (Message, error) {
	req := controlRequest{msg: msg, reply: make(chan Message, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
	select {
	case reply := <-req.reply:
		return reply, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Load replaces the resident archive with the given payload. Exactly one of
// success or a load error comes back; a failed validation leaves the
// previously resident archive untouched.
func (s *Server) Load(ctx context.Context, p *archive.Payload) error {
	reply, err := s.send(ctx, Message{Method: MethodLoadTrace, Payload: p})
	if err != nil {
		return err
	}
	if reply.Method == ReplyTraceLoadError {
		return fmt.Errorf("load trace: %s", reply.Error)
	}
	return nil
}

// Unload clears the archive slot unconditionally.
func (s *Server) Unload(ctx context.Context) error {
	_, err := s.send(ctx, Message{Method: MethodUnloadTrace})
	return err
}

// Ping answers synchronously, without going through the message loop, so a
// caller can verify the interception layer is alive before loading.
func (s *Server) Ping() Message {
	return Message{Method: ReplyPong}
}

// Archive returns the resident archive, or nil when none is loaded.
func (s *Server) Archive() *LoadedArchive {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

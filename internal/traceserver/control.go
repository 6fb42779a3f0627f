package traceserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// controlWriteTimeout bounds each reply write so a stuck client cannot pin
// the control goroutine.
const controlWriteTimeout = 5 * time.Second

// HandleControl upgrades to WebSocket and speaks the load protocol with a
// page-side client: LOAD_TRACE -> TRACE_LOADED | TRACE_LOAD_ERROR,
// UNLOAD_TRACE (no reply), PING -> PONG.
func (s *Server) HandleControl(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Same-host viewer page; any origin is fine
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		reply, hasReply := s.dispatch(ctx, data)
		if !hasReply {
			continue
		}

		out, err := json.Marshal(reply)
		if err != nil {
			log.Printf("traceserver: failed to marshal control reply: %v", err)
			continue
		}

		writeCtx, cancel := context.WithTimeout(ctx, controlWriteTimeout)
		err = conn.Write(writeCtx, websocket.MessageText, out)
		cancel()
		if err != nil {
			return
		}
	}
}

// dispatch routes one raw control frame. Every frame that expects a reply
// gets exactly one, including malformed ones, so the sender never hangs.
func (s *Server) dispatch(ctx context.Context, data []byte) (Message, bool) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{Method: ReplyTraceLoadError, Error: "malformed control message: " + err.Error()}, true
	}

	switch msg.Method {
	case MethodPing:
		return s.Ping(), true

	case MethodUnloadTrace:
		if err := s.Unload(ctx); err != nil {
			log.Printf("traceserver: unload failed: %v", err)
		}
		return Message{}, false

	case MethodLoadTrace:
		reply, err := s.send(ctx, msg)
		if err != nil {
			return Message{Method: ReplyTraceLoadError, Error: err.Error()}, true
		}
		return reply, true

	default:
		return Message{Method: ReplyTraceLoadError, Error: "unknown method " + msg.Method}, true
	}
}

package traceserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tracedeck/tracedeck/internal/archive"
)

// Response is one intercepted answer, independent of any network layer.
type Response struct {
	Status      int
	ContentType string
	NoCache     bool
	Body        []byte
}

// API paths served from a resident archive.
const (
	pathTestInfo    = "/test.json"
	pathTraceList   = "/opentelemetry-protocol"
	pathTracePrefix = "/opentelemetry-protocol/"
	pathShotList    = "/screenshots"
	pathShotPrefix  = "/screenshots/"
)

type traceListing struct {
	JSONFiles []string `json:"jsonFiles"`
}

type screenshotListing struct {
	Screenshots []archive.ScreenshotMeta `json:"screenshots"`
}

// Intercept answers a request from the loaded archive. The second return is
// false when the request should fall through to whatever other handling
// exists: no archive resident, non-GET method, or a path outside the API
// surface. Lookup misses under a known prefix answer 404 with a plain-text
// message.
func Intercept(a *LoadedArchive, method, path string) (Response, bool) {
	if a == nil || method != http.MethodGet {
		return Response{}, false
	}

	switch {
	case path == pathTestInfo:
		return jsonResponse(a.TestInfo()), true

	case path == pathTraceList:
		names := a.TraceNames()
		if names == nil {
			names = []string{}
		}
		return marshalResponse(traceListing{JSONFiles: names}), true

	case strings.HasPrefix(path, pathTracePrefix):
		name := strings.TrimPrefix(path, pathTracePrefix)
		content, ok := a.TraceFile(name)
		if !ok {
			return missResponse(fmt.Sprintf("trace file %q not found", name)), true
		}
		return jsonResponse(content), true

	case path == pathShotList:
		metas := a.ScreenshotMetas()
		if metas == nil {
			metas = []archive.ScreenshotMeta{}
		}
		return marshalResponse(screenshotListing{Screenshots: metas}), true

	case strings.HasPrefix(path, pathShotPrefix):
		name := strings.TrimPrefix(path, pathShotPrefix)
		blob, ok := a.Screenshot(name)
		if !ok {
			return missResponse(fmt.Sprintf("screenshot %q not found", name)), true
		}
		return Response{
			Status:      http.StatusOK,
			ContentType: archive.ScreenshotMIME,
			Body:        blob,
		}, true
	}

	return Response{}, false
}

func jsonResponse(body []byte) Response {
	return Response{
		Status:      http.StatusOK,
		ContentType: "application/json",
		NoCache:     true,
		Body:        body,
	}
}

func marshalResponse(v any) Response {
	body, err := json.Marshal(v)
	if err != nil {
		// Listing types marshal from plain slices; this cannot happen for
		// well-typed archives.
		return missResponse(fmt.Sprintf("encode response: %v", err))
	}
	return jsonResponse(body)
}

func missResponse(msg string) Response {
	return Response{
		Status:      http.StatusNotFound,
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(msg),
	}
}

// Handler adapts the interception layer to net/http. Requests not claimed by
// Intercept fall through to next; a nil next answers plain 404s.
func (s *Server) Handler(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, ok := Intercept(s.Archive(), r.Method, r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Type", resp.ContentType)
		if resp.NoCache {
			w.Header().Set("Cache-Control", "no-cache")
		}
		w.WriteHeader(resp.Status)
		w.Write(resp.Body)
	})
}

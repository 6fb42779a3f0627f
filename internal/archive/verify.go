package archive

import (
	"encoding/json"
	"fmt"

	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// Problem is one conformance failure found in an archive. Problems are
// reported, never repaired.
type Problem struct {
	Path string
	Msg  string
}

func (p Problem) String() string {
	if p.Path == "" {
		return p.Msg
	}
	return fmt.Sprintf("%s: %s", p.Path, p.Msg)
}

// Verify runs the conformance checks downstream tooling relies on: test
// metadata present and well-formed, at least one trace file, every trace
// file parsing to the ResourceSpans -> ScopeSpans -> Span envelope, a
// non-zero total span count, and every screenshot honoring the filename
// contract. Returns nil when the archive is conformant.
func Verify(p *Payload) []Problem {
	var problems []Problem

	if len(p.TestInfo) == 0 {
		problems = append(problems, Problem{Path: TestInfoPath, Msg: "missing"})
	} else if !json.Valid(p.TestInfo) {
		problems = append(problems, Problem{Path: TestInfoPath, Msg: "not valid JSON"})
	}

	if len(p.TraceFiles) == 0 {
		problems = append(problems, Problem{Path: TraceDir + "/", Msg: "no trace files"})
	}

	totalSpans := 0
	for _, tf := range p.TraceFiles {
		var data tracepb.TracesData
		if err := protojson.Unmarshal(tf.Content, &data); err != nil {
			problems = append(problems, Problem{
				Path: TraceDir + "/" + tf.Name,
				Msg:  fmt.Sprintf("not a ResourceSpans envelope: %v", err),
			})
			continue
		}
		totalSpans += countSpans(data.ResourceSpans)
	}

	if len(p.TraceFiles) > 0 && totalSpans == 0 {
		problems = append(problems, Problem{Path: TraceDir + "/", Msg: "zero spans across all trace files"})
	}

	for _, s := range p.Screenshots {
		if !ValidScreenshotFileName(s.Name) {
			problems = append(problems, Problem{
				Path: ScreenshotDir + "/" + s.Name,
				Msg:  "name violates {page}@{pageGuid}-{timestamp}.jpeg",
			})
		}
	}

	return problems
}

// VerifyFile reads and verifies the archive at the given path. A read error
// is itself reported as a single archive-level problem.
func VerifyFile(name string) []Problem {
	p, err := ReadArchiveFile(name)
	if err != nil {
		return []Problem{{Msg: err.Error()}}
	}
	return Verify(p)
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/tracedeck/tracedeck/internal/archive"
	"github.com/tracedeck/tracedeck/internal/search"
	"github.com/tracedeck/tracedeck/internal/timeline"
)

// InspectCommand returns the CLI command definition for the 'inspect'
// subcommand: print a human-readable summary of one archive.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print a summary of a trace archive",
		ArgsUsage: "ARCHIVE",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "width",
				Usage: "Timeline width in pixels for tick layout",
				Value: 800,
			},
			&cli.IntFlag{
				Name:  "slots",
				Usage: "Number of screenshot preview slots",
				Value: 10,
			},
			&cli.StringFlag{
				Name:  "search",
				Usage: "Search span attributes for this query",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a tracedeck config file",
			},
		},
		Action: runInspect,
	}
}

func runInspect(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("exactly one archive path is required")
	}

	cfg, err := LoadEffectiveConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	payload, err := archive.ReadArchiveFile(cmd.Args().First())
	if err != nil {
		return err
	}

	var info archive.TestInfo
	if err := json.Unmarshal(payload.TestInfo, &info); err != nil {
		return fmt.Errorf("test.json is not valid: %w", err)
	}

	spans, spanDurationMs := collectSpans(payload)
	durationMs := info.DurationMs
	if durationMs <= 0 {
		durationMs = spanDurationMs
	}

	fmt.Printf("Test:        %s (%s)\n", info.Title, info.Outcome)
	fmt.Printf("Duration:    %s\n", timeline.FormatTimeLabel(durationMs))
	fmt.Printf("Spans:       %d across %d trace file(s)\n", len(spans), len(payload.TraceFiles))
	fmt.Printf("Screenshots: %d\n", len(payload.ScreenshotMetas))

	if durationMs > 0 {
		scale := timeline.CalculateTimelineScale(durationMs, cmd.Int("width"))
		fmt.Printf("\nTimeline (interval %s):\n", timeline.FormatTimeLabel(scale.IntervalMs))
		fmt.Println(renderRuler(scale, cmd.Int("width")/10))
	}

	if slots := cmd.Int("slots"); slots > 0 && len(payload.ScreenshotMetas) > 0 {
		selected := archive.SampleScreenshots(payload.ScreenshotMetas, slots)
		labels := make([]string, len(selected))
		for i, m := range selected {
			labels[i] = timeline.FormatTimeLabel(m.TimestampMs)
		}
		fmt.Printf("\nPreview strip: %s\n", strings.Join(labels, " | "))
	}

	if query := cmd.String("search"); query != "" {
		result := search.Find(spans, query, cfg.SearchLimit)
		fmt.Printf("\nSearch %q: %s\n", query, result.Summary())
		for _, m := range result.Matches {
			fmt.Printf("  %-30s %s\n", m.Title, m.Value)
		}
	}

	return nil
}

// collectSpans parses every trace file and returns the searchable span
// fields plus the trace duration in milliseconds. Unparsable trace files
// are skipped; 'verify' is the place that reports them.
func collectSpans(payload *archive.Payload) ([]search.SpanFields, int64) {
	var spans []search.SpanFields
	var minStart, maxEnd uint64

	for _, tf := range payload.TraceFiles {
		var data tracepb.TracesData
		if err := protojson.Unmarshal(tf.Content, &data); err != nil {
			continue
		}
		spans = append(spans, search.FieldsFromTraces(&data)...)

		for _, rs := range data.ResourceSpans {
			for _, ss := range rs.ScopeSpans {
				for _, span := range ss.Spans {
					if minStart == 0 || span.StartTimeUnixNano < minStart {
						minStart = span.StartTimeUnixNano
					}
					if span.EndTimeUnixNano > maxEnd {
						maxEnd = span.EndTimeUnixNano
					}
				}
			}
		}
	}

	if maxEnd <= minStart {
		return spans, 0
	}
	return spans, int64((maxEnd - minStart) / 1_000_000)
}

// renderRuler lays tick labels out on one text line, each label starting at
// its tick's normalized position.
func renderRuler(scale timeline.Scale, cols int) string {
	if cols < 20 {
		cols = 20
	}
	line := make([]byte, cols)
	for i := range line {
		line[i] = ' '
	}

	for _, tick := range scale.Ticks {
		pos := int(tick.Position * float64(cols-1))
		for j, r := range []byte(tick.Label) {
			if pos+j >= cols {
				break
			}
			line[pos+j] = r
		}
	}
	return string(line)
}

package archive

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"sort"
	"strings"
)

// TraceFileEntry is one named trace file from an archive, content kept as
// raw JSON.
type TraceFileEntry struct {
	Name    string          `json:"name"`
	Content json.RawMessage `json:"content"`
}

// ScreenshotEntry is one named screenshot blob from an archive. Data rides
// as base64 when the entry crosses the JSON load protocol.
type ScreenshotEntry struct {
	Name string `json:"name"`
	Data []byte `json:"blob"`
}

// ScreenshotMeta is the listing record for one screenshot, derived from its
// filename.
type ScreenshotMeta struct {
	TimestampMs int64  `json:"timestamp"`
	File        string `json:"file"`
}

// Payload is the deserialized contents of one trace archive, in the shape
// the virtual trace server's load protocol expects. Entry order follows the
// archive; duplicate names resolve last-wins at load time.
type Payload struct {
	TestInfo        json.RawMessage   `json:"testInfo"`
	TraceFiles      []TraceFileEntry  `json:"traceFiles"`
	Screenshots     []ScreenshotEntry `json:"screenshots"`
	ScreenshotMetas []ScreenshotMeta  `json:"screenshotMetas"`
}

// ReadArchive deserializes a zip-shaped trace archive. Unknown entries are
// ignored; a screenshot whose name cannot be parsed is kept as a blob but
// gets no listing record (conformance verification reports it separately).
func ReadArchive(r io.ReaderAt, size int64) (*Payload, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	p := &Payload{}
	for _, f := range zr.File {
		switch {
		case f.Name == TestInfoPath:
			data, err := readEntry(f)
			if err != nil {
				return nil, err
			}
			p.TestInfo = data

		case strings.HasPrefix(f.Name, TraceDir+"/"):
			data, err := readEntry(f)
			if err != nil {
				return nil, err
			}
			p.TraceFiles = append(p.TraceFiles, TraceFileEntry{
				Name:    path.Base(f.Name),
				Content: data,
			})

		case strings.HasPrefix(f.Name, ScreenshotDir+"/"):
			data, err := readEntry(f)
			if err != nil {
				return nil, err
			}
			name := path.Base(f.Name)
			p.Screenshots = append(p.Screenshots, ScreenshotEntry{Name: name, Data: data})

			if _, _, ts, err := ParseScreenshotFileName(name); err == nil {
				p.ScreenshotMetas = append(p.ScreenshotMetas, ScreenshotMeta{TimestampMs: ts, File: name})
			} else {
				log.Printf("⚠️  archive: screenshot %s excluded from listing: %v", name, err)
			}
		}
	}

	sort.SliceStable(p.ScreenshotMetas, func(i, j int) bool {
		return p.ScreenshotMetas[i].TimestampMs < p.ScreenshotMetas[j].TimestampMs
	})

	return p, nil
}

// ReadArchiveFile deserializes the archive at the given filesystem path.
func ReadArchiveFile(name string) (*Payload, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive %s: %w", name, err)
	}

	return ReadArchive(f, info.Size())
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read archive entry %s: %w", f.Name, err)
	}
	return data, nil
}

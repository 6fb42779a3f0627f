package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"google.golang.org/protobuf/encoding/protojson"

	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

const (
	// Line buffer sizing for JSONL scanning. OTLP JSON lines can be large
	// for batched spans with many attributes.
	jsonlBufferInitial = 1 * 1024 * 1024
	jsonlBufferMax     = 10 * 1024 * 1024
)

// FileSource reads OTLP trace JSONL written by a collector file exporter and
// feeds each TracesData line into a SpanReceiver. In follow mode it watches
// the directory and picks up appended data by tracking per-file offsets.
type FileSource struct {
	directory string
	receiver  SpanReceiver
	verbose   bool

	watcher *fsnotify.Watcher

	mu          sync.Mutex
	fileOffsets map[string]int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// FileConfig holds configuration for a FileSource.
type FileConfig struct {
	Directory string // directory containing *.jsonl trace files
	Verbose   bool
}

// NewFileSource creates a file source over the given directory.
func NewFileSource(cfg FileConfig, receiver SpanReceiver) (*FileSource, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("directory is required")
	}

	info, err := os.Stat(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("cannot access directory %s: %w", cfg.Directory, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cfg.Directory)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &FileSource{
		directory:   cfg.Directory,
		receiver:    receiver,
		verbose:     cfg.Verbose,
		watcher:     watcher,
		fileOffsets: make(map[string]int64),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start loads existing JSONL files, then follows the directory for new data.
// It returns after the initial load; watching continues in the background.
func (fs *FileSource) Start(ctx context.Context) error {
	if err := fs.watcher.Add(fs.directory); err != nil {
		return fmt.Errorf("watch %s: %w", fs.directory, err)
	}

	entries, err := os.ReadDir(fs.directory)
	if err != nil {
		return fmt.Errorf("read %s: %w", fs.directory, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		path := filepath.Join(fs.directory, entry.Name())
		count, err := fs.loadFile(ctx, path)
		if err != nil {
			log.Printf("⚠️  filesource: error loading %s: %v", path, err)
			continue
		}
		if fs.verbose && count > 0 {
			log.Printf("📁 filesource: loaded %d span batches from %s", count, entry.Name())
		}
	}

	fs.wg.Add(1)
	go fs.watchLoop()
	return nil
}

// Stop stops the watcher and waits for the watch goroutine to finish.
func (fs *FileSource) Stop() {
	fs.cancel()
	fs.watcher.Close()
	fs.wg.Wait()
}

// loadFile reads a JSONL file from its last known offset, parsing each line
// as a TracesData envelope. A bad line is skipped, not fatal.
func (fs *FileSource) loadFile(ctx context.Context, path string) (int, error) {
	fs.mu.Lock()
	offset := fs.fileOffsets[path]
	fs.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			offset = 0
		}
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, jsonlBufferInitial), jsonlBufferMax)

	count := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var data tracepb.TracesData
		if err := protojson.Unmarshal(line, &data); err != nil {
			if fs.verbose {
				log.Printf("⚠️  filesource: skipping bad line in %s: %v", filepath.Base(path), err)
			}
			continue
		}
		if len(data.ResourceSpans) == 0 {
			continue
		}
		if err := fs.receiver.ReceiveSpans(ctx, data.ResourceSpans); err != nil {
			log.Printf("⚠️  filesource: receiver rejected batch from %s: %v", filepath.Base(path), err)
			continue
		}
		count++
	}

	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("reading %s: %w", path, err)
	}

	newOffset, _ := file.Seek(0, io.SeekCurrent)
	fs.mu.Lock()
	fs.fileOffsets[path] = newOffset
	fs.mu.Unlock()

	return count, nil
}

// watchLoop follows filesystem events for appended or newly created JSONL.
func (fs *FileSource) watchLoop() {
	defer fs.wg.Done()

	for {
		select {
		case <-fs.ctx.Done():
			return

		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".jsonl") {
				continue
			}

			count, err := fs.loadFile(fs.ctx, event.Name)
			if err != nil {
				log.Printf("⚠️  filesource: error reading %s: %v", event.Name, err)
			} else if fs.verbose && count > 0 {
				log.Printf("📁 filesource: loaded %d new span batches from %s", count, filepath.Base(event.Name))
			}

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  filesource: watcher error: %v", err)
		}
	}
}

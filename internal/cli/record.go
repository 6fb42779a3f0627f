package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/tracedeck/tracedeck/internal/archive"
	"github.com/tracedeck/tracedeck/internal/ingest"
)

// RecordCommand returns the CLI command definition for the 'record'
// subcommand: capture spans for one test execution and finalize them into a
// trace archive.
func RecordCommand() *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "Capture telemetry for one test run into a trace archive",
		Description: `Starts an OTLP gRPC receiver (or follows collector file-exporter JSONL
with --jsonl-dir / --otel-config) and accumulates spans into an archive
builder. On SIGINT/SIGTERM the archive is finalized to --out.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "out",
				Aliases:  []string{"o"},
				Usage:    "Output archive path",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "Test title stored in test.json",
				Value: "untitled test",
			},
			&cli.StringFlag{
				Name:  "outcome",
				Usage: "Test outcome stored in test.json",
				Value: "passed",
			},
			&cli.StringFlag{
				Name:  "otlp-host",
				Usage: "OTLP server bind address",
			},
			&cli.IntFlag{
				Name:  "otlp-port",
				Usage: "OTLP server port (0 for ephemeral)",
			},
			&cli.StringFlag{
				Name:  "jsonl-dir",
				Usage: "Read spans from collector file-exporter JSONL in this directory instead of gRPC",
			},
			&cli.StringFlag{
				Name:  "otel-config",
				Usage: "Discover JSONL directories from this OpenTelemetry Collector config",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a tracedeck config file",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable verbose logging",
			},
		},
		Action: runRecord,
	}
}

func runRecord(ctx context.Context, cmd *cli.Command) error {
	cfg, err := LoadEffectiveConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	cfg = MergeConfigs(cfg, &Config{
		OTLPHost: cmd.String("otlp-host"),
		OTLPPort: cmd.Int("otlp-port"),
		Verbose:  cmd.Bool("verbose"),
	})

	builder := archive.NewBuilder(archive.TestInfo{
		Title:   cmd.String("title"),
		Outcome: cmd.String("outcome"),
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sources []*ingest.FileSource
	dirs := jsonlDirs(cmd)
	if len(dirs) > 0 {
		for _, dir := range dirs {
			fs, err := ingest.NewFileSource(ingest.FileConfig{Directory: dir, Verbose: cfg.Verbose}, builder)
			if err != nil {
				return fmt.Errorf("failed to create file source: %w", err)
			}
			if err := fs.Start(runCtx); err != nil {
				return fmt.Errorf("failed to start file source: %w", err)
			}
			sources = append(sources, fs)
			log.Printf("📁 following trace JSONL in %s", dir)
		}
	} else {
		server, err := ingest.NewServer(
			ingest.Config{Host: cfg.OTLPHost, Port: cfg.OTLPPort},
			builder,
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP receiver: %w", err)
		}
		go func() {
			if err := server.Start(runCtx); err != nil {
				log.Printf("⚠️  OTLP receiver stopped: %v", err)
			}
		}()
		defer server.Stop()
		log.Printf("🌐 OTLP gRPC receiver listening on %s", server.Endpoint())
		if cfg.Verbose {
			log.Printf("   Runners can export with: OTEL_EXPORTER_OTLP_ENDPOINT=%s", server.Endpoint())
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("📡 received %v, finalizing archive", sig)
	case <-ctx.Done():
	}

	cancel()
	for _, fs := range sources {
		fs.Stop()
	}

	return writeArchive(builder, cmd.String("out"))
}

// jsonlDirs resolves the JSONL directories to follow, either given directly
// or discovered from a collector config.
func jsonlDirs(cmd *cli.Command) []string {
	var dirs []string
	if dir := cmd.String("jsonl-dir"); dir != "" {
		dirs = append(dirs, dir)
	}
	if configPath := cmd.String("otel-config"); configPath != "" {
		found, err := ingest.ExporterDirsFromConfig(configPath)
		if err != nil {
			log.Printf("⚠️  could not read otel config %s: %v", configPath, err)
		}
		dirs = append(dirs, found...)
	}
	return dirs
}

// writeArchive finalizes the builder to a file. A serialization failure
// leaves no partial archive behind.
func writeArchive(builder *archive.Builder, out string) error {
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	if err := builder.Finalize(f); err != nil {
		f.Close()
		os.Remove(out)
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close archive file: %w", err)
	}

	log.Printf("✅ wrote %s (%d spans, %d screenshots)", out, builder.SpanCount(), builder.ScreenshotCount())
	return nil
}

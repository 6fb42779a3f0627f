package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v3"

	"github.com/tracedeck/tracedeck/internal/archive"
	"github.com/tracedeck/tracedeck/internal/traceserver"
)

// ServeCommand returns the CLI command definition for the 'serve'
// subcommand: load one archive into the virtual trace server and answer the
// viewer read API over HTTP.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve a trace archive through the virtual trace server",
		Description: `Loads the archive into memory and serves /test.json,
/opentelemetry-protocol, and /screenshots from it. The /control endpoint
speaks the LOAD_TRACE/UNLOAD_TRACE/PING WebSocket protocol so a viewer
page can swap archives at runtime.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "archive",
				Aliases:  []string{"a"},
				Usage:    "Path to the trace archive to serve",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "http-host",
				Usage: "HTTP bind address",
			},
			&cli.IntFlag{
				Name:  "http-port",
				Usage: "HTTP port",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Reload the archive when the file changes",
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
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := LoadEffectiveConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	cfg = MergeConfigs(cfg, &Config{
		HTTPHost: cmd.String("http-host"),
		HTTPPort: cmd.Int("http-port"),
		Verbose:  cmd.Bool("verbose"),
	})

	archivePath := cmd.String("archive")

	server := traceserver.NewServer()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go server.Run(runCtx)

	if err := loadArchiveInto(runCtx, server, archivePath); err != nil {
		return err
	}
	log.Printf("✅ loaded %s", archivePath)

	if cmd.Bool("watch") {
		if err := watchArchive(runCtx, server, archivePath, cfg.Verbose); err != nil {
			return err
		}
		log.Printf("👀 watching %s for changes", archivePath)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /control", server.HandleControl)

	addr := fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	log.Printf("🌐 virtual trace server listening on http://%s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// loadArchiveInto reads an archive from disk and swaps it into the server.
func loadArchiveInto(ctx context.Context, server *traceserver.Server, path string) error {
	payload, err := archive.ReadArchiveFile(path)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	if err := server.Load(ctx, payload); err != nil {
		return fmt.Errorf("failed to load archive: %w", err)
	}
	return nil
}

// watchArchive reloads the served archive whenever the file is rewritten.
// Reporters replace archives whole, so a write/create event on the path is
// the reload trigger.
func watchArchive(ctx context.Context, server *traceserver.Server, path string, verbose bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if err := loadArchiveInto(ctx, server, path); err != nil {
					log.Printf("⚠️  reload failed: %v", err)
					continue
				}
				if verbose {
					log.Printf("🔄 reloaded %s", path)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️  watcher error: %v", err)
			}
		}
	}()

	return nil
}

package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// collectorConfig is the slice of an OpenTelemetry Collector config we care
// about: the exporters section, to locate file exporter output.
type collectorConfig struct {
	Exporters map[string]fileExporter `yaml:"exporters"`
}

type fileExporter struct {
	Path string `yaml:"path"`
}

// ExporterDirsFromConfig reads an OpenTelemetry Collector config and returns
// the parent directories of file-exporter paths (exporter names starting
// with "file/"). Those directories are where trace JSONL shows up, so they
// can feed a FileSource directly.
func ExporterDirsFromConfig(configPath string) ([]string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read otel config: %w", err)
	}

	var config collectorConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse otel config: %w", err)
	}

	dirSet := make(map[string]struct{})
	for name, exporter := range config.Exporters {
		if strings.HasPrefix(name, "file/") && exporter.Path != "" {
			dirSet[filepath.Dir(exporter.Path)] = struct{}{}
		}
	}

	dirs := make([]string, 0, len(dirSet))
	for dir := range dirSet {
		dirs = append(dirs, dir)
	}
	return dirs, nil
}

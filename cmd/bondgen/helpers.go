// helpers.go provides shared utility functions for the CLI commands.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/assembly"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/bond"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/fill"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/tags"
)

// humanSize formats a byte count as a human-readable string (e.g. "1.2 KB").
func humanSize(b int) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := unit, 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// writeFile writes data to outDir/name, ensuring the resulting path stays
// within outDir to prevent directory traversal through a template name.
func writeFile(w io.Writer, outDir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	outPath := filepath.Join(outDir, name)

	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return "", fmt.Errorf("resolving output directory: %w", err)
	}
	absPath, err := filepath.Abs(outPath)
	if err != nil {
		return "", fmt.Errorf("resolving output path: %w", err)
	}
	if !strings.HasPrefix(absPath, absOut+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal blocked: %s", name)
	}

	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", outPath, err)
	}
	fmt.Fprintf(w, "Wrote: %s (%s)\n", outPath, humanSize(len(data)))
	return outPath, nil
}

// readUpload reads a named input file.
func readUpload(path string) (assembly.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return assembly.Upload{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return assembly.Upload{Name: filepath.Base(path), Data: data}, nil
}

// runFile is the YAML file given with --metadata: run metadata plus an
// optional numbering section.
type runFile struct {
	fill.Metadata `yaml:",inline"`
	Numbering     *bond.NumberingConfig `yaml:"numbering"`
}

func loadRunFile(path string) (*runFile, error) {
	rf := &runFile{}
	if path == "" {
		return rf, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, rf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return rf, nil
}

// loadTagMap reads a tag map saved by "bondgen scan --json".
func loadTagMap(path string) (*tags.TagMap, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var tm tags.TagMap
	if err := json.Unmarshal(data, &tm); err != nil {
		return nil, fmt.Errorf("parsing tag map %s: %w", path, err)
	}
	return &tm, nil
}

// defaultNumbering returns the configured numbering defaults.
func defaultNumbering() bond.NumberingConfig {
	return cfg.Assembly.Numbering()
}

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roboforge/roboforge/internal/output"
)

// outputSink writes command output to stdout or to a file. File output goes
// to a temp file in the target directory and is renamed into place on
// commit, so a failed run never leaves a truncated artifact behind.
type outputSink struct {
	writer io.Writer
	path   string
	tmp    *os.File
	done   bool
}

func openSink(path string) (*outputSink, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "-" {
		return &outputSink{writer: os.Stdout, path: "-"}, nil
	}

	dir := filepath.Dir(trimmed)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(trimmed)+".*")
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: tmp, path: trimmed, tmp: tmp}, nil
}

// commit publishes file output. It is a no-op for stdout.
func (s *outputSink) commit() error {
	if s.tmp == nil || s.done {
		return nil
	}
	s.done = true
	if err := s.tmp.Close(); err != nil {
		_ = os.Remove(s.tmp.Name())
		return err
	}
	if err := os.Rename(s.tmp.Name(), s.path); err != nil {
		_ = os.Remove(s.tmp.Name())
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// abort drops uncommitted file output. Safe to defer alongside commit.
func (s *outputSink) abort() {
	if s.tmp == nil || s.done {
		return
	}
	s.done = true
	_ = s.tmp.Close()
	_ = os.Remove(s.tmp.Name())
}

// withSink runs write against the sink for path and commits on success.
func withSink(path string, write func(io.Writer) error) error {
	sink, err := openSink(path)
	if err != nil {
		return err
	}
	defer sink.abort()
	if err := write(sink.writer); err != nil {
		return err
	}
	return sink.commit()
}

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

func sanitizeFilename(value string) string {
	clean := strings.ToLower(strings.TrimSpace(value))
	clean = nonFilename.ReplaceAllString(clean, "-")
	clean = strings.Trim(clean, "-.")
	if clean == "" {
		return "output"
	}
	return clean
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

// ensureOutDir creates dir and returns its absolute path; empty stays empty.
func ensureOutDir(dir string) (string, error) {
	clean := strings.TrimSpace(dir)
	if clean == "" {
		return "", nil
	}
	if err := os.MkdirAll(clean, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return clean, nil
	}
	return abs, nil
}

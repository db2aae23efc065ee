package parser

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// DiagnosticSink receives inputs that no repair tier could recover, for
// offline diagnosis.
type DiagnosticSink interface {
	Record(original, repaired string, err error)
}

// SinkFunc adapts a function to DiagnosticSink.
type SinkFunc func(original, repaired string, err error)

func (f SinkFunc) Record(original, repaired string, err error) { f(original, repaired, err) }

var defaultSink DiagnosticSink = NewLogSink(nil)

// LogSink logs unrecoverable inputs, truncated to a preview.
type LogSink struct {
	logger *slog.Logger
}

const previewLimit = 500

// NewLogSink returns a sink writing to logger, or to the default logger at
// record time when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(original, repaired string, err error) {
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.With("component", "parser").Error("unrecoverable model output",
		"error", err,
		"original", preview(original),
		"repaired", preview(repaired))
}

func preview(s string) string {
	if len(s) > previewLimit {
		return s[:previewLimit] + "..."
	}
	return s
}

// DirSink writes each unrecoverable input pair to files in a directory and
// logs where they went.
type DirSink struct {
	dir    string
	seq    atomic.Uint64
	now    func() time.Time
	logger *slog.Logger
}

// NewDirSink creates dir if needed and returns a sink writing into it.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create diagnostics dir: %w", err)
	}
	return &DirSink{
		dir:    dir,
		now:    time.Now,
		logger: slog.Default().With("component", "parser"),
	}, nil
}

// Record writes <stamp>-<seq>-original.json and <stamp>-<seq>-repaired.json.
// Write failures are logged and otherwise ignored.
func (s *DirSink) Record(original, repaired string, err error) {
	base := fmt.Sprintf("%s-%04d", s.now().UTC().Format("20060102T150405"), s.seq.Add(1))
	origPath := filepath.Join(s.dir, base+"-original.json")
	fixedPath := filepath.Join(s.dir, base+"-repaired.json")

	if werr := os.WriteFile(origPath, []byte(original), 0o644); werr != nil {
		s.logger.Warn("failed to write parse diagnostic", "path", origPath, "error", werr)
		return
	}
	if werr := os.WriteFile(fixedPath, []byte(repaired), 0o644); werr != nil {
		s.logger.Warn("failed to write parse diagnostic", "path", fixedPath, "error", werr)
		return
	}
	s.logger.Error("unrecoverable model output saved",
		"error", err,
		"original_path", origPath,
		"repaired_path", fixedPath)
}

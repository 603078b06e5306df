// Package artifacts manages the per-run artifact directory and implements
// the recording collaborator: scenario execution logs are captured to files
// whose paths are attached to the scenario results.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
)

// Sink owns one run's artifact directory.
type Sink struct {
	baseDir string
	runID   string
	runDir  string
	log     log.Logger
	mu      sync.Mutex
}

// NewSink creates the directory for one run, keyed by run ID.
func NewSink(baseDir, runID string, logger log.Logger) (*Sink, error) {
	if logger == nil {
		logger = log.New()
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", runDir, err)
	}
	return &Sink{
		baseDir: baseDir,
		runID:   runID,
		runDir:  runDir,
		log:     logger.New("component", "artifacts"),
	}, nil
}

// RunID returns the run this sink belongs to.
func (s *Sink) RunID() string { return s.runID }

// RunDir returns the run's artifact directory.
func (s *Sink) RunDir() string { return s.runDir }

// WriteLog stores one captured log under the run directory, stripping ANSI
// escape sequences, and returns the written path.
func (s *Sink) WriteLog(name, content string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.runDir, sanitizeFilename(name)+".log")
	if err := os.WriteFile(path, []byte(stripansi.Strip(content)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	s.log.Debug("Wrote artifact", "path", path)
	return path, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeFilename makes a scenario name safe as a file name.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if name == "" {
		name = "scenario"
	}
	const maxLen = 120
	if len(name) > maxLen {
		name = name[:maxLen]
	}
	return name
}

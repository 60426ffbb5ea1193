package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/nao1215/prefixscan/internal/model"
)

const (
	// SummaryFileName is the extraction summary written after a run.
	SummaryFileName = "extraction_summary.json"

	// lockFileName guards the output directory against concurrent runs.
	lockFileName = ".prefixscan.lock"

	// lockRetryDelay is the polling interval while waiting for the lock.
	lockRetryDelay = 100 * time.Millisecond
)

// ErrOutputLocked is returned when another process holds the output
// directory lock until the context is done.
var ErrOutputLocked = errors.New("output directory is locked by another run")

// ErrInvalidVariantName is returned when a variant name cannot be used in
// a file name.
var ErrInvalidVariantName = errors.New("variant name is not usable as a file name")

var variantNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// FileSink persists crawl artifacts under an output directory.
//
// Files are written to a temporary file and renamed into place, and every
// write holds an exclusive lock on the directory so two runs cannot
// interleave their output.
type FileSink struct {
	dir string

	// mu serializes writers of this process; lock excludes other processes.
	mu   sync.Mutex
	lock *flock.Flock

	// now returns the summary timestamp. Tests replace it.
	now func() time.Time
}

// NewFileSink creates a FileSink for dir, creating the directory if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileSink{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, lockFileName)),
		now:  time.Now,
	}, nil
}

// Dir returns the output directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// ResultPath returns the words file path for variant.
func (s *FileSink) ResultPath(variant string) string {
	return filepath.Join(s.dir, "results_"+variant+".json")
}

// SummaryPath returns the extraction summary path.
func (s *FileSink) SummaryPath() string {
	return filepath.Join(s.dir, SummaryFileName)
}

// WriteResult writes the words of result as a JSON array in discovery
// order and returns the file path.
func (s *FileSink) WriteResult(ctx context.Context, result *model.CrawlResult) (string, error) {
	if !variantNamePattern.MatchString(result.Variant) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVariantName, result.Variant)
	}

	words := result.Words
	if words == nil {
		words = []string{}
	}

	path := s.ResultPath(result.Variant)
	if err := s.writeJSON(ctx, path, words); err != nil {
		return "", err
	}
	return path, nil
}

// WriteSummary writes extraction_summary.json for results and returns the
// file path.
func (s *FileSink) WriteSummary(ctx context.Context, results []*model.CrawlResult) (string, error) {
	path := s.SummaryPath()
	if err := s.writeJSON(ctx, path, NewSummaryReport(results, s.now())); err != nil {
		return "", err
	}
	return path, nil
}

func (s *FileSink) writeJSON(ctx context.Context, path string, v any) error {
	data, err := marshal(v, true, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutputLocked, err)
	}
	if !locked {
		return ErrOutputLocked
	}
	defer s.lock.Unlock() //nolint:errcheck // Unlock on a held lock only fails if the fd is gone

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()        //nolint:errcheck // already failing
		_ = os.Remove(tmpName) //nolint:errcheck // best effort cleanup
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName) //nolint:errcheck // best effort cleanup
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName) //nolint:errcheck // best effort cleanup
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

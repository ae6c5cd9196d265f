package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sameehj/scriptguard/pkg/metrics"
	"github.com/sameehj/scriptguard/pkg/report"
	"github.com/sameehj/scriptguard/pkg/validator"
	"golang.org/x/sync/errgroup"
	"mvdan.cc/sh/v3/fileutil"
)

// ErrNotScript is returned when a path does not look like a script.
var ErrNotScript = errors.New("not a script")

// Options configures a Scanner.
type Options struct {
	Sandbox string
	// Dialect forces a dialect for every file. Empty means detect.
	Dialect validator.Dialect
	// Fallback is used when detection is inconclusive.
	Fallback   validator.Dialect
	Extensions []string
	Workers    int
}

// Scanner validates script files against one sandbox root.
type Scanner struct {
	validator  *validator.Validator
	sandbox    string
	dialect    validator.Dialect
	fallback   validator.Dialect
	extensions map[string]struct{}
	workers    int
	logger     *slog.Logger
}

func New(v *validator.Validator, opts Options) *Scanner {
	if v == nil {
		v = validator.New()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	return &Scanner{
		validator:  v,
		sandbox:    opts.Sandbox,
		dialect:    opts.Dialect,
		fallback:   opts.Fallback,
		extensions: exts,
		workers:    workers,
	}
}

func (s *Scanner) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Sandbox returns the sandbox root reports are checked against.
func (s *Scanner) Sandbox() string {
	return s.sandbox
}

// Scan expands directories into candidate scripts and validates them
// concurrently. Reports are ordered by path.
func (s *Scanner) Scan(ctx context.Context, paths []string) ([]*report.Report, error) {
	files, err := s.Collect(paths)
	if err != nil {
		return nil, err
	}

	reports := make([]*report.Report, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := s.ScanFile(file)
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// Collect returns the files to scan. Explicit file arguments are always
// kept; directories are walked for candidate scripts.
func (s *Scanner) Collect(paths []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			add(filepath.Clean(root))
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if s.isCandidate(path, d) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

// IsCandidate reports whether path looks like a script worth validating.
func (s *Scanner) IsCandidate(path string) bool {
	info, err := os.Lstat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return s.isCandidate(path, fs.FileInfoToDirEntry(info))
}

func (s *Scanner) isCandidate(path string, d fs.DirEntry) bool {
	if _, ok := s.extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return true
	}
	switch fileutil.CouldBeScript2(d) {
	case fileutil.ConfIsScript:
		return true
	case fileutil.ConfIfShebang:
		return hasShebang(path)
	default:
		return false
	}
}

func hasShebang(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	head := make([]byte, 2)
	n, _ := io.ReadFull(f, head)
	return n == 2 && string(head) == "#!"
}

// ScanCandidate is ScanFile for paths that pass IsCandidate; other paths
// return ErrNotScript.
func (s *Scanner) ScanCandidate(path string) (*report.Report, error) {
	if !s.IsCandidate(path) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotScript)
	}
	return s.ScanFile(path)
}

// ScanFile reads and validates a single file.
func (s *Scanner) ScanFile(path string) (*report.Report, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return s.ScanSource(path, content), nil
}

// ScanReader validates a script read from r, reported under name.
func (s *Scanner) ScanReader(name string, r io.Reader) (*report.Report, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return s.ScanSource(name, content), nil
}

// ScanSource validates in-memory script content.
func (s *Scanner) ScanSource(name string, content []byte) *report.Report {
	dialect := s.dialect
	if dialect == "" {
		dialect = DetectDialect(name, content, s.fallback)
	}

	start := time.Now()
	result := s.validator.Validate(string(content), s.sandbox, dialect)
	metrics.Observe(result, time.Since(start))

	if result.Valid {
		s.logDebug("script_checked", "source", name, "dialect", dialect.String())
	} else {
		s.logWarn("validation_failed", "source", name, "dialect", dialect.String(), "violations", len(result.Violations))
	}
	return report.New(name, s.sandbox, dialect, result)
}

func (s *Scanner) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Scanner) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/conclave/internal/redact"
)

// NoFilesPlaceholder is the content of a scan that included nothing.
const NoFilesPlaceholder = "(No source files found matching criteria)"

// readConcurrency bounds parallel file reads during emission.
const readConcurrency = 8

// Options bounds a full scan. Zero values take the defaults.
type Options struct {
	MaxFiles     int
	MaxSizeKB    int
	MinFileBytes int64
	MaxFileKB    int

	// RedactPaths lists globs whose file content is replaced by a
	// placeholder before emission.
	RedactPaths []string
}

// DefaultOptions returns the standard full-scan limits.
func DefaultOptions() Options {
	return Options{MaxFiles: 75, MaxSizeKB: 100, MinFileBytes: 50, MaxFileKB: 50}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxFiles <= 0 {
		o.MaxFiles = d.MaxFiles
	}
	if o.MaxSizeKB <= 0 {
		o.MaxSizeKB = d.MaxSizeKB
	}
	if o.MinFileBytes <= 0 {
		o.MinFileBytes = d.MinFileBytes
	}
	if o.MaxFileKB <= 0 {
		o.MaxFileKB = d.MaxFileKB
	}
	return o
}

// ScanResult is the output of a full scan.
type ScanResult struct {
	Content       string
	FileCount     int
	TotalKB       float64
	TotalEligible int
	Files         []string
}

// Scan walks root and assembles a prioritized snapshot of its source files.
func Scan(ctx context.Context, root string, opts Options) (*ScanResult, error) {
	opts = opts.withDefaults()
	maxBytes := int64(opts.MaxSizeKB) * 1024
	maxFileBytes := int64(opts.MaxFileKB) * 1024

	eligible, err := walkEligible(root)
	if err != nil {
		return nil, err
	}

	var cands []Candidate
	for _, c := range eligible {
		if c.Size >= opts.MinFileBytes && c.Size <= maxFileBytes {
			cands = append(cands, c)
		}
	}

	selected := Allocate(cands, NewBudget(opts.MaxFiles, maxBytes))
	contents, err := readAll(ctx, selected)
	if err != nil {
		return nil, err
	}

	res := &ScanResult{TotalEligible: len(eligible)}
	var blocks []string
	var total int64
	for i, c := range selected {
		text := contents[i]
		if text == "" || total+c.Size > maxBytes || res.FileCount >= opts.MaxFiles {
			continue
		}
		blocks = append(blocks, FileBlock(c.Rel, redactByPath(c.Rel, text, opts.RedactPaths)))
		res.Files = append(res.Files, c.Rel)
		total += c.Size
		res.FileCount++
	}

	if res.FileCount == 0 {
		res.Content = NoFilesPlaceholder
		return res, nil
	}
	res.TotalKB = RoundKB(total)
	res.Content = fmt.Sprintf("# Source Files (%d files, %s KB)\n\n", res.FileCount, FormatKB(res.TotalKB)) +
		strings.Join(blocks, "\n")
	return res, nil
}

// walkEligible lists every file under root that passes the name filters.
// Excluded directories are pruned and entries that vanish mid-walk are
// skipped.
func walkEligible(root string) ([]Candidate, error) {
	var out []Candidate
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if p != root && ExcludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !Eligible(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		out = append(out, Candidate{Rel: rel, Path: p, Size: info.Size(), Tier: Classify(rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return out, nil
}

// readAll loads the text of each candidate concurrently. Entries that cannot
// be read or are not text come back empty.
func readAll(ctx context.Context, cands []Candidate) ([]string, error) {
	contents := make([]string, len(cands))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)
	for i, c := range cands {
		i, c := i, c
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			contents[i] = readText(c.Path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return contents, nil
}

// readText returns the file's content, or "" when it is unreadable, binary,
// not UTF-8, or blank.
func readText(p string) string {
	data, err := os.ReadFile(p)
	if err != nil || bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
		return ""
	}
	if strings.TrimSpace(string(data)) == "" {
		return ""
	}
	return string(data)
}

func redactByPath(rel, text string, patterns []string) string {
	if len(patterns) == 0 || !redact.ShouldRedactPath(rel, patterns) {
		return text
	}
	return redact.Content(text, rel, patterns)
}

// FileBlock wraps one file for inclusion in a prompt.
func FileBlock(rel, content string) string {
	lang := strings.TrimPrefix(path.Ext(rel), ".")
	return fmt.Sprintf("---\n## File: %s\n```%s\n%s\n```\n", rel, lang, content)
}

// RoundKB converts bytes to kilobytes rounded to one decimal place.
func RoundKB(n int64) float64 {
	return math.Round(float64(n)/1024*10) / 10
}

// FormatKB renders a kilobyte figure the way reports show it.
func FormatKB(kb float64) string {
	return fmt.Sprintf("%.1f", kb)
}

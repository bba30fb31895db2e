package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dshills/conclave/internal/synthesis"
)

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, report *synthesis.Report) error
}

// Formats lists the names GetWriter accepts.
var Formats = []string{"markdown", "json", "junit", "text"}

// GetWriter returns a writer for the specified format with default options.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "markdown", "md":
		return &MarkdownWriter{IncludeEvidence: true, IncludeRemediation: true}, nil
	case "json":
		return &JSONWriter{}, nil
	case "junit":
		return &JUnitWriter{}, nil
	case "text":
		return &TextWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteFile renders report with writer into path, creating parent
// directories.
func WriteFile(path string, writer Writer, report *synthesis.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := writer.Write(f, report); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}
	return nil
}

package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dshills/conclave/internal/findings"
	"github.com/dshills/conclave/internal/synthesis"
)

// JSONWriter outputs the report as the archive record.
type JSONWriter struct {
	AgentsRequested []string
	BaseBranch      string
}

func (j *JSONWriter) Write(w io.Writer, r *synthesis.Report) error {
	archive := findings.BuildArchive(r.Agents, findings.ArchiveMeta{
		RunID:           r.RunID,
		Timestamp:       r.Timestamp,
		Project:         r.ProjectName(),
		ProjectPath:     r.ProjectPath,
		Duration:        r.Duration,
		DryRun:          r.DryRun,
		BaseBranch:      j.BaseBranch,
		Standard:        r.Standard,
		Provider:        r.Provider,
		AgentsRequested: j.AgentsRequested,
		Verdict:         string(r.Verdict),
		ExitCode:        r.ExitCode,
	})
	data, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

package batch

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Summary is the outcome of one run, written as YAML next to the script.
type Summary struct {
	RunID      string         `yaml:"run_id"`
	StartedAt  time.Time      `yaml:"started_at"`
	Duration   time.Duration  `yaml:"duration"`
	Sources    []SourceResult `yaml:"sources"`
	Tables     []TableResult  `yaml:"tables"`
	Failed     int            `yaml:"failed"`
	Rows       int64          `yaml:"rows"`
	Statements int64          `yaml:"statements"`
}

// SourceResult records whether a source could be listed.
type SourceResult struct {
	Kind   string `yaml:"kind"`
	Path   string `yaml:"path"`
	Status string `yaml:"status"`
	Tables int    `yaml:"tables"`
	Error  string `yaml:"error,omitempty"`
}

// TableResult records one table's outcome. Stage names the pass that failed.
type TableResult struct {
	Origin     string `yaml:"origin"`
	Original   string `yaml:"original"`
	Prefix     string `yaml:"prefix,omitempty"`
	Name       string `yaml:"name,omitempty"`
	Columns    int    `yaml:"columns"`
	Rows       int64  `yaml:"rows"`
	Statements int64  `yaml:"statements"`
	Output     string `yaml:"output,omitempty"`
	Status     string `yaml:"status"`
	Stage      string `yaml:"stage,omitempty"`
	Error      string `yaml:"error,omitempty"`
}

func (t *TableResult) fail(stage string, err error) {
	t.Status = StatusFailed
	t.Stage = stage
	t.Error = err.Error()
}

// HasFailures reports whether any source or table failed; the CLI exits 1
// when it does.
func (s *Summary) HasFailures() bool {
	return s.Failed > 0
}

func (s *Summary) finish(plans []*plan, d time.Duration) {
	s.Duration = d.Truncate(time.Millisecond)
	s.Tables = make([]TableResult, 0, len(plans))
	s.Failed, s.Rows, s.Statements = 0, 0, 0
	for _, src := range s.Sources {
		if src.Status == StatusFailed {
			s.Failed++
		}
	}
	for _, p := range plans {
		res := *p.result
		if res.Status == "" {
			// Never reached render, e.g. cancelled.
			res.Status = StatusFailed
			if res.Error == "" {
				res.Error = "not converted"
			}
		}
		if res.Status == StatusFailed {
			s.Failed++
		}
		s.Rows += res.Rows
		s.Statements += res.Statements
		s.Tables = append(s.Tables, res)
	}
}

// WriteYAML encodes the summary.
func (s *Summary) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return enc.Close()
}

// WriteFile writes the summary YAML to path, replacing any existing file.
func (s *Summary) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.WriteYAML(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

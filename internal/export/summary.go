package export

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/the-scouts/incognita-sub000/internal/boundary"
	"github.com/the-scouts/incognita-sub000/internal/census"
)

// Summary describes one boundary run.
type Summary struct {
	RunID      string              `yaml:"run_id"`
	Census     string              `yaml:"census"`
	StartedAt  time.Time           `yaml:"started_at"`
	Elapsed    string              `yaml:"elapsed"`
	Records    census.Stats        `yaml:"records"`
	Dedup      boundary.DedupStats `yaml:"dedup"`
	Solve      boundary.SolveStats `yaml:"solve"`
	Districts  []DistrictRow       `yaml:"districts"`
	Skipped    []string            `yaml:"skipped,omitempty"`
	Outputs    []string            `yaml:"outputs,omitempty"`
	Unresolved []string            `yaml:"unresolved_objects,omitempty"`
}

// NewSummary fills the estimation fields of a Summary from a result.
func NewSummary(runID, census string, started time.Time, res *boundary.Result) *Summary {
	s := &Summary{
		RunID:     runID,
		Census:    census,
		StartedAt: started.UTC(),
		Elapsed:   res.Elapsed.Round(time.Millisecond).String(),
		Dedup:     res.Dedup,
		Solve:     res.Solve,
		Districts: Rows(res),
	}
	for _, d := range res.Skipped {
		s.Skipped = append(s.Skipped, d.ID)
	}
	if res.Points != nil {
		for _, p := range res.Points.Points {
			if !p.Buffer.Resolved {
				s.Unresolved = append(s.Unresolved, p.ObjectIDs...)
			}
		}
	}
	return s
}

// WriteSummary writes the summary as YAML.
func WriteSummary(path string, s *Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return eris.Wrap(err, "export: marshal summary")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}

// ReadSummary loads a summary written by WriteSummary.
func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: read %s", path)
	}
	var s Summary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrapf(err, "export: parse %s", path)
	}
	return &s, nil
}

package harness

import (
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ethconform/internal/pattern"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ReportSnapshot is the part of a Report that is stable across machines.
// Identifiers and error texts carry absolute fixture paths and are left out.
type ReportSnapshot struct {
	RunID        string         `json:"run_id"`
	Network      string         `json:"network"`
	Passed       int            `json:"passed"`
	Failed       int            `json:"failed"`
	Skipped      int            `json:"skipped"`
	Inconclusive int            `json:"inconclusive"`
	Cases        []CaseSnapshot `json:"cases"`
}

// CaseSnapshot is the stable part of a CaseResult.
type CaseSnapshot struct {
	Name     string        `json:"name"`
	Tag      pattern.Tag   `json:"tag,omitempty"`
	Outcome  Outcome       `json:"outcome"`
	Reason   string        `json:"reason,omitempty"`
	Kind     string        `json:"kind,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Snapshot returns the stable view of r.
func (r *Report) Snapshot() ReportSnapshot {
	s := ReportSnapshot{
		RunID:        r.RunID,
		Network:      r.Network,
		Passed:       r.Passed,
		Failed:       r.Failed,
		Skipped:      r.Skipped,
		Inconclusive: r.Inconclusive,
		Cases:        make([]CaseSnapshot, len(r.Cases)),
	}
	for i, c := range r.Cases {
		s.Cases[i] = CaseSnapshot{
			Name:     c.Name,
			Tag:      c.Tag,
			Outcome:  c.Outcome,
			Reason:   c.Reason,
			Kind:     c.Kind,
			Duration: c.Duration,
		}
	}
	return s
}

// AssertGolden compares the snapshot of report against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, report *Report) {
	t.Helper()

	data, err := json.MarshalIndent(report.Snapshot(), "", "  ")
	if err != nil {
		t.Fatalf("marshal report snapshot: %v", err)
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

package harness

import (
	"time"

	"github.com/roach88/ethconform/internal/pattern"
)

// Outcome is the result class of one test case.
type Outcome string

const (
	OutcomePass Outcome = "pass"
	OutcomeFail Outcome = "fail"
	OutcomeSkip Outcome = "skip"
	// OutcomeInconclusive marks cases whose fixture has no post state.
	OutcomeInconclusive Outcome = "inconclusive"
)

// CaseResult is the outcome of one test case.
type CaseResult struct {
	Name    string      `json:"name"`
	ID      string      `json:"id"`
	Tag     pattern.Tag `json:"tag,omitempty"`
	Outcome Outcome     `json:"outcome"`
	// Reason explains skips, inconclusive cases and expected failures.
	Reason string `json:"reason,omitempty"`
	// Kind is the failure kind of a failed or expectedly failed replay.
	Kind     string        `json:"kind,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report is the result of a Driver run. Cases are in discovery order.
type Report struct {
	RunID        string       `json:"run_id"`
	Network      string       `json:"network"`
	Cases        []CaseResult `json:"cases"`
	Passed       int          `json:"passed"`
	Failed       int          `json:"failed"`
	Skipped      int          `json:"skipped"`
	Inconclusive int          `json:"inconclusive"`
}

// OK reports whether no case failed.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Total returns the number of cases in the report.
func (r *Report) Total() int {
	return len(r.Cases)
}

// Failures returns the failed cases in discovery order.
func (r *Report) Failures() []CaseResult {
	var out []CaseResult
	for _, c := range r.Cases {
		if c.Outcome == OutcomeFail {
			out = append(out, c)
		}
	}
	return out
}

func (r *Report) tally() {
	r.Passed, r.Failed, r.Skipped, r.Inconclusive = 0, 0, 0, 0
	for _, c := range r.Cases {
		switch c.Outcome {
		case OutcomePass:
			r.Passed++
		case OutcomeFail:
			r.Failed++
		case OutcomeSkip:
			r.Skipped++
		case OutcomeInconclusive:
			r.Inconclusive++
		}
	}
}

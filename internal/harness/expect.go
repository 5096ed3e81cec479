package harness

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/roach88/ethconform/internal/fixture"
	"github.com/roach88/ethconform/internal/pattern"
	"github.com/roach88/ethconform/internal/replay"
)

// KindBlockDecoding names the expected failure of a block whose RLP does not
// decode. Decoding fails before replay, so it is not a replay.Kind.
const KindBlockDecoding = "BlockDecodingError"

// ExpectedFailure declares that the cases whose composite identifier matches
// Pattern must fail with Kind. It overrides the fixture's own
// expectException markers.
type ExpectedFailure struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Kind    string `yaml:"kind" json:"kind"`
}

type expectation struct {
	match    *pattern.Matcher
	kind     replay.Kind
	decoding bool
	name     string
}

// ValidateExpectedFailures reports the first entry with an empty or invalid
// pattern or an unknown kind.
func ValidateExpectedFailures(efs []ExpectedFailure) error {
	_, err := compileExpectations(efs)
	return err
}

func compileExpectations(efs []ExpectedFailure) ([]expectation, error) {
	out := make([]expectation, 0, len(efs))
	for i, ef := range efs {
		if ef.Pattern == "" {
			return nil, errors.Errorf("expected_failures[%d]: pattern is required", i)
		}
		m, err := pattern.Compile([]string{ef.Pattern})
		if err != nil {
			return nil, errors.Wrapf(err, "expected_failures[%d]", i)
		}
		exp := expectation{match: m, name: ef.Kind}
		if ef.Kind == KindBlockDecoding {
			exp.decoding = true
		} else if exp.kind, err = replay.ParseKind(ef.Kind); err != nil {
			return nil, errors.Wrapf(err, "expected_failures[%d]", i)
		}
		out = append(out, exp)
	}
	return out, nil
}

// lookupExpectation returns the first configured expectation matching id.
func lookupExpectation(exps []expectation, id string) *expectation {
	for i := range exps {
		if exps[i].match.Matches(id) {
			return &exps[i]
		}
	}
	return nil
}

// verdict is the judged outcome of one case.
type verdict struct {
	outcome Outcome
	reason  string
}

// judgeDecode classifies a decode failure.
func judgeDecode(exp *expectation, err error) verdict {
	if errors.Is(err, fixture.ErrMissingPostState) {
		return verdict{outcome: OutcomeInconclusive, reason: "no post state"}
	}
	var bde *fixture.BlockDecodingError
	if errors.As(err, &bde) {
		expected := bde.ExpectException != ""
		if exp != nil {
			expected = exp.decoding
		}
		if expected {
			return verdict{outcome: OutcomePass, reason: fmt.Sprintf("block %d failed to decode as expected", bde.Index)}
		}
	}
	return verdict{outcome: OutcomeFail}
}

// judgeReplay classifies the result of a replay. A configured expectation
// wins over the fixture's expectException markers.
func judgeReplay(exp *expectation, test *fixture.Test, err error) verdict {
	if exp != nil {
		switch {
		case exp.decoding:
			return verdict{outcome: OutcomeFail, reason: "expected " + KindBlockDecoding + ", every block decoded"}
		case err == nil:
			return verdict{outcome: OutcomeFail, reason: "expected " + exp.name + ", replay succeeded"}
		case replay.IsKind(err, exp.kind):
			return verdict{outcome: OutcomePass, reason: "failed with " + exp.name + " as expected"}
		default:
			return verdict{outcome: OutcomeFail, reason: "expected " + exp.name}
		}
	}

	if idx := test.ExpectsFailure(); idx >= 0 {
		switch {
		case err == nil:
			return verdict{outcome: OutcomeFail, reason: fmt.Sprintf("expected block %d to be rejected (%s)", idx, test.ExpectExceptions[idx])}
		case replay.IsKind(err, replay.KindStateTransitionFailed) && replay.IndexOf(err) == idx:
			return verdict{outcome: OutcomePass, reason: fmt.Sprintf("block %d rejected as expected (%s)", idx, test.ExpectExceptions[idx])}
		default:
			return verdict{outcome: OutcomeFail, reason: fmt.Sprintf("expected block %d to be rejected", idx)}
		}
	}

	if err != nil {
		return verdict{outcome: OutcomeFail}
	}
	return verdict{outcome: OutcomePass}
}

// expectsRejection reports whether the case passes only if the engine
// rejects one of its blocks.
func expectsRejection(exp *expectation, test *fixture.Test) bool {
	if exp != nil {
		return !exp.decoding && (exp.kind == replay.KindStateTransitionFailed || exp.kind == replay.KindPostStateMismatch)
	}
	return test.ExpectsFailure() >= 0
}

// kindOf names the failure class of err for reports.
func kindOf(err error) string {
	var bde *fixture.BlockDecodingError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &bde):
		return KindBlockDecoding
	case replay.KindOf(err) != replay.KindUnknown:
		return replay.KindOf(err).String()
	case errors.Is(err, fixture.ErrMissingPostState):
		return "MissingPostState"
	case errors.Is(err, fixture.ErrMalformedFixture):
		return "MalformedFixture"
	default:
		return ""
	}
}

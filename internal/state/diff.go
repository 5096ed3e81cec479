package state

import (
	"context"

	"github.com/pkg/errors"
	"gopkg.in/d4l3k/messagediff.v1"
)

// Diff compares the content of two stores. It returns a human readable
// description of the differences, empty when the stores are equal.
func (s *Store) Diff(ctx context.Context, other *Store) (string, error) {
	mine, err := s.Dump(ctx)
	if err != nil {
		return "", errors.Wrap(err, "dump state")
	}
	theirs, err := other.Dump(ctx)
	if err != nil {
		return "", errors.Wrap(err, "dump other state")
	}
	return DiffAllocs(mine, theirs), nil
}

// Equal reports whether two stores hold the same accounts.
func (s *Store) Equal(ctx context.Context, other *Store) (bool, error) {
	diff, err := s.Diff(ctx, other)
	if err != nil {
		return false, err
	}
	return diff == "", nil
}

// DiffAllocs describes how got differs from want, empty when they hold the
// same accounts.
func DiffAllocs(got, want Alloc) string {
	a, b := normalized(got), normalized(want)
	diff, equal := messagediff.PrettyDiff(b, a)
	if equal {
		return ""
	}
	return diff
}

func normalized(alloc Alloc) Alloc {
	out := make(Alloc, len(alloc))
	for addr, acc := range alloc {
		cpy := acc.Copy()
		cpy.normalize()
		out[addr] = cpy
	}
	return out
}

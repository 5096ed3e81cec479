// Package pattern compiles the ignore, slow and big-memory lists that select
// and tag test cases by their composite identifier.
package pattern

import (
	"regexp"

	"github.com/pkg/errors"
)

// ErrInvalidPattern is returned when a pattern is not a valid regular
// expression.
var ErrInvalidPattern = errors.New("invalid pattern")

// Matcher is a compiled list of regular expressions. The zero value and a
// nil *Matcher match nothing.
type Matcher struct {
	res []*regexp.Regexp
}

// Compile compiles every pattern. Patterns are unanchored: a pattern matches
// an identifier if it matches anywhere inside it.
func Compile(patterns []string) (*Matcher, error) {
	m := &Matcher{res: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidPattern, "%q: %v", p, err)
		}
		m.res = append(m.res, re)
	}
	return m, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(patterns ...string) *Matcher {
	m, err := Compile(patterns)
	if err != nil {
		panic(err)
	}
	return m
}

// Matches reports whether any pattern matches id.
func (m *Matcher) Matches(id string) bool {
	if m == nil {
		return false
	}
	for _, re := range m.res {
		if re.MatchString(id) {
			return true
		}
	}
	return false
}

// Len returns the number of compiled patterns.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.res)
}

package pattern

import "github.com/pkg/errors"

// Tag marks a test case for special scheduling by the driver.
type Tag uint8

const (
	TagNone Tag = iota
	TagSlow
	TagBigMemory
)

// String returns the tag label; TagNone is the empty string.
func (t Tag) String() string {
	switch t {
	case TagSlow:
		return "slow"
	case TagBigMemory:
		return "bigmem"
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Set holds the three pattern lists used to classify test cases.
type Set struct {
	Ignore    *Matcher
	Slow      *Matcher
	BigMemory *Matcher
}

// NewSet compiles the three lists, failing on the first invalid pattern.
func NewSet(ignore, slow, bigMemory []string) (*Set, error) {
	var (
		s   Set
		err error
	)
	if s.Ignore, err = Compile(ignore); err != nil {
		return nil, errors.Wrap(err, "ignore list")
	}
	if s.Slow, err = Compile(slow); err != nil {
		return nil, errors.Wrap(err, "slow list")
	}
	if s.BigMemory, err = Compile(bigMemory); err != nil {
		return nil, errors.Wrap(err, "big-memory list")
	}
	return &s, nil
}

// Classify decides what happens to the case with identifier id. keep is
// false if the case is ignored. Ignore takes precedence over slow, and slow
// over big-memory.
func (s *Set) Classify(id string) (tag Tag, keep bool) {
	switch {
	case s.Ignore.Matches(id):
		return TagNone, false
	case s.Slow.Matches(id):
		return TagSlow, true
	case s.BigMemory.Matches(id):
		return TagBigMemory, true
	default:
		return TagNone, true
	}
}

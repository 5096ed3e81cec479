// Package fixture finds blockchain test cases on disk and decodes them.
//
// A fixture file is a JSON object mapping test names to test objects. The
// Discoverer walks a directory tree and yields one TestCaseRef per test
// object whose network matches the target network, tagged by the pattern
// lists. The Decoder turns a TestCaseRef into a Test ready for replay.
package fixture

import (
	"path/filepath"

	"github.com/roach88/ethconform/internal/pattern"
)

// TestCaseRef identifies one test object inside a fixture file.
type TestCaseRef struct {
	File string
	Key  string
}

// ID returns the composite identifier "(file|key)" that the pattern lists
// are matched against.
func (r TestCaseRef) ID() string {
	return "(" + r.File + "|" + r.Key + ")"
}

// Name returns the reporting name "<parent-folder> - <key>".
func (r TestCaseRef) Name() string {
	return filepath.Base(filepath.Dir(r.File)) + " - " + r.Key
}

// String implements fmt.Stringer.
func (r TestCaseRef) String() string {
	return r.ID()
}

// Case is a discovered test case together with its scheduling tag.
type Case struct {
	Ref TestCaseRef
	Tag pattern.Tag
}

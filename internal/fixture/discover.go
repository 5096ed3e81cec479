package fixture

import (
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/roach88/ethconform/internal/pattern"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DiscoverConfig selects the test cases a Discoverer yields.
type DiscoverConfig struct {
	// Root is the fixture directory.
	Root string
	// Network is matched exactly against each test object's network field.
	Network string
	// OnlyIn, when non-empty, lists the files to read, relative to Root.
	// Directory traversal and the ignore list's file filter are skipped.
	OnlyIn []string
	// Ignore, Slow and BigMemory are regular expressions matched against
	// the composite identifier of each case.
	Ignore    []string
	Slow      []string
	BigMemory []string
}

// Discoverer enumerates test cases. It holds no state between calls to
// Discover.
type Discoverer struct {
	cfg      DiscoverConfig
	patterns *pattern.Set
}

// NewDiscoverer compiles the pattern lists of cfg.
func NewDiscoverer(cfg DiscoverConfig) (*Discoverer, error) {
	if cfg.Root == "" {
		return nil, errors.New("fixture root is required")
	}
	if cfg.Network == "" {
		return nil, errors.New("network is required")
	}
	patterns, err := pattern.NewSet(cfg.Ignore, cfg.Slow, cfg.BigMemory)
	if err != nil {
		return nil, err
	}
	return &Discoverer{cfg: cfg, patterns: patterns}, nil
}

// Network returns the network the Discoverer selects.
func (d *Discoverer) Network() string {
	return d.cfg.Network
}

// Discover returns a lazy sequence of the selected cases. Files are read as
// the sequence is consumed; ranging over it again reads them again. A file
// that cannot be read or parsed is yielded as an error and the sequence
// continues with the next file if the consumer keeps ranging.
func (d *Discoverer) Discover() iter.Seq2[Case, error] {
	return func(yield func(Case, error) bool) {
		if len(d.cfg.OnlyIn) > 0 {
			for _, rel := range d.cfg.OnlyIn {
				if !d.emitFile(filepath.Join(d.cfg.Root, rel), yield) {
					return
				}
			}
			return
		}

		err := filepath.WalkDir(d.cfg.Root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				if !yield(Case{}, errors.Wrapf(err, "walk %s", path)) {
					return filepath.SkipAll
				}
				if entry != nil && entry.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				return nil
			}
			if d.patterns.Ignore.Matches(path) {
				log.WithField("file", path).Debug("Ignoring fixture file")
				return nil
			}
			if !d.emitFile(path, yield) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			yield(Case{}, err)
		}
	}
}

// emitFile yields the selected cases of one file and reports whether the
// consumer wants more.
func (d *Discoverer) emitFile(path string, yield func(Case, error) bool) bool {
	refs, err := d.casesIn(path)
	if errors.Is(err, ErrNoTestsFound) {
		log.WithFields(logrus.Fields{
			"file":    path,
			"network": d.cfg.Network,
		}).Debug("No tests for network")
		return true
	}
	if err != nil {
		return yield(Case{}, err)
	}
	for _, ref := range refs {
		tag, keep := d.patterns.Classify(ref.ID())
		if !keep {
			continue
		}
		if !yield(Case{Ref: ref, Tag: tag}, nil) {
			return false
		}
	}
	return true
}

type networkOnly struct {
	Network *string `json:"network"`
}

// casesIn returns the keys of path whose network matches, sorted.
func (d *Discoverer) casesIn(path string) ([]TestCaseRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read fixture")
	}
	var tests map[string]networkOnly
	if err := json.Unmarshal(data, &tests); err != nil {
		return nil, errors.Wrapf(err, "parse fixture %s", path)
	}
	var refs []TestCaseRef
	for key, test := range tests {
		if test.Network == nil || *test.Network != d.cfg.Network {
			continue
		}
		refs = append(refs, TestCaseRef{File: path, Key: key})
	}
	if len(refs) == 0 {
		return nil, errors.Wrap(ErrNoTestsFound, path)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Key < refs[j].Key })
	return refs, nil
}

// Package harness runs the blockchain tests of one network end to end.
//
// A Driver discovers the selected cases, decodes each one, builds an engine
// for the fixture's fork and replays the blocks through it. Every case ends
// with one of four outcomes:
//
//   - pass: the replay matched the fixture, or failed exactly where the
//     fixture (or the configuration) says it must
//   - fail: any other result
//   - skip: a slow case in a run without RunSlow, or a rejection case in a
//     CodecOnly run
//   - inconclusive: the fixture has no post state to compare against
//
// Cases run concurrently up to Config.Parallel. Cases tagged big-memory run
// alone. The Report lists results in discovery order whatever order the
// cases finished in.
package harness

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/ethconform/internal/fixture"
	"github.com/roach88/ethconform/internal/fork"
	"github.com/roach88/ethconform/internal/pattern"
	"github.com/roach88/ethconform/internal/replay"
)

// EngineFactory builds the engine that replays a test of the given fork.
// It is called once per case.
type EngineFactory func(f fork.Fork) (replay.Engine, error)

// IDGenerator produces run IDs.
type IDGenerator interface {
	Generate() string
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string { return uuid.NewString() }

// Config configures a Driver.
type Config struct {
	Discover fixture.DiscoverConfig

	// DecoderCacheSize is the number of parsed fixture files kept in
	// memory. Zero means fixture.DefaultCacheSize.
	DecoderCacheSize int

	EngineFactory EngineFactory

	// Parallel is the number of cases replayed at once. Values below one
	// mean one.
	Parallel int

	// RunSlow runs cases tagged slow instead of skipping them.
	RunSlow bool

	GenesisRLP replay.GenesisRLPMode

	// CodecOnly checks hashes and encodings without executing blocks. The
	// post state is not compared and cases that expect a block to be
	// rejected are skipped, since only an executing engine rejects them.
	CodecOnly bool

	ExpectedFailures []ExpectedFailure

	// OnResult, if set, is called once per finished case. Calls are
	// serialized.
	OnResult func(CaseResult)

	// Clock and IDs default to time.Now and random UUIDs.
	Clock func() time.Time
	IDs   IDGenerator
}

// Driver runs the cases selected by its configuration.
type Driver struct {
	cfg          Config
	discoverer   *fixture.Discoverer
	decoder      *fixture.Decoder
	expectations []expectation
	metrics      *metrics
	now          func() time.Time
	ids          IDGenerator

	mu sync.Mutex // serializes OnResult and metrics
}

// New validates cfg and returns a Driver. Invalid patterns and unknown
// expected failure kinds are reported here rather than during a run.
func New(cfg Config) (*Driver, error) {
	if cfg.EngineFactory == nil {
		return nil, errors.New("engine factory is required")
	}
	if cfg.Parallel < 1 {
		cfg.Parallel = 1
	}
	discoverer, err := fixture.NewDiscoverer(cfg.Discover)
	if err != nil {
		return nil, err
	}
	exps, err := compileExpectations(cfg.ExpectedFailures)
	if err != nil {
		return nil, err
	}
	var opts []fixture.DecoderOption
	if cfg.DecoderCacheSize > 0 {
		opts = append(opts, fixture.WithCacheSize(cfg.DecoderCacheSize))
	}

	d := &Driver{
		cfg:          cfg,
		discoverer:   discoverer,
		decoder:      fixture.NewDecoder(opts...),
		expectations: exps,
		metrics:      newMetrics(),
		now:          cfg.Clock,
		ids:          cfg.IDs,
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.ids == nil {
		d.ids = uuidGenerator{}
	}
	return d, nil
}

// Gatherer exposes the driver's metrics.
func (d *Driver) Gatherer() prometheus.Gatherer {
	return d.metrics.registry
}

// Run discovers and runs every selected case. Failed cases are reported in
// the Report, not as an error. The error is set when discovery fails or ctx
// is cancelled; cases already started still finish and the partial report
// is returned with it.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:   d.ids.Generate(),
		Network: d.discoverer.Network(),
	}
	logger := log.WithFields(logrus.Fields{
		"run":     report.RunID,
		"network": report.Network,
	})
	logger.Debug("Starting run")

	parallel := int64(d.cfg.Parallel)
	sem := semaphore.NewWeighted(parallel)
	var g errgroup.Group
	g.SetLimit(d.cfg.Parallel)

	var (
		slots  []*CaseResult
		runErr error
	)
	for c, err := range d.discoverer.Discover() {
		if err != nil {
			runErr = errors.Wrap(err, "discover")
			break
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		slot := &CaseResult{}
		slots = append(slots, slot)

		if c.Tag == pattern.TagSlow && !d.cfg.RunSlow {
			*slot = CaseResult{
				Name:    c.Ref.Name(),
				ID:      c.Ref.ID(),
				Tag:     c.Tag,
				Outcome: OutcomeSkip,
				Reason:  "slow",
			}
			d.finish(*slot)
			continue
		}

		weight := int64(1)
		if c.Tag == pattern.TagBigMemory {
			weight = parallel
		}
		if err := sem.Acquire(ctx, weight); err != nil {
			slots = slots[:len(slots)-1]
			runErr = err
			break
		}
		g.Go(func() error {
			defer sem.Release(weight)
			*slot = d.runCase(ctx, c)
			d.finish(*slot)
			return nil
		})
	}
	_ = g.Wait()

	report.Cases = make([]CaseResult, len(slots))
	for i, slot := range slots {
		report.Cases[i] = *slot
	}
	report.tally()
	logger.WithFields(logrus.Fields{
		"passed":       report.Passed,
		"failed":       report.Failed,
		"skipped":      report.Skipped,
		"inconclusive": report.Inconclusive,
	}).Debug("Finished run")
	return report, runErr
}

func (d *Driver) finish(res CaseResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metrics.observe(res)
	if d.cfg.OnResult != nil {
		d.cfg.OnResult(res)
	}
}

// runCase decodes and replays one case and judges the outcome.
func (d *Driver) runCase(ctx context.Context, c fixture.Case) CaseResult {
	res := CaseResult{
		Name: c.Ref.Name(),
		ID:   c.Ref.ID(),
		Tag:  c.Tag,
	}
	exp := lookupExpectation(d.expectations, c.Ref.ID())

	start := d.now()
	v, err := d.replayCase(ctx, c.Ref, exp)
	res.Duration = d.now().Sub(start)

	res.Outcome = v.outcome
	res.Reason = v.reason
	res.Kind = kindOf(err)
	if v.outcome == OutcomeFail && err != nil {
		res.Error = err.Error()
	}

	fields := logrus.Fields{
		"case":    res.Name,
		"outcome": res.Outcome,
	}
	if res.Kind != "" {
		fields["kind"] = res.Kind
	}
	log.WithFields(fields).Debug("Finished case")
	return res
}

func (d *Driver) replayCase(ctx context.Context, ref fixture.TestCaseRef, exp *expectation) (verdict, error) {
	test, err := d.decoder.Decode(ref)
	if err != nil {
		return judgeDecode(exp, err), err
	}
	eng, err := d.cfg.EngineFactory(test.Fork)
	if err != nil {
		err = errors.Wrapf(err, "create engine for %s", test.Fork.Name)
		return verdict{outcome: OutcomeFail}, err
	}
	err = replay.Run(ctx, test, eng, replay.Options{
		GenesisRLP:    d.cfg.GenesisRLP,
		SkipPostState: d.cfg.CodecOnly,
	})
	// Without execution the chain never stops at the rejected block, so a
	// rejection case can only end in success or a wrong head.
	if d.cfg.CodecOnly && expectsRejection(exp, test) &&
		(err == nil || replay.IsKind(err, replay.KindFinalHashMismatch)) {
		return verdict{outcome: OutcomeSkip, reason: "rejection needs an executing engine"}, nil
	}
	return judgeReplay(exp, test, err), err
}

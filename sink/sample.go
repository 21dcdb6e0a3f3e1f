// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package sink // import "github.com/awslabs/metrique/sink"

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/awslabs/metrique/aggregate"
	"github.com/awslabs/metrique/internal/doevery"
	"github.com/awslabs/metrique/timesource"
)

const (
	// DefaultSampleInterval is the period over which the congress
	// sampler averages group rates.  Too short and rare groups see
	// few events per interval; too long and rate changes are slow to
	// take effect.
	DefaultSampleInterval = 15 * time.Second

	// DefaultTargetPerInterval is the soft maximum of records kept
	// per interval, 100 per second at the default interval.
	DefaultTargetPerInterval = 1500
)

// SamplerConfig configures the sampling sinks.
type SamplerConfig struct {
	// Interval is the congress sampler's rate-update period.  Zero
	// selects DefaultSampleInterval.
	Interval time.Duration

	// TargetPerInterval is the congress sampler's soft cap on kept
	// records per interval.  The cap holds at equilibrium; after a
	// sharp change in traffic the next few intervals may exceed it.
	// Zero selects DefaultTargetPerInterval.
	TargetPerInterval int

	// Logger receives sampler diagnostics.  Nil disables logging.
	Logger *zap.Logger

	// TimeSource drives interval boundaries.  Nil selects the system
	// clock.
	TimeSource timesource.TimeSource

	// Source seeds the sampling decisions.  Nil selects a
	// time-seeded source; tests pass a fixed seed for determinism.
	Source rand.Source
}

func (c SamplerConfig) validate() (SamplerConfig, error) {
	var err error
	if c.Interval == 0 {
		c.Interval = DefaultSampleInterval
	} else if c.Interval < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: negative sample interval %v", ErrInvalidConfig, c.Interval))
	}
	if c.TargetPerInterval == 0 {
		c.TargetPerInterval = DefaultTargetPerInterval
	} else if c.TargetPerInterval < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: negative sample target %d", ErrInvalidConfig, c.TargetPerInterval))
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.TimeSource == nil {
		c.TimeSource = timesource.Real()
	}
	if c.Source == nil {
		c.Source = rand.NewSource(time.Now().UnixNano())
	}
	return c, err
}

// FixedFraction keeps each record with a fixed probability.  Records
// matching the priority rule are always kept.
type FixedFraction[T any] struct {
	lock       sync.Mutex
	fraction   float64
	priority   func(T) bool
	downstream Downstream[Sampled[T]]
	logger     *zap.Logger
	rng        *rand.Rand
}

var _ aggregate.Sink[struct{}] = &FixedFraction[struct{}]{}

// NewFixedFraction keeps fraction of records, which must be in
// (0, 1].  A nil priority rule prioritizes nothing.
func NewFixedFraction[T any](fraction float64, priority func(T) bool, downstream Downstream[Sampled[T]], cfg SamplerConfig) (*FixedFraction[T], error) {
	cfg, err := cfg.validate()
	if fraction <= 0 || fraction > 1 || math.IsNaN(fraction) {
		err = multierr.Append(err, fmt.Errorf("%w: sample fraction %v outside (0, 1]", ErrInvalidConfig, fraction))
	}
	if err != nil {
		return nil, err
	}
	return &FixedFraction[T]{
		fraction:   fraction,
		priority:   priority,
		downstream: downstream,
		logger:     cfg.Logger,
		rng:        rand.New(cfg.Source),
	}, nil
}

// Merge keeps or drops the record.  Kept records are forwarded
// immediately, tagged with the probability they were kept at.
func (f *FixedFraction[T]) Merge(record T) {
	if f.priority != nil && f.priority(record) {
		emitSampled(f.downstream, f.logger, record, 1.0)
		return
	}
	f.lock.Lock()
	keep := f.rng.Float64() <= f.fraction
	f.lock.Unlock()
	if keep {
		emitSampled(f.downstream, f.logger, record, f.fraction)
	}
}

// Congress keeps records at a target aggregate rate while boosting
// the representation of low-frequency groups, after congressional
// sampling: every group is guaranteed a "senate" share of the target
// and the rest is apportioned by observed frequency, the "house"
// share.  Rates are recomputed once per interval from an exponential
// moving average of each group's observed count.
//
// Records matching the priority rule are always kept, even when that
// temporarily exceeds the target for their group.
type Congress[T any] struct {
	lock       sync.Mutex
	group      func(T) aggregate.Key
	priority   func(T) bool
	downstream Downstream[Sampled[T]]
	logger     *zap.Logger
	ts         timesource.TimeSource
	rng        *rand.Rand

	interval time.Duration
	target   float64

	nextIntervalStart time.Time
	currentObserved   uint64
	groups            map[uint64]*groupState
}

var _ aggregate.Sink[struct{}] = &Congress[struct{}]{}

// NewCongress groups records with group, which may return NoKey to
// rate-limit all records as one group.  A nil priority rule
// prioritizes nothing.
func NewCongress[T any](group func(T) aggregate.Key, priority func(T) bool, downstream Downstream[Sampled[T]], cfg SamplerConfig) (*Congress[T], error) {
	cfg, err := cfg.validate()
	if group == nil {
		err = multierr.Append(err, fmt.Errorf("%w: congress sampler requires a group function", ErrInvalidConfig))
	}
	if err != nil {
		return nil, err
	}
	return &Congress[T]{
		group:             group,
		priority:          priority,
		downstream:        downstream,
		logger:            cfg.Logger,
		ts:                cfg.TimeSource,
		rng:               rand.New(cfg.Source),
		interval:          cfg.Interval,
		target:            float64(cfg.TargetPerInterval),
		nextIntervalStart: cfg.TimeSource.Now(),
		groups:            map[uint64]*groupState{},
	}, nil
}

// Merge keeps or drops the record at its group's current rate.  The
// record counts toward its group's observed frequency either way.
func (c *Congress[T]) Merge(record T) {
	rate := c.sampleRate(c.group(record))
	switch {
	case c.priority != nil && c.priority(record):
		emitSampled(c.downstream, c.logger, record, 1.0)
	case rate == 1.0 || c.randFloat() <= rate:
		emitSampled(c.downstream, c.logger, record, rate)
	}
}

func (c *Congress[T]) randFloat() float64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.rng.Float64()
}

func (c *Congress[T]) sampleRate(key aggregate.Key) float64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.ts.Now()
	if now.After(c.nextIntervalStart) {
		c.nextIntervalStart = now.Add(c.interval)
		c.updateRates()
	}

	c.currentObserved++
	st := c.groups[key.Fingerprint()]
	if st == nil {
		st = &groupState{sampleRate: 1.0}
		c.groups[key.Fingerprint()] = st
	}
	st.currentObserved++
	return st.sampleRate
}

// updateRates recomputes per-group rates from the interval just
// ended.  Pulled out of the clock check so tests can drive it
// directly.  Caller holds the lock.
func (c *Congress[T]) updateRates() {
	for fp, g := range c.groups {
		if !g.updateAndRetain() {
			delete(c.groups, fp)
		}
	}

	currentObserved := float64(c.currentObserved)
	c.currentObserved = 0
	flatRate := c.target / currentObserved
	senateSize := c.target / float64(len(c.groups))

	congressSize := 0.0
	for _, g := range c.groups {
		average := g.averageObserved.current()
		houseSize := flatRate * average

		// Not the same as max(houseSize, min(average, senateSize)).
		if houseSize < senateSize {
			g.sizeInCongress = math.Min(average, senateSize)
		} else {
			g.sizeInCongress = houseSize
		}
		congressSize += g.sizeInCongress
	}

	if currentObserved <= c.target {
		for _, g := range c.groups {
			g.sampleRate = 1.0
		}
		return
	}
	scaleFactor := c.target / congressSize
	for _, g := range c.groups {
		if average := g.averageObserved.current(); average <= 0 {
			g.sampleRate = 1.0
		} else {
			g.sampleRate = math.Min(g.sizeInCongress*scaleFactor/average, 1.0)
		}
	}
}

const (
	movingAverageWindow = 16
	noObservationsTTL   = movingAverageWindow / 2
)

type groupState struct {
	currentObserved           uint64
	consecutiveNoObservations int
	averageObserved           movingAverage
	sampleRate                float64
	sizeInCongress            float64
}

// updateAndRetain folds the ended interval's count into the moving
// average and reports whether the group is still live.  Groups silent
// for noObservationsTTL consecutive intervals are forgotten.
func (g *groupState) updateAndRetain() bool {
	observed := g.currentObserved
	g.currentObserved = 0
	if observed > 0 {
		g.averageObserved.add(float64(observed))
		g.consecutiveNoObservations = 0
		return true
	}
	if g.consecutiveNoObservations >= noObservationsTTL {
		return false
	}
	g.consecutiveNoObservations++
	return true
}

// movingAverage is an exponential moving average whose decay ramps in
// over the first movingAverageWindow samples, so early intervals are
// weighted as a plain average.
type movingAverage struct {
	samples int
	value   float64
}

func (m *movingAverage) current() float64 {
	return m.value
}

func (m *movingAverage) add(sample float64) {
	if m.samples < movingAverageWindow {
		m.samples++
	}
	decay := 1.0 / float64(m.samples)
	m.value = decay*sample + (1.0-decay)*m.value
}

func emitSampled[T any](downstream Downstream[Sampled[T]], logger *zap.Logger, record T, rate float64) {
	if err := downstream.Emit([]Sampled[T]{{Record: record, Rate: rate}}); err != nil {
		doevery.TimePeriod(time.Minute, func() {
			logger.Error("downstream emit failed", zap.Error(err))
		})
	}
}

// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package sink // import "github.com/awslabs/metrique/sink"

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/awslabs/metrique/aggregate"
	"github.com/awslabs/metrique/internal/doevery"
	"github.com/awslabs/metrique/timesource"
)

// ErrInvalidConfig wraps sink configuration errors surfaced at
// construction time.
var ErrInvalidConfig = errors.New("invalid sink configuration")

// ErrShutdown is returned by operations on a worker sink after
// shutdown began.
var ErrShutdown = errors.New("worker sink is shut down")

// FullPolicy decides what a producer does when the worker channel is
// full.  There is no reasonable universal default: blocking trades
// producer latency for completeness, dropping trades the reverse.  The
// choice is required configuration.
type FullPolicy int

const (
	// FullUnset is invalid; the policy must be chosen explicitly.
	FullUnset FullPolicy = iota

	// FullBlock makes Merge wait for channel space.  Producers may
	// block for as long as the worker is busy, but no record is lost.
	FullBlock

	// FullDrop makes Merge discard the record when the channel is
	// full.  Drops are counted and visible via Dropped.
	FullDrop
)

func (p FullPolicy) String() string {
	switch p {
	case FullBlock:
		return "block"
	case FullDrop:
		return "drop"
	}
	return "unset"
}

const (
	// DefaultFlushInterval is the default worker flush period.
	DefaultFlushInterval = 10 * time.Second

	// DefaultChannelCapacity is the default worker channel size.
	DefaultChannelCapacity = 1024
)

// WorkerConfig configures a Worker sink.
type WorkerConfig struct {
	// FlushInterval is the period between automatic flushes.  Zero
	// selects DefaultFlushInterval.
	FlushInterval time.Duration

	// ChannelCapacity bounds the producer channel.  Zero selects
	// DefaultChannelCapacity.
	ChannelCapacity int

	// MaxKeys, when positive, forces a flush as soon as the
	// aggregator holds that many distinct keys.
	MaxKeys int

	// FullPolicy decides the full-channel behavior.  Required.
	FullPolicy FullPolicy

	// Logger receives worker diagnostics.  Nil disables logging.
	Logger *zap.Logger

	// TimeSource drives the flush timer.  Nil selects the system
	// clock; tests substitute a manual source.
	TimeSource timesource.TimeSource
}

// Validate returns the config with defaults applied, along with an
// error describing any invalid settings.
func (c WorkerConfig) Validate() (WorkerConfig, error) {
	var err error

	if c.FlushInterval == 0 {
		c.FlushInterval = DefaultFlushInterval
	} else if c.FlushInterval < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: negative flush interval %v", ErrInvalidConfig, c.FlushInterval))
	}
	if c.ChannelCapacity == 0 {
		c.ChannelCapacity = DefaultChannelCapacity
	} else if c.ChannelCapacity < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: negative channel capacity %d", ErrInvalidConfig, c.ChannelCapacity))
	}
	if c.MaxKeys < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: negative max keys %d", ErrInvalidConfig, c.MaxKeys))
	}
	switch c.FullPolicy {
	case FullBlock, FullDrop:
	default:
		err = multierr.Append(err, fmt.Errorf("%w: full-channel policy must be chosen explicitly", ErrInvalidConfig))
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.TimeSource == nil {
		c.TimeSource = timesource.Real()
	}
	return c, err
}

// envelope carries either a record or a flush request through the
// worker channel.  A non-nil flush channel marks a flush request and
// receives the result.
type envelope[T any] struct {
	record T
	flush  chan error
}

// Worker owns a keyed aggregator on a dedicated goroutine fed by a
// bounded channel.  The goroutine is the only code touching the
// aggregator, so the fold path needs no lock.  It flushes downstream
// every FlushInterval, when MaxKeys is reached, and once more on
// shutdown.
type Worker[T, A any] struct {
	cfg        WorkerConfig
	agg        *aggregate.KeyedAggregator[T, A]
	downstream Downstream[aggregate.Entry[A]]
	logger     *zap.Logger

	records chan envelope[T]
	done    chan struct{}
	stopped chan struct{}

	shutdownOnce sync.Once
	dropped      atomic.Uint64
}

var (
	_ aggregate.RefSink[struct{}] = &Worker[struct{}, struct{}]{}
	_ Flusher                     = &Worker[struct{}, struct{}]{}
)

// NewWorker validates cfg and starts the background goroutine.
func NewWorker[T, A any](strategy aggregate.Strategy[T, A], downstream Downstream[aggregate.Entry[A]], cfg WorkerConfig) (*Worker[T, A], error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	w := &Worker[T, A]{
		cfg:        cfg,
		agg:        aggregate.New(strategy),
		downstream: downstream,
		logger:     cfg.Logger,
		records:    make(chan envelope[T], cfg.ChannelCapacity),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Merge sends the record to the worker, consuming it.  Under
// FullBlock it waits for channel space; under FullDrop a full channel
// drops the record.  Records merged after shutdown began are dropped.
func (w *Worker[T, A]) Merge(record T) {
	select {
	case <-w.done:
		w.countDrop()
		return
	default:
	}
	env := envelope[T]{record: record}
	if w.cfg.FullPolicy == FullBlock {
		select {
		case w.records <- env:
		case <-w.done:
			w.countDrop()
		}
		return
	}
	select {
	case w.records <- env:
	default:
		w.countDrop()
	}
}

// MergeRef folds the record without consuming the caller's copy; the
// worker receives its own copy over the channel.  Only available when
// the strategy declares its records cheaply duplicable by
// implementing by-reference merging; otherwise the record is dropped
// with a rate-limited log.
func (w *Worker[T, A]) MergeRef(record *T) {
	if !w.agg.CanMergeRef() {
		w.dropped.Add(1)
		doevery.TimePeriod(time.Minute, func() {
			w.logger.Error("record dropped", zap.Error(aggregate.ErrRefMergeUnsupported))
		})
		return
	}
	w.Merge(*record)
}

// CanMergeRef reports whether the strategy supports by-reference
// merging.  The aggregator's capability is fixed at construction, so
// this is safe to call from any goroutine.
func (w *Worker[T, A]) CanMergeRef() bool {
	return w.agg.CanMergeRef()
}

// Dropped returns the number of records dropped by a full channel or
// after shutdown.
func (w *Worker[T, A]) Dropped() uint64 {
	return w.dropped.Load()
}

// Flush asks the worker to flush and waits for the result.  The
// request travels the same channel as records, so every record sent
// before Flush is included.
func (w *Worker[T, A]) Flush(ctx context.Context) error {
	select {
	case <-w.stopped:
		return ErrShutdown
	default:
	}
	ack := make(chan error, 1)
	select {
	case w.records <- envelope[T]{flush: ack}:
	case <-w.stopped:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ack:
		return err
	case <-w.stopped:
		// The final shutdown flush covered this request.
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the worker after one final flush of unflushed state.
// It is idempotent and waits for that flush until ctx expires, after
// which it returns without waiting; the worker still completes the
// flush in the background.  Availability over completeness.
func (w *Worker[T, A]) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.done) })
	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker[T, A]) run() {
	defer close(w.stopped)

	ticker := w.cfg.TimeSource.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for !w.consume(ticker) {
		// Restart after a recovered panic; producers are unaffected.
	}
	w.finish()
}

// consume is the worker loop.  It returns true on shutdown and false
// when a panic was recovered, in which case run restarts it.
func (w *Worker[T, A]) consume(ticker timesource.Ticker) (shutdown bool) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("aggregation worker recovered from panic",
				zap.Any("panic", p), zap.Stack("stacktrace"))
		}
	}()
	for {
		select {
		case env := <-w.records:
			w.handle(env)
		case <-ticker.C():
			_ = w.flushDownstream()
		case <-w.done:
			return true
		}
	}
}

// finish drains buffered records and performs the final flush.
func (w *Worker[T, A]) finish() {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("aggregation worker panicked during final flush",
				zap.Any("panic", p), zap.Stack("stacktrace"))
		}
	}()
	for {
		select {
		case env := <-w.records:
			w.handle(env)
		default:
			_ = w.flushDownstream()
			return
		}
	}
}

func (w *Worker[T, A]) handle(env envelope[T]) {
	if env.flush != nil {
		env.flush <- w.flushDownstream()
		return
	}
	w.agg.Merge(env.record)
	if w.cfg.MaxKeys > 0 && w.agg.Len() >= w.cfg.MaxKeys {
		_ = w.flushDownstream()
	}
}

func (w *Worker[T, A]) flushDownstream() error {
	entries := w.agg.Flush()
	if len(entries) == 0 {
		return nil
	}
	if err := w.downstream.Emit(entries); err != nil {
		doevery.TimePeriod(time.Minute, func() {
			w.logger.Error("downstream emit failed", zap.Error(err), zap.Int("entries", len(entries)))
		})
		return err
	}
	return nil
}

func (w *Worker[T, A]) countDrop() {
	w.dropped.Add(1)
	doevery.TimePeriod(time.Minute, func() {
		w.logger.Warn("record dropped: channel full or worker shut down",
			zap.Uint64("dropped", w.dropped.Load()),
			zap.Stringer("policy", w.cfg.FullPolicy))
	})
}

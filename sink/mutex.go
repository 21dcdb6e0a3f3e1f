// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package sink // import "github.com/awslabs/metrique/sink"

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/awslabs/metrique/aggregate"
	"github.com/awslabs/metrique/internal/doevery"
)

// Mutex wraps one keyed aggregator behind a lock.  Merge acquires,
// folds, releases; Flush is caller-triggered only, there is no timer.
// Suited to a small number of producers wanting synchronous merge
// semantics without a background goroutine.
type Mutex[T, A any] struct {
	lock       sync.Mutex
	agg        *aggregate.KeyedAggregator[T, A]
	downstream Downstream[aggregate.Entry[A]]
	logger     *zap.Logger
}

var (
	_ aggregate.RefSink[struct{}] = &Mutex[struct{}, struct{}]{}
	_ Flusher                     = &Mutex[struct{}, struct{}]{}
)

// NewMutex wraps a fresh aggregator for strategy.  A nil logger
// disables logging.
func NewMutex[T, A any](strategy aggregate.Strategy[T, A], downstream Downstream[aggregate.Entry[A]], logger *zap.Logger) *Mutex[T, A] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mutex[T, A]{
		agg:        aggregate.New(strategy),
		downstream: downstream,
		logger:     logger,
	}
}

// Merge folds the record under the lock, consuming it.
func (m *Mutex[T, A]) Merge(record T) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.agg.Merge(record)
}

// MergeRef folds the record under the lock without consuming it.
// When the strategy only supports consuming merges the record is
// dropped with a rate-limited log; use CanMergeRef to check up front.
func (m *Mutex[T, A]) MergeRef(record *T) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if err := m.agg.MergeRef(record); err != nil {
		doevery.TimePeriod(time.Minute, func() {
			m.logger.Error("record dropped", zap.Error(err))
		})
	}
}

// CanMergeRef reports whether the strategy supports by-reference
// merging.
func (m *Mutex[T, A]) CanMergeRef() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.agg.CanMergeRef()
}

// Len returns the number of distinct keys accumulated since the last
// flush.
func (m *Mutex[T, A]) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.agg.Len()
}

// Flush hands all accumulated entries downstream and resets the
// aggregator.  The downstream error, if any, is both logged and
// returned; the entries are not retried.
func (m *Mutex[T, A]) Flush(_ context.Context) error {
	m.lock.Lock()
	entries := m.agg.Flush()
	m.lock.Unlock()

	if len(entries) == 0 {
		return nil
	}
	if err := m.downstream.Emit(entries); err != nil {
		doevery.TimePeriod(time.Minute, func() {
			m.logger.Error("downstream emit failed", zap.Error(err), zap.Int("entries", len(entries)))
		})
		return err
	}
	return nil
}

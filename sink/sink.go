// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package sink provides the concurrency wrappers and routing sinks
// that own keyed aggregators.
//
// Producers call Merge; a wrapper serializes access to the aggregator
// it owns, either with a mutex (Mutex) or a dedicated background
// goroutine fed by a bounded channel (Worker).  Flushed entries are
// handed to a Downstream.  Split fans one record stream out to two
// sinks, and the samplers forward a rate-controlled subset of raw
// records.
//
// Merging is best-effort throughout: downstream failures are logged
// and counted, never propagated to producers.
package sink // import "github.com/awslabs/metrique/sink"

import (
	"context"
)

// Downstream accepts batches of finished output.  It is assumed to be
// non-blocking or independently buffered; its backpressure is its own
// concern.
type Downstream[E any] interface {
	Emit(batch []E) error
}

// DownstreamFunc adapts a function to the Downstream interface.
type DownstreamFunc[E any] func(batch []E) error

func (f DownstreamFunc[E]) Emit(batch []E) error {
	return f(batch)
}

// Flusher is implemented by sinks that can deliver their accumulated
// state downstream on demand.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Sampled wraps a raw record kept by a sampler.  Rate is the
// probability with which records like this one are currently kept, so
// a downstream consumer can upweight by 1/Rate.
type Sampled[T any] struct {
	Record T
	Rate   float64
}

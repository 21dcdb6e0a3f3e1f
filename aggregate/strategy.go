// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package aggregate // import "github.com/awslabs/metrique/aggregate"

import "errors"

// ErrRefMergeUnsupported is returned when a by-reference merge is
// requested of a strategy or sink that only supports the consuming
// variant.
var ErrRefMergeUnsupported = errors.New("aggregate: strategy does not support merge by reference")

// Strategy binds a record type T to its merged accumulator set A.
// Implementations choose each field's merge behavior statically: a
// typical A is a struct pairing a sum.State, gauge.State, or
// histogram.State with each merged field of T, so a mismatched fold
// cannot compile.  Key fields are excluded from folding; records that
// share a key carry identical key fields by construction.
//
// Merge consumes the record: after the call the caller must not reuse
// it.  Strategies whose records can be folded without ownership also
// implement RefStrategy.
type Strategy[T, A any] interface {
	// Key extracts the grouping key.  The returned Key may alias the
	// record; the aggregator clones it before retaining it.
	Key(record T) Key

	// NewMerged returns a fresh accumulator set with every field at
	// its strategy's identity.
	NewMerged() A

	// Merge folds record into the accumulator set, consuming it.
	Merge(into A, record T)
}

// RefStrategy additionally folds records by reference, leaving the
// caller's record intact.  Required for fan-out through a split sink,
// where one record feeds two aggregators.
type RefStrategy[T, A any] interface {
	Strategy[T, A]

	// MergeRef folds record into the accumulator set without
	// consuming it.
	MergeRef(into A, record *T)
}

// Sink consumes records.  Merge never returns an error: aggregation
// is best-effort, and failures past this point are logged and counted
// rather than surfaced to producers.
type Sink[T any] interface {
	Merge(record T)
}

// RefSink is a Sink that can also fold records by reference.
type RefSink[T any] interface {
	Sink[T]
	MergeRef(record *T)
}

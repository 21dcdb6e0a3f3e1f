// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package sink // import "github.com/awslabs/metrique/sink"

import (
	"github.com/awslabs/metrique/aggregate"
)

// Split fans one record stream out to two independently configured
// sinks, typically precise keyed aggregation on one side and raw
// sample capture on the other.  The first sink folds each record by
// reference, the second consumes it, so producers do their work once.
type Split[T any] struct {
	byRef     aggregate.RefSink[T]
	consuming aggregate.Sink[T]
}

var _ aggregate.Sink[struct{}] = &Split[struct{}]{}

// NewSplit pairs a by-reference sink with a consuming one.  When
// byRef exposes a CanMergeRef capability check and it reports false,
// construction fails with ErrRefMergeUnsupported rather than dropping
// every record later.
func NewSplit[T any](byRef aggregate.RefSink[T], consuming aggregate.Sink[T]) (*Split[T], error) {
	if c, ok := byRef.(interface{ CanMergeRef() bool }); ok && !c.CanMergeRef() {
		return nil, aggregate.ErrRefMergeUnsupported
	}
	return &Split[T]{byRef: byRef, consuming: consuming}, nil
}

// Merge folds the record into the by-reference sink, then hands
// ownership to the consuming sink.
func (s *Split[T]) Merge(record T) {
	s.byRef.MergeRef(&record)
	s.consuming.Merge(record)
}

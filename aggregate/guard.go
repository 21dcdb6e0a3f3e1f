// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package aggregate // import "github.com/awslabs/metrique/aggregate"

// Guard merges a record into a sink exactly once, on whatever path
// leaves the enclosing scope.  Pair it with defer:
//
//	rec := RequestMetrics{Operation: op}
//	defer aggregate.Defer(&rec, sink).Close()
//
// The record may be mutated freely until Close runs; Close folds its
// final state.  Close is idempotent, so a guard can also be closed
// early to merge before scope exit.
type Guard[T any] struct {
	record *T
	sink   Sink[T]
}

// Defer returns a guard that merges *record into sink when closed.
func Defer[T any](record *T, sink Sink[T]) *Guard[T] {
	return &Guard[T]{record: record, sink: sink}
}

// Close merges the record.  Calls after the first are no-ops.
func (g *Guard[T]) Close() {
	if g.record == nil {
		return
	}
	g.sink.Merge(*g.record)
	g.record = nil
}

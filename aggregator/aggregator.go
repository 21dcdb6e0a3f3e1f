// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package aggregator defines the per-field merge strategy contract.
// A strategy folds one observation at a time into strategy-specific
// Storage and merges two Storages of the same shape.  Concrete
// strategies live in the subpackages sum, gauge, minmax, and
// histogram.
package aggregator // import "github.com/awslabs/metrique/aggregator"

import (
	"fmt"

	"github.com/awslabs/metrique/number"
)

// Sentinel errors for strategy input validation.
var (
	ErrNaNInput = fmt.Errorf("NaN value is an invalid input")
	ErrInfInput = fmt.Errorf("±Inf value is an invalid input")
)

// Kind identifies an aggregation behavior.
type Kind int

const (
	UndefinedKind Kind = iota
	SumKind
	GaugeKind
	MinMaxKind
	HistogramKind
)

func (k Kind) String() string {
	switch k {
	case SumKind:
		return "sum"
	case GaugeKind:
		return "gauge"
	case MinMaxKind:
		return "minmax"
	case HistogramKind:
		return "histogram"
	}
	return "undefined"
}

// Methods implements a specific aggregation behavior for a specific
// type of Storage, parameterized by the observation type N.
//
// Update and Merge are associative in effect for the order-insensitive
// strategies (sum, minmax, histogram): any interleaving of calls
// across producers yields the same final Storage.  The gauge strategy
// is order-sensitive by definition; see its package documentation for
// the ordering it guarantees.
//
// Update is safe for concurrent callers.  Move and Merge synchronize
// against concurrent Update on the Storage they reset or write, so a
// flush can proceed while producers continue recording.
type Methods[N number.Any, Storage any] interface {
	// Init initializes the Storage.  Cfg must have been validated.
	Init(ptr *Storage, cfg Config)

	// Update folds one observation into the Storage.
	Update(ptr *Storage, value N)

	// Move atomically copies `input` to `output` and resets
	// `input` to its empty state.
	Move(input, output *Storage)

	// Merge adds the contents of `input` to `output`.  The read
	// of `input` is not synchronized.
	Merge(input, output *Storage)

	// HasChange returns true if there have been any discernible
	// Updates since Init or the last Move.
	HasChange(ptr *Storage) bool

	// Kind returns the Kind of aggregation.
	Kind() Kind
}

// RangeTest checks an input value before it enters a strategy.  It
// returns ErrNaNInput or ErrInfInput for values no strategy accepts,
// otherwise nil.  Both are impossible for int64 observations.
func RangeTest[N number.Any, Traits number.Traits[N]](value N) error {
	var traits Traits

	if traits.IsNaN(value) {
		return ErrNaNInput
	}
	if traits.IsInf(value) {
		return ErrInfInput
	}
	return nil
}

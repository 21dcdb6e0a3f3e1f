// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package histogram implements bounded-memory distribution
// aggregation.
//
// Three storages are provided.  State buckets observations into a
// fixed exponential layout with bounded relative error and a bucket
// count independent of observation volume.  Atomic is the same layout
// with dense per-bucket atomic counters for lock-free concurrent
// update.  SortMerge retains exact observations up to a configured
// capacity and degrades by evicting under an explicit policy.
package histogram // import "github.com/awslabs/metrique/aggregator/histogram"

import (
	"math"
	"sort"
	"sync"

	"github.com/awslabs/metrique/aggregator"
	"github.com/awslabs/metrique/number"
)

type (
	Methods[N number.Any, Storage State[N]] struct{}

	// State is an exponential-bucket histogram.  Buckets allocate
	// lazily, so a sparse distribution stays small regardless of the
	// configured range.
	State[N number.Any] struct {
		lock    sync.Mutex
		mapping mapping
		data
	}

	data struct {
		counts    map[int]uint64
		count     uint64
		sum       float64
		underflow uint64
		overflow  uint64
	}

	// Bucket is one populated bucket in drained output.  Value is the
	// bucket midpoint, within half a bucket width of every member.
	Bucket struct {
		Value float64
		Count uint64
	}

	Int64   = State[int64]
	Float64 = State[float64]

	Int64Methods   = Methods[int64, Int64]
	Float64Methods = Methods[float64, Float64]
)

var (
	_ aggregator.Methods[int64, Int64]     = Int64Methods{}
	_ aggregator.Methods[float64, Float64] = Float64Methods{}
)

func NewInt64(cfg aggregator.Config, vals ...int64) *Int64 {
	a := &Int64{}
	Int64Methods{}.Init(a, cfg)
	for _, val := range vals {
		Int64Methods{}.Update(a, val)
	}
	return a
}

func NewFloat64(cfg aggregator.Config, vals ...float64) *Float64 {
	a := &Float64{}
	Float64Methods{}.Init(a, cfg)
	for _, val := range vals {
		Float64Methods{}.Update(a, val)
	}
	return a
}

func (h *State[N]) ensure() {
	if !h.mapping.valid() {
		h.mapping = newMapping(aggregator.HistogramConfig{})
	}
	if h.counts == nil {
		h.counts = map[int]uint64{}
	}
}

// UpdateN records value count times.
func (h *State[N]) UpdateN(value N, count uint64) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.ensure()

	u, class := classify(value, h.mapping)
	switch class {
	case classUnderflow:
		h.underflow += count
	case classOverflow:
		h.overflow += count
	default:
		h.counts[h.mapping.indexOf(u)] += count
	}
	h.count += count
	h.sum += float64(value) * float64(count)
}

// Count returns the number of observations, including those counted
// in the underflow and overflow buckets.
func (h *State[N]) Count() uint64 {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.count
}

// Sum returns the exact sum of all observations.  Unlike bucket
// counts it carries no bucketing error.
func (h *State[N]) Sum() float64 {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.sum
}

// Underflow returns the number of observations below the bucketable
// range: negative values and NaN.
func (h *State[N]) Underflow() uint64 {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.underflow
}

// Overflow returns the number of observations at or above the
// configured maximum value.
func (h *State[N]) Overflow() uint64 {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.overflow
}

// Observations returns the populated in-range buckets in ascending
// value order.  Underflow and overflow counts are reported separately.
func (h *State[N]) Observations() []Bucket {
	h.lock.Lock()
	defer h.lock.Unlock()

	indexes := make([]int, 0, len(h.counts))
	for i := range h.counts {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := make([]Bucket, len(indexes))
	for n, i := range indexes {
		out[n] = Bucket{Value: h.mapping.midpoint(i), Count: h.counts[i]}
	}
	return out
}

// Quantile estimates the q-quantile over in-range observations,
// returning the midpoint of the bucket holding the ranked
// observation.  The estimate is within the configured relative error
// of the true value.  Returns 0 when empty.
func (h *State[N]) Quantile(q float64) float64 {
	h.lock.Lock()
	defer h.lock.Unlock()

	inRange := h.count - h.underflow - h.overflow
	if inRange == 0 {
		return 0
	}
	if q < 0 {
		q = 0
	} else if q > 1 {
		q = 1
	}
	target := uint64(math.Ceil(q * float64(inRange)))
	if target == 0 {
		target = 1
	}

	indexes := make([]int, 0, len(h.counts))
	for i := range h.counts {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var cum uint64
	for _, i := range indexes {
		cum += h.counts[i]
		if cum >= target {
			return h.mapping.midpoint(i)
		}
	}
	return 0
}

func (Methods[N, Storage]) Kind() aggregator.Kind {
	return aggregator.HistogramKind
}

func (Methods[N, Storage]) Init(state *State[N], cfg aggregator.Config) {
	state.mapping = newMapping(cfg.Histogram)
}

func (Methods[N, Storage]) Update(state *State[N], value N) {
	state.UpdateN(value, 1)
}

// Move transfers the bucket map wholesale, leaving the input empty.
func (Methods[N, Storage]) Move(from, to *State[N]) {
	from.lock.Lock()
	defer from.lock.Unlock()

	to.mapping = from.mapping
	to.data, from.data = from.data, data{}
}

// Merge adds the input's buckets into the output pairwise.  When the
// two histograms were configured with different bucket layouts, the
// input's buckets are refolded through their midpoints instead.
func (Methods[N, Storage]) Merge(from, to *State[N]) {
	to.lock.Lock()
	defer to.lock.Unlock()
	if !to.mapping.valid() {
		to.mapping = from.mapping
	}
	to.ensure()

	if from.mapping == to.mapping {
		for i, c := range from.counts {
			to.counts[i] += c
		}
	} else {
		for i, c := range from.counts {
			u, class := classify(from.mapping.midpoint(i), to.mapping)
			switch class {
			case classUnderflow:
				to.underflow += c
			case classOverflow:
				to.overflow += c
			default:
				to.counts[to.mapping.indexOf(u)] += c
			}
		}
	}
	to.count += from.count
	to.sum += from.sum
	to.underflow += from.underflow
	to.overflow += from.overflow
}

func (Methods[N, Storage]) HasChange(ptr *State[N]) bool {
	return ptr.count != 0
}

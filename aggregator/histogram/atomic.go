// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package histogram // import "github.com/awslabs/metrique/aggregator/histogram"

import (
	"sync/atomic"

	"github.com/awslabs/metrique/aggregator"
)

// Atomic is an exponential-bucket histogram safe for concurrent
// update without locking.  It uses the same bucket layout as State
// but stores the counters densely, one atomic per bucket, so the
// memory cost is fixed at construction.  Intended for hot paths
// shared by many goroutines, with a single collector calling Swap.
type Atomic struct {
	mapping   mapping
	counts    []atomic.Uint64
	count     atomic.Uint64
	underflow atomic.Uint64
	overflow  atomic.Uint64
}

// NewAtomic validates cfg and allocates all buckets up front.
func NewAtomic(cfg aggregator.Config) (*Atomic, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	m := newMapping(cfg.Histogram)
	return &Atomic{
		mapping: m,
		counts:  make([]atomic.Uint64, m.totalBuckets()),
	}, nil
}

// Update records one observation.
func (a *Atomic) Update(value float64) {
	a.UpdateN(value, 1)
}

// UpdateN records value count times.
func (a *Atomic) UpdateN(value float64, count uint64) {
	u, class := classify(value, a.mapping)
	switch class {
	case classUnderflow:
		a.underflow.Add(count)
	case classOverflow:
		a.overflow.Add(count)
	default:
		a.counts[a.mapping.indexOf(u)].Add(count)
	}
	a.count.Add(count)
}

// Count returns the number of observations recorded since the last
// Swap, including underflow and overflow.
func (a *Atomic) Count() uint64 {
	return a.count.Load()
}

// Swap atomically drains each bucket into to and resets this
// histogram.  Individual buckets move atomically, but an Update
// concurrent with Swap may land in either the drained interval or the
// next one; no observation is ever lost or double-counted.  The sum
// contributed to the destination is reconstructed from bucket
// midpoints, so it carries the same relative error as the buckets.
func (a *Atomic) Swap(to *Float64) {
	to.lock.Lock()
	defer to.lock.Unlock()
	if !to.mapping.valid() {
		to.mapping = a.mapping
	}
	to.ensure()

	var drained uint64
	same := a.mapping == to.mapping
	for i := range a.counts {
		c := a.counts[i].Swap(0)
		if c == 0 {
			continue
		}
		mid := a.mapping.midpoint(i)
		if same {
			to.counts[i] += c
		} else {
			u, class := classify(mid, to.mapping)
			switch class {
			case classUnderflow:
				to.underflow += c
			case classOverflow:
				to.overflow += c
			default:
				to.counts[to.mapping.indexOf(u)] += c
			}
		}
		to.count += c
		to.sum += mid * float64(c)
		drained += c
	}

	uf := a.underflow.Swap(0)
	of := a.overflow.Swap(0)
	to.underflow += uf
	to.overflow += of
	to.count += uf + of
	drained += uf + of

	if drained != 0 {
		// Subtract exactly what was drained; concurrent updates
		// between the bucket swaps and here are preserved.
		a.count.Add(^(drained - 1))
	}
}

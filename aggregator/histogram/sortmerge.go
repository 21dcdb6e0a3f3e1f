// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package histogram // import "github.com/awslabs/metrique/aggregator/histogram"

import (
	"math"
	"sort"
	"sync"

	"github.com/awslabs/metrique/aggregator"
)

type (
	// SortMerge retains exact observations up to a fixed capacity,
	// kept in ascending order.  Beyond capacity it degrades by
	// evicting one observation per insert under the configured
	// policy; evictions are counted in Dropped.  Within capacity all
	// statistics are exact.
	SortMerge struct {
		lock     sync.Mutex
		capacity int
		policy   aggregator.Eviction
		values   []float64
		dropped  uint64
	}

	SortMergeMethods struct{}
)

var _ aggregator.Methods[float64, SortMerge] = SortMergeMethods{}

// NewSortMerge validates cfg, requiring an explicit eviction policy.
func NewSortMerge(cfg aggregator.Config) (*SortMerge, error) {
	cfg, err := cfg.ValidateSortMerge()
	if err != nil {
		return nil, err
	}
	s := &SortMerge{}
	SortMergeMethods{}.Init(s, cfg)
	return s, nil
}

// Update inserts value in sorted position, evicting per policy when
// full.  NaN cannot be ordered and counts as dropped.
func (s *SortMerge) Update(value float64) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if math.IsNaN(value) {
		s.dropped++
		return
	}

	i := sort.SearchFloat64s(s.values, value)
	if len(s.values) < s.capacity {
		s.values = append(s.values, 0)
		copy(s.values[i+1:], s.values[i:])
		s.values[i] = value
		return
	}

	s.dropped++
	switch s.policy {
	case aggregator.EvictHighest:
		if i == len(s.values) {
			return // value is the highest; it is the eviction
		}
		copy(s.values[i+1:], s.values[i:len(s.values)-1])
		s.values[i] = value
	case aggregator.EvictLowest:
		if i == 0 {
			return
		}
		copy(s.values[:i-1], s.values[1:i])
		s.values[i-1] = value
	case aggregator.EvictNewest:
		// Full; the new observation is the eviction.
	}
}

// Count returns the number of retained observations.
func (s *SortMerge) Count() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.values)
}

// Dropped returns the number of observations evicted or rejected.
// Nonzero means subsequent statistics are no longer exact.
func (s *SortMerge) Dropped() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.dropped
}

// Values returns a copy of the retained observations in ascending
// order.
func (s *SortMerge) Values() []float64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Observations returns the retained observations with equal values
// collapsed into a single Bucket, ascending.
func (s *SortMerge) Observations() []Bucket {
	s.lock.Lock()
	defer s.lock.Unlock()

	var out []Bucket
	for _, v := range s.values {
		if n := len(out); n != 0 && out[n-1].Value == v {
			out[n-1].Count++
			continue
		}
		out = append(out, Bucket{Value: v, Count: 1})
	}
	return out
}

// Quantile returns the exact q-quantile of the retained observations,
// or 0 when empty.
func (s *SortMerge) Quantile(q float64) float64 {
	s.lock.Lock()
	defer s.lock.Unlock()

	if len(s.values) == 0 {
		return 0
	}
	if q < 0 {
		q = 0
	} else if q > 1 {
		q = 1
	}
	rank := int(math.Ceil(q*float64(len(s.values)))) - 1
	if rank < 0 {
		rank = 0
	}
	return s.values[rank]
}

func (SortMergeMethods) Kind() aggregator.Kind {
	return aggregator.HistogramKind
}

// Init requires a validated Config: a zero eviction policy is a
// construction bug, not a runtime condition.
func (SortMergeMethods) Init(state *SortMerge, cfg aggregator.Config) {
	if cfg.SortMerge.Eviction == aggregator.EvictUnset {
		panic("histogram: sort-merge eviction policy not chosen; validate the Config first")
	}
	capacity := cfg.SortMerge.Capacity
	if capacity == 0 {
		capacity = aggregator.DefaultSortMergeCapacity
	}
	state.capacity = capacity
	state.policy = cfg.SortMerge.Eviction
}

func (SortMergeMethods) Update(state *SortMerge, value float64) {
	state.Update(value)
}

func (SortMergeMethods) Move(from, to *SortMerge) {
	from.lock.Lock()
	defer from.lock.Unlock()

	to.capacity = from.capacity
	to.policy = from.policy
	to.values, from.values = from.values, nil
	to.dropped, from.dropped = from.dropped, 0
}

// Merge folds the input's observations into the output with an
// ordered merge of the two sorted slices, applying the output's
// capacity and policy to the combined set.  Under EvictNewest the
// input counts as newer, so only as many of its observations as fit
// are admitted, smallest first.
func (SortMergeMethods) Merge(from, to *SortMerge) {
	to.lock.Lock()
	defer to.lock.Unlock()

	if to.capacity == 0 {
		to.capacity = from.capacity
		to.policy = from.policy
	}
	to.dropped += from.dropped

	incoming := from.values
	if to.policy == aggregator.EvictNewest {
		room := to.capacity - len(to.values)
		if room < 0 {
			room = 0
		}
		if len(incoming) > room {
			to.dropped += uint64(len(incoming) - room)
			incoming = incoming[:room]
		}
	}

	merged := make([]float64, 0, len(to.values)+len(incoming))
	i, j := 0, 0
	for i < len(to.values) && j < len(incoming) {
		if to.values[i] <= incoming[j] {
			merged = append(merged, to.values[i])
			i++
		} else {
			merged = append(merged, incoming[j])
			j++
		}
	}
	merged = append(merged, to.values[i:]...)
	merged = append(merged, incoming[j:]...)

	if excess := len(merged) - to.capacity; excess > 0 {
		to.dropped += uint64(excess)
		switch to.policy {
		case aggregator.EvictHighest:
			merged = merged[:to.capacity]
		case aggregator.EvictLowest:
			merged = merged[excess:]
		}
	}
	to.values = merged
}

func (SortMergeMethods) HasChange(ptr *SortMerge) bool {
	return len(ptr.values) != 0 || ptr.dropped != 0
}

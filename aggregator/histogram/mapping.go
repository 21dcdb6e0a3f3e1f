// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package histogram // import "github.com/awslabs/metrique/aggregator/histogram"

import (
	"math"
	"math/bits"

	"github.com/awslabs/metrique/aggregator"
)

// mapping converts magnitudes to bucket indexes and back.  It is a
// base-2 layout with a fixed grouping power p: values below 2^(p+1)
// occupy exact width-1 buckets, and every higher power-of-two range
// [2^k, 2^(k+1)) splits into 2^p equal sub-buckets.  Bucket width is
// therefore at most 1/2^p of the value, which for the default p=4
// bounds relative error to 6.25%.  The bucket count depends only on
// the configured range, never on observation volume.
type mapping struct {
	groupingPower uint8
	maxValuePower uint8
}

func newMapping(cfg aggregator.HistogramConfig) mapping {
	if cfg.GroupingPower == 0 {
		cfg.GroupingPower = aggregator.DefaultGroupingPower
	}
	if cfg.MaxValuePower == 0 {
		cfg.MaxValuePower = aggregator.DefaultMaxValuePower
	}
	return mapping{
		groupingPower: cfg.GroupingPower,
		maxValuePower: cfg.MaxValuePower,
	}
}

func (m mapping) valid() bool {
	return m.groupingPower != 0
}

// totalBuckets returns the number of in-range buckets: 2^(p+1) exact
// buckets plus 2^p per power-of-two segment from p+1 to n-1.  The
// defaults (p=4, n=64) yield 976.
func (m mapping) totalBuckets() int {
	return (int(m.maxValuePower) - int(m.groupingPower) + 1) << m.groupingPower
}

// maxValue returns the largest in-range magnitude.
func (m mapping) maxValue() uint64 {
	if m.maxValuePower >= 64 {
		return math.MaxUint64
	}
	return 1<<m.maxValuePower - 1
}

// indexOf maps an in-range magnitude to its bucket index.
func (m mapping) indexOf(v uint64) int {
	p := uint(m.groupingPower)
	if v < 1<<(p+1) {
		return int(v)
	}
	k := uint(63 - bits.LeadingZeros64(v))
	return int((uint64(k-p) << p) + (v >> (k - p)))
}

// lowerBound returns the smallest magnitude mapping to index i.
func (m mapping) lowerBound(i int) uint64 {
	p := uint(m.groupingPower)
	if i < 1<<(p+1) {
		return uint64(i)
	}
	k := uint(i>>p) + p - 1
	offset := uint64(i) - uint64(k-p)<<p
	return offset << (k - p)
}

// width returns the number of magnitudes mapping to index i.
func (m mapping) width(i int) uint64 {
	p := uint(m.groupingPower)
	if i < 1<<(p+1) {
		return 1
	}
	k := uint(i>>p) + p - 1
	return 1 << (k - p)
}

// midpoint returns the representative magnitude for index i, used for
// estimates.  Its distance from any member of the bucket is at most
// half the bucket width.
func (m mapping) midpoint(i int) float64 {
	return float64(m.lowerBound(i) + (m.width(i)-1)/2)
}

// valueClass partitions inputs into bucketable and special-cased.
type valueClass int

const (
	classInRange valueClass = iota
	classUnderflow
	classOverflow
)

// classify reduces a value to a bucketable magnitude.  Negative
// values and NaN cannot be bucketed and fall to the underflow bucket;
// magnitudes beyond the configured range fall to the overflow bucket.
func classify[N any](value N, m mapping) (uint64, valueClass) {
	switch x := any(value).(type) {
	case int64:
		if x < 0 {
			return 0, classUnderflow
		}
		u := uint64(x)
		if u > m.maxValue() {
			return 0, classOverflow
		}
		return u, classInRange
	case float64:
		if math.IsNaN(x) || x < 0 {
			return 0, classUnderflow
		}
		if x >= math.Ldexp(1, int(m.maxValuePower)) {
			return 0, classOverflow
		}
		return uint64(x), classInRange
	}
	return 0, classUnderflow
}

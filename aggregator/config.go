// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package aggregator // import "github.com/awslabs/metrique/aggregator"

import (
	"fmt"

	"go.uber.org/multierr"
)

// ErrInvalidConfig wraps all configuration errors surfaced at
// construction time.
var ErrInvalidConfig = fmt.Errorf("invalid aggregator configuration")

// DefaultGroupingPower is the default number of sub-bucket bits per
// power of two in the exponential histogram.  Four bits give 16
// buckets per power of two, bounding relative bucket width to
// 1/16 = 6.25%.
const DefaultGroupingPower uint8 = 4

// DefaultMaxValuePower is the default power of two bounding the
// exponential histogram's value range; 64 covers all of uint64.
const DefaultMaxValuePower uint8 = 64

// DefaultSortMergeCapacity is the default number of exact
// observations a sort-and-merge histogram retains.
const DefaultSortMergeCapacity = 1024

// HistogramConfig configures the exponential-bucket histogram.
type HistogramConfig struct {
	// GroupingPower is the number of sub-bucket bits per power of
	// two.  Zero selects DefaultGroupingPower.
	GroupingPower uint8

	// MaxValuePower bounds the representable value range to
	// [0, 2^MaxValuePower).  Larger magnitudes count into the
	// overflow bucket.  Zero selects DefaultMaxValuePower.
	MaxValuePower uint8
}

// Eviction selects what a sort-and-merge histogram discards once its
// capacity is exceeded.  The reference behavior leaves this open, so
// the policy is a required, explicit choice.  Every policy is
// deterministic for a fixed input order.
type Eviction int

const (
	// EvictUnset is invalid; the policy must be chosen explicitly.
	EvictUnset Eviction = iota

	// EvictHighest keeps the lowest values.
	EvictHighest

	// EvictLowest keeps the highest values.
	EvictLowest

	// EvictNewest stops admitting observations once full.
	EvictNewest
)

func (e Eviction) String() string {
	switch e {
	case EvictHighest:
		return "evict-highest"
	case EvictLowest:
		return "evict-lowest"
	case EvictNewest:
		return "evict-newest"
	}
	return "unset"
}

// SortMergeConfig configures the bounded exact-storage histogram.
type SortMergeConfig struct {
	// Capacity is the maximum number of retained observations.
	// Zero selects DefaultSortMergeCapacity.
	Capacity int

	// Eviction is the policy applied beyond Capacity.  It has no
	// valid default and must be set before use.
	Eviction Eviction
}

// Config carries the configuration for all strategies in one struct.
// The zero value validates except for SortMergeConfig.Eviction, which
// only matters when a sort-and-merge histogram is constructed.
type Config struct {
	Histogram HistogramConfig
	SortMerge SortMergeConfig
}

// Validate returns the Config with defaults applied, along with an
// error describing any invalid settings.
func (c Config) Validate() (Config, error) {
	var err error

	if c.Histogram.GroupingPower == 0 {
		c.Histogram.GroupingPower = DefaultGroupingPower
	}
	if c.Histogram.MaxValuePower == 0 {
		c.Histogram.MaxValuePower = DefaultMaxValuePower
	}
	if c.Histogram.GroupingPower > 16 {
		err = multierr.Append(err, fmt.Errorf("%w: grouping power %d exceeds 16", ErrInvalidConfig, c.Histogram.GroupingPower))
	}
	if c.Histogram.MaxValuePower > 64 || c.Histogram.MaxValuePower <= c.Histogram.GroupingPower+1 {
		err = multierr.Append(err, fmt.Errorf("%w: max value power %d outside (%d, 64]", ErrInvalidConfig, c.Histogram.MaxValuePower, c.Histogram.GroupingPower+1))
	}

	if c.SortMerge.Capacity < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: negative sort-merge capacity %d", ErrInvalidConfig, c.SortMerge.Capacity))
	}
	if c.SortMerge.Capacity == 0 {
		c.SortMerge.Capacity = DefaultSortMergeCapacity
	}

	return c, err
}

// ValidateSortMerge is Validate plus the requirement that an eviction
// policy was chosen.  Sort-and-merge constructors call this.
func (c Config) ValidateSortMerge() (Config, error) {
	c, err := c.Validate()
	if c.SortMerge.Eviction == EvictUnset {
		err = multierr.Append(err, fmt.Errorf("%w: sort-merge eviction policy must be chosen explicitly", ErrInvalidConfig))
	}
	return c, err
}

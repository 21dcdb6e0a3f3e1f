// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package minmax implements the extremum merge strategy, tracking
// min, max, sum, and count together.  Merging is order-insensitive.
package minmax // import "github.com/awslabs/metrique/aggregator/minmax"

import (
	"sync"

	"github.com/awslabs/metrique/aggregator"
	"github.com/awslabs/metrique/number"
)

type (
	Methods[N number.Any, Traits number.Traits[N], Storage State[N, Traits]] struct{}

	fields[N number.Any, Traits number.Traits[N]] struct {
		min   N
		max   N
		sum   N
		count uint64
	}

	State[N number.Any, Traits number.Traits[N]] struct {
		lock sync.Mutex
		fields[N, Traits]
	}

	Int64   = State[int64, number.Int64Traits]
	Float64 = State[float64, number.Float64Traits]

	Int64Methods   = Methods[int64, number.Int64Traits, Int64]
	Float64Methods = Methods[float64, number.Float64Traits, Float64]
)

var (
	_ aggregator.Methods[int64, Int64]     = Int64Methods{}
	_ aggregator.Methods[float64, Float64] = Float64Methods{}
)

func NewInt64(vals ...int64) *Int64 {
	a := &Int64{}
	for _, val := range vals {
		Int64Methods{}.Update(a, val)
	}
	return a
}

func NewFloat64(vals ...float64) *Float64 {
	a := &Float64{}
	for _, val := range vals {
		Float64Methods{}.Update(a, val)
	}
	return a
}

// Min is only meaningful when Count() > 0.
func (g *State[N, Traits]) Min() number.Number {
	var t Traits
	return t.ToNumber(g.min)
}

// Max is only meaningful when Count() > 0.
func (g *State[N, Traits]) Max() number.Number {
	var t Traits
	return t.ToNumber(g.max)
}

func (g *State[N, Traits]) Sum() number.Number {
	var t Traits
	return t.ToNumber(g.sum)
}

func (g *State[N, Traits]) Count() uint64 {
	return g.count
}

func (Methods[N, Traits, Storage]) Kind() aggregator.Kind {
	return aggregator.MinMaxKind
}

func (Methods[N, Traits, Storage]) Init(state *State[N, Traits], _ aggregator.Config) {
	// Note: storage is zero to start.
}

func (Methods[N, Traits, Storage]) Update(state *State[N, Traits], value N) {
	state.lock.Lock()
	defer state.lock.Unlock()

	if state.count == 0 {
		state.min = value
		state.max = value
	} else {
		if value < state.min {
			state.min = value
		}
		if value > state.max {
			state.max = value
		}
	}

	state.sum += value
	state.count++
}

func (Methods[N, Traits, Storage]) Move(from, to *State[N, Traits]) {
	from.lock.Lock()
	defer from.lock.Unlock()

	to.fields, from.fields = from.fields, fields[N, Traits]{}
}

func (Methods[N, Traits, Storage]) Merge(from, to *State[N, Traits]) {
	to.lock.Lock()
	defer to.lock.Unlock()

	if from.fields.count != 0 {
		if to.fields.count == 0 {
			to.fields.min = from.fields.min
			to.fields.max = from.fields.max
		} else {
			if from.fields.min < to.fields.min {
				to.fields.min = from.fields.min
			}
			if from.fields.max > to.fields.max {
				to.fields.max = from.fields.max
			}
		}
	}

	to.fields.sum += from.fields.sum
	to.fields.count += from.fields.count
}

func (Methods[N, Traits, Storage]) HasChange(ptr *State[N, Traits]) bool {
	return ptr.count != 0
}

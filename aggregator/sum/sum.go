// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package sum implements the additive merge strategy.  The identity
// element is zero and merging is order-insensitive.
package sum // import "github.com/awslabs/metrique/aggregator/sum"

import (
	"github.com/awslabs/metrique/aggregator"
	"github.com/awslabs/metrique/number"
)

type (
	Methods[N number.Any, Traits number.Traits[N], Storage State[N, Traits]] struct{}

	State[N number.Any, Traits number.Traits[N]] struct {
		value N
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

func NewInt64(x int64) *Int64 {
	return &Int64{value: x}
}

func NewFloat64(x float64) *Float64 {
	return &Float64{value: x}
}

// Sum returns the accumulated total.
func (s *State[N, Traits]) Sum() number.Number {
	var t Traits
	return t.ToNumber(s.value)
}

func (Methods[N, Traits, Storage]) Kind() aggregator.Kind {
	return aggregator.SumKind
}

func (Methods[N, Traits, Storage]) Init(state *State[N, Traits], _ aggregator.Config) {
	// Note: storage is zero to start.
}

func (Methods[N, Traits, Storage]) Update(state *State[N, Traits], value N) {
	var t Traits
	t.AddAtomic(&state.value, value)
}

func (Methods[N, Traits, Storage]) Move(from, to *State[N, Traits]) {
	var t Traits
	to.value = t.SwapAtomic(&from.value, 0)
}

func (Methods[N, Traits, Storage]) Merge(from, to *State[N, Traits]) {
	var t Traits
	t.AddAtomic(&to.value, from.value)
}

func (Methods[N, Traits, Storage]) HasChange(ptr *State[N, Traits]) bool {
	return ptr.value != 0
}

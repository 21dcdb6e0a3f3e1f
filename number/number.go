// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package number provides a generic treatment of the two numeric
// value categories used by the aggregation engine, int64 and float64,
// including the atomic operations that strategies rely on.
package number // import "github.com/awslabs/metrique/number"

import (
	"math"
	"sync/atomic"
	"unsafe"
)

// Any is the set of observation value types.
type Any interface {
	int64 | float64
}

// Kind identifies the machine type behind a Number.
type Kind int

const (
	Int64Kind Kind = iota
	Float64Kind
)

// Number is a 64-bit value whose interpretation depends on Kind.
// Float64 values are stored as their IEEE 754 bit pattern.
type Number uint64

// ToInt64 reinterprets n as an int64.
func ToInt64(n Number) int64 {
	return int64(n)
}

// ToFloat64 reinterprets n as a float64.
func ToFloat64(n Number) float64 {
	return math.Float64frombits(uint64(n))
}

// Traits is the generic traits interface for numbers used by the
// aggregation strategies.
type Traits[N Any] interface {
	// FromNumber turns a generic 64-bit value into the machine type.
	FromNumber(n Number) N

	// ToNumber turns this type into a generic 64-bit value.
	ToNumber(value N) Number

	// AddAtomic sets `*ptr` to `*ptr+value`.
	AddAtomic(ptr *N, value N)

	// SwapAtomic sets `*ptr` to `value` and returns the former value.
	SwapAtomic(ptr *N, value N) N

	// IsNaN indicates whether math.IsNaN() is true (impossible for int64).
	IsNaN(value N) bool

	// IsInf indicates whether math.IsInf() is true (impossible for int64).
	IsInf(value N) bool

	// Kind returns the corresponding Kind.
	Kind() Kind
}

// Int64Traits implements Traits[int64].
type Int64Traits struct{}

var _ Traits[int64] = Int64Traits{}

func (Int64Traits) FromNumber(n Number) int64 {
	return int64(n)
}

func (Int64Traits) ToNumber(x int64) Number {
	return Number(x)
}

func (Int64Traits) AddAtomic(ptr *int64, value int64) {
	atomic.AddInt64(ptr, value)
}

func (Int64Traits) SwapAtomic(ptr *int64, value int64) int64 {
	return atomic.SwapInt64(ptr, value)
}

func (Int64Traits) IsNaN(_ int64) bool {
	return false
}

func (Int64Traits) IsInf(_ int64) bool {
	return false
}

func (Int64Traits) Kind() Kind {
	return Int64Kind
}

// Float64Traits implements Traits[float64].
type Float64Traits struct{}

var _ Traits[float64] = Float64Traits{}

func (Float64Traits) FromNumber(n Number) float64 {
	return math.Float64frombits(uint64(n))
}

func (Float64Traits) ToNumber(x float64) Number {
	return Number(math.Float64bits(x))
}

func (Float64Traits) AddAtomic(ptr *float64, value float64) {
	for {
		oldBits := atomic.LoadUint64((*uint64)(unsafe.Pointer(ptr)))
		newBits := math.Float64bits(math.Float64frombits(oldBits) + value)

		if atomic.CompareAndSwapUint64((*uint64)(unsafe.Pointer(ptr)), oldBits, newBits) {
			return
		}
	}
}

func (Float64Traits) SwapAtomic(ptr *float64, value float64) float64 {
	return math.Float64frombits(atomic.SwapUint64((*uint64)(unsafe.Pointer(ptr)), math.Float64bits(value)))
}

func (Float64Traits) IsNaN(value float64) bool {
	return math.IsNaN(value)
}

func (Float64Traits) IsInf(value float64) bool {
	return math.IsInf(value, 0)
}

func (Float64Traits) Kind() Kind {
	return Float64Kind
}

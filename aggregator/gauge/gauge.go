// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package gauge implements the last-value-wins merge strategy.
//
// Last-value-wins is the one order-sensitive strategy: the surviving
// value is the last one folded in completion order, meaning the order
// in which Update calls are serialized by the wrapping sink (lock
// acquisition order, or channel delivery order), not the order the
// calls were issued.  Each Update captures a process-wide monotonic
// sequence number so that Merge between two states is deterministic
// and agrees with that order.
package gauge // import "github.com/awslabs/metrique/aggregator/gauge"

import (
	"sync"
	"sync/atomic"

	"github.com/awslabs/metrique/aggregator"
	"github.com/awslabs/metrique/number"
)

type (
	Methods[N number.Any, Traits number.Traits[N], Storage State[N, Traits]] struct{}

	State[N number.Any, Traits number.Traits[N]] struct {
		lock  sync.Mutex
		value N
		seq   uint64
	}

	Int64   = State[int64, number.Int64Traits]
	Float64 = State[float64, number.Float64Traits]

	Int64Methods   = Methods[int64, number.Int64Traits, Int64]
	Float64Methods = Methods[float64, number.Float64Traits, Float64]
)

// initialSequence is the first assigned sequence number.
const initialSequence uint64 = 1

// sequenceVar allocates sequence numbers.  Zero means unset.
var sequenceVar = initialSequence

var (
	_ aggregator.Methods[int64, Int64]     = Int64Methods{}
	_ aggregator.Methods[float64, Float64] = Float64Methods{}
)

func NewInt64(x int64) *Int64 {
	return &Int64{value: x, seq: initialSequence}
}

func NewFloat64(x float64) *Float64 {
	return &Float64{value: x, seq: initialSequence}
}

// Gauge returns the last recorded value, or zero when unset.  Callers
// distinguish the unset case with HasChange.
func (g *State[N, Traits]) Gauge() number.Number {
	var t Traits
	g.lock.Lock()
	defer g.lock.Unlock()
	return t.ToNumber(g.value)
}

func (Methods[N, Traits, Storage]) Kind() aggregator.Kind {
	return aggregator.GaugeKind
}

func (Methods[N, Traits, Storage]) Init(state *State[N, Traits], _ aggregator.Config) {
	// Note: storage is zero to start.
}

func (Methods[N, Traits, Storage]) Update(state *State[N, Traits], value N) {
	newSeq := atomic.AddUint64(&sequenceVar, 1)

	state.lock.Lock()
	defer state.lock.Unlock()

	state.value = value
	state.seq = newSeq
}

func (Methods[N, Traits, Storage]) Move(from, to *State[N, Traits]) {
	from.lock.Lock()
	defer from.lock.Unlock()

	to.value = from.value
	to.seq = from.seq

	from.seq = 0
}

func (Methods[N, Traits, Storage]) Merge(from, to *State[N, Traits]) {
	to.lock.Lock()
	defer to.lock.Unlock()

	if from.seq != 0 && from.seq > to.seq {
		to.value = from.value
		to.seq = from.seq
	}
}

func (Methods[N, Traits, Storage]) HasChange(ptr *State[N, Traits]) bool {
	return ptr.seq != 0
}

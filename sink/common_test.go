// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"sync"

	"github.com/awslabs/metrique/aggregate"
	"github.com/awslabs/metrique/aggregator/sum"
	"github.com/awslabs/metrique/number"
)

type testRecord struct {
	op    string
	value float64
	err   bool
}

type testMerged struct {
	total  sum.Float64
	errors sum.Int64
}

type testStrategy struct{}

var _ aggregate.RefStrategy[testRecord, *testMerged] = testStrategy{}

func (testStrategy) Key(r testRecord) aggregate.Key {
	return aggregate.Key{{Name: "op", Value: r.op}}
}

func (testStrategy) NewMerged() *testMerged {
	return &testMerged{}
}

func (s testStrategy) Merge(into *testMerged, r testRecord) {
	s.MergeRef(into, &r)
}

func (testStrategy) MergeRef(into *testMerged, r *testRecord) {
	sum.Float64Methods{}.Update(&into.total, r.value)
	if r.err {
		sum.Int64Methods{}.Update(&into.errors, 1)
	}
}

// consumingStrategy deliberately omits MergeRef.
type consumingStrategy struct{}

func (consumingStrategy) Key(r testRecord) aggregate.Key {
	return testStrategy{}.Key(r)
}

func (consumingStrategy) NewMerged() *testMerged {
	return &testMerged{}
}

func (consumingStrategy) Merge(into *testMerged, r testRecord) {
	testStrategy{}.MergeRef(into, &r)
}

// panicStrategy panics on records named "boom".
type panicStrategy struct{}

func (panicStrategy) Key(r testRecord) aggregate.Key {
	return testStrategy{}.Key(r)
}

func (panicStrategy) NewMerged() *testMerged {
	return &testMerged{}
}

func (panicStrategy) Merge(into *testMerged, r testRecord) {
	if r.op == "boom" {
		panic("boom")
	}
	testStrategy{}.MergeRef(into, &r)
}

// capture collects emitted batches for assertions.
type capture[E any] struct {
	lock    sync.Mutex
	batches [][]E
}

func (c *capture[E]) Emit(batch []E) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.batches = append(c.batches, batch)
	return nil
}

func (c *capture[E]) flushes() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.batches)
}

func (c *capture[E]) all() []E {
	c.lock.Lock()
	defer c.lock.Unlock()
	var out []E
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

// summarize reduces entries to per-op (count, total) pairs.
func summarize(entries []aggregate.Entry[*testMerged]) map[string][2]float64 {
	out := map[string][2]float64{}
	for _, e := range entries {
		prev := out[e.Key[0].Value]
		out[e.Key[0].Value] = [2]float64{
			prev[0] + float64(e.Count),
			prev[1] + number.ToFloat64(e.Merged.total.Sum()),
		}
	}
	return out
}

// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package aggregate

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/awslabs/metrique/aggregator/gauge"
	"github.com/awslabs/metrique/aggregator/sum"
	"github.com/awslabs/metrique/number"
)

type testRecord struct {
	name  string
	shard string
	value float64
}

type testMerged struct {
	total sum.Float64
	last  gauge.Float64
}

type testStrategy struct{}

var _ RefStrategy[testRecord, *testMerged] = testStrategy{}

func (testStrategy) Key(r testRecord) Key {
	return Key{{Name: "name", Value: r.name}, {Name: "shard", Value: r.shard}}
}

func (testStrategy) NewMerged() *testMerged {
	return &testMerged{}
}

func (s testStrategy) Merge(into *testMerged, r testRecord) {
	s.MergeRef(into, &r)
}

func (testStrategy) MergeRef(into *testMerged, r *testRecord) {
	sum.Float64Methods{}.Update(&into.total, r.value)
	gauge.Float64Methods{}.Update(&into.last, r.value)
}

// consumingStrategy deliberately omits MergeRef.
type consumingStrategy struct{}

func (consumingStrategy) Key(r testRecord) Key {
	return testStrategy{}.Key(r)
}

func (consumingStrategy) NewMerged() *testMerged {
	return &testMerged{}
}

func (consumingStrategy) Merge(into *testMerged, r testRecord) {
	testStrategy{}.MergeRef(into, &r)
}

func findEntry(t *testing.T, entries []Entry[*testMerged], key Key) Entry[*testMerged] {
	t.Helper()
	for _, e := range entries {
		if e.Key.Equal(key) {
			return e
		}
	}
	t.Fatalf("no entry for key %v", key)
	return Entry[*testMerged]{}
}

func TestKeyedAggregation(t *testing.T) {
	agg := New[testRecord, *testMerged](testStrategy{})

	agg.Merge(testRecord{"A", "1", 10})
	agg.Merge(testRecord{"A", "1", 20})
	agg.Merge(testRecord{"B", "2", 5})
	require.Equal(t, 2, agg.Len())

	entries := agg.Flush()
	require.Len(t, entries, 2)

	a := findEntry(t, entries, Key{{"name", "A"}, {"shard", "1"}})
	require.Equal(t, uint64(2), a.Count)
	require.Equal(t, 30.0, number.ToFloat64(a.Merged.total.Sum()))
	require.Equal(t, 20.0, number.ToFloat64(a.Merged.last.Gauge()))

	b := findEntry(t, entries, Key{{"name", "B"}, {"shard", "2"}})
	require.Equal(t, uint64(1), b.Count)
	require.Equal(t, 5.0, number.ToFloat64(b.Merged.total.Sum()))
}

// Per-key sums and counts are invariant under arrival order.
func TestKeyedPermutationInvariance(t *testing.T) {
	records := []testRecord{
		{"A", "1", 1}, {"A", "1", 2}, {"A", "1", 3},
		{"B", "1", 10}, {"B", "2", 20},
	}

	summarize := func(order []testRecord) map[string]float64 {
		agg := New[testRecord, *testMerged](testStrategy{})
		for _, r := range order {
			agg.Merge(r)
		}
		out := map[string]float64{}
		for _, e := range agg.Flush() {
			out[e.Key[0].Value+"/"+e.Key[1].Value] = number.ToFloat64(e.Merged.total.Sum())
		}
		return out
	}

	want := summarize(records)
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		shuffled := append([]testRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		require.Empty(t, cmp.Diff(want, summarize(shuffled)))
	}
}

func TestFlushResets(t *testing.T) {
	agg := New[testRecord, *testMerged](testStrategy{})
	require.Nil(t, agg.Flush())

	agg.Merge(testRecord{"A", "1", 1})
	require.Len(t, agg.Flush(), 1)
	require.Equal(t, 0, agg.Len())
	require.Nil(t, agg.Flush())

	// Restartable: a fresh entry is created for the same key.
	agg.Merge(testRecord{"A", "1", 2})
	entries := agg.Flush()
	require.Len(t, entries, 1)
	require.Equal(t, uint64(1), entries[0].Count)
	require.Equal(t, 2.0, number.ToFloat64(entries[0].Merged.total.Sum()))
}

func TestMergeRef(t *testing.T) {
	agg := New[testRecord, *testMerged](testStrategy{})
	require.True(t, agg.CanMergeRef())

	r := testRecord{"A", "1", 7}
	require.NoError(t, agg.MergeRef(&r))
	require.NoError(t, agg.MergeRef(&r))

	entries := agg.Flush()
	require.Len(t, entries, 1)
	require.Equal(t, uint64(2), entries[0].Count)
	require.Equal(t, 14.0, number.ToFloat64(entries[0].Merged.total.Sum()))
}

func TestMergeRefUnsupported(t *testing.T) {
	agg := New[testRecord, *testMerged](consumingStrategy{})
	require.False(t, agg.CanMergeRef())

	r := testRecord{"A", "1", 7}
	require.ErrorIs(t, agg.MergeRef(&r), ErrRefMergeUnsupported)

	// The consuming path still works.
	agg.Merge(r)
	require.Equal(t, 1, agg.Len())
}

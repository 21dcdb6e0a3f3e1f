// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/awslabs/metrique/aggregate"
)

// A sink fed through a split reaches the same state as one fed the
// records directly.
func TestSplitMatchesDirectFeed(t *testing.T) {
	records := []testRecord{
		{op: "Get", value: 1}, {op: "Get", value: 2},
		{op: "Put", value: 10}, {op: "Del", value: 5, err: true},
	}

	downA := &capture[aggregate.Entry[*testMerged]]{}
	downB := &capture[aggregate.Entry[*testMerged]]{}
	downDirect := &capture[aggregate.Entry[*testMerged]]{}

	a := NewMutex[testRecord, *testMerged](testStrategy{}, downA, nil)
	b := NewMutex[testRecord, *testMerged](testStrategy{}, downB, nil)
	direct := NewMutex[testRecord, *testMerged](testStrategy{}, downDirect, nil)

	split, err := NewSplit[testRecord](a, b)
	require.NoError(t, err)

	for _, r := range records {
		split.Merge(r)
		direct.Merge(r)
	}
	require.NoError(t, a.Flush(context.Background()))
	require.NoError(t, b.Flush(context.Background()))
	require.NoError(t, direct.Flush(context.Background()))

	want := summarize(downDirect.all())
	require.Empty(t, cmp.Diff(want, summarize(downA.all())), "by-reference side")
	require.Empty(t, cmp.Diff(want, summarize(downB.all())), "consuming side")
}

// Construction fails fast when the by-reference side cannot fold
// without ownership.
func TestSplitRequiresRefCapability(t *testing.T) {
	down := &capture[aggregate.Entry[*testMerged]]{}
	consuming := NewMutex[testRecord, *testMerged](consumingStrategy{}, down, nil)

	_, err := NewSplit[testRecord](consuming, consuming)
	require.ErrorIs(t, err, aggregate.ErrRefMergeUnsupported)
}

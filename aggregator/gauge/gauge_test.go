// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package gauge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/awslabs/metrique/number"
)

func TestGaugeLastWins(t *testing.T) {
	var methods Float64Methods
	var state Float64

	require.False(t, methods.HasChange(&state))

	methods.Update(&state, 1.5)
	methods.Update(&state, 2.5)
	methods.Update(&state, 0.5)
	require.True(t, methods.HasChange(&state))
	require.Equal(t, 0.5, number.ToFloat64(state.Gauge()))
}

// Merging takes whichever state updated later in completion order,
// regardless of merge direction.
func TestGaugeMergeOrder(t *testing.T) {
	var methods Int64Methods
	var older, newer Int64

	methods.Update(&older, 10)
	methods.Update(&newer, 20)

	merged := older
	methods.Merge(&newer, &merged)
	require.Equal(t, int64(20), number.ToInt64(merged.Gauge()))

	merged = newer
	methods.Merge(&older, &merged)
	require.Equal(t, int64(20), number.ToInt64(merged.Gauge()))
}

func TestGaugeMove(t *testing.T) {
	var methods Int64Methods
	var state, out Int64

	methods.Update(&state, 7)
	methods.Move(&state, &out)

	require.False(t, methods.HasChange(&state))
	require.True(t, methods.HasChange(&out))
	require.Equal(t, int64(7), number.ToInt64(out.Gauge()))

	// A moved-out state no longer wins a merge.
	methods.Merge(&state, &out)
	require.Equal(t, int64(7), number.ToInt64(out.Gauge()))
}

func TestGaugeMergeEmpty(t *testing.T) {
	var methods Int64Methods
	var empty, set Int64

	methods.Update(&set, 3)
	methods.Merge(&empty, &set)
	require.Equal(t, int64(3), number.ToInt64(set.Gauge()))
}

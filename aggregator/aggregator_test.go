// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/awslabs/metrique/number"
)

func TestRangeTest(t *testing.T) {
	require.NoError(t, RangeTest[int64, number.Int64Traits](math.MinInt64))
	require.NoError(t, RangeTest[float64, number.Float64Traits](0))

	require.ErrorIs(t, RangeTest[float64, number.Float64Traits](math.NaN()), ErrNaNInput)
	require.ErrorIs(t, RangeTest[float64, number.Float64Traits](math.Inf(+1)), ErrInfInput)
	require.ErrorIs(t, RangeTest[float64, number.Float64Traits](math.Inf(-1)), ErrInfInput)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "undefined", UndefinedKind.String())
	require.Equal(t, "sum", SumKind.String())
	require.Equal(t, "gauge", GaugeKind.String())
	require.Equal(t, "minmax", MinMaxKind.String())
	require.Equal(t, "histogram", HistogramKind.String())
}

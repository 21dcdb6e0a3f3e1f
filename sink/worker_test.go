// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/awslabs/metrique/aggregate"
	"github.com/awslabs/metrique/timesource"
)

const waitFor = 5 * time.Second

func TestWorkerConfigValidation(t *testing.T) {
	down := &capture[aggregate.Entry[*testMerged]]{}

	_, err := NewWorker[testRecord, *testMerged](testStrategy{}, down, WorkerConfig{})
	require.ErrorIs(t, err, ErrInvalidConfig, "full-channel policy is required")

	_, err = NewWorker[testRecord, *testMerged](testStrategy{}, down, WorkerConfig{
		FullPolicy:    FullBlock,
		FlushInterval: -time.Second,
	})
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg, err := WorkerConfig{FullPolicy: FullDrop}.Validate()
	require.NoError(t, err)
	require.Equal(t, DefaultFlushInterval, cfg.FlushInterval)
	require.Equal(t, DefaultChannelCapacity, cfg.ChannelCapacity)
}

// One record followed by one flush interval produces exactly one
// flush containing that record; an idle interval produces none.
func TestWorkerIntervalFlush(t *testing.T) {
	ts := timesource.NewManual(time.Unix(0, 0))
	down := &capture[aggregate.Entry[*testMerged]]{}
	w, err := NewWorker[testRecord, *testMerged](testStrategy{}, down, WorkerConfig{
		FlushInterval: time.Second,
		FullPolicy:    FullBlock,
		TimeSource:    ts,
	})
	require.NoError(t, err)
	defer w.Shutdown(context.Background())

	w.Merge(testRecord{op: "Get", value: 10})
	time.Sleep(50 * time.Millisecond) // let the worker fold the record
	ts.Advance(time.Second)

	require.Eventually(t, func() bool { return down.flushes() == 1 }, waitFor, time.Millisecond)
	require.Empty(t, cmp.Diff(
		map[string][2]float64{"Get": {1, 10}},
		summarize(down.all())))

	// Nothing new to flush: further ticks emit nothing.
	ts.Advance(time.Second)
	ts.Advance(time.Second)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, down.flushes())
}

func TestWorkerFlushOnDemand(t *testing.T) {
	down := &capture[aggregate.Entry[*testMerged]]{}
	w, err := NewWorker[testRecord, *testMerged](testStrategy{}, down, WorkerConfig{
		FlushInterval: time.Hour,
		FullPolicy:    FullBlock,
	})
	require.NoError(t, err)
	defer w.Shutdown(context.Background())

	w.Merge(testRecord{op: "Get", value: 1})
	w.Merge(testRecord{op: "Put", value: 2})
	require.NoError(t, w.Flush(context.Background()))

	// Flush travels the channel behind the records, so both are in.
	require.Empty(t, cmp.Diff(
		map[string][2]float64{"Get": {1, 1}, "Put": {1, 2}},
		summarize(down.all())))
}

func TestWorkerMaxKeysFlush(t *testing.T) {
	down := &capture[aggregate.Entry[*testMerged]]{}
	w, err := NewWorker[testRecord, *testMerged](testStrategy{}, down, WorkerConfig{
		FlushInterval: time.Hour,
		FullPolicy:    FullBlock,
		MaxKeys:       2,
	})
	require.NoError(t, err)
	defer w.Shutdown(context.Background())

	w.Merge(testRecord{op: "Get", value: 1})
	w.Merge(testRecord{op: "Put", value: 2})

	require.Eventually(t, func() bool { return down.flushes() == 1 }, waitFor, time.Millisecond)
	require.Len(t, down.all(), 2)
}

// Shutdown flushes everything unflushed exactly once, then the worker
// accepts nothing further.
func TestWorkerShutdownFinalFlush(t *testing.T) {
	const m = 10

	down := &capture[aggregate.Entry[*testMerged]]{}
	w, err := NewWorker[testRecord, *testMerged](testStrategy{}, down, WorkerConfig{
		FlushInterval: time.Hour,
		FullPolicy:    FullBlock,
	})
	require.NoError(t, err)

	for i := 0; i < m; i++ {
		w.Merge(testRecord{op: "Get", value: 1})
	}
	require.NoError(t, w.Shutdown(context.Background()))
	require.NoError(t, w.Shutdown(context.Background()), "shutdown is idempotent")

	require.Equal(t, 1, down.flushes())
	require.Empty(t, cmp.Diff(
		map[string][2]float64{"Get": {m, m}},
		summarize(down.all())))

	w.Merge(testRecord{op: "Get", value: 1})
	require.Equal(t, uint64(1), w.Dropped())
	require.Equal(t, 1, down.flushes())

	require.ErrorIs(t, w.Flush(context.Background()), ErrShutdown)
}

// Under FullDrop, records beyond the channel capacity are counted,
// not delivered late and not blocking the producer.
func TestWorkerDropPolicy(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	down := DownstreamFunc[aggregate.Entry[*testMerged]](func([]aggregate.Entry[*testMerged]) error {
		entered <- struct{}{}
		<-gate
		return nil
	})

	w, err := NewWorker[testRecord, *testMerged](testStrategy{}, down, WorkerConfig{
		FlushInterval:   time.Hour,
		ChannelCapacity: 1,
		FullPolicy:      FullDrop,
	})
	require.NoError(t, err)

	// Park the worker inside a downstream emit.
	w.Merge(testRecord{op: "Get", value: 1})
	go w.Flush(context.Background())
	<-entered

	// One record fits the channel; the second is dropped.
	w.Merge(testRecord{op: "Get", value: 1})
	w.Merge(testRecord{op: "Get", value: 1})
	require.Equal(t, uint64(1), w.Dropped())

	close(gate)
	require.NoError(t, w.Shutdown(context.Background()))
}

// A panicking strategy does not kill the worker.
func TestWorkerRecoversFromPanic(t *testing.T) {
	down := &capture[aggregate.Entry[*testMerged]]{}
	w, err := NewWorker[testRecord, *testMerged](panicStrategy{}, down, WorkerConfig{
		FlushInterval: time.Hour,
		FullPolicy:    FullBlock,
	})
	require.NoError(t, err)
	defer w.Shutdown(context.Background())

	w.Merge(testRecord{op: "boom", value: 1})
	w.Merge(testRecord{op: "Get", value: 2})
	require.NoError(t, w.Flush(context.Background()))
	require.Empty(t, cmp.Diff(
		map[string][2]float64{"Get": {1, 2}},
		summarize(down.all())))
}

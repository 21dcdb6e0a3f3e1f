// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package doevery provides primitives for per-call-site rate-limiting.
package doevery

import (
	"runtime"
	"sync"
	"time"
)

var (
	// mu protects below.
	mu sync.Mutex

	// mostRecentInvocationMap maintains the last time the function
	// passed at the caller's file and line was called.
	mostRecentInvocationMap = make(map[invocationKey]time.Time)
)

// invocationKey identifies a unique line of source code.
type invocationKey struct {
	file string
	line int
}

// TimePeriod rate-limits each call site of this function by the
// duration specified as the first argument.  Useful in logging
// scenarios where a condition may repeat tens of thousands of times
// per second but a few log lines per period suffice.
//
// Each unique call site is rate-limited independently.  Invocations
// at the same call site should pass the same duration.
func TimePeriod(period time.Duration, f func()) {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		// Without caller information every invocation shares
		// one slot; still rate-limited, just coarser.
		file = "unknown"
		line = 0
	}
	key := invocationKey{file: file, line: line}
	now := time.Now()

	mu.Lock()
	last, found := mostRecentInvocationMap[key]
	if found && now.Sub(last) < period {
		mu.Unlock()
		return
	}
	mostRecentInvocationMap[key] = now
	mu.Unlock()

	f()
}

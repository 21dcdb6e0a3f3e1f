// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package timesource abstracts the clock used for flush-interval
// timers so that time-dependent behavior is substitutable in tests.
package timesource // import "github.com/awslabs/metrique/timesource"

import (
	"sync"
	"time"
)

// TimeSource supplies the current instant and interval tickers.
type TimeSource interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a ticker that delivers ticks every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers periodic ticks until stopped.
type Ticker interface {
	// C returns the tick channel.
	C() <-chan time.Time

	// Stop releases the ticker's resources.  Stop does not close
	// the channel.
	Stop()
}

// Real returns the system clock.
func Real() TimeSource {
	return systemTimeSource{}
}

type systemTimeSource struct{}

func (systemTimeSource) Now() time.Time {
	return time.Now()
}

func (systemTimeSource) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time {
	return s.t.C
}

func (s systemTicker) Stop() {
	s.t.Stop()
}

// Manual is a TimeSource under test control.  Time only moves when
// Advance is called, which fires any tickers whose period elapsed.
type Manual struct {
	lock    sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

var _ TimeSource = &Manual{}

// NewManual returns a Manual clock reading start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now implements TimeSource.
func (m *Manual) Now() time.Time {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.now
}

// NewTicker implements TimeSource.
func (m *Manual) NewTicker(d time.Duration) Ticker {
	m.lock.Lock()
	defer m.lock.Unlock()

	t := &manualTicker{
		// Capacity 1 to match time.Ticker: a slow receiver
		// coalesces ticks instead of growing a backlog.
		ch:     make(chan time.Time, 1),
		period: d,
		next:   m.now.Add(d),
	}
	m.tickers = append(m.tickers, t)
	return t
}

// Advance moves the clock forward by d, delivering ticks for every
// elapsed ticker period.
func (m *Manual) Advance(d time.Duration) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.now = m.now.Add(d)
	for _, t := range m.tickers {
		t.advanceTo(m.now)
	}
}

type manualTicker struct {
	ch chan time.Time

	lock    sync.Mutex
	period  time.Duration
	next    time.Time
	stopped bool
}

func (t *manualTicker) C() <-chan time.Time {
	return t.ch
}

func (t *manualTicker) Stop() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.stopped = true
}

func (t *manualTicker) advanceTo(now time.Time) {
	t.lock.Lock()
	defer t.lock.Unlock()
	for !t.stopped && !t.next.After(now) {
		select {
		case t.ch <- t.next:
		default:
		}
		t.next = t.next.Add(t.period)
	}
}

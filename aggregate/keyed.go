// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package aggregate // import "github.com/awslabs/metrique/aggregate"

// Entry is one flushed per-key accumulator set.
type Entry[A any] struct {
	// Key groups the records folded into this entry.
	Key Key

	// Merged is the accumulator set after folding Count records.
	Merged A

	// Count is the number of records folded in.
	Count uint64
}

// KeyedAggregator maps keys to accumulator sets.  It is exclusively
// owned: callers serialize access through a sink wrapper (or use it
// single-threaded).  Keeping the fold path free of synchronization
// and of per-call allocation is the point of this split.
//
// Entries index by key fingerprint with per-fingerprint collision
// chains compared by Key.Equal, the same scheme the fingerprint is
// designed for.
type KeyedAggregator[T, A any] struct {
	strategy Strategy[T, A]
	refStrat RefStrategy[T, A] // nil when unsupported
	entries  map[uint64][]*Entry[A]
	count    int
}

// New returns an empty aggregator using strategy.  By-reference
// merging is available when strategy implements RefStrategy.
func New[T, A any](strategy Strategy[T, A]) *KeyedAggregator[T, A] {
	k := &KeyedAggregator[T, A]{
		strategy: strategy,
		entries:  map[uint64][]*Entry[A]{},
	}
	k.refStrat, _ = strategy.(RefStrategy[T, A])
	return k
}

func (k *KeyedAggregator[T, A]) find(key Key) *Entry[A] {
	fp := key.Fingerprint()
	for _, e := range k.entries[fp] {
		if e.Key.Equal(key) {
			return e
		}
	}
	e := &Entry[A]{
		Key:    key.Clone(),
		Merged: k.strategy.NewMerged(),
	}
	k.entries[fp] = append(k.entries[fp], e)
	k.count++
	return e
}

// Merge extracts the record's key and folds it into that key's entry,
// creating the entry on first use.  Consumes the record.
func (k *KeyedAggregator[T, A]) Merge(record T) {
	e := k.find(k.strategy.Key(record))
	k.strategy.Merge(e.Merged, record)
	e.Count++
}

// MergeRef folds the record without consuming it.  Returns
// ErrRefMergeUnsupported when the strategy only supports consuming
// merges.
func (k *KeyedAggregator[T, A]) MergeRef(record *T) error {
	if k.refStrat == nil {
		return ErrRefMergeUnsupported
	}
	e := k.find(k.refStrat.Key(*record))
	k.refStrat.MergeRef(e.Merged, record)
	e.Count++
	return nil
}

// CanMergeRef reports whether MergeRef is supported.
func (k *KeyedAggregator[T, A]) CanMergeRef() bool {
	return k.refStrat != nil
}

// Len returns the number of distinct keys accumulated since the last
// flush.
func (k *KeyedAggregator[T, A]) Len() int {
	return k.count
}

// Flush removes and returns all entries, leaving the aggregator
// empty.  Flushing an empty aggregator returns nil.
func (k *KeyedAggregator[T, A]) Flush() []Entry[A] {
	if k.count == 0 {
		return nil
	}
	out := make([]Entry[A], 0, k.count)
	for _, chain := range k.entries {
		for _, e := range chain {
			out = append(out, *e)
		}
	}
	k.entries = map[uint64][]*Entry[A]{}
	k.count = 0
	return out
}

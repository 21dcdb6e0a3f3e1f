// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package fprint computes key fingerprints.  Farmhash is fast and
// well-distributed; we do not require a never-changing hash function,
// only one that is stable within a process.
package fprint

import (
	farm "github.com/dgryski/go-farm"
)

// Mix combines multiple fingerprints into one.
func Mix(is ...uint64) uint64 {
	if len(is) == 0 {
		return 0
	}
	accumulator := is[0]
	for _, i := range is[1:] {
		accumulator = mix(accumulator, i)
	}
	return accumulator
}

// Borrowed from farmhash.
func mix(x, y uint64) uint64 {
	const mul uint64 = 0x9ddfea08eb382d69
	a := (x ^ y) * mul
	a ^= a >> 47
	b := (y ^ a) * mul
	b ^= b >> 47
	b *= mul
	return b
}

// FingerprintString hashes a string.
func FingerprintString(s string) uint64 {
	return farm.Fingerprint64([]byte(s))
}

// FingerprintUint64 is the identity; integer inputs are already
// well-mixed by Mix.
func FingerprintUint64(i uint64) uint64 {
	return i
}

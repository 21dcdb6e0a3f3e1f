// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package aggregate groups records by key and folds their fields into
// per-key accumulator sets.  It is deliberately not safe for
// concurrent use; the sink package provides the synchronization
// wrappers that own instances of this package.
package aggregate // import "github.com/awslabs/metrique/aggregate"

import (
	"github.com/awslabs/metrique/internal/fprint"
)

// Dimension is one named key component.
type Dimension struct {
	Name  string
	Value string
}

// Key is an ordered list of dimensions extracted from a record.
// Records with equal keys share one accumulator set.  Keys compare
// and hash structurally, so equal lists are equal no matter how they
// were composed.
type Key []Dimension

// NoKey is the implicit key shared by all records when aggregation is
// unkeyed.
func NoKey() Key {
	return nil
}

// Fingerprint returns a 64-bit hash of the ordered dimensions.
func (k Key) Fingerprint() uint64 {
	fp := fprint.FingerprintUint64(uint64(len(k)))
	for _, d := range k {
		fp = fprint.Mix(fp,
			fprint.FingerprintString(d.Name),
			fprint.FingerprintString(d.Value),
		)
	}
	return fp
}

// Equal reports structural equality, order included.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that does not alias the receiver, for keys
// extracted from borrowed records that outlive them.
func (k Key) Clone() Key {
	if k == nil {
		return nil
	}
	out := make(Key, len(k))
	copy(out, k)
	return out
}

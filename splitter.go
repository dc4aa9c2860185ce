// Licensed to Elasticsearch B.V. under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Elasticsearch B.V. licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package docbatcher

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrInvalidMaxRequestBytes is returned when the bulk request size ceiling
// is not a positive number of bytes.
var ErrInvalidMaxRequestBytes = errors.New("max request bytes must be positive")

// Batch holds the items sent to Elasticsearch in a single bulk request.
//
// Size never exceeds the configured ceiling unless the batch holds a
// single item which alone is larger than the ceiling.
type Batch struct {
	// Seq is the batch's position among the batches of one BulkIndex call.
	Seq int

	// Items holds the batch items, in request order.
	Items []BatchItem

	// Size holds the sum of the item sizes, in bytes.
	Size int
}

// TimeRange holds the span of document timestamps represented by a batch.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IsZero reports whether r holds no timestamps.
func (r TimeRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// TimeRange returns the oldest and newest document timestamps in the batch.
// Documents without a timestamp are ignored.
func (b *Batch) TimeRange() TimeRange {
	var r TimeRange
	for _, item := range b.Items {
		ts := item.Timestamp
		if ts.IsZero() {
			continue
		}
		if r.From.IsZero() || ts.Before(r.From) {
			r.From = ts
		}
		if r.To.IsZero() || ts.After(r.To) {
			r.To = ts
		}
	}
	return r
}

// WriteTo writes the batch as a newline delimited bulk request body.
func (b *Batch) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for _, item := range b.Items {
		n, err := w.Write(item.encoded)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (b *Batch) add(item BatchItem) {
	b.Items = append(b.Items, item)
	b.Size += item.Size()
}

// splitBatches partitions items, in order, into batches of at most maxBytes.
//
// The current batch is closed as soon as the next item does not fit, even
// if a later, smaller item would. An item larger than maxBytes is placed in
// a batch of its own and left for Elasticsearch to reject.
func splitBatches(items []BatchItem, maxBytes int) ([]*Batch, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxRequestBytes, maxBytes)
	}
	var batches []*Batch
	var current *Batch
	for _, item := range items {
		if current != nil && current.Size+item.Size() > maxBytes {
			batches = append(batches, current)
			current = nil
		}
		if current == nil {
			current = &Batch{Seq: len(batches)}
		}
		current.add(item)
	}
	if current != nil {
		batches = append(batches, current)
	}
	return batches, nil
}

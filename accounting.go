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
	"sync/atomic"
	"time"
)

// TrafficAccounting records the volume of data sent to Elasticsearch.
// Implementations must be safe for concurrent use.
type TrafficAccounting interface {
	RecordBytes(n int64)
}

// ProcessingStatusRecorder records how far indexing has progressed in
// document time. Implementations must be safe for concurrent use.
type ProcessingStatusRecorder interface {
	UpdateWatermark(r TimeRange)
}

// TrafficCounter is a TrafficAccounting which keeps a running total of
// the recorded bytes.
type TrafficCounter struct {
	bytes atomic.Int64
}

// RecordBytes implements TrafficAccounting.
func (c *TrafficCounter) RecordBytes(n int64) {
	c.bytes.Add(n)
}

// Bytes returns the total number of bytes recorded.
func (c *TrafficCounter) Bytes() int64 {
	return c.bytes.Load()
}

// Watermark is a ProcessingStatusRecorder which keeps the newest document
// timestamp it has been given. It never moves backwards.
type Watermark struct {
	unixNano atomic.Int64
}

// UpdateWatermark implements ProcessingStatusRecorder.
func (w *Watermark) UpdateWatermark(r TimeRange) {
	if r.To.IsZero() {
		return
	}
	ts := r.To.UnixNano()
	for {
		old := w.unixNano.Load()
		if ts <= old {
			return
		}
		if w.unixNano.CompareAndSwap(old, ts) {
			return
		}
	}
}

// Time returns the current watermark, or the zero time if none has been
// recorded.
func (w *Watermark) Time() time.Time {
	ts := w.unixNano.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(0, ts).UTC()
}

type noopTrafficAccounting struct{}

func (noopTrafficAccounting) RecordBytes(int64) {}

type noopStatusRecorder struct{}

func (noopStatusRecorder) UpdateWatermark(TimeRange) {}

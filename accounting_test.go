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

package docbatcher_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/elastic/go-docbatcher"
)

func TestTrafficCounterConcurrent(t *testing.T) {
	var c docbatcher.TrafficCounter
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordBytes(3)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50*100*3), c.Bytes())
}

func TestWatermark(t *testing.T) {
	var w docbatcher.Watermark
	assert.True(t, w.Time().IsZero())

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w.UpdateWatermark(docbatcher.TimeRange{From: base, To: base.Add(time.Minute)})
	assert.Equal(t, base.Add(time.Minute), w.Time())

	// The watermark never moves backwards, and empty ranges are ignored.
	w.UpdateWatermark(docbatcher.TimeRange{From: base, To: base.Add(time.Second)})
	w.UpdateWatermark(docbatcher.TimeRange{})
	assert.Equal(t, base.Add(time.Minute), w.Time())

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w.UpdateWatermark(docbatcher.TimeRange{To: base.Add(time.Duration(i) * time.Hour)})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, base.Add(100*time.Hour), w.Time())
}

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
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sizedItems(sizes ...int) []BatchItem {
	items := make([]BatchItem, len(sizes))
	for i, size := range sizes {
		items[i] = BatchItem{
			Index:      "test",
			DocumentID: fmt.Sprint(i),
			position:   i,
			encoded:    make([]byte, size),
		}
	}
	return items
}

func batchSizes(batches []*Batch) [][]int {
	var out [][]int
	for _, b := range batches {
		var sizes []int
		for _, item := range b.Items {
			sizes = append(sizes, item.Size())
		}
		out = append(out, sizes)
	}
	return out
}

func TestSplitBatches(t *testing.T) {
	for _, tc := range []struct {
		name     string
		sizes    []int
		maxBytes int
		expected [][]int
	}{
		{name: "empty", sizes: nil, maxBytes: 10, expected: nil},
		{name: "single", sizes: []int{3}, maxBytes: 10, expected: [][]int{{3}}},
		{name: "fits_exactly", sizes: []int{5, 5}, maxBytes: 10, expected: [][]int{{5, 5}}},
		{name: "split_even", sizes: []int{4, 4, 4, 4, 4}, maxBytes: 8, expected: [][]int{{4, 4}, {4, 4}, {4}}},
		{
			// The batch is closed as soon as the next item does not fit,
			// even if a later item would.
			name:     "uneven",
			sizes:    []int{1, 1, 7, 5, 1},
			maxBytes: 10,
			expected: [][]int{{1, 1, 7}, {5, 1}},
		},
		{name: "oversized_first", sizes: []int{11, 1, 1}, maxBytes: 10, expected: [][]int{{11}, {1, 1}}},
		{name: "oversized_middle", sizes: []int{2, 3, 20, 4}, maxBytes: 10, expected: [][]int{{2, 3}, {20}, {4}}},
		{name: "oversized_consecutive", sizes: []int{20, 30}, maxBytes: 10, expected: [][]int{{20}, {30}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			batches, err := splitBatches(sizedItems(tc.sizes...), tc.maxBytes)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, batchSizes(batches))
			for seq, b := range batches {
				assert.Equal(t, seq, b.Seq)
			}
		})
	}
}

func TestSplitBatchesInvalidMaxBytes(t *testing.T) {
	for _, maxBytes := range []int{0, -1} {
		batches, err := splitBatches(sizedItems(1, 2, 3), maxBytes)
		assert.ErrorIs(t, err, ErrInvalidMaxRequestBytes)
		assert.Nil(t, batches)
	}
}

func TestSplitBatchesNoUnnecessarySplit(t *testing.T) {
	sizes := make([]int, 100)
	for i := range sizes {
		sizes[i] = 1
	}
	batches, err := splitBatches(sizedItems(sizes...), 1<<20)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Items, 100)
	assert.Equal(t, 100, batches[0].Size)
}

func TestSplitBatchesInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 200; run++ {
		maxBytes := 1 + rng.Intn(1000)
		sizes := make([]int, rng.Intn(300))
		total := 0
		for i := range sizes {
			// Roughly one item in twenty is larger than the ceiling.
			sizes[i] = 1 + rng.Intn(maxBytes+maxBytes/20)
			total += sizes[i]
		}
		items := sizedItems(sizes...)
		batches, err := splitBatches(items, maxBytes)
		require.NoError(t, err)

		if total <= maxBytes && len(items) > 0 {
			assert.Len(t, batches, 1)
		}
		var positions []int
		for _, b := range batches {
			require.NotEmpty(t, b.Items)
			sum := 0
			for _, item := range b.Items {
				sum += item.Size()
				positions = append(positions, item.position)
			}
			assert.Equal(t, sum, b.Size)
			if b.Size > maxBytes {
				assert.Len(t, b.Items, 1, "only a single oversized item may exceed the ceiling")
			}
		}
		// Every item appears exactly once, in order.
		require.Len(t, positions, len(items))
		for i, pos := range positions {
			assert.Equal(t, i, pos)
		}
	}
}

func TestBatchTimeRange(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := Batch{Items: []BatchItem{
		{Timestamp: base.Add(time.Minute)},
		{},
		{Timestamp: base},
		{Timestamp: base.Add(time.Hour)},
	}}
	assert.Equal(t, TimeRange{From: base, To: base.Add(time.Hour)}, b.TimeRange())
	assert.True(t, (&Batch{Items: []BatchItem{{}}}).TimeRange().IsZero())
}

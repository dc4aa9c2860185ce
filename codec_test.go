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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.elastic.co/fastjson"

	"github.com/elastic/go-docbatcher"
)

func TestJSONCodec(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123e6, time.FixedZone("x", 3600))
	var w fastjson.Writer
	err := docbatcher.JSONCodec{}.EncodeDocument(&w, docbatcher.Document{
		ID:        "1",
		Timestamp: ts,
		Fields: map[string]any{
			"source":  "example.org",
			"message": "line one\nline two",
			"level":   6,
			"tags":    []any{"a", "b"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`{"@timestamp":"2024-03-01T11:30:45.123Z","level":6,"message":"line one\nline two","source":"example.org","tags":["a","b"]}`,
		string(w.Bytes()),
	)
}

func TestJSONCodecTimestampField(t *testing.T) {
	var w fastjson.Writer
	err := docbatcher.JSONCodec{}.EncodeDocument(&w, docbatcher.Document{
		ID:        "1",
		Timestamp: time.Now(),
		Fields:    map[string]any{"@timestamp": "2020-01-01T00:00:00.000Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"@timestamp":"2020-01-01T00:00:00.000Z"}`, string(w.Bytes()))

	w.Reset()
	require.NoError(t, docbatcher.JSONCodec{}.EncodeDocument(&w, docbatcher.Document{ID: "2"}))
	assert.Equal(t, `{}`, string(w.Bytes()))
}

func TestEstimateSize(t *testing.T) {
	entry := docbatcher.Entry{
		Index: "graylog_0",
		Document: docbatcher.Document{
			ID:     "abc",
			Fields: map[string]any{"message": "hello"},
		},
	}
	size, err := docbatcher.EstimateSize(nil, entry)
	require.NoError(t, err)

	expected := `{"index":{"_id":"abc","_index":"graylog_0"}}` + "\n" + `{"message":"hello"}` + "\n"
	assert.Equal(t, len(expected), size)

	// Sizes are deterministic.
	again, err := docbatcher.EstimateSize(docbatcher.JSONCodec{}, entry)
	require.NoError(t, err)
	assert.Equal(t, size, again)

	// The encoded source is valid JSON, and the size grows with the body.
	entry.Document.Fields["message"] = "hello world"
	bigger, err := docbatcher.EstimateSize(nil, entry)
	require.NoError(t, err)
	assert.Equal(t, size+len(" world"), bigger)
}

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
	"sort"

	"go.elastic.co/fastjson"
)

// TimestampFormat holds the time format for formatting timestamps according to
// Elasticsearch's strict_date_optional_time date format, which includes a fractional
// seconds component.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

const timestampField = "@timestamp"

// Codec encodes a document into its JSON source, as stored by Elasticsearch.
//
// EncodeDocument must write a single JSON object without newlines.
type Codec interface {
	EncodeDocument(w *fastjson.Writer, doc Document) error
}

// JSONCodec encodes documents as a flat JSON object holding the document
// timestamp as @timestamp, followed by the document fields sorted by key.
type JSONCodec struct{}

// EncodeDocument implements Codec.
func (JSONCodec) EncodeDocument(w *fastjson.Writer, doc Document) error {
	keys := make([]string, 0, len(doc.Fields))
	for k := range doc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w.RawByte('{')
	first := true
	if _, ok := doc.Fields[timestampField]; !ok && !doc.Timestamp.IsZero() {
		w.RawString(`"@timestamp":`)
		w.String(doc.Timestamp.UTC().Format(TimestampFormat))
		first = false
	}
	for _, k := range keys {
		if !first {
			w.RawByte(',')
		}
		first = false
		w.String(k)
		w.RawByte(':')
		if err := fastjson.Marshal(w, doc.Fields[k]); err != nil {
			return fmt.Errorf("failed to encode field %q: %w", k, err)
		}
	}
	w.RawByte('}')
	return nil
}

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
	"time"

	"go.elastic.co/fastjson"
)

// BatchItem is a document encoded as a bulk index action: the action
// metadata line followed by the document source line.
type BatchItem struct {
	Index      string
	DocumentID string
	Timestamp  time.Time

	// position holds the item's offset in the BulkIndex request.
	position int
	encoded  []byte
}

// Size returns the number of bytes the item occupies in a bulk request body.
func (i BatchItem) Size() int {
	return len(i.encoded)
}

// Bytes returns the encoded action and source lines, newline terminated.
// The returned slice must not be modified.
func (i BatchItem) Bytes() []byte {
	return i.encoded
}

// EstimateSize returns the number of bytes entry will occupy in a bulk
// request body when encoded with codec, including the action metadata.
// A nil codec selects JSONCodec.
func EstimateSize(codec Codec, entry Entry) (int, error) {
	var w fastjson.Writer
	if codec == nil {
		codec = JSONCodec{}
	}
	if err := encodeItem(&w, codec, entry); err != nil {
		return 0, err
	}
	return w.Size(), nil
}

// encodeItems encodes every entry once. The encoded bytes are kept on the
// items so that the size used for splitting is exactly what is sent.
func encodeItems(codec Codec, entries []Entry) ([]BatchItem, error) {
	items := make([]BatchItem, len(entries))
	var w fastjson.Writer
	for i, entry := range entries {
		if err := entry.validate(); err != nil {
			return nil, fmt.Errorf("invalid entry at position %d: %w", i, err)
		}
		w.Reset()
		if err := encodeItem(&w, codec, entry); err != nil {
			return nil, fmt.Errorf("failed to encode document %q: %w", entry.Document.ID, err)
		}
		items[i] = BatchItem{
			Index:      entry.Index,
			DocumentID: entry.Document.ID,
			Timestamp:  entry.Document.timestamp(),
			position:   i,
			encoded:    append([]byte(nil), w.Bytes()...),
		}
	}
	return items, nil
}

func encodeItem(w *fastjson.Writer, codec Codec, entry Entry) error {
	writeMeta(w, entry.Index, entry.Document.ID)
	if err := codec.EncodeDocument(w, entry.Document); err != nil {
		return err
	}
	w.RawByte('\n')
	return nil
}

func writeMeta(w *fastjson.Writer, index, documentID string) {
	w.RawString(`{"index":{`)
	if documentID != "" {
		w.RawString(`"_id":`)
		w.String(documentID)
	}
	if index != "" {
		if documentID != "" {
			w.RawByte(',')
		}
		w.RawString(`"_index":`)
		w.String(index)
	}
	w.RawString("}}\n")
}

// NewBatch encodes entries into a single batch, whatever their total size.
// It is intended for exercising BulkWriter implementations directly.
// A nil codec selects JSONCodec.
func NewBatch(codec Codec, entries []Entry) (*Batch, error) {
	if codec == nil {
		codec = JSONCodec{}
	}
	items, err := encodeItems(codec, entries)
	if err != nil {
		return nil, err
	}
	b := &Batch{}
	for _, item := range items {
		b.add(item)
	}
	return b, nil
}

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
	"time"
)

var (
	errMissingIndex = errors.New("missing index name")
	errMissingID    = errors.New("missing document id")
)

// Entry pairs a document with the index it is destined for.
type Entry struct {
	// Index holds the name of the target index, alias or data stream.
	// It is passed through to Elasticsearch untouched.
	Index string

	// Document holds the document to index.
	Document Document
}

// Document is a single record to be indexed.
type Document struct {
	// ID identifies the document in the bulk request and in failure
	// reports. It is sent as the document _id.
	ID string

	// Timestamp is written as the document's @timestamp field and is used
	// to advance the processing status watermark.
	//
	// An @timestamp entry in Fields takes precedence for both, provided it
	// holds a time.Time or a string in RFC 3339 format. Otherwise the field
	// is still written as given, and Timestamp is used for the watermark.
	Timestamp time.Time

	// Fields holds the document's fields. Values must be encodable by the
	// configured Codec.
	Fields map[string]any
}

func (e Entry) validate() error {
	if e.Index == "" {
		return errMissingIndex
	}
	if e.Document.ID == "" {
		return errMissingID
	}
	return nil
}

// timestamp returns the time the document represents: its @timestamp field
// when that can be interpreted as a time, and Timestamp otherwise.
func (d Document) timestamp() time.Time {
	switch v := d.Fields[timestampField].(type) {
	case time.Time:
		return v
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return ts
		}
	}
	return d.Timestamp
}

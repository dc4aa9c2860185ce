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

// FailedDocument describes a document which was not indexed.
type FailedDocument struct {
	Index      string
	DocumentID string

	// Status holds the HTTP status reported for the document, or for the
	// whole bulk request when it was rejected. It is zero when the request
	// could not be completed at all.
	Status int

	Error ItemError
}

// Result is the outcome of a BulkIndex call.
type Result struct {
	// Failed holds the documents which were not indexed, in request order.
	Failed []FailedDocument

	// Indexed holds the number of documents indexed successfully.
	Indexed int64

	// Batches holds the number of bulk requests issued.
	Batches int

	// Bytes holds the number of uncompressed bytes submitted.
	Bytes int64
}

// FailedIDs returns the IDs of the failed documents, in request order.
func (r Result) FailedIDs() []string {
	if len(r.Failed) == 0 {
		return nil
	}
	ids := make([]string, len(r.Failed))
	for i, doc := range r.Failed {
		ids[i] = doc.DocumentID
	}
	return ids
}

// submissionResult holds the outcome of a single bulk request.
type submissionResult struct {
	indexed int64
	bytes   int64
	failed  []FailedDocument
}

// aggregate merges the per batch results. results must be ordered by batch
// sequence, which makes the failure list follow request order.
func aggregate(results []submissionResult) Result {
	var r Result
	var n int
	for _, res := range results {
		n += len(res.failed)
	}
	if n > 0 {
		r.Failed = make([]FailedDocument, 0, n)
	}
	for _, res := range results {
		r.Failed = append(r.Failed, res.failed...)
		r.Indexed += res.indexed
		r.Bytes += res.bytes
		r.Batches++
	}
	return r
}

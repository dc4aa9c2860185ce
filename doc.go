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

// Package docbatcher provides an API for indexing arbitrarily large
// collections of documents into Elasticsearch with bulk requests that never
// exceed a configured size.
//
// A call to Indexer.BulkIndex encodes every document once, splits the
// encoded documents into batches bounded by Config.MaxRequestBytes, sends
// each batch as a single _bulk request and reports every document that
// could not be indexed, in the order the documents were given. Failed
// documents are not retried; callers decide whether to resubmit them.
package docbatcher

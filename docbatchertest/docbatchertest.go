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

// Package docbatchertest provides a mock Elasticsearch bulk endpoint and
// helpers for decoding the bulk requests sent to it.
package docbatchertest

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.elastic.co/apm/module/apmelasticsearch/v2"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
)

// TimestampFormat holds the time format for formatting timestamps according to
// Elasticsearch's strict_date_optional_time date format, which includes a fractional
// seconds component.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// BulkMeta holds the action metadata of a bulk item.
type BulkMeta struct {
	Action     string
	Index      string `json:"_index"`
	DocumentID string `json:"_id"`
}

// RequestStat holds statistics about a decoded bulk request.
type RequestStat struct {
	// UncompressedBytes holds the size of the request body after
	// decompression.
	UncompressedBytes int64
}

// DecodeBulkRequest decodes a /_bulk request's body, returning the decoded documents and a response body.
func DecodeBulkRequest(r *http.Request) ([][]byte, esutil.BulkIndexerResponse) {
	docs, _, result, _ := DecodeBulkRequestWithStatsAndMeta(r)
	return docs, result
}

// DecodeBulkRequestWithStatsAndMeta decodes a /_bulk request's body, returning
// the decoded documents, their action metadata, a response body which marks
// every item as created, and request statistics.
func DecodeBulkRequestWithStatsAndMeta(r *http.Request) ([][]byte, []BulkMeta, esutil.BulkIndexerResponse, RequestStat) {
	body := r.Body
	switch r.Header.Get("Content-Encoding") {
	case "gzip":
		r, err := gzip.NewReader(body)
		if err != nil {
			panic(err)
		}
		defer r.Close()
		body = r
	}
	data, err := io.ReadAll(body)
	if err != nil {
		panic(err)
	}
	stat := RequestStat{UncompressedBytes: int64(len(data))}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	var indexed [][]byte
	var metas []BulkMeta
	var result esutil.BulkIndexerResponse
	for scanner.Scan() {
		action := make(map[string]BulkMeta)
		if err := json.Unmarshal(scanner.Bytes(), &action); err != nil {
			panic(err)
		}
		var meta BulkMeta
		for actionType, m := range action {
			meta = m
			meta.Action = actionType
		}
		if !scanner.Scan() {
			panic("expected source")
		}

		doc := append([]byte{}, scanner.Bytes()...)
		if !json.Valid(doc) {
			panic(fmt.Errorf("invalid JSON: %s", doc))
		}
		indexed = append(indexed, doc)
		metas = append(metas, meta)

		item := esutil.BulkIndexerResponseItem{
			Index:      meta.Index,
			DocumentID: meta.DocumentID,
			Status:     http.StatusCreated,
		}
		result.Items = append(result.Items, map[string]esutil.BulkIndexerResponseItem{meta.Action: item})
	}
	if err := scanner.Err(); err != nil {
		panic(err)
	}
	return indexed, metas, result, stat
}

// NewMockElasticsearchClient returns an elasticsearch.Client which sends /_bulk requests to bulkHandler.
func NewMockElasticsearchClient(t testing.TB, bulkHandler http.HandlerFunc) *elasticsearch.Client {
	config := NewMockElasticsearchClientConfig(t, bulkHandler)
	client, err := elasticsearch.NewClient(config)
	require.NoError(t, err)
	return client
}

// NewMockElasticsearchClientConfig starts an httptest.Server, and returns an elasticsearch.Config which
// sends /_bulk requests to bulkHandler. The httptest.Server will be closed via t.Cleanup.
func NewMockElasticsearchClientConfig(t testing.TB, bulkHandler http.HandlerFunc) elasticsearch.Config {
	mux := http.NewServeMux()
	HandleBulk(mux, bulkHandler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	config := elasticsearch.Config{}
	config.Addresses = []string{srv.URL}
	config.DisableRetry = true
	config.Transport = apmelasticsearch.WrapRoundTripper(http.DefaultTransport)

	return config
}

// HandleBulk registers bulkHandler with mux for handling /_bulk requests,
// wrapping bulkHandler to conform with go-elasticsearch version checking.
func HandleBulk(mux *http.ServeMux, bulkHandler http.HandlerFunc) {
	mux.HandleFunc("/_bulk", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		bulkHandler.ServeHTTP(w, r)
	})
}

// FailItems marks the response items for which fail returns true as
// rejected with the given status and error.
func FailItems(result *esutil.BulkIndexerResponse, metas []BulkMeta, status int, errType, reason string, fail func(BulkMeta) bool) {
	for i, itemsMap := range result.Items {
		if !fail(metas[i]) {
			continue
		}
		for action, item := range itemsMap {
			result.HasErrors = true
			item.Status = status
			item.Error.Type = errType
			item.Error.Reason = reason
			itemsMap[action] = item
		}
	}
}

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

package integrationtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elastic/go-docbatcher"
	elasticsearch7 "github.com/elastic/go-elasticsearch/v7"
	esapi7 "github.com/elastic/go-elasticsearch/v7/esapi"
	elasticsearch8 "github.com/elastic/go-elasticsearch/v8"
	esapi8 "github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	kib = 1024
	mib = 1024 * kib
)

func skipUnlessIntegration(t *testing.T) {
	switch strings.ToLower(os.Getenv("INTEGRATION_TESTS")) {
	case "1", "true":
	default:
		t.Skip("Skipping integration test, export INTEGRATION_TESTS=1 to run")
	}
}

func createMessageBatch(index, prefix string, size, count int) []docbatcher.Entry {
	message := strings.Repeat("A", size)
	now := time.Now()
	entries := make([]docbatcher.Entry, count)
	for i := range entries {
		entries[i] = docbatcher.Entry{
			Index: index,
			Document: docbatcher.Document{
				ID:        fmt.Sprintf("%s%d", prefix, i),
				Timestamp: now,
				Fields: map[string]any{
					"message": fmt.Sprint(i) + message,
					"source":  "source",
				},
			},
		}
	}
	return entries
}

// cluster abstracts the index management calls which differ between
// client versions.
type cluster struct {
	client  esapi8.Transport
	refresh func(index string) error
	count   func(index string) (int, error)
	delete  func(index string)
}

func testTooLargeBatchesGetSplitUp(t *testing.T, c cluster, index string) {
	c.delete(index)
	defer c.delete(index)

	testIndex(t, c, index, createMessageBatch(index, "", mib, 303), 4)
}

func testUnevenTooLargeBatchesGetSplitUp(t *testing.T, c cluster, index string) {
	c.delete(index)
	defer c.delete(index)

	entries := createMessageBatch(index, "small", kib, 100)
	entries = append(entries, createMessageBatch(index, "large", 5*mib, 20)...)
	testIndex(t, c, index, entries, 2)
}

func testIndex(t *testing.T, c cluster, index string, entries []docbatcher.Entry, batches int) {
	writer, err := docbatcher.NewElasticsearchWriter(docbatcher.ElasticsearchWriterConfig{Client: c.client})
	require.NoError(t, err)
	var traffic docbatcher.TrafficCounter
	indexer, err := docbatcher.New(writer, docbatcher.Config{TrafficAccounting: &traffic})
	require.NoError(t, err)

	result, err := indexer.BulkIndex(context.Background(), entries)
	require.NoError(t, err)
	assert.Empty(t, result.FailedIDs())
	assert.Equal(t, int64(len(entries)), result.Indexed)
	assert.Equal(t, batches, result.Batches)
	assert.Equal(t, result.Bytes, traffic.Bytes())

	require.NoError(t, c.refresh(index))
	count, err := c.count(index)
	require.NoError(t, err)
	assert.Equal(t, len(entries), count)
}

func decodeCount(body io.Reader) (int, error) {
	var result struct {
		Count int
	}
	err := json.NewDecoder(body).Decode(&result)
	return result.Count, err
}

func newClusterV8(t *testing.T) cluster {
	config := elasticsearch8.Config{}
	config.Username = "admin"
	config.Password = "changeme"
	client, err := elasticsearch8.NewClient(config)
	require.NoError(t, err)
	ctx := context.Background()
	return cluster{
		client: client,
		refresh: func(index string) error {
			resp, err := esapi8.IndicesRefreshRequest{Index: []string{index}}.Do(ctx, client)
			if err != nil {
				return err
			}
			return resp.Body.Close()
		},
		count: func(index string) (int, error) {
			resp, err := esapi8.CountRequest{Index: []string{index}}.Do(ctx, client)
			if err != nil {
				return 0, err
			}
			defer resp.Body.Close()
			return decodeCount(resp.Body)
		},
		delete: func(index string) {
			ignore := true
			resp, err := esapi8.IndicesDeleteRequest{Index: []string{index}, IgnoreUnavailable: &ignore}.Do(ctx, client)
			require.NoError(t, err)
			resp.Body.Close()
		},
	}
}

func newClusterV7(t *testing.T) cluster {
	config := elasticsearch7.Config{}
	config.Username = "admin"
	config.Password = "changeme"
	client, err := elasticsearch7.NewClient(config)
	require.NoError(t, err)
	ctx := context.Background()
	return cluster{
		client: client,
		refresh: func(index string) error {
			resp, err := esapi7.IndicesRefreshRequest{Index: []string{index}}.Do(ctx, client)
			if err != nil {
				return err
			}
			return resp.Body.Close()
		},
		count: func(index string) (int, error) {
			resp, err := esapi7.CountRequest{Index: []string{index}}.Do(ctx, client)
			if err != nil {
				return 0, err
			}
			defer resp.Body.Close()
			return decodeCount(resp.Body)
		},
		delete: func(index string) {
			ignore := true
			resp, err := esapi7.IndicesDeleteRequest{Index: []string{index}, IgnoreUnavailable: &ignore}.Do(ctx, client)
			require.NoError(t, err)
			resp.Body.Close()
		},
	}
}

func TestBulkIndexIntegrationV8(t *testing.T) {
	skipUnlessIntegration(t)
	c := newClusterV8(t)
	t.Run("too_large", func(t *testing.T) {
		testTooLargeBatchesGetSplitUp(t, c, "docbatcher-testing-v8")
	})
	t.Run("uneven", func(t *testing.T) {
		testUnevenTooLargeBatchesGetSplitUp(t, c, "docbatcher-testing-uneven-v8")
	})
}

func TestBulkIndexIntegrationV7(t *testing.T) {
	skipUnlessIntegration(t)
	c := newClusterV7(t)
	t.Run("too_large", func(t *testing.T) {
		testTooLargeBatchesGetSplitUp(t, c, "docbatcher-testing-v7")
	})
	t.Run("uneven", func(t *testing.T) {
		testUnevenTooLargeBatchesGetSplitUp(t, c, "docbatcher-testing-uneven-v7")
	})
}

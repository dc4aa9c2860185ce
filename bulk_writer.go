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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unsafe"

	"github.com/klauspost/compress/gzip"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	jsoniter "github.com/json-iterator/go"
)

// BulkWriter sends a batch to the backing store as a single bulk request.
//
// WriteBulk returns one ItemResult per batch item, in item order. A non-nil
// error means the request as a whole failed, and no item is considered
// indexed.
type BulkWriter interface {
	WriteBulk(ctx context.Context, batch *Batch) ([]ItemResult, error)
}

// ItemResult holds the outcome of indexing a single bulk item.
type ItemResult struct {
	Index  string `json:"_index"`
	Status int    `json:"status"`

	Error ItemError `json:"error,omitempty"`
}

// ItemError holds the error reported by Elasticsearch for a bulk item.
type ItemError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Failed reports whether the item was rejected.
func (r ItemResult) Failed() bool {
	return r.Error.Type != "" || r.Status > 201
}

// ErrorFlushFailed is returned when Elasticsearch rejects a bulk request as
// a whole.
type ErrorFlushFailed struct {
	resp        string
	statusCode  int
	tooMany     bool
	clientError bool
	serverError bool
}

// StatusCode returns the HTTP status code of the rejected request.
func (e ErrorFlushFailed) StatusCode() int {
	return e.statusCode
}

func (e ErrorFlushFailed) Error() string {
	return fmt.Sprintf("flush failed (%d): %s", e.statusCode, e.resp)
}

// ElasticsearchWriterConfig holds configuration for ElasticsearchWriter.
type ElasticsearchWriterConfig struct {
	// Client holds the Elasticsearch client. Both the v7 and v8
	// go-elasticsearch clients satisfy esapi.Transport.
	Client esapi.Transport

	// CompressionLevel holds the gzip compression level, from 0 (gzip.NoCompression)
	// to 9 (gzip.BestCompression). Higher values provide greater compression, at a
	// greater cost of CPU. The special value -1 (gzip.DefaultCompression) selects the
	// default compression level.
	CompressionLevel int

	// Pipeline holds the ingest pipeline ID.
	//
	// If Pipeline is empty, no ingest pipeline will be specified in the Bulk request.
	Pipeline string

	// Refresh holds the value of the bulk request refresh parameter:
	// "true", "false" or "wait_for".
	//
	// If Refresh is empty, the parameter is not sent.
	Refresh string
}

// Validate checks the configuration for errors.
func (cfg ElasticsearchWriterConfig) Validate() error {
	if cfg.Client == nil {
		return errors.New("client is nil")
	}
	if cfg.CompressionLevel < -1 || cfg.CompressionLevel > 9 {
		return fmt.Errorf(
			"expected CompressionLevel in range [-1,9], got %d",
			cfg.CompressionLevel,
		)
	}
	switch cfg.Refresh {
	case "", "true", "false", "wait_for":
	default:
		return fmt.Errorf("unknown refresh value %q", cfg.Refresh)
	}
	return nil
}

// ElasticsearchWriter is a BulkWriter which issues _bulk requests to
// Elasticsearch. It is safe for concurrent use.
type ElasticsearchWriter struct {
	config ElasticsearchWriterConfig
	pool   *encoderPool
}

// NewElasticsearchWriter returns a BulkWriter that issues bulk requests to Elasticsearch.
// It works with both the v7 and v8 go-elasticsearch clients.
func NewElasticsearchWriter(cfg ElasticsearchWriterConfig) (*ElasticsearchWriter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ElasticsearchWriter{
		config: cfg,
		pool:   newEncoderPool(cfg.CompressionLevel),
	}, nil
}

// WriteBulk implements BulkWriter.
func (w *ElasticsearchWriter) WriteBulk(ctx context.Context, batch *Batch) ([]ItemResult, error) {
	if len(batch.Items) == 0 {
		return nil, nil
	}
	enc := w.pool.Get()
	defer w.pool.Put(enc)

	if err := enc.encode(batch); err != nil {
		return nil, err
	}

	req := esapi.BulkRequest{
		Body:       &enc.buf,
		Header:     make(http.Header),
		FilterPath: []string{"items.*._index", "items.*.status", "items.*.error.type", "items.*.error.reason"},
		Pipeline:   w.config.Pipeline,
		Refresh:    w.config.Refresh,
	}
	if enc.gzipw != nil {
		req.Header.Set("Content-Encoding", "gzip")
	}

	res, err := req.Do(ctx, w.config.Client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute the request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		e := ErrorFlushFailed{resp: res.String(), statusCode: res.StatusCode}
		switch {
		case res.StatusCode == http.StatusTooManyRequests:
			e.tooMany = true
		case res.StatusCode >= 500:
			e.serverError = true
		case res.StatusCode >= 400:
			e.clientError = true
		}
		return nil, e
	}

	var resp bulkResponse
	if err := jsoniter.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("error decoding bulk response: %w", err)
	}
	return resp.Items, nil
}

type bulkResponse struct {
	Items []ItemResult
}

func init() {
	jsoniter.RegisterTypeDecoderFunc("docbatcher.bulkResponse", func(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
		resp := (*bulkResponse)(ptr)
		iter.ReadObjectCB(func(i *jsoniter.Iterator, s string) bool {
			switch s {
			case "items":
				i.ReadArrayCB(func(i *jsoniter.Iterator) bool {
					return i.ReadMapCB(func(i *jsoniter.Iterator, s string) bool {
						var item ItemResult
						i.ReadObjectCB(func(i *jsoniter.Iterator, s string) bool {
							switch s {
							case "_index":
								item.Index = i.ReadString()
							case "status":
								item.Status = i.ReadInt()
							case "error":
								i.ReadObjectCB(func(i *jsoniter.Iterator, s string) bool {
									switch s {
									case "type":
										item.Error.Type = i.ReadString()
									case "reason":
										// Match Elasticsearch field mapper field value:
										// failed to parse field [%s] of type [%s] in %s. Preview of field's value: '%s'
										item.Error.Reason, _, _ = strings.Cut(
											i.ReadString(), ". Preview",
										)
									default:
										i.Skip()
									}
									return true
								})
							default:
								i.Skip()
							}
							return true
						})
						resp.Items = append(resp.Items, item)
						return true
					})
				})
				// no need to proceed further, return early
				return false
			default:
				i.Skip()
				return true
			}
		})
	})
}

// bulkEncoder holds the buffers used to build a single bulk request body.
type bulkEncoder struct {
	buf    bytes.Buffer
	writer io.Writer
	gzipw  *gzip.Writer
}

func newBulkEncoder(compressionLevel int) *bulkEncoder {
	e := &bulkEncoder{}
	if compressionLevel != gzip.NoCompression {
		// The level has been validated already.
		e.gzipw, _ = gzip.NewWriterLevel(&e.buf, compressionLevel)
		e.writer = e.gzipw
	} else {
		e.writer = &e.buf
	}
	return e
}

func (e *bulkEncoder) reset() {
	e.buf.Reset()
	if e.gzipw != nil {
		e.gzipw.Reset(&e.buf)
	}
}

func (e *bulkEncoder) encode(batch *Batch) error {
	e.reset()
	if _, err := batch.WriteTo(e.writer); err != nil {
		return fmt.Errorf("failed to write bulk request body: %w", err)
	}
	if e.gzipw != nil {
		if err := e.gzipw.Close(); err != nil {
			return fmt.Errorf("failed closing the gzip writer: %w", err)
		}
	}
	return nil
}

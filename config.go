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

	"go.elastic.co/apm/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultMaxRequestBytes matches the default value of the Elasticsearch
// http.max_content_length setting.
const DefaultMaxRequestBytes = 100 * 1024 * 1024

// Config holds configuration for Indexer.
type Config struct {
	// Logger holds an optional Logger to use for logging indexing requests.
	//
	// All Elasticsearch errors will be logged at error level, so in cases
	// where the indexer is used for high throughput indexing, is recommended
	// that a rate-limited logger is used.
	//
	// If Logger is nil, logging will be disabled.
	Logger *zap.Logger

	// Tracer holds an optional apm.Tracer to use for tracing bulk requests
	// to Elasticsearch. Each bulk request is traced as a transaction.
	//
	// If Tracer is nil, requests will not be traced.
	Tracer *apm.Tracer

	// TracerProvider holds an optional otel TracerProvider for tracing
	// bulk index calls and the bulk requests they issue. It is only used
	// when Tracer is nil.
	TracerProvider trace.TracerProvider

	// Codec encodes documents into their JSON source.
	//
	// If Codec is nil, JSONCodec will be used.
	Codec Codec

	// MaxRequestBytes holds the maximum uncompressed size of a single bulk
	// request body, in bytes. It should mirror the http.max_content_length
	// setting of the Elasticsearch cluster.
	//
	// If MaxRequestBytes is zero, DefaultMaxRequestBytes will be used.
	MaxRequestBytes int

	// MaxRequests holds the maximum number of bulk requests a single
	// BulkIndex call executes concurrently.
	// Batches waiting for a free request slot are not yet subject to
	// RequestTimeout.
	//
	// If MaxRequests is less than or equal to zero, the default of 1 will be
	// used and bulk requests are sent one after another.
	MaxRequests int

	// RequestTimeout holds the timeout of a single bulk request. A bulk
	// request which times out is reported as failed for all its documents.
	//
	// If RequestTimeout is zero, the default of 1 minute will be used. If it
	// is negative, no timeout will be used.
	RequestTimeout time.Duration

	// TrafficAccounting, if set, is told about the bytes of every bulk
	// request sent.
	TrafficAccounting TrafficAccounting

	// StatusRecorder, if set, is given the document time range of every
	// bulk request sent.
	StatusRecorder ProcessingStatusRecorder

	// MeterProvider holds the OTel MeterProvider to be used to create and
	// record indexer metrics.
	//
	// If unset, the global OTel MeterProvider will be used, if that is unset,
	// no metrics will be recorded.
	MeterProvider metric.MeterProvider

	// MetricAttributes holds any extra attributes to set in the recorded
	// metrics.
	MetricAttributes attribute.Set
}

// DefaultConfig returns a copy of cfg with any zero values set to their
// defaults.
func DefaultConfig(cfg Config) Config {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Codec == nil {
		cfg.Codec = JSONCodec{}
	}
	if cfg.MaxRequestBytes == 0 {
		cfg.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 1
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = time.Minute
	}
	if cfg.TrafficAccounting == nil {
		cfg.TrafficAccounting = noopTrafficAccounting{}
	}
	if cfg.StatusRecorder == nil {
		cfg.StatusRecorder = noopStatusRecorder{}
	}
	return cfg
}

// Validate checks the configuration for errors.
func (cfg Config) Validate() error {
	if cfg.MaxRequestBytes <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxRequestBytes, cfg.MaxRequestBytes)
	}
	return nil
}

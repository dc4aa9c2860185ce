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
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.elastic.co/apm/module/apmzap/v2"
	"go.elastic.co/apm/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Error types reported in FailedDocument.Error.Type when a bulk request
// fails as a whole.
const (
	ErrorTypeRequestFailed   = "bulk_request_failed"
	ErrorTypeRequestRejected = "bulk_request_rejected"
	ErrorTypeTimeout         = "bulk_request_timeout"
)

var errItemCountMismatch = errors.New("bulk response item count mismatch")

// Indexer indexes collections of documents into Elasticsearch, splitting
// them into as many bulk requests as needed to keep every request below
// Config.MaxRequestBytes.
//
// An Indexer holds no per call state and is safe for concurrent use.
type Indexer struct {
	config  Config
	writer  BulkWriter
	metrics metrics

	// tracer is an OTel tracer, and should not be confused with `i.config.Tracer`
	// which is an Elastic APM Tracer.
	tracer trace.Tracer
}

// New returns a new Indexer which sends bulk requests through writer.
func New(writer BulkWriter, cfg Config) (*Indexer, error) {
	if writer == nil {
		return nil, errors.New("writer is nil")
	}
	cfg = DefaultConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ms, err := newMetrics(cfg)
	if err != nil {
		return nil, err
	}
	indexer := &Indexer{
		config:  cfg,
		writer:  writer,
		metrics: ms,
	}
	if cfg.Tracer == nil && cfg.TracerProvider != nil {
		indexer.tracer = cfg.TracerProvider.Tracer("github.com/elastic/go-docbatcher.indexer")
	}
	return indexer, nil
}

// BulkIndex indexes entries, returning the documents which could not be
// indexed in the order they appear in entries.
//
// Failing documents do not fail the call. An error is returned only when
// entries are invalid or cannot be encoded, in which case nothing is sent,
// or when ctx is cancelled. On cancellation no further bulk requests are
// started, requests already in flight run to completion, and the partial
// result is discarded.
func (i *Indexer) BulkIndex(ctx context.Context, entries []Entry) (Result, error) {
	if len(entries) == 0 {
		return Result{}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("bulk index cancelled: %w", err)
	}
	items, err := encodeItems(i.config.Codec, entries)
	if err != nil {
		return Result{}, err
	}
	batches, err := splitBatches(items, i.config.MaxRequestBytes)
	if err != nil {
		return Result{}, err
	}

	logger := i.config.Logger
	attrs := metric.WithAttributeSet(i.config.MetricAttributes)
	i.metrics.docsAdded.Add(context.Background(), int64(len(entries)), attrs)
	i.metrics.batches.Add(context.Background(), int64(len(batches)), attrs)

	var span trace.Span
	if i.otelTracingEnabled() {
		ctx, span = i.tracer.Start(ctx, "docbatcher.bulk_index", trace.WithAttributes(
			attribute.Int("documents", len(entries)),
			attribute.Int("batches", len(batches)),
		))
		defer span.End()
		logger = logger.With(
			zap.String("traceId", span.SpanContext().TraceID().String()),
			zap.String("spanId", span.SpanContext().SpanID().String()),
		)
	}

	for _, b := range batches {
		if len(b.Items) == 1 && b.Size > i.config.MaxRequestBytes {
			i.metrics.oversizedDocuments.Add(context.Background(), 1, attrs)
			logger.Warn("document exceeds maximum bulk request size",
				zap.String("index", b.Items[0].Index),
				zap.String("document_id", b.Items[0].DocumentID),
				zap.Int("size", b.Size),
				zap.Int("max_request_bytes", i.config.MaxRequestBytes),
			)
		}
	}
	logger.Debug("split bulk index request",
		zap.Int("documents", len(entries)),
		zap.Int("batches", len(batches)),
	)

	results := make([]submissionResult, len(batches))
	var g errgroup.Group
	g.SetLimit(i.config.MaxRequests)
	var started int
	for _, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		started++
		// Go blocks until a request slot is free, by which time ctx may
		// be done.
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[batch.Seq] = i.submit(ctx, logger, batch)
			return nil
		})
	}
	cancelErr := g.Wait()
	if started < len(batches) {
		cancelErr = ctx.Err()
	}

	if cancelErr != nil {
		logger.Warn("bulk index cancelled, pending batches skipped", zap.Error(cancelErr))
		if i.otelTracingEnabled() && span.IsRecording() {
			span.RecordError(cancelErr)
			span.SetStatus(codes.Error, "bulk index cancelled")
		}
		return Result{}, fmt.Errorf("bulk index cancelled: %w", cancelErr)
	}

	result := aggregate(results)
	logger.Debug("bulk index completed",
		zap.Int64("docs_indexed", result.Indexed),
		zap.Int("docs_failed", len(result.Failed)),
		zap.Int("batches", result.Batches),
		zap.Int64("bytes", result.Bytes),
	)
	if i.otelTracingEnabled() && span.IsRecording() {
		span.SetAttributes(attribute.Int("failed", len(result.Failed)))
		span.SetStatus(codes.Ok, "")
	}
	return result, nil
}

// submit sends batch as one bulk request and reports the documents which
// were not indexed. It never returns early on caller cancellation.
func (i *Indexer) submit(ctx context.Context, logger *zap.Logger, batch *Batch) submissionResult {
	n := len(batch.Items)
	result := submissionResult{bytes: int64(batch.Size)}
	caller, traced := callerTraceFrom(ctx)
	ctx = context.WithoutCancel(ctx)

	var tx *apm.Transaction
	var span trace.Span
	if i.config.Tracer != nil {
		var opts apm.TransactionOptions
		if traced {
			opts.Links = []apm.SpanLink{caller.apmLink()}
		}
		tx = i.config.Tracer.StartTransactionOptions("docbatcher.submit", "output", opts)
		defer tx.End()
		ctx = apm.ContextWithTransaction(ctx, tx)
		tx.Context.SetLabel("documents", n)
		logger = logger.With(apmzap.TraceContext(ctx)...)
	} else if i.otelTracingEnabled() {
		opts := []trace.SpanStartOption{trace.WithAttributes(
			attribute.Int("documents", n),
			attribute.Int("batch", batch.Seq),
			attribute.Int("bytes", batch.Size),
		)}
		if caller, ok := apmCallerTrace(ctx); ok {
			opts = append(opts, trace.WithLinks(caller.otelLink()))
		}
		ctx, span = i.tracer.Start(ctx, "docbatcher.submit", opts...)
		defer span.End()
		logger = logger.With(
			zap.String("traceId", span.SpanContext().TraceID().String()),
			zap.String("spanId", span.SpanContext().SpanID().String()),
		)
	}

	if i.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.config.RequestTimeout)
		defer cancel()
	}

	var resp []ItemResult
	var err error
	took := timeFunc(func() {
		resp, err = i.writer.WriteBulk(ctx, batch)
	})
	if err == nil && len(resp) != n {
		err = fmt.Errorf("%w: sent %d, got %d", errItemCountMismatch, n, len(resp))
	}

	// The bytes were sent and the time range represented whatever the
	// outcome of the request.
	i.config.TrafficAccounting.RecordBytes(int64(batch.Size))
	i.config.StatusRecorder.UpdateWatermark(batch.TimeRange())

	attrs := metric.WithAttributeSet(i.config.MetricAttributes)
	i.metrics.bulkRequests.Add(context.Background(), 1, attrs)
	i.metrics.bytesTotal.Add(context.Background(), int64(batch.Size), attrs)
	i.metrics.flushDuration.Record(context.Background(), took.Seconds(), attrs)

	if err != nil {
		logger.Error("bulk indexing request failed",
			zap.Error(err),
			zap.Int("batch", batch.Seq),
			zap.Int("documents", n),
		)
		if tx != nil {
			tx.Outcome = "failure"
		}
		if span != nil && span.IsRecording() {
			span.RecordError(err)
			span.SetStatus(codes.Error, "bulk indexing request failed")
		}
		result.failed = i.failBatch(batch, err)
		return result
	}
	if tx != nil {
		tx.Outcome = "success"
	}

	var tooManyRequests, clientFailed, serverFailed int64
	type failureKey struct {
		index   string
		errType string
		reason  string
	}
	var failedCount map[failureKey]int
	for pos, item := range resp {
		if !item.Failed() {
			result.indexed++
			continue
		}
		switch {
		case item.Status == http.StatusTooManyRequests:
			tooManyRequests++
		case item.Status >= 500:
			serverFailed++
		default:
			clientFailed++
		}
		sent := batch.Items[pos]
		result.failed = append(result.failed, FailedDocument{
			Index:      sent.Index,
			DocumentID: sent.DocumentID,
			Status:     item.Status,
			Error:      item.Error,
		})
		if failedCount == nil {
			failedCount = make(map[failureKey]int)
		}
		failedCount[failureKey{sent.Index, item.Error.Type, item.Error.Reason}]++
		if span != nil && span.IsRecording() {
			e := errors.New(item.Error.Reason)
			span.RecordError(e)
			span.SetStatus(codes.Error, e.Error())
		}
	}
	for key, count := range failedCount {
		logger.Error(fmt.Sprintf("failed to index documents in '%s' (%s): %s",
			key.index, key.errType, key.reason,
		), zap.Int("documents", count))
	}

	i.addDocs(result.indexed, "Success")
	i.addDocs(tooManyRequests, "TooMany")
	i.addDocs(clientFailed, "FailedClient")
	i.addDocs(serverFailed, "FailedServer")
	logger.Debug(
		"bulk request completed",
		zap.Int("batch", batch.Seq),
		zap.Int64("docs_indexed", result.indexed),
		zap.Int("docs_failed", len(result.failed)),
		zap.Int64("docs_rate_limited", tooManyRequests),
	)
	if span != nil && span.IsRecording() && len(result.failed) == 0 {
		span.SetStatus(codes.Ok, "")
	}
	return result
}

// failBatch reports every document in batch as failed because of err.
func (i *Indexer) failBatch(batch *Batch, err error) []FailedDocument {
	n := int64(len(batch.Items))
	itemErr := ItemError{Type: ErrorTypeRequestFailed, Reason: err.Error()}
	var status int
	var errFailed ErrorFlushFailed
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		itemErr.Type = ErrorTypeTimeout
		i.addDocs(n, "Timeout")
	case errors.As(err, &errFailed):
		itemErr.Type = ErrorTypeRequestRejected
		status = errFailed.statusCode
		var label string
		switch {
		case errFailed.tooMany:
			label = "TooMany"
		case errFailed.serverError:
			label = "FailedServer"
		default:
			label = "FailedClient"
		}
		i.metrics.docsIndexed.Add(
			context.Background(),
			n,
			metric.WithAttributes(
				attribute.String("status", label),
				semconv.HTTPResponseStatusCode(status),
			),
			metric.WithAttributeSet(i.config.MetricAttributes),
		)
	default:
		i.addDocs(n, "FailedRequest")
	}

	failed := make([]FailedDocument, len(batch.Items))
	for j, item := range batch.Items {
		failed[j] = FailedDocument{
			Index:      item.Index,
			DocumentID: item.DocumentID,
			Status:     status,
			Error:      itemErr,
		}
	}
	return failed
}

func (i *Indexer) addDocs(n int64, status string) {
	if n <= 0 {
		return
	}
	i.metrics.docsIndexed.Add(
		context.Background(),
		n,
		metric.WithAttributes(attribute.String("status", status)),
		metric.WithAttributeSet(i.config.MetricAttributes),
	)
}

// otelTracingEnabled checks whether we should be doing tracing
// using otel tracer.
func (i *Indexer) otelTracingEnabled() bool {
	return i.tracer != nil
}

func timeFunc(f func()) time.Duration {
	t0 := time.Now()
	if f != nil {
		f()
	}
	return time.Since(t0)
}

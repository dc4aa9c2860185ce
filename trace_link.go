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

	"go.elastic.co/apm/v2"
	"go.opentelemetry.io/otel/trace"
)

// callerTrace identifies the span of a BulkIndex caller.
//
// With Elastic APM every bulk request is traced as a transaction of its
// own, which links back to the caller rather than being its child. With
// OTel the submit spans are children of the bulk_index span, and only link
// to a caller traced by Elastic APM.
type callerTrace struct {
	traceID [16]byte
	spanID  [8]byte
}

func (c callerTrace) apmLink() apm.SpanLink {
	return apm.SpanLink{Trace: c.traceID, Span: c.spanID}
}

func (c callerTrace) otelLink() trace.Link {
	return trace.Link{SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: c.traceID,
		SpanID:  c.spanID,
	})}
}

// callerTraceFrom returns the caller's Elastic APM transaction, or failing
// that its OTel span.
func callerTraceFrom(ctx context.Context) (callerTrace, bool) {
	if c, ok := apmCallerTrace(ctx); ok {
		return c, true
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() || !sc.HasSpanID() {
		return callerTrace{}, false
	}
	return callerTrace{traceID: sc.TraceID(), spanID: sc.SpanID()}, true
}

func apmCallerTrace(ctx context.Context) (callerTrace, bool) {
	tx := apm.TransactionFromContext(ctx)
	if tx == nil {
		return callerTrace{}, false
	}
	tc := tx.TraceContext()
	if tc.Trace.Validate() != nil {
		return callerTrace{}, false
	}
	return callerTrace{traceID: tc.Trace, spanID: tc.Span}, true
}

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
	"sync"
	"sync/atomic"
)

// encoderPool recycles bulkEncoder instances between bulk requests.
//
// The pool never blocks: the number of encoders in use is bounded by the
// caller's request concurrency, so a request handed to the writer is
// encoded and sent straight away.
type encoderPool struct {
	pool   sync.Pool
	leased atomic.Int64
}

func newEncoderPool(compressionLevel int) *encoderPool {
	p := &encoderPool{}
	p.pool.New = func() any {
		return newBulkEncoder(compressionLevel)
	}
	return p
}

// Get leases an encoder, creating one if none is idle.
func (p *encoderPool) Get() *bulkEncoder {
	p.leased.Add(1)
	return p.pool.Get().(*bulkEncoder)
}

// Put returns the encoder to the pool. No references to enc should be kept
// after calling Put.
func (p *encoderPool) Put(enc *bulkEncoder) {
	if enc == nil {
		return
	}
	enc.reset()
	p.leased.Add(-1)
	p.pool.Put(enc)
}

// Leased returns the number of encoders currently in use.
func (p *encoderPool) Leased() int64 {
	return p.leased.Load()
}

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

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-docbatcher"
)

// generateEntries creates the documents described by cfg. Document IDs are
// unique across the regular and the uneven group.
func generateEntries(cfg loadConfig, now time.Time) []docbatcher.Entry {
	entries := make([]docbatcher.Entry, 0, cfg.Count+cfg.UnevenCount)
	entries = appendMessages(entries, cfg.Index, "doc", cfg.Size, cfg.Count, now)
	return appendMessages(entries, cfg.Index, "uneven", cfg.UnevenSize, cfg.UnevenCount, now)
}

func appendMessages(entries []docbatcher.Entry, index, prefix string, size, count int, now time.Time) []docbatcher.Entry {
	message := strings.Repeat("A", size)
	for i := 0; i < count; i++ {
		entries = append(entries, docbatcher.Entry{
			Index: index,
			Document: docbatcher.Document{
				ID:        fmt.Sprintf("%s-%d", prefix, i),
				Timestamp: now,
				Fields: map[string]any{
					"message": message,
					"source":  "docbatcher",
				},
			},
		})
	}
	return entries
}

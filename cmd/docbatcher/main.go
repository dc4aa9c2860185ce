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

// Command docbatcher generates documents of configurable size and bulk
// indexes them into Elasticsearch, reporting how the request was split.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmelasticsearch/v2"
	"go.elastic.co/apm/v2"
	"go.uber.org/zap"

	"github.com/elastic/go-docbatcher"
	"github.com/elastic/go-elasticsearch/v8"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
		trace      bool
		overrides  config
	)
	cmd := &cobra.Command{
		Use:   "docbatcher",
		Short: "Bulk index generated documents into Elasticsearch",
		Long: `docbatcher generates documents of a configurable size and indexes
them with a single bulk index call, which is split into as many bulk
requests as needed to stay below the maximum request size.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, &cfg, overrides)
			if err := cfg.validate(); err != nil {
				return err
			}
			logger, err := newLogger(debug)
			if err != nil {
				return err
			}
			defer logger.Sync()

			var tracer *apm.Tracer
			if trace {
				tracer = apm.DefaultTracer()
				defer tracer.Flush(nil)
			}
			return run(cmd, cfg, logger, tracer)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&trace, "trace", false, "Trace bulk requests with the Elastic APM agent")
	flags.StringSliceVar(&overrides.Elasticsearch.Addresses, "addresses", nil, "Elasticsearch addresses")
	flags.IntVar(&overrides.Indexer.MaxRequestBytes, "max-request-bytes", 0, "Maximum uncompressed bulk request size in bytes")
	flags.IntVar(&overrides.Indexer.MaxRequests, "max-requests", 0, "Maximum number of concurrent bulk requests")
	flags.StringVar(&overrides.Load.Index, "index", "", "Target index")
	flags.IntVar(&overrides.Load.Count, "count", 0, "Number of documents to generate")
	flags.IntVar(&overrides.Load.Size, "size", 0, "Message size of generated documents in bytes")
	flags.IntVar(&overrides.Load.UnevenCount, "uneven-count", 0, "Number of additional documents of --uneven-size")
	flags.IntVar(&overrides.Load.UnevenSize, "uneven-size", 0, "Message size of the additional documents in bytes")
	return cmd
}

// applyFlags copies the flags set on the command line over cfg.
func applyFlags(cmd *cobra.Command, cfg *config, overrides config) {
	flags := cmd.Flags()
	if flags.Changed("addresses") {
		cfg.Elasticsearch.Addresses = overrides.Elasticsearch.Addresses
	}
	if flags.Changed("max-request-bytes") {
		cfg.Indexer.MaxRequestBytes = overrides.Indexer.MaxRequestBytes
	}
	if flags.Changed("max-requests") {
		cfg.Indexer.MaxRequests = overrides.Indexer.MaxRequests
	}
	if flags.Changed("index") {
		cfg.Load.Index = overrides.Load.Index
	}
	if flags.Changed("count") {
		cfg.Load.Count = overrides.Load.Count
	}
	if flags.Changed("size") {
		cfg.Load.Size = overrides.Load.Size
	}
	if flags.Changed("uneven-count") {
		cfg.Load.UnevenCount = overrides.Load.UnevenCount
	}
	if flags.Changed("uneven-size") {
		cfg.Load.UnevenSize = overrides.Load.UnevenSize
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cmd *cobra.Command, cfg config, logger *zap.Logger, tracer *apm.Tracer) error {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
		APIKey:    cfg.Elasticsearch.APIKey,
		Transport: apmelasticsearch.WrapRoundTripper(http.DefaultTransport),
	})
	if err != nil {
		return fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}
	writer, err := docbatcher.NewElasticsearchWriter(docbatcher.ElasticsearchWriterConfig{
		Client:           client,
		CompressionLevel: cfg.Elasticsearch.CompressionLevel,
		Pipeline:         cfg.Elasticsearch.Pipeline,
		Refresh:          cfg.Elasticsearch.Refresh,
	})
	if err != nil {
		return err
	}
	var traffic docbatcher.TrafficCounter
	var watermark docbatcher.Watermark
	indexer, err := docbatcher.New(writer, docbatcher.Config{
		Logger:            logger,
		Tracer:            tracer,
		MaxRequestBytes:   cfg.Indexer.MaxRequestBytes,
		MaxRequests:       cfg.Indexer.MaxRequests,
		RequestTimeout:    cfg.Indexer.RequestTimeout,
		TrafficAccounting: &traffic,
		StatusRecorder:    &watermark,
	})
	if err != nil {
		return err
	}

	entries := generateEntries(cfg.Load, time.Now())
	logger.Info("indexing generated documents",
		zap.String("index", cfg.Load.Index),
		zap.Int("documents", len(entries)),
	)
	start := time.Now()
	result, err := indexer.BulkIndex(cmd.Context(), entries)
	if err != nil {
		return err
	}
	printResult(cmd, result, time.Since(start), watermark.Time())
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d documents failed", len(result.Failed))
	}
	return nil
}

func printResult(cmd *cobra.Command, result docbatcher.Result, took time.Duration, watermark time.Time) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "indexed:   %d\n", result.Indexed)
	fmt.Fprintf(out, "failed:    %d\n", len(result.Failed))
	fmt.Fprintf(out, "requests:  %d\n", result.Batches)
	fmt.Fprintf(out, "bytes:     %d\n", result.Bytes)
	fmt.Fprintf(out, "took:      %s\n", took.Round(time.Millisecond))
	if !watermark.IsZero() {
		fmt.Fprintf(out, "watermark: %s\n", watermark.Format(docbatcher.TimestampFormat))
	}
	const maxListed = 10
	for i, doc := range result.Failed {
		if i == maxListed {
			fmt.Fprintf(out, "  ... and %d more\n", len(result.Failed)-maxListed)
			break
		}
		fmt.Fprintf(out, "  %s/%s: %d %s\n", doc.Index, doc.DocumentID, doc.Status,
			strings.TrimSpace(doc.Error.Type+" "+doc.Error.Reason))
	}
}

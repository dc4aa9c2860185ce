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
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/elastic/go-docbatcher"
)

// config is the configuration file layout of the docbatcher command.
type config struct {
	Elasticsearch elasticsearchConfig `yaml:"elasticsearch"`
	Indexer       indexerConfig       `yaml:"indexer"`
	Load          loadConfig          `yaml:"load"`
}

type elasticsearchConfig struct {
	Addresses        []string `yaml:"addresses"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	APIKey           string   `yaml:"api_key"`
	CompressionLevel int      `yaml:"compression_level"`
	Pipeline         string   `yaml:"pipeline"`
	Refresh          string   `yaml:"refresh"`
}

type indexerConfig struct {
	MaxRequestBytes int           `yaml:"max_request_bytes"`
	MaxRequests     int           `yaml:"max_requests"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// loadConfig describes the generated documents. Count documents with a
// message of Size bytes are followed by UnevenCount documents of UnevenSize
// bytes.
type loadConfig struct {
	Index       string `yaml:"index"`
	Count       int    `yaml:"count"`
	Size        int    `yaml:"size"`
	UnevenCount int    `yaml:"uneven_count"`
	UnevenSize  int    `yaml:"uneven_size"`
}

func defaultConfig() config {
	return config{
		Elasticsearch: elasticsearchConfig{
			Addresses: []string{"http://localhost:9200"},
		},
		Indexer: indexerConfig{
			MaxRequestBytes: docbatcher.DefaultMaxRequestBytes,
			MaxRequests:     1,
			RequestTimeout:  time.Minute,
		},
		Load: loadConfig{
			Index: "docbatcher-load",
			Count: 303,
			Size:  1024 * 1024,
		},
	}
}

// readConfig reads the YAML file at path over the defaults. An empty path
// returns the defaults.
func readConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg config) validate() error {
	var errs []error
	if len(cfg.Elasticsearch.Addresses) == 0 {
		errs = append(errs, errors.New("elasticsearch.addresses must not be empty"))
	}
	if cfg.Load.Index == "" {
		errs = append(errs, errors.New("load.index must not be empty"))
	}
	if cfg.Load.Count < 0 || cfg.Load.UnevenCount < 0 {
		errs = append(errs, errors.New("load counts must not be negative"))
	}
	if cfg.Load.Size < 0 || cfg.Load.UnevenSize < 0 {
		errs = append(errs, errors.New("load sizes must not be negative"))
	}
	return errors.Join(errs...)
}

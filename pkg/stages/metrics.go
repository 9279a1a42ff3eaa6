// Copyright (c) 2025, the cloudseed authors.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stages

import (
	"bytes"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/cloudseed/cloudseed/pkg/state"
)

var (
	// Boot stage metrics
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudseed_stage_duration_seconds",
			Help:    "Time taken by each boot stage",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"}, // init-local, init, modules-config, modules-final
	)

	moduleRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudseed_module_runs_total",
			Help: "Module executions by outcome",
		},
		[]string{"module", "result"}, // success, error, skipped
	)

	datasourceSelected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudseed_datasource_selected_total",
			Help: "Datasource selections by probe outcome",
		},
		[]string{"datasource"},
	)
)

// Module run result labels.
const (
	resultSuccess = "success"
	resultError   = "error"
	resultSkipped = "skipped"
)

// FlushMetrics writes the process's metrics to a node-exporter textfile
// so boot-time counters survive the short-lived stage processes. Written
// atomically; a scrape never sees a partial file.
func FlushMetrics(path string) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}

	return state.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

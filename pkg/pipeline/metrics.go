// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsPipeline holds Prometheus metrics for stages and pools.
type metricsPipeline struct {
	once sync.Once

	// Stages
	stageSkipped   *prometheus.CounterVec
	stageCompleted *prometheus.CounterVec
	stageFatal     *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec

	// Pool
	itemsOK     *prometheus.CounterVec
	itemsFailed *prometheus.CounterVec
	inFlight    *prometheus.GaugeVec
	itemSeconds *prometheus.HistogramVec
}

var pipeMetrics metricsPipeline

func (m *metricsPipeline) init() {
	m.once.Do(func() {
		m.stageSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cratescan_stage_skipped_total", Help: "Stages skipped because a checkpoint was present"}, []string{"stage"})
		m.stageCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cratescan_stage_completed_total", Help: "Stages run to completion"}, []string{"stage"})
		m.stageFatal = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cratescan_stage_fatal_total", Help: "Stages aborted by a fatal error"}, []string{"stage"})
		m.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cratescan_stage_seconds",
			Help:    "Stage duration",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"stage"})

		m.itemsOK = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cratescan_pool_items_ok_total", Help: "Items whose task succeeded"}, []string{"pool"})
		m.itemsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cratescan_pool_items_failed_total", Help: "Items whose task failed"}, []string{"pool"})
		m.inFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "cratescan_pool_in_flight", Help: "Tasks currently holding a slot"}, []string{"pool"})
		m.itemSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cratescan_pool_item_seconds",
			Help:    "Per-item task duration",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"pool"})

		prometheus.MustRegister(
			m.stageSkipped, m.stageCompleted, m.stageFatal, m.stageDuration,
			m.itemsOK, m.itemsFailed, m.inFlight, m.itemSeconds,
		)
	})
}

func recordStageSkipped(stage string) {
	pipeMetrics.init()
	pipeMetrics.stageSkipped.WithLabelValues(stage).Inc()
}

func recordStageCompleted(stage string, seconds float64) {
	pipeMetrics.init()
	pipeMetrics.stageCompleted.WithLabelValues(stage).Inc()
	pipeMetrics.stageDuration.WithLabelValues(stage).Observe(seconds)
}

func recordStageFatal(stage string) {
	pipeMetrics.init()
	pipeMetrics.stageFatal.WithLabelValues(stage).Inc()
}

func recordItem(pool string, failed bool, seconds float64) {
	pipeMetrics.init()
	if failed {
		pipeMetrics.itemsFailed.WithLabelValues(pool).Inc()
	} else {
		pipeMetrics.itemsOK.WithLabelValues(pool).Inc()
	}
	pipeMetrics.itemSeconds.WithLabelValues(pool).Observe(seconds)
}

func trackInFlight(pool string, delta float64) {
	pipeMetrics.init()
	pipeMetrics.inFlight.WithLabelValues(pool).Add(delta)
}

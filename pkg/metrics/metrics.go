/*
Copyright 2025 Mirantis IT.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "dspace"
)

var (
	Registry = prometheus.NewRegistry()

	reconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_total",
		Help:      "Total number of reconciler runs by result.",
	}, []string{"reconciler", "result"})

	reconcileDuration = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:  namespace,
		Name:       "reconcile_duration_seconds",
		Help:       "How long in seconds reconciler run takes.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"reconciler"})

	taskflowTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "taskflow_total",
		Help:      "Total number of finished taskflows by status.",
	}, []string{"name", "status"})

	rpcCallDuration = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:  namespace,
		Name:       "rpc_call_duration_seconds",
		Help:       "How long in seconds rpc call takes.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"service", "method"})

	alertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_total",
		Help:      "Total number of emitted alerts.",
	}, []string{"level", "category"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		reconcileTotal,
		reconcileDuration,
		taskflowTotal,
		rpcCallDuration,
		alertsTotal,
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func ReconcileFinished(reconciler, result string, since time.Time) {
	reconcileTotal.WithLabelValues(reconciler, result).Inc()
	reconcileDuration.WithLabelValues(reconciler).Observe(time.Since(since).Seconds())
}

func TaskflowFinished(name, status string) {
	taskflowTotal.WithLabelValues(name, status).Inc()
}

func RPCCallFinished(service, method string, since time.Time) {
	rpcCallDuration.WithLabelValues(service, method).Observe(time.Since(since).Seconds())
}

func AlertEmitted(level, category string) {
	alertsTotal.WithLabelValues(level, category).Inc()
}

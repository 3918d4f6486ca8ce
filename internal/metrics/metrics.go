// Copyright 2025 Google LLC
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

// Package metrics registers the Prometheus gauges/counters SPEC_FULL.md's
// DOMAIN STACK assigns to kernel-core observability: buffer-cache
// hit/miss/eviction counts, frame-table evictions, scheduler context
// switches, and per-syscall-number call counts. It intentionally has no
// dependency on internal/cache, internal/vm, internal/sched, or
// internal/syscall themselves — those packages stay free of a hard
// Prometheus dependency (mirroring the teacher's separation between `fs`
// and its own metrics wiring), and this package is handed small polling
// closures at Register time instead.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry owns one Prometheus registry for the whole kernel-core process,
// following the teacher's pattern of a single process-wide metrics handle
// passed to every subsystem that wants to report (spec.md §9's "no hidden
// statics": the registry is an explicit value, not a package-level global).
type Registry struct {
	reg *prometheus.Registry

	cacheHits      prometheus.GaugeFunc
	cacheMisses    prometheus.GaugeFunc
	cacheEvictions prometheus.GaugeFunc

	frameEvictions prometheus.GaugeFunc
	contextSwitches prometheus.GaugeFunc

	syscallCount *prometheus.CounterVec
}

// NewRegistry builds an empty Prometheus registry with the Go runtime and
// process collectors attached, mirroring the standard promauto.With(reg)
// idiom used wherever client_golang appears in the wild (the teacher's own
// otel-based metrics package does not use this library, so this is named,
// not directly grounded, per DESIGN.md).
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return &Registry{
		reg: reg,
		syscallCount: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "kerncore",
			Subsystem: "syscall",
			Name:      "calls_total",
			Help:      "Number of times each numbered syscall has been dispatched.",
		}, []string{"syscall"}),
	}
}

// RegisterCache wires a cache's hit/miss/eviction counters as GaugeFuncs
// polled on every /metrics scrape. hits/misses/evictions are bound to a
// single Cache.Metrics() call site by the caller (cmd's boot sequence) so
// this package never needs to import internal/cache's Metrics struct type,
// keeping it agnostic to which cache (filesystem vs. a future second
// instance) is reporting under name.
func (r *Registry) RegisterCache(name string, hits, misses, evictions func() uint64) {
	r.cacheHits = promauto.With(r.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "kerncore", Subsystem: "cache", Name: name + "_hits",
		Help: "Buffer-cache hits observed so far.",
	}, func() float64 { return float64(hits()) })
	r.cacheMisses = promauto.With(r.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "kerncore", Subsystem: "cache", Name: name + "_misses",
		Help: "Buffer-cache misses observed so far.",
	}, func() float64 { return float64(misses()) })
	r.cacheEvictions = promauto.With(r.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "kerncore", Subsystem: "cache", Name: name + "_evictions",
		Help: "Buffer-cache clock-algorithm evictions performed so far.",
	}, func() float64 { return float64(evictions()) })
}

// RegisterFrameTable wires the VM frame table's eviction counter.
func (r *Registry) RegisterFrameTable(evictions func() uint64) {
	r.frameEvictions = promauto.With(r.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "kerncore", Subsystem: "vm", Name: "frame_evictions",
		Help: "Second-chance frame evictions performed so far.",
	}, func() float64 { return float64(evictions()) })
}

// RegisterScheduler wires the scheduler's context-switch counter.
func (r *Registry) RegisterScheduler(contextSwitches func() uint64) {
	r.contextSwitches = promauto.With(r.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "kerncore", Subsystem: "sched", Name: "context_switches",
		Help: "Number of times the scheduler has handed the CPU to a different thread.",
	}, func() float64 { return float64(contextSwitches()) })
}

// ObserveSyscall increments the per-number syscall counter; cmd's runner
// calls this from its wrapper around internal/syscall's Dispatch, so this
// package does not depend on internal/syscall's types.
func (r *Registry) ObserveSyscall(name string) {
	r.syscallCount.WithLabelValues(name).Inc()
}

// Gatherer exposes the underlying registry for promhttp.HandlerFor, kept as
// the prometheus.Gatherer interface so callers (cmd's /metrics server)
// don't need to import this package's concrete Registry type.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

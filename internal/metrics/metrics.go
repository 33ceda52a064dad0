package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session Metrics
	SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuzzyhsa_sessions_created_total",
		Help: "The total number of sessions brought up, by runtime backend",
	}, []string{"backend"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fuzzyhsa_sessions_active",
		Help: "Sessions created and not yet closed",
	})

	SessionSetupFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuzzyhsa_session_setup_failures_total",
		Help: "Session setups that failed, by failing runtime operation",
	}, []string{"op"})

	Allocations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fuzzyhsa_allocations_total",
		Help: "The total number of device buffers allocated",
	})

	AllocatedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fuzzyhsa_allocated_bytes",
		Help: "Device memory currently held by open sessions in bytes",
	})

	// Loader Metrics
	LoaderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fuzzyhsa_loader_duration_ms",
		Help:    "Duration of loading a code object up to symbol resolution in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 15), // 0.1ms to ~1.6s
	})

	LoaderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuzzyhsa_loader_failures_total",
		Help: "Code object loads that failed, by pipeline step",
	}, []string{"step"})

	// Kernel Compilation Metrics
	Compilations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuzzyhsa_kernel_compilations_total",
		Help: "Kernel compilations by kernel, compiler and result",
	}, []string{"kernel", "compiler", "result"})
)

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSessionMetrics(t *testing.T) {
	t.Run("SessionsCreated", func(t *testing.T) {
		before := testutil.ToFloat64(SessionsCreated.WithLabelValues("sim"))
		SessionsCreated.WithLabelValues("sim").Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(SessionsCreated.WithLabelValues("sim")))
	})

	t.Run("SessionsActive", func(t *testing.T) {
		SessionsActive.Set(3)
		assert.Equal(t, float64(3), testutil.ToFloat64(SessionsActive))
		SessionsActive.Set(0)
	})

	t.Run("AllocatedBytes", func(t *testing.T) {
		AllocatedBytes.Add(4096)
		AllocatedBytes.Sub(4096)
		assert.Equal(t, float64(0), testutil.ToFloat64(AllocatedBytes))
	})

	t.Run("SessionSetupFailures", func(t *testing.T) {
		before := testutil.ToFloat64(SessionSetupFailures.WithLabelValues("hsa_queue_create"))
		SessionSetupFailures.WithLabelValues("hsa_queue_create").Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(SessionSetupFailures.WithLabelValues("hsa_queue_create")))
	})
}

func TestLoaderMetrics(t *testing.T) {
	t.Run("LoaderDuration", func(t *testing.T) {
		// Histograms cannot be read back with ToFloat64
		assert.NotPanics(t, func() {
			LoaderDuration.Observe(1.5)
		})
	})

	t.Run("LoaderFailures", func(t *testing.T) {
		before := testutil.ToFloat64(LoaderFailures.WithLabelValues("freeze"))
		LoaderFailures.WithLabelValues("freeze").Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(LoaderFailures.WithLabelValues("freeze")))
	})
}

func TestMetricsRegistration(t *testing.T) {
	metrics := []prometheus.Collector{
		SessionsCreated,
		SessionsActive,
		SessionSetupFailures,
		Allocations,
		AllocatedBytes,
		LoaderDuration,
		LoaderFailures,
		Compilations,
	}

	for _, metric := range metrics {
		// Already registered by promauto, so registering again must fail
		err := prometheus.Register(metric)
		var already prometheus.AlreadyRegisteredError
		assert.ErrorAs(t, err, &already)
	}
}

func BenchmarkMetricsObservation(b *testing.B) {
	b.Run("ObserveDuration", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			LoaderDuration.Observe(float64(i % 1000))
		}
	})

	b.Run("IncCounter", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			Compilations.WithLabelValues("vector_add", "manifest", "ok").Inc()
		}
	})
}

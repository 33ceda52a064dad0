package diag

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReporter(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		var buf bytes.Buffer
		r := New(&buf, true)
		r.GPUDevice("gfx1100")
		r.GlobalPoolSize(16 << 30)
		r.GroupSegmentSize(256)
		r.KernargSegmentAlignment(8)

		assert.Equal(t, "Found GPU device: gfx1100\n"+
			"Found Global Memory Pool Size: 16 GiB\n"+
			"Group segment size: 256 bytes\n"+
			"Kernel argument segment alignment: 8 bytes\n", buf.String())
	})

	t.Run("disabled", func(t *testing.T) {
		var buf bytes.Buffer
		r := New(&buf, false)
		r.GPUDevice("gfx1100")
		r.KernelObject(42)
		assert.Empty(t, buf.String())
	})

	t.Run("nil reporter", func(t *testing.T) {
		var r *Reporter
		assert.False(t, r.Enabled())
		assert.NotPanics(t, func() { r.GPUDevice("gfx1100") })
	})
}

func TestFromEnv(t *testing.T) {
	testCases := []struct {
		value    string
		expected bool
	}{
		{"1", true},
		{"yes", false},
		{"01", false},
		{"", false},
	}
	for _, tc := range testCases {
		t.Run("DEBUG="+tc.value, func(t *testing.T) {
			t.Setenv(Env, tc.value)
			assert.Equal(t, tc.expected, FromEnv().Enabled())
		})
	}
}

package locator

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/fxnlabs/fuzzyhsa/internal/diag"
	"github.com/fxnlabs/fuzzyhsa/internal/hsa"
	"github.com/fxnlabs/fuzzyhsa/internal/hsa/hsasim"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iterateInts(n int) func(func(int) bool) error {
	return func(visit func(int) bool) error {
		for i := 0; i < n; i++ {
			if !visit(i) {
				break
			}
		}
		return nil
	}
}

func TestFirst(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		visits := 0
		v, ok, err := First(iterateInts(10), func(i int) Result[int] {
			visits++
			if i == 3 {
				return Found(i * 10)
			}
			return Continue[int]()
		})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 30, v)
		assert.Equal(t, 4, visits)
	})

	t.Run("exhausted", func(t *testing.T) {
		_, ok, err := First(iterateInts(5), func(int) Result[int] { return Continue[int]() })
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("fail stops", func(t *testing.T) {
		boom := errors.New("boom")
		visits := 0
		_, ok, err := First(iterateInts(5), func(int) Result[int] {
			visits++
			return Fail[int](boom)
		})
		assert.ErrorIs(t, err, boom)
		assert.False(t, ok)
		assert.Equal(t, 1, visits)
	})

	t.Run("iteration error", func(t *testing.T) {
		boom := errors.New("boom")
		_, _, err := First(func(func(int) bool) error { return boom }, func(int) Result[int] { return Continue[int]() })
		assert.ErrorIs(t, err, boom)
	})
}

func cpu(name string) hsasim.DeviceSpec {
	return hsasim.DeviceSpec{
		Name:  name,
		Type:  hsa.DeviceTypeCPU,
		Pools: []hsasim.PoolSpec{{Segment: hsa.SegmentGlobal, Size: 1 << 30}},
	}
}

func initialized(t *testing.T, opts ...hsasim.Option) *hsasim.Runtime {
	t.Helper()
	rt := hsasim.New(opts...)
	require.NoError(t, rt.Init())
	t.Cleanup(func() { _ = rt.ShutDown() })
	return rt
}

func TestFindAccelerator_EveryPosition(t *testing.T) {
	const agents = 5
	for pos := 0; pos < agents; pos++ {
		t.Run(fmt.Sprintf("gpu at %d", pos), func(t *testing.T) {
			devices := make([]hsasim.DeviceSpec, agents)
			for i := range devices {
				devices[i] = cpu(fmt.Sprintf("cpu%d", i))
			}
			devices[pos] = hsasim.DeviceSpec{Name: "gfx90a", Type: hsa.DeviceTypeGPU}
			rt := initialized(t, hsasim.WithDevices(devices...))

			agent, err := FindAccelerator(rt, nil)
			require.NoError(t, err)
			name, err := rt.AgentName(agent)
			require.NoError(t, err)
			assert.Equal(t, "gfx90a", name)
			assert.Equal(t, pos+1, rt.AgentVisits(), "iteration must stop at the match")
		})
	}
}

func TestFindAccelerator_NoGPU(t *testing.T) {
	rt := initialized(t, hsasim.WithDevices(cpu("a"), cpu("b")))

	_, err := FindAccelerator(rt, nil)
	require.Error(t, err)
	assert.True(t, hsa.IsFatal(err))
	assert.Contains(t, err.Error(), "no GPU agent found")
	assert.Equal(t, 2, rt.AgentVisits())
}

func TestFindAccelerator_SkipsFailedQueries(t *testing.T) {
	rt := initialized(t, hsasim.FailOn("hsa_agent_get_info(HSA_AGENT_INFO_DEVICE)", hsa.StatusErrorInvalidAgent))

	_, err := FindAccelerator(rt, nil)
	assert.Contains(t, err.Error(), "no GPU agent found")
}

func TestFindAccelerator_IterationFailure(t *testing.T) {
	rt := initialized(t, hsasim.FailOn("hsa_iterate_agents", hsa.StatusErrorOutOfResources))

	_, err := FindAccelerator(rt, nil)
	assert.True(t, hsa.IsFatal(err))
	assert.Equal(t, hsa.StatusErrorOutOfResources, hsa.StatusOf(err))
}

func TestFindAccelerator_Reports(t *testing.T) {
	rt := initialized(t)

	var buf bytes.Buffer
	_, err := FindAccelerator(rt, diag.New(&buf, true))
	require.NoError(t, err)
	assert.Equal(t, "Found GPU device: gfx1100\n", buf.String())
}

func TestFindGlobalPool_EveryPosition(t *testing.T) {
	const pools = 4
	for pos := 0; pos < pools; pos++ {
		t.Run(fmt.Sprintf("global at %d", pos), func(t *testing.T) {
			specs := make([]hsasim.PoolSpec, pools)
			for i := range specs {
				specs[i] = hsasim.PoolSpec{Segment: hsa.SegmentGroup, Size: 64 << 10}
			}
			specs[pos] = hsasim.PoolSpec{Segment: hsa.SegmentGlobal, Size: 8 << 30}
			rt := initialized(t, hsasim.WithDevices(hsasim.DeviceSpec{Name: "gfx90a", Type: hsa.DeviceTypeGPU, Pools: specs}))

			agent, err := FindAccelerator(rt, nil)
			require.NoError(t, err)
			pool, err := FindGlobalPool(rt, agent, nil)
			require.NoError(t, err)

			seg, err := rt.PoolSegment(pool)
			require.NoError(t, err)
			assert.Equal(t, hsa.SegmentGlobal, seg)
			assert.Equal(t, pos+1, rt.PoolVisits(), "iteration must stop at the match")
		})
	}
}

func TestFindGlobalPool_Missing(t *testing.T) {
	rt := initialized(t, hsasim.WithDevices(hsasim.DeviceSpec{
		Name:  "gfx90a",
		Type:  hsa.DeviceTypeGPU,
		Pools: []hsasim.PoolSpec{{Segment: hsa.SegmentGroup, Size: 64 << 10}},
	}))

	agent, err := FindAccelerator(rt, nil)
	require.NoError(t, err)
	_, err = FindGlobalPool(rt, agent, nil)
	require.Error(t, err)
	assert.True(t, hsa.IsFatal(err))
	assert.Contains(t, err.Error(), "no global memory pool found")
}

func TestFindGlobalPool_Reports(t *testing.T) {
	rt := initialized(t)
	agent, err := FindAccelerator(rt, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = FindGlobalPool(rt, agent, diag.New(&buf, true))
	require.NoError(t, err)
	assert.Equal(t, "Found Global Memory Pool Size: 16 GiB\n", buf.String())
}

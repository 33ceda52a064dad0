package hsasim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fxnlabs/fuzzyhsa/internal/codeobject"
	"github.com/fxnlabs/fuzzyhsa/internal/hsa"
	"github.com/fxnlabs/fuzzyhsa/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manifestFile(t *testing.T, target string) *os.File {
	t.Helper()
	data, err := codeobject.EncodeManifest(&codeobject.Object{
		Target: target,
		Kernels: []codeobject.Kernel{
			{Name: "vector_add", KernargSegmentSize: 24, KernargSegmentAlignment: 8, GroupSegmentSize: 256},
		},
	})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "vector_add.hsaco")
	require.NoError(t, os.WriteFile(path, data, 0644))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func gpuAgent(t *testing.T, rt *Runtime) hsa.Agent {
	t.Helper()
	var gpu hsa.Agent
	require.NoError(t, rt.IterateAgents(func(a hsa.Agent) bool {
		dev, err := rt.AgentDevice(a)
		require.NoError(t, err)
		if dev == hsa.DeviceTypeGPU {
			gpu = a
			return false
		}
		return true
	}))
	require.NotZero(t, gpu.Handle)
	return gpu
}

func TestRuntime_RequiresInit(t *testing.T) {
	rt := New()

	err := rt.IterateAgents(func(hsa.Agent) bool { return true })
	assert.Equal(t, hsa.StatusErrorNotInitialized, hsa.StatusOf(err))

	require.NoError(t, rt.Init())
	require.NoError(t, rt.ShutDown())

	err = rt.ShutDown()
	assert.Equal(t, hsa.StatusErrorNotInitialized, hsa.StatusOf(err))
}

func TestRuntime_IterateStopsEarly(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Init())

	seen := 0
	require.NoError(t, rt.IterateAgents(func(hsa.Agent) bool {
		seen++
		return false
	}))
	assert.Equal(t, 1, seen)
	assert.Equal(t, 1, rt.AgentVisits())
}

func TestRuntime_Queue(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Init())
	gpu := gpuAgent(t, rt)

	testCases := []struct {
		name   string
		agent  hsa.Agent
		size   uint32
		status hsa.Status
	}{
		{"default size", gpu, hsa.DefaultQueueSize, hsa.StatusSuccess},
		{"not a power of two", gpu, 100, hsa.StatusErrorInvalidArgument},
		{"zero", gpu, 0, hsa.StatusErrorInvalidArgument},
		{"cpu agent", hsa.Agent{Handle: 1}, hsa.DefaultQueueSize, hsa.StatusErrorInvalidAgent},
		{"unknown agent", hsa.Agent{Handle: 99}, hsa.DefaultQueueSize, hsa.StatusErrorInvalidAgent},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := rt.QueueCreate(tc.agent, tc.size, hsa.QueueTypeMulti)
			if tc.status == hsa.StatusSuccess {
				require.NoError(t, err)
				assert.Equal(t, tc.size, q.Size)
				require.NoError(t, rt.QueueDestroy(q))
				return
			}
			assert.Equal(t, tc.status, hsa.StatusOf(err))
		})
	}
	assert.Zero(t, rt.Outstanding().Queues)
}

func TestRuntime_PoolAllocate(t *testing.T) {
	rt := New(WithDevices(DeviceSpec{
		Name:  "gfx90a",
		Type:  hsa.DeviceTypeGPU,
		Pools: []PoolSpec{{Segment: hsa.SegmentGlobal, Size: 3 * allocationGranule}},
	}))
	require.NoError(t, rt.Init())

	var pool hsa.MemoryPool
	require.NoError(t, rt.IterateMemoryPools(hsa.Agent{Handle: 1}, func(p hsa.MemoryPool) bool {
		pool = p
		return false
	}))

	a, err := rt.PoolAllocate(pool, 1, 0)
	require.NoError(t, err)
	b, err := rt.PoolAllocate(pool, allocationGranule+1, 0)
	require.NoError(t, err)
	assert.Equal(t, a+uintptr(allocationGranule), b)
	assert.Zero(t, b%uintptr(allocationGranule))

	_, err = rt.PoolAllocate(pool, 1, 0)
	assert.Equal(t, hsa.StatusErrorOutOfResources, hsa.StatusOf(err))

	_, err = rt.PoolAllocate(pool, 0, 0)
	assert.Equal(t, hsa.StatusErrorInvalidAllocation, hsa.StatusOf(err))

	require.NoError(t, rt.PoolFree(b))
	_, err = rt.PoolAllocate(pool, 2*allocationGranule, 0)
	require.NoError(t, err)

	err = rt.PoolFree(0xdead)
	assert.Equal(t, hsa.StatusErrorInvalidArgument, hsa.StatusOf(err))
}

func TestRuntime_ExecutableRules(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Init())
	gpu := gpuAgent(t, rt)

	reader, err := rt.CodeObjectReaderCreateFromFile(manifestFile(t, "gfx1100"))
	require.NoError(t, err)
	exe, err := rt.ExecutableCreate(hsa.ProfileFull, hsa.FloatRoundingModeDefault)
	require.NoError(t, err)

	_, err = rt.ExecutableGetSymbol(exe, "vector_add.kd", gpu)
	assert.Equal(t, hsa.StatusErrorInvalidExecutable, hsa.StatusOf(err), "lookup before freeze")

	err = rt.ExecutableFreeze(exe)
	assert.Equal(t, hsa.StatusErrorInvalidExecutable, hsa.StatusOf(err), "freeze without code object")

	require.NoError(t, rt.ExecutableLoadAgentCodeObject(exe, gpu, reader))
	require.NoError(t, rt.ExecutableFreeze(exe))

	err = rt.ExecutableLoadAgentCodeObject(exe, gpu, reader)
	assert.Equal(t, hsa.StatusErrorFrozenExecutable, hsa.StatusOf(err))

	require.NoError(t, rt.CodeObjectReaderDestroy(reader))

	sym, err := rt.ExecutableGetSymbol(exe, "vector_add.kd", gpu)
	require.NoError(t, err)
	size, err := rt.SymbolInfo(sym, hsa.SymbolKernargSegmentSize)
	require.NoError(t, err)
	assert.Equal(t, uint64(24), size)
	align, err := rt.SymbolInfo(sym, hsa.SymbolKernargSegmentAlignment)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), align)
	obj, err := rt.SymbolInfo(sym, hsa.SymbolKernelObject)
	require.NoError(t, err)
	assert.NotZero(t, obj)

	_, err = rt.ExecutableGetSymbol(exe, "missing", gpu)
	assert.Equal(t, hsa.StatusErrorInvalidSymbolName, hsa.StatusOf(err))

	require.NoError(t, rt.ExecutableDestroy(exe))
	assert.Zero(t, rt.Outstanding().Executables)
	assert.Zero(t, rt.Outstanding().Readers)
}

func TestRuntime_TargetMismatch(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Init())
	gpu := gpuAgent(t, rt)

	reader, err := rt.CodeObjectReaderCreateFromFile(manifestFile(t, "gfx942"))
	require.NoError(t, err)
	exe, err := rt.ExecutableCreate(hsa.ProfileFull, hsa.FloatRoundingModeDefault)
	require.NoError(t, err)

	err = rt.ExecutableLoadAgentCodeObject(exe, gpu, reader)
	assert.Equal(t, hsa.StatusErrorIncompatibleArguments, hsa.StatusOf(err))
	assert.Contains(t, err.Error(), "gfx942")
}

func TestRuntime_InvalidCodeObject(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Init())

	path := filepath.Join(t.TempDir(), "garbage.hsaco")
	require.NoError(t, os.WriteFile(path, []byte("not a code object"), 0644))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = rt.CodeObjectReaderCreateFromFile(f)
	assert.Equal(t, hsa.StatusErrorInvalidCodeObject, hsa.StatusOf(err))
}

func TestRuntime_FailOn(t *testing.T) {
	rt := New(FailOn("hsa_queue_create", hsa.StatusErrorOutOfResources))
	require.NoError(t, rt.Init())

	_, err := rt.QueueCreate(gpuAgent(t, rt), hsa.DefaultQueueSize, hsa.QueueTypeMulti)
	assert.Equal(t, hsa.StatusErrorOutOfResources, hsa.StatusOf(err))
	assert.Contains(t, rt.Calls(), "hsa_queue_create")
}

func TestFromTopology(t *testing.T) {
	nodes := []topology.Node{
		{ID: 0, Properties: map[string]uint64{}},
		{
			ID:         1,
			GPUID:      4242,
			Name:       "gfx90a",
			Properties: map[string]uint64{"gfx_target_version": 90010, "lds_size_in_kb": 64},
			MemBanks:   []topology.MemBank{{Properties: map[string]uint64{"size_in_bytes": 64 << 30}}},
		},
	}

	devices := FromTopology(nodes)
	require.Len(t, devices, 2)

	assert.Equal(t, hsa.DeviceTypeCPU, devices[0].Type)
	assert.Empty(t, devices[0].Pools)

	gpu := devices[1]
	assert.Equal(t, hsa.DeviceTypeGPU, gpu.Type)
	assert.Equal(t, "gfx90a", gpu.Name)
	assert.Equal(t, []PoolSpec{
		{Segment: hsa.SegmentGlobal, Size: 64 << 30},
		{Segment: hsa.SegmentGroup, Size: 64 << 10},
	}, gpu.Pools)
}

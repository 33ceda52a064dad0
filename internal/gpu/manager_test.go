package gpu

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fxnlabs/fuzzyhsa/internal/config"
	"github.com/fxnlabs/fuzzyhsa/internal/hsa"
	"github.com/fxnlabs/fuzzyhsa/internal/hsa/hsasim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewManager(t *testing.T) {
	t.Run("simulator", func(t *testing.T) {
		m, err := NewManager(Options{Backend: BackendSim, TopologyRoot: t.TempDir()}, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "sim", m.GetBackendType())
		assert.False(t, m.IsGPUAvailable())
		assert.Zero(t, m.Env().Refs())
	})

	t.Run("auto falls back without ROCm", func(t *testing.T) {
		if hsa.NativeAvailable() {
			t.Skip("built with the ROCm runtime")
		}
		m, err := NewManager(Options{Backend: BackendAuto, TopologyRoot: t.TempDir()}, nil)
		require.NoError(t, err)
		assert.Equal(t, "sim", m.GetBackendType())
	})

	t.Run("native without ROCm", func(t *testing.T) {
		if hsa.NativeAvailable() {
			t.Skip("built with the ROCm runtime")
		}
		_, err := NewManager(Options{Backend: BackendNative}, nil)
		require.Error(t, err)
		assert.True(t, hsa.IsFatal(err))
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := NewManager(Options{Backend: "opencl"}, nil)
		assert.Error(t, err)
	})
}

func TestManager_TopologyDevices(t *testing.T) {
	root := t.TempDir()
	node := filepath.Join(root, "nodes", "0")
	require.NoError(t, os.MkdirAll(node, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(node, "gpu_id"), []byte("9\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(node, "properties"),
		[]byte("gfx_target_version 90402\nlocal_mem_size 1073741824\n"), 0644))

	m, err := NewManager(Options{Backend: BackendSim, TopologyRoot: root}, nil)
	require.NoError(t, err)

	devices, err := m.Devices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "gfx942", devices[0].Name)
	assert.Equal(t, hsa.DeviceTypeGPU, devices[0].Type)
	assert.Equal(t, []PoolInfo{{Segment: hsa.SegmentGlobal, Size: 1 << 30}}, devices[0].Pools)
	assert.Zero(t, m.Env().Refs())
}

func TestManager_Devices(t *testing.T) {
	m, err := NewManager(Options{Backend: BackendSim, Devices: hsasim.DefaultDevices()}, nil)
	require.NoError(t, err)

	devices, err := m.Devices()
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, hsa.DeviceTypeCPU, devices[0].Type)
	assert.Equal(t, "gfx1100", devices[1].Name)
	assert.Len(t, devices[1].Pools, 2)

	sim := m.Runtime().(*hsasim.Runtime)
	assert.Zero(t, sim.Outstanding().Refs)
}

func TestSimDevices(t *testing.T) {
	specs := SimDevices([]config.SimDevice{
		{Name: "EPYC", Type: "cpu", Pools: []config.SimPool{{Segment: "global", Size: 1 << 30}}},
		{Name: "gfx90a", Type: "gpu", Pools: []config.SimPool{{Segment: "group", Size: 65536}}},
	})
	require.Len(t, specs, 2)
	assert.Equal(t, hsasim.DeviceSpec{
		Name:  "EPYC",
		Type:  hsa.DeviceTypeCPU,
		Pools: []hsasim.PoolSpec{{Segment: hsa.SegmentGlobal, Size: 1 << 30}},
	}, specs[0])
	assert.Equal(t, hsa.SegmentGroup, specs[1].Pools[0].Segment)
	assert.Equal(t, hsa.DeviceTypeGPU, specs[1].Type)
}

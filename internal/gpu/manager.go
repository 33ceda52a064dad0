package gpu

import (
	"fmt"
	"sync"

	"github.com/fxnlabs/fuzzyhsa/internal/hsa"
	"github.com/fxnlabs/fuzzyhsa/internal/hsa/hsasim"
	"github.com/fxnlabs/fuzzyhsa/internal/topology"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Options select and shape the runtime backend.
type Options struct {
	Backend string
	// TopologyRoot is read to mirror the machine in the simulator when
	// Devices is empty.
	TopologyRoot string
	Devices      []hsasim.DeviceSpec
}

// Manager handles runtime backend selection and owns the Env every session
// on this process shares.
type Manager struct {
	runtime hsa.Runtime
	env     *hsa.Env
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewManager creates a new manager and selects the best available backend
func NewManager(opts Options, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{logger: logger.Named("gpu")}

	if err := m.detect(opts); err != nil {
		return nil, err
	}
	m.env = hsa.NewEnv(m.runtime, m.logger)
	return m, nil
}

func (m *Manager) detect(opts Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch opts.Backend {
	case BackendNative, BackendAuto, "":
		rt, err := hsa.NewNativeRuntime(m.logger)
		if err == nil {
			m.logger.Info("Using ROCm HSA runtime")
			m.runtime = rt
			return nil
		}
		if opts.Backend == BackendNative {
			return hsa.Fail(hsa.KindEnvironment, "hsa_init", err)
		}
		m.logger.Info("ROCm runtime unavailable, falling back to the simulator", zap.Error(err))
	case BackendSim:
	default:
		return fmt.Errorf("unknown runtime backend %q", opts.Backend)
	}

	devices := opts.Devices
	if len(devices) == 0 {
		devices = m.topologyDevices(opts.TopologyRoot)
	}
	m.runtime = hsasim.New(hsasim.WithDevices(devices...), hsasim.WithLogger(m.logger))
	m.logger.Info("Using simulated HSA runtime", zap.Int("devices", len(devices)))
	return nil
}

// topologyDevices mirrors the KFD topology when it has a GPU, and falls back
// to the default simulated machine otherwise.
func (m *Manager) topologyDevices(root string) []hsasim.DeviceSpec {
	nodes, err := topology.NewReader(root).Nodes()
	if err != nil {
		m.logger.Debug("failed to read KFD topology", zap.Error(err))
		return hsasim.DefaultDevices()
	}
	for _, n := range nodes {
		if n.IsGPU() {
			return hsasim.FromTopology(nodes)
		}
	}
	return hsasim.DefaultDevices()
}

// Runtime returns the selected runtime.
func (m *Manager) Runtime() hsa.Runtime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runtime
}

// Env returns the shared runtime environment.
func (m *Manager) Env() *hsa.Env {
	return m.env
}

// IsGPUAvailable returns true if the native runtime is active
func (m *Manager) IsGPUAvailable() bool {
	_, isSim := m.Runtime().(*hsasim.Runtime)
	return !isSim
}

// GetBackendType returns the name of the active backend
func (m *Manager) GetBackendType() string {
	rt := m.Runtime()
	if rt == nil {
		return "none"
	}
	return rt.Name()
}

// Devices lists every agent with its memory pools.
func (m *Manager) Devices() (devices []DeviceInfo, err error) {
	if err := m.env.Acquire(); err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, m.env.Release())
	}()

	rt := m.Runtime()
	var agents []hsa.Agent
	if err := rt.IterateAgents(func(a hsa.Agent) bool {
		agents = append(agents, a)
		return true
	}); err != nil {
		return nil, hsa.Fail(hsa.KindEnvironment, "hsa_iterate_agents", err)
	}

	for _, a := range agents {
		info, err := m.describe(rt, a)
		if err != nil {
			return nil, err
		}
		devices = append(devices, info)
	}
	return devices, nil
}

func (m *Manager) describe(rt hsa.Runtime, agent hsa.Agent) (DeviceInfo, error) {
	var info DeviceInfo
	var err error
	if info.Name, err = rt.AgentName(agent); err != nil {
		return info, hsa.Fail(hsa.KindEnvironment, "hsa_agent_get_info", err)
	}
	if info.Type, err = rt.AgentDevice(agent); err != nil {
		return info, hsa.Fail(hsa.KindEnvironment, "hsa_agent_get_info", err)
	}

	var pools []hsa.MemoryPool
	if err := rt.IterateMemoryPools(agent, func(p hsa.MemoryPool) bool {
		pools = append(pools, p)
		return true
	}); err != nil {
		return info, hsa.Fail(hsa.KindEnvironment, "hsa_amd_agent_iterate_memory_pools", err)
	}
	for _, p := range pools {
		segment, err := rt.PoolSegment(p)
		if err != nil {
			continue
		}
		size, err := rt.PoolSize(p)
		if err != nil {
			continue
		}
		info.Pools = append(info.Pools, PoolInfo{Segment: segment, Size: size})
	}
	return info, nil
}

package hsasim

import (
	"github.com/fxnlabs/fuzzyhsa/internal/hsa"
	"github.com/fxnlabs/fuzzyhsa/internal/topology"
)

// FromTopology builds device specs mirroring the KFD nodes of a machine. GPU
// nodes are named after their ISA so code objects built for the real device
// load on the simulated one.
func FromTopology(nodes []topology.Node) []DeviceSpec {
	devices := make([]DeviceSpec, 0, len(nodes))
	for _, n := range nodes {
		spec := DeviceSpec{Name: cpuName(n), Type: hsa.DeviceTypeCPU}
		if n.IsGPU() {
			spec.Type = hsa.DeviceTypeGPU
			if spec.Name = n.ISAName(); spec.Name == "" {
				spec.Name = n.Name
			}
		}
		if size := n.LocalMemSize(); size > 0 {
			spec.Pools = append(spec.Pools, PoolSpec{Segment: hsa.SegmentGlobal, Size: size})
		}
		if lds := n.LDSSize(); n.IsGPU() && lds > 0 {
			spec.Pools = append(spec.Pools, PoolSpec{Segment: hsa.SegmentGroup, Size: lds})
		}
		devices = append(devices, spec)
	}
	return devices
}

func cpuName(n topology.Node) string {
	if n.Name != "" {
		return n.Name
	}
	return "cpu"
}

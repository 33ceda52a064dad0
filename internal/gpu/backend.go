package gpu

import (
	"github.com/fxnlabs/fuzzyhsa/internal/config"
	"github.com/fxnlabs/fuzzyhsa/internal/hsa"
	"github.com/fxnlabs/fuzzyhsa/internal/hsa/hsasim"
)

// Runtime backends accepted by NewManager.
const (
	BackendAuto   = "auto"
	BackendNative = "native"
	BackendSim    = "sim"
)

// DeviceInfo describes one agent as reported by the active runtime.
type DeviceInfo struct {
	Name  string         `json:"name"`
	Type  hsa.DeviceType `json:"type"`
	Pools []PoolInfo     `json:"pools"`
}

// PoolInfo describes one memory pool of an agent.
type PoolInfo struct {
	Segment hsa.Segment `json:"segment"`
	Size    uint64      `json:"size"`
}

var deviceTypes = map[string]hsa.DeviceType{
	"cpu": hsa.DeviceTypeCPU,
	"gpu": hsa.DeviceTypeGPU,
}

var segments = map[string]hsa.Segment{
	"global":   hsa.SegmentGlobal,
	"readonly": hsa.SegmentReadOnly,
	"private":  hsa.SegmentPrivate,
	"group":    hsa.SegmentGroup,
}

// SimDevices converts configured simulator devices. The configuration must
// have been validated.
func SimDevices(devices []config.SimDevice) []hsasim.DeviceSpec {
	specs := make([]hsasim.DeviceSpec, 0, len(devices))
	for _, d := range devices {
		spec := hsasim.DeviceSpec{Name: d.Name, Type: deviceTypes[d.Type]}
		for _, p := range d.Pools {
			spec.Pools = append(spec.Pools, hsasim.PoolSpec{Segment: segments[p.Segment], Size: p.Size})
		}
		specs = append(specs, spec)
	}
	return specs
}

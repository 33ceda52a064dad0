package loader

import (
	"sync"

	"github.com/fxnlabs/fuzzyhsa/internal/hsa"
)

const descriptorSuffix = ".kd"

// minKernargAlignment is the alignment the AQL dispatch packet requires of
// the kernarg address regardless of what the kernel declares.
const minKernargAlignment = 16

// KernelSymbol is a resolved kernel and the values needed to size a launch.
type KernelSymbol struct {
	Name                    string
	Symbol                  hsa.ExecutableSymbol
	KernelObject            uint64
	GroupSegmentSize        uint32
	PrivateSegmentSize      uint32
	KernargSegmentSize      uint32
	KernargSegmentAlignment uint32
}

// LaunchResources is what a dispatch of the kernel has to reserve.
type LaunchResources struct {
	KernelObject uint64
	// KernargBytes is the kernarg segment size rounded up to KernargAlignment.
	KernargBytes       uint64
	KernargAlignment   uint64
	GroupSegmentSize   uint32
	PrivateSegmentSize uint32
}

// LaunchResources computes the reservation for one dispatch.
func (k KernelSymbol) LaunchResources() LaunchResources {
	align := uint64(k.KernargSegmentAlignment)
	if align < minKernargAlignment {
		align = minKernargAlignment
	}
	size := uint64(k.KernargSegmentSize)
	return LaunchResources{
		KernelObject:       k.KernelObject,
		KernargBytes:       (size + align - 1) / align * align,
		KernargAlignment:   align,
		GroupSegmentSize:   k.GroupSegmentSize,
		PrivateSegmentSize: k.PrivateSegmentSize,
	}
}

// Program is a frozen executable holding the resolved kernel.
type Program struct {
	Path   string
	Kernel KernelSymbol

	rt   hsa.Runtime
	exe  hsa.Executable
	once sync.Once
	err  error
}

// Close destroys the executable. Later calls return the first result.
func (p *Program) Close() error {
	p.once.Do(func() {
		if err := p.rt.ExecutableDestroy(p.exe); err != nil {
			p.err = hsa.Fail(hsa.KindEnvironment, "hsa_executable_destroy", err)
		}
	})
	return p.err
}

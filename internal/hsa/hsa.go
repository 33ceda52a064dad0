// Package hsa models the subset of the HSA runtime used to bring up an
// accelerator session: agents, queues, memory pools, code-object readers,
// executables and their kernel symbols.
//
// Handles are opaque values owned by a Runtime. The numeric values of the
// enumerations match the runtime headers so the native binding can pass them
// through unchanged.
package hsa

import "fmt"

// Agent identifies a compute agent (a CPU or a GPU).
type Agent struct {
	Handle uint64
}

// MemoryPool identifies a memory pool exposed by an agent.
type MemoryPool struct {
	Handle uint64
}

// Queue is a user-mode submission queue bound to one agent.
type Queue struct {
	Handle uint64
	Size   uint32
	Type   QueueType
}

// CodeObjectReader wraps an open code-object file.
type CodeObjectReader struct {
	Handle uint64
}

// Executable is a container of loaded code objects bound to agents.
type Executable struct {
	Handle uint64
}

// ExecutableSymbol is a named entry resolved from a frozen Executable.
type ExecutableSymbol struct {
	Handle uint64
}

// DeviceType is the device class reported by an agent.
type DeviceType uint32

const (
	DeviceTypeCPU DeviceType = 0
	DeviceTypeGPU DeviceType = 1
	DeviceTypeDSP DeviceType = 2
)

func (d DeviceType) String() string {
	switch d {
	case DeviceTypeCPU:
		return "cpu"
	case DeviceTypeGPU:
		return "gpu"
	case DeviceTypeDSP:
		return "dsp"
	default:
		return fmt.Sprintf("device(%d)", uint32(d))
	}
}

// Segment classifies a memory pool.
type Segment uint32

const (
	SegmentGlobal   Segment = 0
	SegmentReadOnly Segment = 1
	SegmentPrivate  Segment = 2
	SegmentGroup    Segment = 3
)

func (s Segment) String() string {
	switch s {
	case SegmentGlobal:
		return "global"
	case SegmentReadOnly:
		return "readonly"
	case SegmentPrivate:
		return "private"
	case SegmentGroup:
		return "group"
	default:
		return fmt.Sprintf("segment(%d)", uint32(s))
	}
}

// QueueType selects single or multi producer semantics.
type QueueType uint32

const (
	QueueTypeMulti  QueueType = 0
	QueueTypeSingle QueueType = 1
)

// Profile is the executable profile.
type Profile uint32

const (
	ProfileBase Profile = 0
	ProfileFull Profile = 1
)

// FloatRoundingMode is the default floating-point rounding mode of an executable.
type FloatRoundingMode uint32

const (
	FloatRoundingModeDefault FloatRoundingMode = 0
	FloatRoundingModeZero    FloatRoundingMode = 1
	FloatRoundingModeNear    FloatRoundingMode = 2
)

// SymbolAttribute selects a field queried from a kernel symbol.
type SymbolAttribute uint32

const (
	SymbolKernelObject SymbolAttribute = iota
	SymbolKernargSegmentSize
	SymbolKernargSegmentAlignment
	SymbolGroupSegmentSize
	SymbolPrivateSegmentSize
)

func (a SymbolAttribute) String() string {
	switch a {
	case SymbolKernelObject:
		return "kernel_object"
	case SymbolKernargSegmentSize:
		return "kernarg_segment_size"
	case SymbolKernargSegmentAlignment:
		return "kernarg_segment_alignment"
	case SymbolGroupSegmentSize:
		return "group_segment_size"
	case SymbolPrivateSegmentSize:
		return "private_segment_size"
	default:
		return fmt.Sprintf("symbol_attribute(%d)", uint32(a))
	}
}

// DefaultQueueSize is the number of packets in a session queue.
const DefaultQueueSize uint32 = 256

//go:build !rocm
// +build !rocm

package hsa

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrNativeUnavailable is returned when the binary was built without the rocm tag.
var ErrNativeUnavailable = errors.New("hsa: ROCm runtime binding not compiled in (build with -tags rocm)")

// NativeRuntime is a stub type when ROCm is not available.
type NativeRuntime struct{}

// NativeAvailable reports whether this binary was built with the ROCm binding.
func NativeAvailable() bool {
	return false
}

// NewNativeRuntime always fails without the rocm build tag.
func NewNativeRuntime(log *zap.Logger) (*NativeRuntime, error) {
	return nil, ErrNativeUnavailable
}

// Stub implementations to satisfy the Runtime interface
func (r *NativeRuntime) Name() string { return "rocm" }

func (r *NativeRuntime) Init() error { return ErrNativeUnavailable }

func (r *NativeRuntime) ShutDown() error { return ErrNativeUnavailable }

func (r *NativeRuntime) IterateAgents(func(Agent) bool) error { return ErrNativeUnavailable }

func (r *NativeRuntime) AgentDevice(Agent) (DeviceType, error) { return 0, ErrNativeUnavailable }

func (r *NativeRuntime) AgentName(Agent) (string, error) { return "", ErrNativeUnavailable }

func (r *NativeRuntime) QueueCreate(Agent, uint32, QueueType) (Queue, error) {
	return Queue{}, ErrNativeUnavailable
}

func (r *NativeRuntime) QueueDestroy(Queue) error { return ErrNativeUnavailable }

func (r *NativeRuntime) IterateMemoryPools(Agent, func(MemoryPool) bool) error {
	return ErrNativeUnavailable
}

func (r *NativeRuntime) PoolSegment(MemoryPool) (Segment, error) { return 0, ErrNativeUnavailable }

func (r *NativeRuntime) PoolSize(MemoryPool) (uint64, error) { return 0, ErrNativeUnavailable }

func (r *NativeRuntime) PoolAllocate(MemoryPool, uint64, uint32) (uintptr, error) {
	return 0, ErrNativeUnavailable
}

func (r *NativeRuntime) PoolFree(uintptr) error { return ErrNativeUnavailable }

func (r *NativeRuntime) CodeObjectReaderCreateFromFile(*os.File) (CodeObjectReader, error) {
	return CodeObjectReader{}, ErrNativeUnavailable
}

func (r *NativeRuntime) CodeObjectReaderDestroy(CodeObjectReader) error { return ErrNativeUnavailable }

func (r *NativeRuntime) ExecutableCreate(Profile, FloatRoundingMode) (Executable, error) {
	return Executable{}, ErrNativeUnavailable
}

func (r *NativeRuntime) ExecutableLoadAgentCodeObject(Executable, Agent, CodeObjectReader) error {
	return ErrNativeUnavailable
}

func (r *NativeRuntime) ExecutableFreeze(Executable) error { return ErrNativeUnavailable }

func (r *NativeRuntime) ExecutableDestroy(Executable) error { return ErrNativeUnavailable }

func (r *NativeRuntime) ExecutableGetSymbol(Executable, string, Agent) (ExecutableSymbol, error) {
	return ExecutableSymbol{}, ErrNativeUnavailable
}

func (r *NativeRuntime) SymbolInfo(ExecutableSymbol, SymbolAttribute) (uint64, error) {
	return 0, ErrNativeUnavailable
}

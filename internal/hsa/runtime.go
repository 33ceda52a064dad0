package hsa

import "os"

// Runtime is the driver surface a session is built on. Every failing call
// returns a *StatusError.
//
// Implementation notes:
//   - Init and ShutDown are reference counted by the runtime itself, but
//     callers should go through Env so each session pairs them exactly once.
//   - Iteration visitors return false to stop early; the iteration then
//     reports success.
//   - Implementations must reject calls made before Init or after the
//     final ShutDown with StatusErrorNotInitialized.
type Runtime interface {
	Init() error
	ShutDown() error

	IterateAgents(visit func(Agent) bool) error
	AgentDevice(agent Agent) (DeviceType, error)
	AgentName(agent Agent) (string, error)

	QueueCreate(agent Agent, size uint32, typ QueueType) (Queue, error)
	QueueDestroy(queue Queue) error

	IterateMemoryPools(agent Agent, visit func(MemoryPool) bool) error
	PoolSegment(pool MemoryPool) (Segment, error)
	PoolSize(pool MemoryPool) (uint64, error)
	PoolAllocate(pool MemoryPool, size uint64, flags uint32) (uintptr, error)
	PoolFree(ptr uintptr) error

	CodeObjectReaderCreateFromFile(file *os.File) (CodeObjectReader, error)
	CodeObjectReaderDestroy(reader CodeObjectReader) error

	ExecutableCreate(profile Profile, rounding FloatRoundingMode) (Executable, error)
	ExecutableLoadAgentCodeObject(exe Executable, agent Agent, reader CodeObjectReader) error
	ExecutableFreeze(exe Executable) error
	ExecutableDestroy(exe Executable) error
	ExecutableGetSymbol(exe Executable, name string, agent Agent) (ExecutableSymbol, error)
	SymbolInfo(symbol ExecutableSymbol, attr SymbolAttribute) (uint64, error)

	// Name identifies the backend in logs and metrics.
	Name() string
}

var _ Runtime = (*NativeRuntime)(nil)

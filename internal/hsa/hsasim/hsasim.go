// Package hsasim is an in-process HSA runtime. It stands in for the ROCm
// binding on machines without a GPU and in tests, and enforces the same
// ordering rules a driver does: nothing works before Init, executables
// accept code objects only until frozen, and symbols resolve only after.
package hsasim

import (
	"os"
	"sync"

	"github.com/fxnlabs/fuzzyhsa/internal/codeobject"
	"github.com/fxnlabs/fuzzyhsa/internal/hsa"
	"go.uber.org/zap"
)

// PoolSpec describes a memory pool of a simulated device.
type PoolSpec struct {
	Segment hsa.Segment
	Size    uint64
}

// DeviceSpec describes a simulated agent.
type DeviceSpec struct {
	Name  string
	Type  hsa.DeviceType
	Pools []PoolSpec
}

// DefaultDevices is a host CPU followed by one discrete GPU.
func DefaultDevices() []DeviceSpec {
	return []DeviceSpec{
		{
			Name: "AMD Ryzen (simulated)",
			Type: hsa.DeviceTypeCPU,
			Pools: []PoolSpec{
				{Segment: hsa.SegmentGlobal, Size: 32 << 30},
			},
		},
		{
			Name: "gfx1100",
			Type: hsa.DeviceTypeGPU,
			Pools: []PoolSpec{
				{Segment: hsa.SegmentGlobal, Size: 16 << 30},
				{Segment: hsa.SegmentGroup, Size: 64 << 10},
			},
		},
	}
}

// Resources counts what is currently allocated inside the simulator.
type Resources struct {
	Refs        int
	Queues      int
	Buffers     int
	Readers     int
	Executables int
}

type pool struct {
	agent hsa.Agent
	spec  PoolSpec
	used  uint64
}

type buffer struct {
	pool uint64
	size uint64
}

type loaded struct {
	agent hsa.Agent
	obj   *codeobject.Object
}

type executable struct {
	frozen bool
	loaded []loaded
}

type symbol struct {
	kernel codeobject.Kernel
	object uint64
}

const (
	baseAddress       uintptr = 0x7f0000000000
	baseKernelObject  uint64  = 0x7e0000000000
	allocationGranule uint64  = 4096
	maxQueueSize      uint32  = 1 << 17
)

// Runtime is the simulated runtime. It is safe for concurrent use.
type Runtime struct {
	log      *zap.Logger
	devices  []DeviceSpec
	failures map[string]hsa.Status

	mu          sync.Mutex
	refs        int
	journal     []string
	agentVisits int
	poolVisits  int
	next        uint64
	nextAddr    uintptr
	agentPools  map[hsa.Agent][]uint64
	pools       map[uint64]*pool
	queues      map[uint64]hsa.Queue
	buffers     map[uintptr]buffer
	readers     map[uint64]*codeobject.Object
	executables map[uint64]*executable
	symbols     map[uint64]symbol
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithDevices replaces the default device list.
func WithDevices(devices ...DeviceSpec) Option {
	return func(r *Runtime) {
		r.devices = devices
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Runtime) {
		r.log = log
	}
}

// FailOn makes every call to op fail with status.
func FailOn(op string, status hsa.Status) Option {
	return func(r *Runtime) {
		r.failures[op] = status
	}
}

// New builds a simulated runtime.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		log:         zap.NewNop(),
		devices:     DefaultDevices(),
		failures:    map[string]hsa.Status{},
		nextAddr:    baseAddress,
		agentPools:  map[hsa.Agent][]uint64{},
		pools:       map[uint64]*pool{},
		queues:      map[uint64]hsa.Queue{},
		buffers:     map[uintptr]buffer{},
		readers:     map[uint64]*codeobject.Object{},
		executables: map[uint64]*executable{},
		symbols:     map[uint64]symbol{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.Named("hsasim")

	// Agents are numbered from 1 so the zero handle is never valid.
	for i, d := range r.devices {
		agent := hsa.Agent{Handle: uint64(i + 1)}
		for _, spec := range d.Pools {
			h := r.handle()
			r.pools[h] = &pool{agent: agent, spec: spec}
			r.agentPools[agent] = append(r.agentPools[agent], h)
		}
	}
	return r
}

func (r *Runtime) Name() string {
	return "sim"
}

// Calls returns the journal of runtime calls in order.
func (r *Runtime) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.journal...)
}

// AgentVisits returns how many agents visitors have been shown.
func (r *Runtime) AgentVisits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agentVisits
}

// PoolVisits returns how many pools visitors have been shown.
func (r *Runtime) PoolVisits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.poolVisits
}

// Outstanding reports live resources.
func (r *Runtime) Outstanding() Resources {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Resources{
		Refs:        r.refs,
		Queues:      len(r.queues),
		Buffers:     len(r.buffers),
		Readers:     len(r.readers),
		Executables: len(r.executables),
	}
}

func (r *Runtime) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("hsa_init", false); err != nil {
		return err
	}
	r.refs++
	return nil
}

func (r *Runtime) ShutDown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("hsa_shut_down", true); err != nil {
		return err
	}
	r.refs--
	return nil
}

func (r *Runtime) IterateAgents(visit func(hsa.Agent) bool) error {
	r.mu.Lock()
	if err := r.enter("hsa_iterate_agents", true); err != nil {
		r.mu.Unlock()
		return err
	}
	n := len(r.devices)
	r.mu.Unlock()

	for i := 0; i < n; i++ {
		r.mu.Lock()
		r.agentVisits++
		r.mu.Unlock()
		if !visit(hsa.Agent{Handle: uint64(i + 1)}) {
			break
		}
	}
	return nil
}

func (r *Runtime) AgentDevice(agent hsa.Agent) (hsa.DeviceType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := "hsa_agent_get_info(HSA_AGENT_INFO_DEVICE)"
	if err := r.enter(op, true); err != nil {
		return 0, err
	}
	d, err := r.device(op, agent)
	if err != nil {
		return 0, err
	}
	return d.Type, nil
}

func (r *Runtime) AgentName(agent hsa.Agent) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := "hsa_agent_get_info(HSA_AGENT_INFO_NAME)"
	if err := r.enter(op, true); err != nil {
		return "", err
	}
	d, err := r.device(op, agent)
	if err != nil {
		return "", err
	}
	return d.Name, nil
}

func (r *Runtime) QueueCreate(agent hsa.Agent, size uint32, typ hsa.QueueType) (hsa.Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := "hsa_queue_create"
	if err := r.enter(op, true); err != nil {
		return hsa.Queue{}, err
	}
	d, err := r.device(op, agent)
	if err != nil {
		return hsa.Queue{}, err
	}
	if d.Type != hsa.DeviceTypeGPU {
		return hsa.Queue{}, hsa.NewStatusError(op, hsa.StatusErrorInvalidAgent, "")
	}
	if size == 0 || size&(size-1) != 0 || size > maxQueueSize {
		return hsa.Queue{}, hsa.NewStatusError(op, hsa.StatusErrorInvalidArgument, "")
	}
	q := hsa.Queue{Handle: r.handle(), Size: size, Type: typ}
	r.queues[q.Handle] = q
	return q, nil
}

func (r *Runtime) QueueDestroy(queue hsa.Queue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := "hsa_queue_destroy"
	if err := r.enter(op, true); err != nil {
		return err
	}
	if _, ok := r.queues[queue.Handle]; !ok {
		return hsa.NewStatusError(op, hsa.StatusErrorInvalidQueue, "")
	}
	delete(r.queues, queue.Handle)
	return nil
}

func (r *Runtime) IterateMemoryPools(agent hsa.Agent, visit func(hsa.MemoryPool) bool) error {
	r.mu.Lock()
	op := "hsa_amd_agent_iterate_memory_pools"
	if err := r.enter(op, true); err != nil {
		r.mu.Unlock()
		return err
	}
	if _, err := r.device(op, agent); err != nil {
		r.mu.Unlock()
		return err
	}
	handles := append([]uint64(nil), r.agentPools[agent]...)
	r.mu.Unlock()

	for _, h := range handles {
		r.mu.Lock()
		r.poolVisits++
		r.mu.Unlock()
		if !visit(hsa.MemoryPool{Handle: h}) {
			break
		}
	}
	return nil
}

func (r *Runtime) PoolSegment(p hsa.MemoryPool) (hsa.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := "hsa_amd_memory_pool_get_info(HSA_AMD_MEMORY_POOL_INFO_SEGMENT)"
	if err := r.enter(op, true); err != nil {
		return 0, err
	}
	pl, err := r.pool(op, p)
	if err != nil {
		return 0, err
	}
	return pl.spec.Segment, nil
}

func (r *Runtime) PoolSize(p hsa.MemoryPool) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := "hsa_amd_memory_pool_get_info(HSA_AMD_MEMORY_POOL_INFO_SIZE)"
	if err := r.enter(op, true); err != nil {
		return 0, err
	}
	pl, err := r.pool(op, p)
	if err != nil {
		return 0, err
	}
	return pl.spec.Size, nil
}

func (r *Runtime) PoolAllocate(p hsa.MemoryPool, size uint64, flags uint32) (uintptr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := "hsa_amd_memory_pool_allocate"
	if err := r.enter(op, true); err != nil {
		return 0, err
	}
	pl, err := r.pool(op, p)
	if err != nil {
		return 0, err
	}
	if size == 0 || size > pl.spec.Size || pl.spec.Segment != hsa.SegmentGlobal || flags != 0 {
		return 0, hsa.NewStatusError(op, hsa.StatusErrorInvalidAllocation, "")
	}
	rounded := roundUp(size, allocationGranule)
	if pl.used+rounded > pl.spec.Size {
		return 0, hsa.NewStatusError(op, hsa.StatusErrorOutOfResources, "")
	}
	pl.used += rounded
	ptr := r.nextAddr
	r.nextAddr += uintptr(rounded)
	r.buffers[ptr] = buffer{pool: p.Handle, size: rounded}
	return ptr, nil
}

func (r *Runtime) PoolFree(ptr uintptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := "hsa_amd_memory_pool_free"
	if err := r.enter(op, true); err != nil {
		return err
	}
	b, ok := r.buffers[ptr]
	if !ok {
		return hsa.NewStatusError(op, hsa.StatusErrorInvalidArgument, "")
	}
	r.pools[b.pool].used -= b.size
	delete(r.buffers, ptr)
	return nil
}

func (r *Runtime) CodeObjectReaderCreateFromFile(file *os.File) (hsa.CodeObjectReader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := "hsa_code_object_reader_create_from_file"
	if err := r.enter(op, true); err != nil {
		return hsa.CodeObjectReader{}, err
	}
	if file == nil {
		return hsa.CodeObjectReader{}, hsa.NewStatusError(op, hsa.StatusErrorInvalidFile, "")
	}
	obj, err := codeobject.ReadFile(file)
	if err != nil {
		st := hsa.StatusErrorInvalidCodeObject
		return hsa.CodeObjectReader{}, hsa.NewStatusError(op, st, st.Text()+" ("+err.Error()+")")
	}
	reader := hsa.CodeObjectReader{Handle: r.handle()}
	r.readers[reader.Handle] = obj
	return reader, nil
}

func (r *Runtime) CodeObjectReaderDestroy(reader hsa.CodeObjectReader) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := "hsa_code_object_reader_destroy"
	if err := r.enter(op, true); err != nil {
		return err
	}
	if _, ok := r.readers[reader.Handle]; !ok {
		return hsa.NewStatusError(op, hsa.StatusErrorInvalidCodeObjectReader, "")
	}
	delete(r.readers, reader.Handle)
	return nil
}

func (r *Runtime) ExecutableCreate(profile hsa.Profile, rounding hsa.FloatRoundingMode) (hsa.Executable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := "hsa_executable_create_alt"
	if err := r.enter(op, true); err != nil {
		return hsa.Executable{}, err
	}
	if profile > hsa.ProfileFull || rounding > hsa.FloatRoundingModeNear {
		return hsa.Executable{}, hsa.NewStatusError(op, hsa.StatusErrorInvalidArgument, "")
	}
	exe := hsa.Executable{Handle: r.handle()}
	r.executables[exe.Handle] = &executable{}
	return exe, nil
}

func (r *Runtime) ExecutableLoadAgentCodeObject(exe hsa.Executable, agent hsa.Agent, reader hsa.CodeObjectReader) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := "hsa_executable_load_agent_code_object"
	if err := r.enter(op, true); err != nil {
		return err
	}
	e, err := r.executable(op, exe)
	if err != nil {
		return err
	}
	if e.frozen {
		return hsa.NewStatusError(op, hsa.StatusErrorFrozenExecutable, "")
	}
	obj, ok := r.readers[reader.Handle]
	if !ok {
		return hsa.NewStatusError(op, hsa.StatusErrorInvalidCodeObjectReader, "")
	}
	d, err := r.device(op, agent)
	if err != nil {
		return err
	}
	if obj.Target != "" && obj.Target != d.Name {
		st := hsa.StatusErrorIncompatibleArguments
		return hsa.NewStatusError(op, st, st.Text()+" (code object targets "+obj.Target+", agent is "+d.Name+")")
	}
	e.loaded = append(e.loaded, loaded{agent: agent, obj: obj})
	return nil
}

func (r *Runtime) ExecutableFreeze(exe hsa.Executable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := "hsa_executable_freeze"
	if err := r.enter(op, true); err != nil {
		return err
	}
	e, err := r.executable(op, exe)
	if err != nil {
		return err
	}
	if e.frozen {
		return hsa.NewStatusError(op, hsa.StatusErrorFrozenExecutable, "")
	}
	if len(e.loaded) == 0 {
		st := hsa.StatusErrorInvalidExecutable
		return hsa.NewStatusError(op, st, st.Text()+" (no code object loaded)")
	}
	e.frozen = true
	return nil
}

func (r *Runtime) ExecutableDestroy(exe hsa.Executable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := "hsa_executable_destroy"
	if err := r.enter(op, true); err != nil {
		return err
	}
	if _, err := r.executable(op, exe); err != nil {
		return err
	}
	delete(r.executables, exe.Handle)
	return nil
}

func (r *Runtime) ExecutableGetSymbol(exe hsa.Executable, name string, agent hsa.Agent) (hsa.ExecutableSymbol, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := "hsa_executable_get_symbol_by_name"
	if err := r.enter(op, true); err != nil {
		return hsa.ExecutableSymbol{}, err
	}
	e, err := r.executable(op, exe)
	if err != nil {
		return hsa.ExecutableSymbol{}, err
	}
	if !e.frozen {
		st := hsa.StatusErrorInvalidExecutable
		return hsa.ExecutableSymbol{}, hsa.NewStatusError(op, st, st.Text()+" (executable is not frozen)")
	}
	for _, l := range e.loaded {
		if l.agent != agent {
			continue
		}
		if k, ok := l.obj.Lookup(name); ok {
			sym := hsa.ExecutableSymbol{Handle: r.handle()}
			r.symbols[sym.Handle] = symbol{kernel: k, object: baseKernelObject + sym.Handle*0x100}
			return sym, nil
		}
	}
	return hsa.ExecutableSymbol{}, hsa.NewStatusError(op, hsa.StatusErrorInvalidSymbolName, "")
}

func (r *Runtime) SymbolInfo(sym hsa.ExecutableSymbol, attr hsa.SymbolAttribute) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := "hsa_executable_symbol_get_info(" + attr.String() + ")"
	if err := r.enter(op, true); err != nil {
		return 0, err
	}
	s, ok := r.symbols[sym.Handle]
	if !ok {
		return 0, hsa.NewStatusError(op, hsa.StatusErrorInvalidExecutableSymbol, "")
	}
	switch attr {
	case hsa.SymbolKernelObject:
		return s.object, nil
	case hsa.SymbolKernargSegmentSize:
		return uint64(s.kernel.KernargSegmentSize), nil
	case hsa.SymbolKernargSegmentAlignment:
		return uint64(s.kernel.KernargSegmentAlignment), nil
	case hsa.SymbolGroupSegmentSize:
		return uint64(s.kernel.GroupSegmentSize), nil
	case hsa.SymbolPrivateSegmentSize:
		return uint64(s.kernel.PrivateSegmentSize), nil
	default:
		return 0, hsa.NewStatusError(op, hsa.StatusErrorInvalidArgument, "")
	}
}

// enter records op, applies injected failures and the init check. r.mu must be held.
func (r *Runtime) enter(op string, needsInit bool) error {
	r.journal = append(r.journal, op)
	if st, ok := r.failures[op]; ok {
		r.log.Debug("injected failure", zap.String("op", op), zap.Stringer("status", st))
		return hsa.NewStatusError(op, st, "")
	}
	if needsInit && r.refs == 0 {
		return hsa.NewStatusError(op, hsa.StatusErrorNotInitialized, "")
	}
	return nil
}

func (r *Runtime) device(op string, agent hsa.Agent) (DeviceSpec, error) {
	if agent.Handle == 0 || agent.Handle > uint64(len(r.devices)) {
		return DeviceSpec{}, hsa.NewStatusError(op, hsa.StatusErrorInvalidAgent, "")
	}
	return r.devices[agent.Handle-1], nil
}

func (r *Runtime) pool(op string, p hsa.MemoryPool) (*pool, error) {
	pl, ok := r.pools[p.Handle]
	if !ok {
		return nil, hsa.NewStatusError(op, hsa.StatusErrorInvalidArgument, "")
	}
	return pl, nil
}

func (r *Runtime) executable(op string, exe hsa.Executable) (*executable, error) {
	e, ok := r.executables[exe.Handle]
	if !ok {
		return nil, hsa.NewStatusError(op, hsa.StatusErrorInvalidExecutable, "")
	}
	return e, nil
}

func (r *Runtime) handle() uint64 {
	r.next++
	return 0x1000 + r.next
}

func roundUp(v, to uint64) uint64 {
	return (v + to - 1) / to * to
}

var _ hsa.Runtime = (*Runtime)(nil)

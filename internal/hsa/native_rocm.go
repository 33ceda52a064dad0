//go:build rocm
// +build rocm

package hsa

/*
#cgo CFLAGS: -I/opt/rocm/include
#cgo LDFLAGS: -L/opt/rocm/lib -lhsa-runtime64
#include <stdint.h>
#include <stdlib.h>
#include <hsa/hsa.h>
#include <hsa/hsa_ext_amd.h>

extern hsa_status_t goVisitAgent(hsa_agent_t agent, void *data);
extern hsa_status_t goVisitPool(hsa_amd_memory_pool_t pool, void *data);

static hsa_status_t fuzzyhsa_iterate_agents(uintptr_t handle) {
	return hsa_iterate_agents(goVisitAgent, (void *)handle);
}

static hsa_status_t fuzzyhsa_iterate_pools(hsa_agent_t agent, uintptr_t handle) {
	return hsa_amd_agent_iterate_memory_pools(agent, goVisitPool, (void *)handle);
}

static hsa_status_t fuzzyhsa_queue_create(hsa_agent_t agent, uint32_t size, uint32_t type, hsa_queue_t **queue) {
	return hsa_queue_create(agent, size, type, NULL, NULL, UINT32_MAX, UINT32_MAX, queue);
}

static hsa_status_t fuzzyhsa_queue_destroy(uintptr_t queue) {
	return hsa_queue_destroy((hsa_queue_t *)queue);
}

static hsa_status_t fuzzyhsa_pool_free(uintptr_t ptr) {
	return hsa_amd_memory_pool_free((void *)ptr);
}

static hsa_status_t fuzzyhsa_pool_allocate(hsa_amd_memory_pool_t pool, size_t size, uint32_t flags, uintptr_t *out) {
	void *ptr = NULL;
	hsa_status_t status = hsa_amd_memory_pool_allocate(pool, size, flags, &ptr);
	*out = (uintptr_t)ptr;
	return status;
}

static const char *fuzzyhsa_status_string(hsa_status_t status) {
	const char *text = NULL;
	if (hsa_status_string(status, &text) != HSA_STATUS_SUCCESS) {
		return NULL;
	}
	return text;
}
*/
import "C"
import (
	"os"
	"runtime/cgo"
	"unsafe"

	"go.uber.org/zap"
)

// NativeRuntime implements Runtime on top of libhsa-runtime64.
type NativeRuntime struct {
	log *zap.Logger
}

// NativeAvailable reports whether this binary was built with the ROCm binding.
func NativeAvailable() bool {
	return true
}

// NewNativeRuntime returns the ROCm-backed runtime. Nothing is called until Init.
func NewNativeRuntime(log *zap.Logger) (*NativeRuntime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	return &NativeRuntime{log: log.Named("rocm")}, nil
}

func (r *NativeRuntime) Name() string {
	return "rocm"
}

func (r *NativeRuntime) Init() error {
	return r.check("hsa_init", C.hsa_init())
}

func (r *NativeRuntime) ShutDown() error {
	return r.check("hsa_shut_down", C.hsa_shut_down())
}

func (r *NativeRuntime) IterateAgents(visit func(Agent) bool) error {
	h := cgo.NewHandle(visit)
	defer h.Delete()
	return r.check("hsa_iterate_agents", C.fuzzyhsa_iterate_agents(C.uintptr_t(h)))
}

func (r *NativeRuntime) AgentDevice(agent Agent) (DeviceType, error) {
	var device C.hsa_device_type_t
	status := C.hsa_agent_get_info(cAgent(agent), C.HSA_AGENT_INFO_DEVICE, unsafe.Pointer(&device))
	if err := r.check("hsa_agent_get_info(HSA_AGENT_INFO_DEVICE)", status); err != nil {
		return 0, err
	}
	return DeviceType(device), nil
}

func (r *NativeRuntime) AgentName(agent Agent) (string, error) {
	var name [64]C.char
	status := C.hsa_agent_get_info(cAgent(agent), C.HSA_AGENT_INFO_NAME, unsafe.Pointer(&name[0]))
	if err := r.check("hsa_agent_get_info(HSA_AGENT_INFO_NAME)", status); err != nil {
		return "", err
	}
	return C.GoString(&name[0]), nil
}

func (r *NativeRuntime) QueueCreate(agent Agent, size uint32, typ QueueType) (Queue, error) {
	var queue *C.hsa_queue_t
	status := C.fuzzyhsa_queue_create(cAgent(agent), C.uint32_t(size), C.uint32_t(typ), &queue)
	if err := r.check("hsa_queue_create", status); err != nil {
		return Queue{}, err
	}
	return Queue{Handle: uint64(uintptr(unsafe.Pointer(queue))), Size: size, Type: typ}, nil
}

func (r *NativeRuntime) QueueDestroy(queue Queue) error {
	return r.check("hsa_queue_destroy", C.fuzzyhsa_queue_destroy(C.uintptr_t(queue.Handle)))
}

func (r *NativeRuntime) IterateMemoryPools(agent Agent, visit func(MemoryPool) bool) error {
	h := cgo.NewHandle(visit)
	defer h.Delete()
	return r.check("hsa_amd_agent_iterate_memory_pools", C.fuzzyhsa_iterate_pools(cAgent(agent), C.uintptr_t(h)))
}

func (r *NativeRuntime) PoolSegment(pool MemoryPool) (Segment, error) {
	var segment C.hsa_amd_segment_t
	status := C.hsa_amd_memory_pool_get_info(cPool(pool), C.HSA_AMD_MEMORY_POOL_INFO_SEGMENT, unsafe.Pointer(&segment))
	if err := r.check("hsa_amd_memory_pool_get_info(HSA_AMD_MEMORY_POOL_INFO_SEGMENT)", status); err != nil {
		return 0, err
	}
	return Segment(segment), nil
}

func (r *NativeRuntime) PoolSize(pool MemoryPool) (uint64, error) {
	var size C.size_t
	status := C.hsa_amd_memory_pool_get_info(cPool(pool), C.HSA_AMD_MEMORY_POOL_INFO_SIZE, unsafe.Pointer(&size))
	if err := r.check("hsa_amd_memory_pool_get_info(HSA_AMD_MEMORY_POOL_INFO_SIZE)", status); err != nil {
		return 0, err
	}
	return uint64(size), nil
}

func (r *NativeRuntime) PoolAllocate(pool MemoryPool, size uint64, flags uint32) (uintptr, error) {
	var ptr C.uintptr_t
	status := C.fuzzyhsa_pool_allocate(cPool(pool), C.size_t(size), C.uint32_t(flags), &ptr)
	if err := r.check("hsa_amd_memory_pool_allocate", status); err != nil {
		return 0, err
	}
	return uintptr(ptr), nil
}

func (r *NativeRuntime) PoolFree(ptr uintptr) error {
	return r.check("hsa_amd_memory_pool_free", C.fuzzyhsa_pool_free(C.uintptr_t(ptr)))
}

func (r *NativeRuntime) CodeObjectReaderCreateFromFile(file *os.File) (CodeObjectReader, error) {
	var reader C.hsa_code_object_reader_t
	status := C.hsa_code_object_reader_create_from_file(C.hsa_file_t(file.Fd()), &reader)
	if err := r.check("hsa_code_object_reader_create_from_file", status); err != nil {
		return CodeObjectReader{}, err
	}
	return CodeObjectReader{Handle: uint64(reader.handle)}, nil
}

func (r *NativeRuntime) CodeObjectReaderDestroy(reader CodeObjectReader) error {
	return r.check("hsa_code_object_reader_destroy", C.hsa_code_object_reader_destroy(cReader(reader)))
}

func (r *NativeRuntime) ExecutableCreate(profile Profile, rounding FloatRoundingMode) (Executable, error) {
	var exe C.hsa_executable_t
	status := C.hsa_executable_create_alt(C.hsa_profile_t(profile), C.hsa_default_float_rounding_mode_t(rounding), nil, &exe)
	if err := r.check("hsa_executable_create_alt", status); err != nil {
		return Executable{}, err
	}
	return Executable{Handle: uint64(exe.handle)}, nil
}

func (r *NativeRuntime) ExecutableLoadAgentCodeObject(exe Executable, agent Agent, reader CodeObjectReader) error {
	status := C.hsa_executable_load_agent_code_object(cExecutable(exe), cAgent(agent), cReader(reader), nil, nil)
	return r.check("hsa_executable_load_agent_code_object", status)
}

func (r *NativeRuntime) ExecutableFreeze(exe Executable) error {
	return r.check("hsa_executable_freeze", C.hsa_executable_freeze(cExecutable(exe), nil))
}

func (r *NativeRuntime) ExecutableDestroy(exe Executable) error {
	return r.check("hsa_executable_destroy", C.hsa_executable_destroy(cExecutable(exe)))
}

func (r *NativeRuntime) ExecutableGetSymbol(exe Executable, name string, agent Agent) (ExecutableSymbol, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	a := cAgent(agent)
	var symbol C.hsa_executable_symbol_t
	status := C.hsa_executable_get_symbol_by_name(cExecutable(exe), cName, &a, &symbol)
	if err := r.check("hsa_executable_get_symbol_by_name", status); err != nil {
		return ExecutableSymbol{}, err
	}
	return ExecutableSymbol{Handle: uint64(symbol.handle)}, nil
}

func (r *NativeRuntime) SymbolInfo(symbol ExecutableSymbol, attr SymbolAttribute) (uint64, error) {
	s := C.hsa_executable_symbol_t{handle: C.uint64_t(symbol.Handle)}
	op := "hsa_executable_symbol_get_info(" + attr.String() + ")"

	if attr == SymbolKernelObject {
		var object C.uint64_t
		status := C.hsa_executable_symbol_get_info(s, C.HSA_EXECUTABLE_SYMBOL_INFO_KERNEL_OBJECT, unsafe.Pointer(&object))
		if err := r.check(op, status); err != nil {
			return 0, err
		}
		return uint64(object), nil
	}

	var info C.hsa_executable_symbol_info_t
	switch attr {
	case SymbolKernargSegmentSize:
		info = C.HSA_EXECUTABLE_SYMBOL_INFO_KERNEL_KERNARG_SEGMENT_SIZE
	case SymbolKernargSegmentAlignment:
		info = C.HSA_EXECUTABLE_SYMBOL_INFO_KERNEL_KERNARG_SEGMENT_ALIGNMENT
	case SymbolGroupSegmentSize:
		info = C.HSA_EXECUTABLE_SYMBOL_INFO_KERNEL_GROUP_SEGMENT_SIZE
	case SymbolPrivateSegmentSize:
		info = C.HSA_EXECUTABLE_SYMBOL_INFO_KERNEL_PRIVATE_SEGMENT_SIZE
	default:
		return 0, NewStatusError(op, StatusErrorInvalidArgument, "")
	}
	var value C.uint32_t
	if err := r.check(op, C.hsa_executable_symbol_get_info(s, info, unsafe.Pointer(&value))); err != nil {
		return 0, err
	}
	return uint64(value), nil
}

// check converts a status into a *StatusError using the runtime's own text.
func (r *NativeRuntime) check(op string, status C.hsa_status_t) error {
	s := Status(status)
	if s.OK() {
		return nil
	}
	var desc string
	if text := C.fuzzyhsa_status_string(status); text != nil {
		desc = C.GoString(text)
	}
	r.log.Debug("runtime call failed", zap.String("op", op), zap.Stringer("status", s))
	return NewStatusError(op, s, desc)
}

func cAgent(a Agent) C.hsa_agent_t {
	return C.hsa_agent_t{handle: C.uint64_t(a.Handle)}
}

func cPool(p MemoryPool) C.hsa_amd_memory_pool_t {
	return C.hsa_amd_memory_pool_t{handle: C.uint64_t(p.Handle)}
}

func cReader(r CodeObjectReader) C.hsa_code_object_reader_t {
	return C.hsa_code_object_reader_t{handle: C.uint64_t(r.Handle)}
}

func cExecutable(e Executable) C.hsa_executable_t {
	return C.hsa_executable_t{handle: C.uint64_t(e.Handle)}
}

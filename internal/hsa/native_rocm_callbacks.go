//go:build rocm
// +build rocm

package hsa

/*
#include <hsa/hsa.h>
#include <hsa/hsa_ext_amd.h>
*/
import "C"
import (
	"runtime/cgo"
	"unsafe"
)

//export goVisitAgent
func goVisitAgent(agent C.hsa_agent_t, data unsafe.Pointer) C.hsa_status_t {
	visit := cgo.Handle(uintptr(data)).Value().(func(Agent) bool)
	if !visit(Agent{Handle: uint64(agent.handle)}) {
		return C.HSA_STATUS_INFO_BREAK
	}
	return C.HSA_STATUS_SUCCESS
}

//export goVisitPool
func goVisitPool(pool C.hsa_amd_memory_pool_t, data unsafe.Pointer) C.hsa_status_t {
	visit := cgo.Handle(uintptr(data)).Value().(func(MemoryPool) bool)
	if !visit(MemoryPool{Handle: uint64(pool.handle)}) {
		return C.HSA_STATUS_INFO_BREAK
	}
	return C.HSA_STATUS_SUCCESS
}

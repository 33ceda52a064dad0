package hsa

import "fmt"

// Status is a runtime status code.
type Status uint32

const (
	StatusSuccess                      Status = 0x0
	StatusInfoBreak                    Status = 0x1
	StatusErrorGeneric                 Status = 0x1000
	StatusErrorInvalidArgument         Status = 0x1001
	StatusErrorInvalidQueueCreation    Status = 0x1002
	StatusErrorInvalidAllocation       Status = 0x1003
	StatusErrorInvalidAgent            Status = 0x1004
	StatusErrorInvalidRegion           Status = 0x1005
	StatusErrorInvalidSignal           Status = 0x1006
	StatusErrorInvalidQueue            Status = 0x1007
	StatusErrorOutOfResources          Status = 0x1008
	StatusErrorInvalidPacketFormat     Status = 0x1009
	StatusErrorResourceFree            Status = 0x100A
	StatusErrorNotInitialized          Status = 0x100B
	StatusErrorRefcountOverflow        Status = 0x100C
	StatusErrorIncompatibleArguments   Status = 0x100D
	StatusErrorInvalidIndex            Status = 0x100E
	StatusErrorInvalidISA              Status = 0x100F
	StatusErrorInvalidCodeObject       Status = 0x1010
	StatusErrorInvalidExecutable       Status = 0x1011
	StatusErrorFrozenExecutable        Status = 0x1012
	StatusErrorInvalidSymbolName       Status = 0x1013
	StatusErrorVariableAlreadyDefined  Status = 0x1014
	StatusErrorVariableUndefined       Status = 0x1015
	StatusErrorException               Status = 0x1016
	StatusErrorInvalidISAName          Status = 0x1017
	StatusErrorInvalidCodeSymbol       Status = 0x1018
	StatusErrorInvalidExecutableSymbol Status = 0x1019
	StatusErrorInvalidFile             Status = 0x1020
	StatusErrorInvalidCodeObjectReader Status = 0x1021
	StatusErrorInvalidCache            Status = 0x1022
	StatusErrorInvalidWavefront        Status = 0x1023
	StatusErrorInvalidSignalGroup      Status = 0x1024
	StatusErrorInvalidRuntimeState     Status = 0x1025
	StatusErrorFatal                   Status = 0x1026
)

var statusText = map[Status]string{
	StatusSuccess:                      "HSA_STATUS_SUCCESS: The function has been executed successfully.",
	StatusInfoBreak:                    "HSA_STATUS_INFO_BREAK: A traversal over a list of elements has been interrupted by the application before completing.",
	StatusErrorGeneric:                 "HSA_STATUS_ERROR: A generic error has occurred.",
	StatusErrorInvalidArgument:         "HSA_STATUS_ERROR_INVALID_ARGUMENT: One of the actual arguments does not meet a precondition stated in the documentation of the corresponding formal argument.",
	StatusErrorInvalidQueueCreation:    "HSA_STATUS_ERROR_INVALID_QUEUE_CREATION: The requested queue creation is not valid.",
	StatusErrorInvalidAllocation:       "HSA_STATUS_ERROR_INVALID_ALLOCATION: The requested allocation is not valid.",
	StatusErrorInvalidAgent:            "HSA_STATUS_ERROR_INVALID_AGENT: The agent is invalid.",
	StatusErrorInvalidRegion:           "HSA_STATUS_ERROR_INVALID_REGION: The memory region is invalid.",
	StatusErrorInvalidSignal:           "HSA_STATUS_ERROR_INVALID_SIGNAL: The signal is invalid.",
	StatusErrorInvalidQueue:            "HSA_STATUS_ERROR_INVALID_QUEUE: The queue is invalid.",
	StatusErrorOutOfResources:          "HSA_STATUS_ERROR_OUT_OF_RESOURCES: The runtime failed to allocate the necessary resources.",
	StatusErrorInvalidPacketFormat:     "HSA_STATUS_ERROR_INVALID_PACKET_FORMAT: The AQL packet is malformed.",
	StatusErrorResourceFree:            "HSA_STATUS_ERROR_RESOURCE_FREE: An error has been detected while releasing a resource.",
	StatusErrorNotInitialized:          "HSA_STATUS_ERROR_NOT_INITIALIZED: An API other than hsa_init has been invoked while the reference count of the HSA runtime is zero.",
	StatusErrorRefcountOverflow:        "HSA_STATUS_ERROR_REFCOUNT_OVERFLOW: The maximum reference count for the object has been reached.",
	StatusErrorIncompatibleArguments:   "HSA_STATUS_ERROR_INCOMPATIBLE_ARGUMENTS: The arguments passed to a functions are not compatible.",
	StatusErrorInvalidIndex:            "HSA_STATUS_ERROR_INVALID_INDEX: The index is invalid.",
	StatusErrorInvalidISA:              "HSA_STATUS_ERROR_INVALID_ISA: The instruction set architecture is invalid.",
	StatusErrorInvalidCodeObject:       "HSA_STATUS_ERROR_INVALID_CODE_OBJECT: The code object is invalid.",
	StatusErrorInvalidExecutable:       "HSA_STATUS_ERROR_INVALID_EXECUTABLE: The executable is invalid.",
	StatusErrorFrozenExecutable:        "HSA_STATUS_ERROR_FROZEN_EXECUTABLE: The executable is frozen.",
	StatusErrorInvalidSymbolName:       "HSA_STATUS_ERROR_INVALID_SYMBOL_NAME: There is no symbol with the given name.",
	StatusErrorVariableAlreadyDefined:  "HSA_STATUS_ERROR_VARIABLE_ALREADY_DEFINED: The variable is already defined.",
	StatusErrorVariableUndefined:       "HSA_STATUS_ERROR_VARIABLE_UNDEFINED: The variable is undefined.",
	StatusErrorException:               "HSA_STATUS_ERROR_EXCEPTION: An HSAIL operation resulted in a hardware exception.",
	StatusErrorInvalidISAName:          "HSA_STATUS_ERROR_INVALID_ISA_NAME: The instruction set architecture name is invalid.",
	StatusErrorInvalidCodeSymbol:       "HSA_STATUS_ERROR_INVALID_CODE_SYMBOL: The code object symbol is invalid.",
	StatusErrorInvalidExecutableSymbol: "HSA_STATUS_ERROR_INVALID_EXECUTABLE_SYMBOL: The executable symbol is invalid.",
	StatusErrorInvalidFile:             "HSA_STATUS_ERROR_INVALID_FILE: The file descriptor is invalid.",
	StatusErrorInvalidCodeObjectReader: "HSA_STATUS_ERROR_INVALID_CODE_OBJECT_READER: The code object reader is invalid.",
	StatusErrorInvalidCache:            "HSA_STATUS_ERROR_INVALID_CACHE: The cache is invalid.",
	StatusErrorInvalidWavefront:        "HSA_STATUS_ERROR_INVALID_WAVEFRONT: The wavefront is invalid.",
	StatusErrorInvalidSignalGroup:      "HSA_STATUS_ERROR_INVALID_SIGNAL_GROUP: The signal group is invalid.",
	StatusErrorInvalidRuntimeState:     "HSA_STATUS_ERROR_INVALID_RUNTIME_STATE: The HSA runtime is not in the configuration state.",
	StatusErrorFatal:                   "HSA_STATUS_ERROR_FATAL: The queue received an error that may require process termination.",
}

// Text returns the runtime's description of s.
func (s Status) Text() string {
	if text, ok := statusText[s]; ok {
		return text
	}
	return fmt.Sprintf("Unknown error (0x%x)", uint32(s))
}

func (s Status) String() string {
	return fmt.Sprintf("0x%x", uint32(s))
}

// OK reports whether s is a success code. INFO_BREAK counts as success: it is
// what an iteration returns when the visitor stopped it.
func (s Status) OK() bool {
	return s == StatusSuccess || s == StatusInfoBreak
}

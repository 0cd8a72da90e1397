package vxi11

import "fmt"

var procedureNames = map[uint32]string{
	ProcCreateLink:  "CREATE_LINK",
	ProcDeviceWrite: "DEVICE_WRITE",
	ProcDeviceRead:  "DEVICE_READ",
	ProcDestroyLink: "DESTROY_LINK",
}

var errorNames = map[uint32]string{
	ErrNoError:               "NO_ERROR",
	ErrSyntax:                "SYNTAX_ERROR",
	ErrDeviceNotAccessible:   "DEVICE_NOT_ACCESSIBLE",
	ErrInvalidLinkIdentifier: "INVALID_LINK_IDENTIFIER",
	ErrParameter:             "PARAMETER_ERROR",
	ErrChannelNotEstablished: "CHANNEL_NOT_ESTABLISHED",
	ErrOperationNotSupported: "OPERATION_NOT_SUPPORTED",
	ErrOutOfResources:        "OUT_OF_RESOURCES",
	ErrDeviceLocked:          "DEVICE_LOCKED",
	ErrNoLockHeldByLink:      "NO_LOCK_HELD_BY_LINK",
	ErrIOTimeout:             "IO_TIMEOUT",
	ErrIOError:               "IO_ERROR",
	ErrInvalidAddress:        "INVALID_ADDRESS",
	ErrAbort:                 "ABORT",
	ErrChannelAlreadyExists:  "CHANNEL_ALREADY_ESTABLISHED",
}

// ProcedureName returns the symbolic name of a DEVICE_CORE procedure.
func ProcedureName(proc uint32) string {
	if name, ok := procedureNames[proc]; ok {
		return name
	}
	return fmt.Sprintf("PROC_%d", proc)
}

// ErrorName returns the symbolic name of a device error code.
func ErrorName(code uint32) string {
	if name, ok := errorNames[code]; ok {
		return name
	}
	return fmt.Sprintf("ERROR_%d", code)
}

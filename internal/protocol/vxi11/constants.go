// Package vxi11 holds the wire schema of the VXI-11 DEVICE_CORE channel:
// program and procedure numbers, device error codes and the XDR layouts
// of the arguments and results of the procedures the gateway serves.
//
// Reference: VXI-11 TCP/IP Instrument Protocol, Rev 1.0, appendix B.6
package vxi11

// Program identification.
const (
	Program = 0x0607AF
	Version = 1
)

// DEVICE_CORE procedures served by the gateway.
const (
	ProcCreateLink  = 10
	ProcDeviceWrite = 11
	ProcDeviceRead  = 12
	ProcDestroyLink = 23
)

// Device error codes (Device_ErrorCode).
const (
	ErrNoError               = 0
	ErrSyntax                = 1
	ErrDeviceNotAccessible   = 3
	ErrInvalidLinkIdentifier = 4
	ErrParameter             = 5
	ErrChannelNotEstablished = 6
	ErrOperationNotSupported = 8
	ErrOutOfResources        = 9
	ErrDeviceLocked          = 11
	ErrNoLockHeldByLink      = 12
	ErrIOTimeout             = 15
	ErrIOError               = 17
	ErrInvalidAddress        = 21
	ErrAbort                 = 23
	ErrChannelAlreadyExists  = 29
)

// Device_ReadResp reason bits.
const (
	ReasonRequestCount = 1 << 0
	ReasonTermChar     = 1 << 1
	ReasonEnd          = 1 << 2
)

// Device_Flags bits.
const (
	FlagWaitLock    = 1 << 0
	FlagEnd         = 1 << 3
	FlagTermCharSet = 1 << 7
)

// MaxAddress is the highest bus address a device name may resolve to.
const MaxAddress = 31

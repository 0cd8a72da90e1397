package rpc

// RPC Program Numbers
//
// Reference: RFC 1833 (portmapper), VXI-11 Rev 1.0 B.6 (device core channel)
const (
	// ProgramPortmap is the port mapper program number (RFC 1833).
	// Clients query it on port 111 to learn which TCP port serves
	// the instrument program.
	ProgramPortmap = 100000

	// ProgramDeviceCore is the VXI-11 DEVICE_CORE program number (0x0607AF).
	ProgramDeviceCore = 0x0607AF
)

// RPCVersion is the only ONC-RPC protocol version in use (RFC 5531).
const RPCVersion = 2

// RPC Message Types
const (
	// RPCCall indicates an RPC call message
	RPCCall = 0

	// RPCReply indicates an RPC reply message
	RPCReply = 1
)

// RPC Reply States
const (
	// RPCMsgAccepted indicates the RPC call was accepted
	RPCMsgAccepted = 0

	// RPCMsgDenied indicates the RPC call was denied
	RPCMsgDenied = 1
)

// RPC Accept Status
//
// Reference: RFC 5531 Section 9, enum accept_stat
const (
	// RPCSuccess indicates the procedure executed and results follow.
	RPCSuccess = 0

	// RPCProgUnavail indicates the remote end does not export the program.
	RPCProgUnavail = 1

	// RPCProgMismatch indicates the program version is not supported.
	// The reply body carries the lowest and highest supported versions.
	RPCProgMismatch = 2

	// RPCProcUnavail indicates the program cannot support the procedure.
	RPCProcUnavail = 3

	// RPCGarbageArgs indicates the procedure could not decode its arguments.
	RPCGarbageArgs = 4

	// RPCSystemErr indicates a server-side error such as memory allocation failure.
	RPCSystemErr = 5
)

// AuthNull is the only authentication flavor emitted in replies.
const AuthNull = 0

// Record marking (RFC 5531 Section 11).
const (
	// LastFragmentFlag is bit 31 of the record mark.
	LastFragmentFlag = 0x80000000

	// FragmentLengthMask extracts the fragment length from a record mark.
	FragmentLengthMask = 0x7FFFFFFF
)

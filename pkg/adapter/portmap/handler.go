package portmap

import (
	"github.com/marmos91/gpibgate/internal/logger"
	pmap "github.com/marmos91/gpibgate/internal/protocol/portmap"
	"github.com/marmos91/gpibgate/internal/protocol/rpc"
)

// Lookup results reported to metrics.
const (
	resultSuccess      = "success"
	resultUnregistered = "unregistered"
	resultNoCapacity   = "dropped"
	resultRateLimited  = "rate_limited"
	resultMalformed    = "malformed"
	resultProgUnavail  = "prog_unavail"
	resultProgMismatch = "prog_mismatch"
	resultProcUnavail  = "proc_unavail"
	resultGarbageArgs  = "garbage_args"
)

// Allocator reports where the instrument channel can be reached.
// Allocate returns the VXI-11 core port while a link can still be created,
// and 0 otherwise.
type Allocator interface {
	Allocate() uint32
}

// handleCall answers one unframed RPC message from source. A nil reply
// means the request is dropped without an answer.
func (s *Adapter) handleCall(message []byte, source string) ([]byte, string) {
	if !s.limiter.Allow(source) {
		return nil, resultRateLimited
	}

	// nothing to offer: stay silent so clients move on to another gateway
	if s.allocator.Allocate() == 0 {
		return nil, resultNoCapacity
	}

	call, err := rpc.ReadCall(message)
	if err != nil {
		logger.Debug("Portmap: discarding malformed call from %s: %v", source, err)
		return nil, resultMalformed
	}

	args, err := rpc.ReadData(message, call)
	if err != nil {
		logger.Debug("Portmap: discarding call from %s: %v", source, err)
		return nil, resultMalformed
	}

	reply, result, err := s.dispatch(call, args)
	if err != nil {
		logger.Warn("Portmap: encode reply to %s: %v", source, err)
		return nil, resultMalformed
	}
	return reply, result
}

func (s *Adapter) dispatch(call *rpc.RPCCallMessage, args []byte) ([]byte, string, error) {
	if call.Program != pmap.Program {
		reply, err := rpc.EncodeReply(call.XID, rpc.RPCProgUnavail, nil)
		return reply, resultProgUnavail, err
	}
	if call.Version != pmap.Version {
		reply, err := rpc.EncodeMismatchReply(call.XID, pmap.Version, pmap.Version)
		return reply, resultProgMismatch, err
	}
	if call.Procedure != pmap.ProcGetPort {
		reply, err := rpc.EncodeReply(call.XID, rpc.RPCProcUnavail, nil)
		return reply, resultProcUnavail, err
	}

	mapping, err := pmap.DecodeMapping(args)
	if err != nil {
		reply, err := rpc.EncodeReply(call.XID, rpc.RPCGarbageArgs, nil)
		return reply, resultGarbageArgs, err
	}

	logger.Debug("Portmap GETPORT: prog=0x%x vers=%d prot=%d", mapping.Prog, mapping.Vers, mapping.Prot)

	if mapping.Prog != rpc.ProgramDeviceCore || mapping.Prot != pmap.ProtoTCP {
		reply, err := rpc.EncodeReply(call.XID, rpc.RPCSuccess, pmap.EncodeGetportResponse(0))
		return reply, resultUnregistered, err
	}

	port := s.allocator.Allocate()
	if port == 0 {
		// the last slot went away since the capacity check
		reply, err := rpc.EncodeReply(call.XID, rpc.RPCGarbageArgs, nil)
		return reply, resultGarbageArgs, err
	}

	reply, err := rpc.EncodeReply(call.XID, rpc.RPCSuccess, pmap.EncodeGetportResponse(port))
	return reply, resultSuccess, err
}

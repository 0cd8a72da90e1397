package rpc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// MaxAuthBytes is the largest credential or verifier body allowed by RFC 5531.
const MaxAuthBytes = 400

var (
	// ErrShortMessage is returned when a message ends inside the call header.
	ErrShortMessage = errors.New("rpc: message shorter than call header")

	// ErrNotCall is returned when a message is not an RPC CALL.
	ErrNotCall = errors.New("rpc: message is not a call")
)

// fixedHeaderLen covers XID, MsgType, RPCVersion, Program, Version, Procedure.
const fixedHeaderLen = 24

// headerLen walks the call header and returns the offset of the first
// procedure argument byte. Every length is checked against the message so
// that a hostile length field can never drive an allocation.
func headerLen(message []byte) (int, error) {
	offset := fixedHeaderLen

	// credential then verifier: flavor, length, body, padding
	for i := 0; i < 2; i++ {
		if len(message) < offset+8 {
			return 0, ErrShortMessage
		}
		bodyLen := binary.BigEndian.Uint32(message[offset+4 : offset+8])
		if bodyLen > MaxAuthBytes {
			return 0, fmt.Errorf("rpc: auth body of %d bytes exceeds %d", bodyLen, MaxAuthBytes)
		}
		offset += 8 + int(bodyLen) + int(XdrPadding(bodyLen))
		if len(message) < offset {
			return 0, ErrShortMessage
		}
	}

	return offset, nil
}

// ReadCall parses the RPC call header at the start of data.
//
// The message type must be CALL. The RPC version is not enforced: the
// clients this gateway serves always send 2, and a mismatch only matters
// for the auth flavors that are never checked anyway.
func ReadCall(data []byte) (*RPCCallMessage, error) {
	if _, err := headerLen(data); err != nil {
		return nil, err
	}

	call := &RPCCallMessage{}
	if _, err := xdr.Unmarshal(bytes.NewReader(data), call); err != nil {
		return nil, fmt.Errorf("unmarshal RPC call: %w", err)
	}

	if call.MsgType != RPCCall {
		return nil, fmt.Errorf("%w: got message type %d", ErrNotCall, call.MsgType)
	}

	return call, nil
}

// ReadData returns the procedure arguments that follow the call header.
// An empty slice is returned for procedures without arguments.
func ReadData(message []byte, call *RPCCallMessage) ([]byte, error) {
	offset, err := headerLen(message)
	if err != nil {
		return nil, err
	}

	if offset >= len(message) {
		return []byte{}, nil
	}
	return message[offset:], nil
}

// EncodeReply builds an accepted reply without record marking.
// Results are appended only for RPCSuccess and RPCProgMismatch, which
// are the only accept states that carry a body.
func EncodeReply(xid uint32, acceptStat uint32, data []byte) ([]byte, error) {
	reply := RPCReplyMessage{
		XID:        xid,
		MsgType:    RPCReply,
		ReplyState: RPCMsgAccepted,
		Verf: OpaqueAuth{
			Flavor: AuthNull,
			Body:   []byte{},
		},
		AcceptStat: acceptStat,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 24+len(data)))
	if _, err := xdr.Marshal(buf, &reply); err != nil {
		return nil, fmt.Errorf("marshal reply: %w", err)
	}

	if acceptStat == RPCSuccess || acceptStat == RPCProgMismatch {
		buf.Write(data)
	}

	return buf.Bytes(), nil
}

// EncodeMismatchReply builds an unframed PROG_MISMATCH reply advertising
// the supported version range.
func EncodeMismatchReply(xid uint32, low, high uint32) ([]byte, error) {
	var body bytes.Buffer
	if _, err := xdr.Marshal(&body, &MismatchInfo{Low: low, High: high}); err != nil {
		return nil, fmt.Errorf("marshal mismatch info: %w", err)
	}
	return EncodeReply(xid, RPCProgMismatch, body.Bytes())
}

// XdrPadding returns the number of zero bytes that align length to 4.
func XdrPadding(length uint32) uint32 {
	return (4 - (length % 4)) % 4
}

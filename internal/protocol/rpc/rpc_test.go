package rpc

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	xdr "github.com/rasky/go-xdr/xdr2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

func encodeCall(t *testing.T, call RPCCallMessage, args []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	_, err := xdr.Marshal(&buf, &call)
	require.NoError(t, err)
	buf.Write(args)
	return buf.Bytes()
}

func deviceCoreCall(xid, proc uint32) RPCCallMessage {
	return RPCCallMessage{
		XID:        xid,
		MsgType:    RPCCall,
		RPCVersion: RPCVersion,
		Program:    ProgramDeviceCore,
		Version:    1,
		Procedure:  proc,
		Cred:       OpaqueAuth{Flavor: AuthNull, Body: []byte{}},
		Verf:       OpaqueAuth{Flavor: AuthNull, Body: []byte{}},
	}
}

func fragment(last bool, payload []byte) []byte {
	mark := uint32(len(payload))
	if last {
		mark |= LastFragmentFlag
	}
	out := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(out, mark)
	return append(out, payload...)
}

// ============================================================================
// ReadCall / ReadData Tests
// ============================================================================

func TestReadCall(t *testing.T) {
	t.Run("ParsesHeaderAndArguments", func(t *testing.T) {
		args := []byte{0, 0, 0, 7, 0xde, 0xad, 0xbe, 0xef}
		msg := encodeCall(t, deviceCoreCall(0x1234, 10), args)

		call, err := ReadCall(msg)
		require.NoError(t, err)
		assert.Equal(t, uint32(0x1234), call.XID)
		assert.Equal(t, uint32(ProgramDeviceCore), call.Program)
		assert.Equal(t, uint32(1), call.Version)
		assert.Equal(t, uint32(10), call.Procedure)

		data, err := ReadData(msg, call)
		require.NoError(t, err)
		assert.Equal(t, args, data)
	})

	t.Run("SkipsPaddedCredentials", func(t *testing.T) {
		c := deviceCoreCall(1, 11)
		c.Cred = OpaqueAuth{Flavor: 1, Body: []byte{1, 2, 3, 4, 5}}
		c.Verf = OpaqueAuth{Flavor: AuthNull, Body: []byte{9}}
		args := []byte{0, 0, 0, 42}
		msg := encodeCall(t, c, args)

		call, err := ReadCall(msg)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3, 4, 5}, call.Cred.Body)

		data, err := ReadData(msg, call)
		require.NoError(t, err)
		assert.Equal(t, args, data)
	})

	t.Run("EmptyArguments", func(t *testing.T) {
		msg := encodeCall(t, deviceCoreCall(1, 0), nil)

		call, err := ReadCall(msg)
		require.NoError(t, err)

		data, err := ReadData(msg, call)
		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("RejectsShortMessage", func(t *testing.T) {
		msg := encodeCall(t, deviceCoreCall(1, 10), nil)

		_, err := ReadCall(msg[:30])
		assert.ErrorIs(t, err, ErrShortMessage)

		_, err = ReadCall(msg[:10])
		assert.ErrorIs(t, err, ErrShortMessage)
	})

	t.Run("RejectsReplyMessage", func(t *testing.T) {
		c := deviceCoreCall(1, 10)
		c.MsgType = RPCReply
		_, err := ReadCall(encodeCall(t, c, nil))
		assert.ErrorIs(t, err, ErrNotCall)
	})

	t.Run("RejectsOversizedAuth", func(t *testing.T) {
		msg := encodeCall(t, deviceCoreCall(1, 10), nil)
		// credential length field lives at offset 28
		binary.BigEndian.PutUint32(msg[28:32], 0x7FFFFFF0)

		_, err := ReadCall(msg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds")
	})
}

// ============================================================================
// Reply Encoding Tests
// ============================================================================

func TestEncodeReply(t *testing.T) {
	t.Run("SuccessCarriesResults", func(t *testing.T) {
		reply, err := EncodeReply(0xCAFE, RPCSuccess, []byte{0, 0, 0, 1})
		require.NoError(t, err)
		require.Len(t, reply, 28)

		assert.Equal(t, uint32(0xCAFE), binary.BigEndian.Uint32(reply[0:4]))
		assert.Equal(t, uint32(RPCReply), binary.BigEndian.Uint32(reply[4:8]))
		assert.Equal(t, uint32(RPCMsgAccepted), binary.BigEndian.Uint32(reply[8:12]))
		assert.Equal(t, uint32(AuthNull), binary.BigEndian.Uint32(reply[12:16]))
		assert.Equal(t, uint32(0), binary.BigEndian.Uint32(reply[16:20]))
		assert.Equal(t, uint32(RPCSuccess), binary.BigEndian.Uint32(reply[20:24]))
		assert.Equal(t, uint32(1), binary.BigEndian.Uint32(reply[24:28]))
	})

	t.Run("ErrorOmitsResults", func(t *testing.T) {
		for _, stat := range []uint32{RPCProgUnavail, RPCProcUnavail, RPCGarbageArgs} {
			reply, err := EncodeReply(7, stat, []byte{1, 2, 3, 4})
			require.NoError(t, err)
			require.Len(t, reply, 24)
			assert.Equal(t, stat, binary.BigEndian.Uint32(reply[20:24]))
		}
	})

	t.Run("MismatchCarriesVersionRange", func(t *testing.T) {
		reply, err := EncodeMismatchReply(9, 1, 1)
		require.NoError(t, err)
		require.Len(t, reply, 32)
		assert.Equal(t, uint32(RPCProgMismatch), binary.BigEndian.Uint32(reply[20:24]))
		assert.Equal(t, uint32(1), binary.BigEndian.Uint32(reply[24:28]))
		assert.Equal(t, uint32(1), binary.BigEndian.Uint32(reply[28:32]))
	})
}

func TestAcceptStatValues(t *testing.T) {
	assert.Equal(t, 0, RPCSuccess)
	assert.Equal(t, 1, RPCProgUnavail)
	assert.Equal(t, 2, RPCProgMismatch)
	assert.Equal(t, 3, RPCProcUnavail)
	assert.Equal(t, 4, RPCGarbageArgs)
}

// ============================================================================
// Record Marking Tests
// ============================================================================

func TestReadRecord(t *testing.T) {
	t.Run("SingleFragment", func(t *testing.T) {
		r := bytes.NewReader(fragment(true, []byte("hello")))
		record, err := ReadRecord(r, 1024)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), record)
	})

	t.Run("ReassemblesFragments", func(t *testing.T) {
		var stream []byte
		stream = append(stream, fragment(false, []byte("abc"))...)
		stream = append(stream, fragment(false, []byte("def"))...)
		stream = append(stream, fragment(true, []byte("gh"))...)
		stream = append(stream, fragment(true, []byte("next"))...)

		r := bytes.NewReader(stream)
		record, err := ReadRecord(r, 1024)
		require.NoError(t, err)
		assert.Equal(t, []byte("abcdefgh"), record)

		record, err = ReadRecord(r, 1024)
		require.NoError(t, err)
		assert.Equal(t, []byte("next"), record)
	})

	t.Run("RejectsOversizedRecord", func(t *testing.T) {
		var stream []byte
		stream = append(stream, fragment(false, make([]byte, 60))...)
		stream = append(stream, fragment(true, make([]byte, 60))...)

		_, err := ReadRecord(bytes.NewReader(stream), 100)
		assert.ErrorIs(t, err, ErrRecordTooLarge)
	})

	t.Run("RejectsHugeLengthWithoutAllocating", func(t *testing.T) {
		var hdr [4]byte
		binary.BigEndian.PutUint32(hdr[:], LastFragmentFlag|FragmentLengthMask)
		_, err := ReadRecord(bytes.NewReader(hdr[:]), 4096)
		assert.ErrorIs(t, err, ErrRecordTooLarge)
	})

	t.Run("CleanEOF", func(t *testing.T) {
		_, err := ReadRecord(bytes.NewReader(nil), 1024)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("TruncatedFragment", func(t *testing.T) {
		stream := fragment(true, []byte("hello"))
		_, err := ReadRecord(bytes.NewReader(stream[:6]), 1024)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("EOFBetweenFragments", func(t *testing.T) {
		_, err := ReadRecord(bytes.NewReader(fragment(false, []byte("abc"))), 1024)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestAddRecordMark(t *testing.T) {
	framed := AddRecordMark([]byte{1, 2, 3})
	require.Len(t, framed, 7)
	assert.Equal(t, uint32(LastFragmentFlag|3), binary.BigEndian.Uint32(framed[0:4]))
	assert.Equal(t, []byte{1, 2, 3}, framed[4:])

	record, err := ReadRecord(bytes.NewReader(framed), 16)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, record)
}

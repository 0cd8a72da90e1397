// Package portmap encodes and decodes the portmapper (portmap v2) messages
// the gateway answers: GETPORT only.
//
// The mapping struct is 4 fixed-size uint32 fields, so encoding is done
// directly with encoding/binary BigEndian.
//
// References:
//   - RFC 1057 Section A (Port Mapper Program Protocol)
//   - RFC 1833 (Binding Protocols for ONC RPC Version 2)
package portmap

import (
	"encoding/binary"
	"fmt"
)

// Program identification.
const (
	Program = 100000
	Version = 2
)

// Portmap procedures. Only GETPORT is served.
const (
	ProcNull    = 0
	ProcSet     = 1
	ProcUnset   = 2
	ProcGetPort = 3
	ProcDump    = 4
)

// Transport protocol numbers carried in Mapping.Prot.
const (
	ProtoTCP = 6
	ProtoUDP = 17
)

// Mapping represents a portmap mapping entry.
//
// Wire format (RFC 1057):
//
//	prog: uint32 - RPC program number
//	vers: uint32 - RPC program version
//	prot: uint32 - Protocol (6=TCP, 17=UDP)
//	port: uint32 - Port number (ignored in GETPORT)
type Mapping struct {
	Prog uint32
	Vers uint32
	Prot uint32
	Port uint32
}

// MappingSize is the XDR-encoded size of a single mapping (4 x uint32 = 16 bytes).
const MappingSize = 16

// DecodeMapping decodes the GETPORT argument.
func DecodeMapping(data []byte) (*Mapping, error) {
	if len(data) < MappingSize {
		return nil, fmt.Errorf("portmap: mapping needs %d bytes, got %d", MappingSize, len(data))
	}
	return &Mapping{
		Prog: binary.BigEndian.Uint32(data[0:4]),
		Vers: binary.BigEndian.Uint32(data[4:8]),
		Prot: binary.BigEndian.Uint32(data[8:12]),
		Port: binary.BigEndian.Uint32(data[12:16]),
	}, nil
}

// EncodeMapping encodes a single portmap mapping to 16 bytes XDR.
func EncodeMapping(m *Mapping) []byte {
	buf := make([]byte, MappingSize)
	binary.BigEndian.PutUint32(buf[0:4], m.Prog)
	binary.BigEndian.PutUint32(buf[4:8], m.Vers)
	binary.BigEndian.PutUint32(buf[8:12], m.Prot)
	binary.BigEndian.PutUint32(buf[12:16], m.Port)
	return buf
}

// EncodeGetportResponse encodes a GETPORT response as a single uint32.
// Port 0 means the program is not registered.
func EncodeGetportResponse(port uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, port)
	return buf
}

package vxi11

import (
	"bytes"
	"encoding/binary"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// CreateLinkParms are the arguments of CREATE_LINK.
type CreateLinkParms struct {
	ClientID    int32
	LockDevice  bool
	LockTimeout uint32
	Device      string
}

// CreateLinkResp is the result of CREATE_LINK. AbortPort is always 0: the
// gateway serves no abort channel.
type CreateLinkResp struct {
	Error       uint32
	LinkID      uint32
	AbortPort   uint32
	MaxRecvSize uint32
}

// DeviceWriteParms are the arguments of DEVICE_WRITE.
type DeviceWriteParms struct {
	LinkID      uint32
	IOTimeout   uint32
	LockTimeout uint32
	Flags       uint32
	Data        []byte
}

// DeviceWriteResp is the result of DEVICE_WRITE.
type DeviceWriteResp struct {
	Error uint32
	Size  uint32
}

// DeviceReadParms are the arguments of DEVICE_READ. TermChar travels as
// a full XDR word even though only its low byte is meaningful.
type DeviceReadParms struct {
	LinkID      uint32
	RequestSize uint32
	IOTimeout   uint32
	LockTimeout uint32
	Flags       uint32
	TermChar    uint32
}

// DeviceReadResp is the result of DEVICE_READ.
type DeviceReadResp struct {
	Error  uint32
	Reason uint32
	Data   []byte
}

// DeviceLink is the argument of DESTROY_LINK.
type DeviceLink struct {
	LinkID uint32
}

// DeviceError is the result of DESTROY_LINK and other bare status replies.
type DeviceError struct {
	Error uint32
}

// checkOpaque verifies that the variable-length field starting at offset
// fits in data, so the XDR decoder never sizes a buffer from an untrusted
// length alone.
func checkOpaque(data []byte, offset int, what string) error {
	if len(data) < offset+4 {
		return fmt.Errorf("%s: truncated at length field", what)
	}
	n := binary.BigEndian.Uint32(data[offset : offset+4])
	if uint64(n) > uint64(len(data)-offset-4) {
		return fmt.Errorf("%s: declared length %d exceeds %d remaining bytes",
			what, n, len(data)-offset-4)
	}
	return nil
}

func decode(data []byte, v any, what string) error {
	if _, err := xdr.Unmarshal(bytes.NewReader(data), v); err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}

// DecodeCreateLinkParms decodes CREATE_LINK arguments.
func DecodeCreateLinkParms(data []byte) (*CreateLinkParms, error) {
	if err := checkOpaque(data, 12, "create_link device"); err != nil {
		return nil, err
	}
	p := &CreateLinkParms{}
	if err := decode(data, p, "Create_LinkParms"); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodeDeviceWriteParms decodes DEVICE_WRITE arguments.
func DecodeDeviceWriteParms(data []byte) (*DeviceWriteParms, error) {
	if err := checkOpaque(data, 16, "device_write data"); err != nil {
		return nil, err
	}
	p := &DeviceWriteParms{}
	if err := decode(data, p, "Device_WriteParms"); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodeDeviceReadParms decodes DEVICE_READ arguments.
func DecodeDeviceReadParms(data []byte) (*DeviceReadParms, error) {
	p := &DeviceReadParms{}
	if err := decode(data, p, "Device_ReadParms"); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodeDeviceLink decodes the DESTROY_LINK argument.
func DecodeDeviceLink(data []byte) (*DeviceLink, error) {
	p := &DeviceLink{}
	if err := decode(data, p, "Device_Link"); err != nil {
		return nil, err
	}
	return p, nil
}

// Encode XDR-encodes any of the result structs of this package.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, v); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

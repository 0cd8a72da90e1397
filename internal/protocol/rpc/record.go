package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrRecordTooLarge is returned when the fragments of one record add up
// to more than the caller's limit.
var ErrRecordTooLarge = errors.New("rpc: record exceeds maximum size")

// FragmentHeader is a decoded TCP record mark.
type FragmentHeader struct {
	IsLast bool
	Length uint32
}

// ReadFragmentHeader reads one 4-byte record mark.
func ReadFragmentHeader(r io.Reader) (*FragmentHeader, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}

	header := binary.BigEndian.Uint32(buf[:])
	return &FragmentHeader{
		IsLast: (header & LastFragmentFlag) != 0,
		Length: header & FragmentLengthMask,
	}, nil
}

// ReadRecord reads fragments until the last-fragment bit is seen and
// returns the reassembled record. maxSize bounds the total record length.
//
// io.EOF is returned unchanged when the stream ends cleanly before a
// record starts; an EOF inside a record is reported as io.ErrUnexpectedEOF.
func ReadRecord(r io.Reader, maxSize uint32) ([]byte, error) {
	var record []byte

	for first := true; ; first = false {
		header, err := ReadFragmentHeader(r)
		if err != nil {
			if !first && errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		if uint64(len(record))+uint64(header.Length) > uint64(maxSize) {
			return nil, fmt.Errorf("%w: %d bytes (max %d)",
				ErrRecordTooLarge, uint64(len(record))+uint64(header.Length), maxSize)
		}

		start := len(record)
		record = append(record, make([]byte, header.Length)...)
		if _, err := io.ReadFull(r, record[start:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("read fragment: %w", err)
		}

		if header.IsLast {
			return record, nil
		}
	}
}

// AddRecordMark prefixes data with a single last-fragment record mark.
func AddRecordMark(data []byte) []byte {
	framed := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(framed, LastFragmentFlag|uint32(len(data)))
	copy(framed[4:], data)
	return framed
}

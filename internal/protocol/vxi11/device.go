package vxi11

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidDeviceName is returned for device names outside the accepted
// grammar or with an address above MaxAddress.
var ErrInvalidDeviceName = errors.New("vxi11: invalid device name")

// ParseDeviceName resolves a CREATE_LINK device name to a bus address.
//
// Accepted forms, case-insensitive:
//
//	inst<N>
//	gpib<iface>,<N>
//	hpib<iface>,<N>
//
// where <iface> is an optional decimal interface number and <N> is a
// decimal address in 0..31. Address 0 designates the gateway itself.
func ParseDeviceName(name string) (int, error) {
	lower := strings.ToLower(name)

	var addr string
	switch {
	case strings.HasPrefix(lower, "inst"):
		addr = lower[len("inst"):]

	case strings.HasPrefix(lower, "gpib"), strings.HasPrefix(lower, "hpib"):
		iface, a, found := strings.Cut(lower[len("gpib"):], ",")
		if !found || !allDigits(iface) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDeviceName, name)
		}
		addr = a

	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDeviceName, name)
	}

	if addr == "" || !allDigits(addr) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDeviceName, name)
	}

	n, err := strconv.Atoi(addr)
	if err != nil || n > MaxAddress {
		return 0, fmt.Errorf("%w: address out of range in %q", ErrInvalidDeviceName, name)
	}

	return n, nil
}

// allDigits reports whether s consists only of ASCII decimal digits.
// The empty string qualifies.
func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

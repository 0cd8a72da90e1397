// Package settings persists per-profile bus settings of the line server:
// default address, auto-read and EOS mode. It takes the place of the
// byte-addressed configuration memory of a standalone controller.
package settings

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates no settings were saved under the key.
	ErrNotFound = errors.New("settings: not found")

	// ErrInvalid indicates settings failed validation before being stored.
	ErrInvalid = errors.New("settings: invalid")
)

// EOS modes, as in the Prologix "++eos" command.
const (
	EOSCRLF = 0
	EOSCR   = 1
	EOSLF   = 2
	EOSNone = 3
)

// BusSettings are the line-server parameters a client can save with
// "++savecfg" and restore with "++rst".
type BusSettings struct {
	Address  int  `json:"address"`
	AutoRead bool `json:"auto_read"`
	EOS      int  `json:"eos"`
}

// Defaults returns the settings used when nothing was saved.
func Defaults() BusSettings {
	return BusSettings{Address: 1, AutoRead: true, EOS: EOSLF}
}

// Validate checks address and EOS ranges.
func (s BusSettings) Validate() error {
	if s.Address < 0 || s.Address > 30 {
		return fmt.Errorf("%w: address %d outside 0..30", ErrInvalid, s.Address)
	}
	if s.EOS < EOSCRLF || s.EOS > EOSNone {
		return fmt.Errorf("%w: eos %d outside 0..3", ErrInvalid, s.EOS)
	}
	return nil
}

// Terminator returns the bytes appended to outgoing data for the EOS mode.
func (s BusSettings) Terminator() []byte {
	switch s.EOS {
	case EOSCRLF:
		return []byte("\r\n")
	case EOSCR:
		return []byte("\r")
	case EOSLF:
		return []byte("\n")
	default:
		return nil
	}
}

// Store persists BusSettings by key. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the settings saved under key, or ErrNotFound.
	Get(ctx context.Context, key string) (BusSettings, error)

	// Put validates and saves settings under key, replacing any previous value.
	Put(ctx context.Context, key string, s BusSettings) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the store's resources.
	Close() error
}

package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultsAreValid(t *testing.T) {
	assert.NoError(t, Defaults().Validate())
}

func TestTerminator(t *testing.T) {
	assert.Equal(t, []byte("\r\n"), BusSettings{EOS: EOSCRLF}.Terminator())
	assert.Equal(t, []byte("\r"), BusSettings{EOS: EOSCR}.Terminator())
	assert.Equal(t, []byte("\n"), BusSettings{EOS: EOSLF}.Terminator())
	assert.Nil(t, BusSettings{EOS: EOSNone}.Terminator())
}

package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_NoSentry(t *testing.T) {
	flush, err := Setup("debug", "json", "", "test")
	require.NoError(t, err)
	require.NotNil(t, flush)
	flush()

	lg := NewLog("test")
	lg.Info("hello", "k", "v")
	lg.Error("boom", "k", "v")
}

func TestSetup_BadLevel(t *testing.T) {
	_, err := Setup("loud", "logfmt", "", "test")
	assert.Error(t, err)
}

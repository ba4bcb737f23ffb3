package sysv

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amd64sysv/codegen/asmsink"
)

func TestDefaultConfigIsIntelPrefixAnd80BitLongDouble(t *testing.T) {
	os.Unsetenv("KEFIR_DISABLE_LONG_DOUBLE")
	cfg := DefaultConfig()
	require.Equal(t, asmsink.IntelPrefix, cfg.Syntax)
	require.Equal(t, LongDouble80, cfg.LongDoubleWidth)
}

func TestKefirDisableLongDoubleEnvDowngradesWidth(t *testing.T) {
	os.Setenv("KEFIR_DISABLE_LONG_DOUBLE", "1")
	defer os.Unsetenv("KEFIR_DISABLE_LONG_DOUBLE")
	cfg := DefaultConfig()
	require.Equal(t, LongDouble64, cfg.LongDoubleWidth)
}

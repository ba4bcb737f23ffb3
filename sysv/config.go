package sysv

import (
	"os"

	"github.com/amd64sysv/codegen/asmsink"
)

// Config is the module orchestrator's configuration: the knobs that
// affect how the rest of the core classifies, plans, and emits, but
// never what it classifies or plans.
type Config struct {
	Syntax                  asmsink.Syntax
	EmulatedTLS             bool
	PositionIndependentCode bool
	LongDoubleWidth         LongDoubleWidth
}

// DefaultConfig returns intel-prefix syntax, native TLS, non-PIC, and
// the 80-bit long double width resolved against the environment.
func DefaultConfig() *Config {
	cfg := &Config{
		Syntax:          asmsink.IntelPrefix,
		LongDoubleWidth: LongDouble80,
	}
	cfg.ResolveEnv()
	return cfg
}

// ResolveEnv re-reads KEFIR_DISABLE_LONG_DOUBLE, downgrading the long
// double width to 64 bits when it is set to a non-empty value. Escape
// hatch for targets without x87, read once at config-resolution time.
func (c *Config) ResolveEnv() {
	if v := os.Getenv("KEFIR_DISABLE_LONG_DOUBLE"); v != "" {
		c.LongDoubleWidth = LongDouble64
	}
}

package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/corejit/jit/config"
)

func TestDefault(t *testing.T) {
	opts := config.Default()
	require.EqualValues(t, 65536, opts.InitialPageSize)
	require.Equal(t, 2.0, opts.PageGrowthFactor)
	require.EqualValues(t, 8, opts.PageAlign)
	require.Equal(t, 4, opts.MaxRestarts)
	require.True(t, opts.GlobalRegisters)
}

func TestFromEnvOverridesDefault(t *testing.T) {
	t.Setenv("COREJIT_MAX_RESTARTS", "9")
	t.Setenv("COREJIT_GLOBAL_REGISTERS", "false")

	opts, err := config.FromEnv()
	require.NoError(t, err)
	require.Equal(t, 9, opts.MaxRestarts)
	require.False(t, opts.GlobalRegisters)
	require.EqualValues(t, 65536, opts.InitialPageSize)

	require.NoError(t, os.Unsetenv("COREJIT_MAX_RESTARTS"))
	require.NoError(t, os.Unsetenv("COREJIT_GLOBAL_REGISTERS"))
}

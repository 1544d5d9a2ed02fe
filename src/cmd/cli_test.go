package cmd

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsCommands(t *testing.T) {
	cfg, err := ParseFlags([]string{"ingest", "-file", "Pool.sol", "-addr", "0x1111111111111111111111111111111111111111", "-c", "BSC"})
	require.NoError(t, err)
	assert.Equal(t, "ingest", cfg.Command)
	assert.Equal(t, "bsc", cfg.Chain)

	cfg, err = ParseFlags([]string{"poc", "-dir", "pocs", "-triage", "triage.yaml", "-workers", "8"})
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Workers)

	cfg, err = ParseFlags([]string{"sweep", "-validate"})
	require.NoError(t, err)
	assert.True(t, cfg.Validate)

	cfg, err = ParseFlags([]string{"sweep", "-unlock"})
	require.NoError(t, err)
	assert.True(t, cfg.Unlock)
}

func TestParseFlagsValidation(t *testing.T) {
	cases := [][]string{
		{"ingest"},
		{"ingest", "-file", "a.sol", "-addr", "0x12"},
		{"poc", "-dir", "pocs"},
		{"match"},
		{"instantiate", "-hash", "abc", "-addr", "0x1111111111111111111111111111111111111111"},
		{"validate"},
		{"unknown"},
	}
	for _, args := range cases {
		_, err := ParseFlags(args)
		assert.Error(t, err, "%v", args)
	}

	_, err := ParseFlags(nil)
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestIsHexAddress(t *testing.T) {
	assert.True(t, isHexAddress("0x55d398326f99059fF775485246999027B3197955"))
	assert.False(t, isHexAddress("55d398326f99059fF775485246999027B3197955"))
	assert.False(t, isHexAddress("0xZZd398326f99059fF775485246999027B3197955"))
}

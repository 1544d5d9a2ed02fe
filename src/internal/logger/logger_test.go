package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLogging(t *testing.T) {
	dir := t.TempDir()
	SetQuiet(true)
	defer SetQuiet(false)

	require.NoError(t, InitLogger(dir))
	defer func() {
		Close()
		initialized = false
	}()

	Info("ingested %d functions", 3)
	Debug("probe %s", "0xabc")
	Warn("no abi")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "pocshift_"))

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "[INFO] ingested 3 functions")
	assert.Contains(t, text, "[DEBUG] probe 0xabc")
	assert.Contains(t, text, "[WARN] no abi")
}

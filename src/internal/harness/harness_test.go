package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHarness struct {
	calls int
	res   *Result
}

func (h *countingHarness) Run(context.Context, string, string) (*Result, error) {
	h.calls++
	return h.res, nil
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Pool_exp.sol", FileName("Pool_exp.sol"))
	assert.Equal(t, "Pool_exp.sol", FileName("Pool_exp"))
	assert.Equal(t, "a_b.sol", FileName("../x/a b.sol"))
}

func TestCachedReplaysAndSaves(t *testing.T) {
	dir := t.TempDir()
	next := &countingHarness{res: &Result{Output: "[PASS] testExploit()"}}
	c := NewCached(dir, next)

	res, err := c.Run(context.Background(), "src", "Pool_exp.sol")
	require.NoError(t, err)
	assert.Equal(t, "[PASS] testExploit()", res.Output)

	saved, err := os.ReadFile(filepath.Join(dir, "Pool_exp.txt"))
	require.NoError(t, err)
	assert.Equal(t, "[PASS] testExploit()", string(saved))

	_, err = c.Run(context.Background(), "src", "Pool_exp.sol")
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
}

func TestCachedSkipsFailedRuns(t *testing.T) {
	dir := t.TempDir()
	next := &countingHarness{res: &Result{Output: "[FAIL]", ExitCode: 1}}
	c := NewCached(dir, next)

	res, err := c.Run(context.Background(), "src", "Broken")
	require.NoError(t, err)
	assert.False(t, res.Passed())
	_, err = os.Stat(filepath.Join(dir, "Broken.txt"))
	assert.True(t, os.IsNotExist(err))

	_, err = NewCached(dir, nil).Run(context.Background(), "src", "Missing")
	assert.Error(t, err)
}

func TestNewForgeMissingBinary(t *testing.T) {
	_, err := NewForge(Config{ForgePath: filepath.Join(t.TempDir(), "no-forge")})
	assert.ErrorIs(t, err, ErrForgeNotFound)
}

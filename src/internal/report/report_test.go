package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactStoreSave(t *testing.T) {
	dir := t.TempDir()
	store := NewArtifactStore(dir)

	sol, js, err := store.Save("poc/Pool_exp.sol", "contract X {}", map[string]string{"hash": "abc"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Pool_exp.sol"), sol)
	assert.Equal(t, filepath.Join(dir, "Pool_exp.json"), js)

	data, err := os.ReadFile(sol)
	require.NoError(t, err)
	assert.Equal(t, "contract X {}", string(data))

	var doc map[string]string
	data, err = os.ReadFile(js)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "abc", doc["hash"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSanitizeFilenameComponent(t *testing.T) {
	assert.Equal(t, "unknown", sanitizeFilenameComponent("  "))
	assert.Equal(t, "a_b", sanitizeFilenameComponent("a b"))
	assert.Equal(t, "unknown", sanitizeFilenameComponent("..."))
}

func TestReporterWritesMarkdown(t *testing.T) {
	dir := t.TempDir()
	r := NewReport("batch")
	r.AddPoC(PoCResult{FileName: "A_exp.sol", Vulnerability: "reentrancy", Hash: "0123456789abcdef", Roles: map[string]int{"target": 1, "common": 2}})
	r.AddPoC(PoCResult{FileName: "B_exp.sol", Error: "not decomposable"})
	r.AddCandidate(CandidateResult{Address: "0xaaaa", Chain: "bsc", PoCFile: "A_exp.sol", Status: "pending", Rationale: map[string][]string{"target": {"deposit"}}})

	path, err := NewReporter(NewMarkdownGenerator(), NewFileStorage(dir)).GenerateAndSave(r)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "pocshift_batch_"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Equal(t, 1, r.Migrated)
	assert.Equal(t, 1, r.Failed)
	assert.Contains(t, out, "| A_exp.sol | reentrancy | ✅ 0123456789ab | common=2 target=1 |")
	assert.Contains(t, out, "❌ not decomposable")
	assert.Contains(t, out, "### 1. `0xaaaa` (bsc)")
	assert.Contains(t, out, "- **target**: deposit")
}

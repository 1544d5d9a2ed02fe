package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := out
	out = &buf
	t.Cleanup(func() { out = prev })
	return &buf
}

func TestFitKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", fit("short", 10))
	got := fit(strings.Repeat("⚡", 20), 10)
	assert.Equal(t, strings.Repeat("⚡", 7)+"...", got)
}

func TestLogCandidateTags(t *testing.T) {
	buf := capture(t)
	LogCandidate("0xaaaa", "bsc", "Pool_exp.sol", false)
	LogCandidate("0xbbbb", "eth", "Pool_exp.sol", true)

	text := buf.String()
	assert.Contains(t, text, "[CANDIDATE] "+Reset+"0xaaaa (bsc) <- Pool_exp.sol")
	assert.Contains(t, text, "[REPRODUCED] "+Reset+"0xbbbb (eth) <- Pool_exp.sol")
}

func TestPrintStats(t *testing.T) {
	buf := capture(t)
	PrintStats("Sweep", 5, 3, 2, 4, 1500*time.Millisecond)
	assert.Contains(t, buf.String(), "Sweep done in 1.5s")
	assert.Contains(t, buf.String(), "migrated 3  failed 2  candidates 4")
}

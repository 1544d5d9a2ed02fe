package solc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPragmaVersionPicksHighest(t *testing.T) {
	src := "pragma solidity ^0.8.4;\ncontract A {}\npragma solidity >=0.8.0 <0.8.20;"
	assert.Equal(t, "0.8.20", ExtractPragmaVersion(src))
	assert.Equal(t, "", ExtractPragmaVersion("contract A {}"))
}

func TestCompareVersions(t *testing.T) {
	assert.Positive(t, CompareVersions("0.8.10", "0.8.9"))
	assert.Negative(t, CompareVersions("0.6.12", "v0.7.0"))
	assert.Zero(t, CompareVersions("0.8.0", "0.8.0"))
}

func TestPragmaCompatible(t *testing.T) {
	assert.True(t, PragmaCompatible("pragma solidity ^0.8.4;", "v0.8.19+commit.7dd6d404"))
	assert.False(t, PragmaCompatible("pragma solidity ^0.6.12;", "v0.8.19"))
	assert.True(t, PragmaCompatible("contract A {}", "v0.8.19"))
}

func TestFlattenOrdersImportsFirst(t *testing.T) {
	src := `{{"language":"Solidity","sources":{
		"contracts/Vault.sol":{"content":"// SPDX-License-Identifier: MIT\npragma solidity ^0.8.4;\nimport \"./lib/Math.sol\";\ncontract Vault { }"},
		"contracts/lib/Math.sol":{"content":"// SPDX-License-Identifier: MIT\npragma solidity ^0.8.0;\nlibrary Math { }"}
	}}}`
	require.True(t, IsJSONSource(src))

	out, err := Flatten(src)
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "library Math"), strings.Index(out, "contract Vault"))
	assert.NotContains(t, out, "import ")
	assert.Equal(t, 1, strings.Count(out, "SPDX-License-Identifier"))
	assert.Equal(t, 1, strings.Count(out, "pragma solidity"))
	assert.Contains(t, out, "pragma solidity ^0.8.4;")
}

func TestFlattenPlainSourceUnchanged(t *testing.T) {
	out, err := Flatten("contract A {}")
	require.NoError(t, err)
	assert.Equal(t, "contract A {}", out)

	_, err = Flatten(`{"content": broken`)
	assert.Error(t, err)
}

func TestIsToolingPath(t *testing.T) {
	assert.True(t, IsToolingPath("lib/forge-std/src/Test.sol"))
	assert.True(t, IsToolingPath("project/test/Vault.t.sol"))
	assert.True(t, IsToolingPath("Deploy.s.sol"))
	assert.True(t, IsToolingPath(`contracts\mocks\MockToken.sol`))
	assert.False(t, IsToolingPath("contracts/Vault.sol"))
	assert.False(t, IsToolingPath("contracts/latest/Pool.sol"))
}

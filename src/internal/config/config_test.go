package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
chains:
  bsc:
    chain_id: 56
    rpc_urls: ["https://bsc-dataseed.binance.org"]
    explorer:
      base_url: https://api.bscscan.com/api
      api_keys: ["k1", "k2"]
    router: "0x10ED43C718714eb63d5aA57B78B54704E256024E"
    factory: "0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73"
    main_tokens:
      - "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
      - "0x55d398326f99059fF775485246999027B3197955"
database:
  driver: sqlite
  path: data/test.db
harness:
  timeout_seconds: 60
pipeline:
  workers: 8
`

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeSettings(t, sample))
	require.NoError(t, err)

	bsc, err := cfg.GetChainConfig("bsc")
	require.NoError(t, err)
	assert.Equal(t, "bsc", bsc.Name)
	assert.Equal(t, 56, bsc.ChainID)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, "output", cfg.Pipeline.OutputDir)
	assert.Equal(t, 5, cfg.Matching.PollIntervalSeconds)
	assert.Equal(t, 24*time.Hour, cfg.Lease())
	assert.Equal(t, float64(60), cfg.ForgeTimeout().Seconds())

	_, err = cfg.GetChainConfig("eth")
	assert.Error(t, err)
}

func TestTables(t *testing.T) {
	cfg, err := Load(writeSettings(t, sample))
	require.NoError(t, err)

	table := cfg.Tables()["bsc"]
	assert.Equal(t, 0, table.Index("0x10ed43c718714eb63d5aa57b78b54704e256024e"))
	assert.Equal(t, 2, table.Index("0x55d398326f99059fF775485246999027B3197955"))
	assert.NotEmpty(t, table.Factory)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POCSHIFT_DB_DRIVER", "postgres")
	t.Setenv("POCSHIFT_DB_NAME", "corpus")
	t.Setenv("BSC_EXPLORER_API_KEY", "k3,k4")

	cfg, err := Load(writeSettings(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Contains(t, cfg.Database.PostgresDSN(), "dbname=corpus")
	assert.Equal(t, []string{"k1", "k2", "k3", "k4"}, cfg.Chains["bsc"].Explorer.APIKeys)
}

func TestInvalidProxy(t *testing.T) {
	_, err := Load(writeSettings(t, sample+"proxy: ftp://127.0.0.1:21\n"))
	assert.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	d := DatabaseConfig{Driver: "mysql", Host: "db", User: "root", Password: "pw", Name: "pocshift"}
	dsn := d.MySQLDSN()
	assert.True(t, strings.HasPrefix(dsn, "root:pw@tcp(db:3306)/pocshift?"))
	assert.Contains(t, dsn, "parseTime=true")
}

func TestOpenRepositorySQLite(t *testing.T) {
	repo, err := OpenRepository(DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "db", "c.db")})
	require.NoError(t, err)
	assert.NotNil(t, repo)

	_, err = OpenDatabase(DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestAPIKeyManager(t *testing.T) {
	assert.Nil(t, NewAPIKeyManager(nil, ""))
	assert.False(t, KeysFor(Explorer{}).HasKeys())

	m := NewAPIKeyManager([]string{"a", "", "b", "a"}, "c")
	require.NotNil(t, m)
	assert.Equal(t, 3, m.GetKeyCount())
	assert.Contains(t, []string{"a", "b", "c"}, m.GetRandomKey())

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		seen[m.GetNextKey()] = true
	}
	assert.Len(t, seen, 3)
}

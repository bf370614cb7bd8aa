package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ValidateBasic())

	cfg.SetRoot("/foo")
	assert.Equal(t, "/foo/config/genesis.json", cfg.GenesisFile())
	assert.Equal(t, "/foo/config/priv_validator_key.json", cfg.PrivValidatorKeyFile())
	assert.Equal(t, "/foo/data", cfg.DBDir())

	cfg.Genesis = "/opt/genesis.json"
	assert.Equal(t, "/opt/genesis.json", cfg.GenesisFile())

	assert.Equal(t, 2*20*100, cfg.Sync.AtomCapacity())
}

func TestValidateBasic(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"db backend", func(c *Config) { c.DBBackend = "rocksdb" }},
		{"key type", func(c *Config) { c.KeyType = "secp256k1" }},
		{"view timeout", func(c *Config) { c.Consensus.ViewTimeout = 0 }},
		{"batch size", func(c *Config) { c.Sync.BatchSize = 0 }},
		{"max requests", func(c *Config) { c.Sync.MaxRequests = -1 }},
		{"mempool size", func(c *Config) { c.Mempool.Size = -1 }},
		{"rpc connections", func(c *Config) { c.RPC.MaxOpenConnections = -1 }},
	}

	for _, tc := range testCases {
		cfg := TestConfig()
		tc.modify(cfg)
		assert.Error(t, cfg.ValidateBasic(), tc.name)
	}
}

func TestWriteAndLoadConfig(t *testing.T) {
	root, err := ioutil.TempDir("", "hotbft-config")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	cfg := DefaultConfig().SetRoot(root)
	cfg.Consensus.ViewTimeout = 750 * time.Millisecond
	cfg.Sync.BatchSize = 7
	cfg.KeyType = "bls"
	cfg.RPC.ListenAddress = "tcp://0.0.0.0:36657"
	require.NoError(t, WriteConfigFile(cfg))

	v := viper.New()
	v.SetConfigFile(filepath.Join(root, "config", "config.toml"))
	require.NoError(t, v.ReadInConfig())
	v.Set("home", root)

	loaded, err := LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, root, loaded.RootDir)
	assert.Equal(t, 750*time.Millisecond, loaded.Consensus.ViewTimeout)
	assert.Equal(t, 7, loaded.Sync.BatchSize)
	assert.Equal(t, "bls", loaded.KeyType)
	assert.Equal(t, DefaultMempoolConfig().Size, loaded.Mempool.Size)
	assert.Equal(t, "tcp://0.0.0.0:36657", loaded.RPC.ListenAddress)
	assert.True(t, loaded.RPC.IsEnabled())
	assert.False(t, TestConfig().RPC.IsEnabled())
}

package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	// DefaultLogLevel 默认日志级别
	DefaultLogLevel = "info"

	defaultConfigDir = "config"
	defaultDataDir   = "data"

	defaultConfigFileName  = "config.toml"
	defaultGenesisJSONName = "genesis.json"
	defaultPrivValKeyName  = "priv_validator_key.json"

	// DefaultDir home目录的默认名字，位于$HOME下
	DefaultDir = ".hotbft"

	// EnvPrefix 环境变量前缀，如 HOTBFT_LOG_LEVEL
	EnvPrefix = "HOTBFT"
)

var (
	defaultConfigFilePath  = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultGenesisJSONPath = filepath.Join(defaultConfigDir, defaultGenesisJSONName)
	defaultPrivValKeyPath  = filepath.Join(defaultConfigDir, defaultPrivValKeyName)
)

// Config 节点的全部配置
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	Consensus *ConsensusConfig `mapstructure:"consensus"`
	Sync      *SyncConfig      `mapstructure:"sync"`
	Mempool   *MempoolConfig   `mapstructure:"mempool"`
	RPC       *RPCConfig       `mapstructure:"rpc"`
}

// DefaultConfig returns a default configuration for a node
func DefaultConfig() *Config {
	return &Config{
		BaseConfig: DefaultBaseConfig(),
		Consensus:  DefaultConsensusConfig(),
		Sync:       DefaultSyncConfig(),
		Mempool:    DefaultMempoolConfig(),
		RPC:        DefaultRPCConfig(),
	}
}

// TestConfig 测试使用的配置，超时都很短
func TestConfig() *Config {
	return &Config{
		BaseConfig: TestBaseConfig(),
		Consensus:  TestConsensusConfig(),
		Sync:       TestSyncConfig(),
		Mempool:    DefaultMempoolConfig(),
		RPC:        TestRPCConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Consensus.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [consensus] section")
	}
	if err := cfg.Sync.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [sync] section")
	}
	if err := cfg.Mempool.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [mempool] section")
	}
	if err := cfg.RPC.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [rpc] section")
	}
	return nil
}

// LoadConfig 从viper中解析配置，viper已经读取了配置文件、环境变量和命令行参数
func LoadConfig(v *viper.Viper) (*Config, error) {
	conf := DefaultConfig()
	if err := v.Unmarshal(conf); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	conf.SetRoot(conf.RootDir)
	if err := conf.ValidateBasic(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return conf, nil
}

// WriteConfigFile 把配置写入 $root/config/config.toml
func WriteConfigFile(conf *Config) error {
	v := viper.New()
	v.Set("moniker", conf.Moniker)
	v.Set("log_level", conf.LogLevel)
	v.Set("db_backend", conf.DBBackend)
	v.Set("db_dir", conf.DBPath)
	v.Set("genesis_file", conf.Genesis)
	v.Set("priv_validator_key_file", conf.PrivValidatorKey)
	v.Set("key_type", conf.KeyType)

	v.Set("consensus.view_timeout", conf.Consensus.ViewTimeout.String())
	v.Set("consensus.max_future_epoch_events", conf.Consensus.MaxFutureEpochEvents)

	v.Set("sync.batch_size", conf.Sync.BatchSize)
	v.Set("sync.max_requests", conf.Sync.MaxRequests)
	v.Set("sync.patience", conf.Sync.Patience.String())

	v.Set("mempool.size", conf.Mempool.Size)
	v.Set("mempool.max_command_bytes", conf.Mempool.MaxCommandBytes)

	v.Set("rpc.laddr", conf.RPC.ListenAddress)
	v.Set("rpc.max_open_connections", conf.RPC.MaxOpenConnections)

	path := filepath.Join(conf.RootDir, defaultConfigFilePath)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrapf(err, "create config dir %s", filepath.Dir(path))
	}
	return errors.Wrap(v.WriteConfigAs(path), "write config file")
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for a node
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// A custom human readable name for this node
	Moniker string `mapstructure:"moniker"`

	// Output level for logging
	LogLevel string `mapstructure:"log_level"`

	// goleveldb | memdb
	DBBackend string `mapstructure:"db_backend"`

	// Database directory
	DBPath string `mapstructure:"db_dir"`

	// Path to the JSON file containing the initial validator set and other meta data
	Genesis string `mapstructure:"genesis_file"`

	// Path to the JSON file containing the private key to use as a validator in the consensus protocol
	PrivValidatorKey string `mapstructure:"priv_validator_key_file"`

	// ed25519 | bls
	KeyType string `mapstructure:"key_type"`
}

// DefaultBaseConfig returns a default base configuration for a node
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Moniker:          "hotbft-node",
		LogLevel:         DefaultLogLevel,
		DBBackend:        "goleveldb",
		DBPath:           defaultDataDir,
		Genesis:          defaultGenesisJSONPath,
		PrivValidatorKey: defaultPrivValKeyPath,
		KeyType:          "ed25519",
	}
}

// TestBaseConfig returns a base configuration for testing a node
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.Moniker = "test-node"
	cfg.DBBackend = "memdb"
	return cfg
}

// GenesisFile returns the full path to the genesis.json file
func (cfg BaseConfig) GenesisFile() string {
	return rootify(cfg.Genesis, cfg.RootDir)
}

// PrivValidatorKeyFile returns the full path to the priv_validator_key.json file
func (cfg BaseConfig) PrivValidatorKeyFile() string {
	return rootify(cfg.PrivValidatorKey, cfg.RootDir)
}

// DBDir returns the full path to the database directory
func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

// ConfigFile returns the full path to the config.toml file
func (cfg BaseConfig) ConfigFile() string {
	return rootify(defaultConfigFilePath, cfg.RootDir)
}

func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogLevel {
	case "debug", "info", "error", "none":
	default:
		return errors.Errorf("unknown log_level %q", cfg.LogLevel)
	}
	switch cfg.DBBackend {
	case "goleveldb", "memdb":
	default:
		return errors.Errorf("unknown db_backend %q", cfg.DBBackend)
	}
	switch cfg.KeyType {
	case "ed25519", "bls":
	default:
		return errors.Errorf("unknown key_type %q", cfg.KeyType)
	}
	return nil
}

//-----------------------------------------------------------------------------
// ConsensusConfig

// ConsensusConfig pacemaker和epoch相关的参数
type ConsensusConfig struct {
	// 每个view固定的超时时间
	ViewTimeout time.Duration `mapstructure:"view_timeout"`

	// 缓存的下一个epoch的消息数上限
	MaxFutureEpochEvents int `mapstructure:"max_future_epoch_events"`
}

func DefaultConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{
		ViewTimeout:          2 * time.Second,
		MaxFutureEpochEvents: 1000,
	}
}

func TestConsensusConfig() *ConsensusConfig {
	cfg := DefaultConsensusConfig()
	cfg.ViewTimeout = 200 * time.Millisecond
	return cfg
}

func (cfg *ConsensusConfig) ValidateBasic() error {
	if cfg.ViewTimeout <= 0 {
		return errors.New("view_timeout must be positive")
	}
	if cfg.MaxFutureEpochEvents < 0 {
		return errors.New("max_future_epoch_events can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// SyncConfig

// SyncConfig 落后节点追赶已提交状态的参数
type SyncConfig struct {
	// 每个请求覆盖的state version数
	BatchSize int `mapstructure:"batch_size"`

	// 一次最多发出的请求数
	MaxRequests int `mapstructure:"max_requests"`

	// 没有进展时重新发送请求的间隔
	Patience time.Duration `mapstructure:"patience"`
}

func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		BatchSize:   100,
		MaxRequests: 20,
		Patience:    2 * time.Second,
	}
}

func TestSyncConfig() *SyncConfig {
	cfg := DefaultSyncConfig()
	cfg.BatchSize = 4
	cfg.Patience = 100 * time.Millisecond
	return cfg
}

// AtomCapacity 同步缓存的容量，2 × 请求数 × batch
func (cfg *SyncConfig) AtomCapacity() int {
	return 2 * cfg.MaxRequests * cfg.BatchSize
}

func (cfg *SyncConfig) ValidateBasic() error {
	if cfg.BatchSize <= 0 {
		return errors.New("batch_size must be positive")
	}
	if cfg.MaxRequests <= 0 {
		return errors.New("max_requests must be positive")
	}
	if cfg.Patience <= 0 {
		return errors.New("patience must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// MempoolConfig

// MempoolConfig defines the configuration options for the command mempool
type MempoolConfig struct {
	// 最多缓存的命令数
	Size int `mapstructure:"size"`
	// 单个命令的最大字节数
	MaxCommandBytes int `mapstructure:"max_command_bytes"`
}

func DefaultMempoolConfig() *MempoolConfig {
	return &MempoolConfig{
		Size:            5000,
		MaxCommandBytes: 1024 * 1024,
	}
}

func (cfg *MempoolConfig) ValidateBasic() error {
	if cfg.Size < 0 {
		return errors.New("size can't be negative")
	}
	if cfg.MaxCommandBytes < 0 {
		return errors.New("max_command_bytes can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// RPCConfig

// RPCConfig defines the configuration options for the RPC server
type RPCConfig struct {
	// TCP or UNIX socket address for the RPC server to listen on
	// 为空时不启动rpc服务
	ListenAddress string `mapstructure:"laddr"`

	// Maximum number of simultaneous connections (including WebSocket).
	// 0 - unlimited.
	MaxOpenConnections int `mapstructure:"max_open_connections"`
}

func DefaultRPCConfig() *RPCConfig {
	return &RPCConfig{
		ListenAddress:      "tcp://127.0.0.1:26657",
		MaxOpenConnections: 900,
	}
}

// TestRPCConfig 测试中默认不启动rpc服务
func TestRPCConfig() *RPCConfig {
	cfg := DefaultRPCConfig()
	cfg.ListenAddress = ""
	return cfg
}

func (cfg *RPCConfig) ValidateBasic() error {
	if cfg.MaxOpenConnections < 0 {
		return errors.New("max_open_connections can't be negative")
	}
	return nil
}

// IsEnabled 是否启动rpc服务
func (cfg *RPCConfig) IsEnabled() bool {
	return cfg.ListenAddress != ""
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

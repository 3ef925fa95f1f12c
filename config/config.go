package config

import (
	"path/filepath"

	"github.com/pkg/errors"
	cfg "github.com/tendermint/tendermint/config"
)

const (
	DefaultDirName = ".chaindpos"

	defaultConfigDir    = "config"
	defaultMinerKeyName = "miner_keys.json"
	defaultDBName       = "consensus"
)

// Config 节点的全部配置
type Config struct {
	cfg.BaseConfig `mapstructure:",squash"`

	RPC       *cfg.RPCConfig   `mapstructure:"rpc"`
	Consensus *ConsensusConfig `mapstructure:"consensus"`

	// 本地运行的矿工私钥文件，相对于根目录
	MinerKey string `mapstructure:"miner_key_file"`
}

func DefaultConfig() *Config {
	return &Config{
		BaseConfig: cfg.DefaultBaseConfig(),
		RPC:        cfg.DefaultRPCConfig(),
		Consensus:  DefaultConsensusConfig(),
		MinerKey:   filepath.Join(defaultConfigDir, defaultMinerKeyName),
	}
}

func TestConfig() *Config {
	return &Config{
		BaseConfig: cfg.TestBaseConfig(),
		RPC:        cfg.TestRPCConfig(),
		Consensus:  TestConsensusConfig(),
		MinerKey:   filepath.Join(defaultConfigDir, defaultMinerKeyName),
	}
}

// SetRoot 设置所有子配置的根目录
func (c *Config) SetRoot(root string) *Config {
	c.BaseConfig.RootDir = root
	c.RPC.RootDir = root
	return c
}

func (c *Config) MinerKeyFile() string {
	return rootify(c.MinerKey, c.RootDir)
}

func (c *Config) DBName() string {
	return defaultDBName
}

func (c *Config) ValidateBasic() error {
	if err := c.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := c.RPC.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [rpc] section")
	}
	if err := c.Consensus.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [consensus] section")
	}
	return nil
}

func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

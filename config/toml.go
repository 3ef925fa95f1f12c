package config

import (
	"bytes"
	"path/filepath"
	"text/template"

	tmos "github.com/tendermint/tendermint/libs/os"
)

// DefaultDirPerm is the default permissions used when creating directories.
const DefaultDirPerm = 0700

var configTemplate = template.Must(template.New("configFileTemplate").Parse(defaultConfigTemplate))

// EnsureRoot 创建根目录和config、data子目录
// 配置文件不存在时写入默认配置
func EnsureRoot(rootDir string) {
	if err := tmos.EnsureDir(rootDir, DefaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, "config"), DefaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, "data"), DefaultDirPerm); err != nil {
		panic(err.Error())
	}

	configFilePath := filepath.Join(rootDir, "config", "config.toml")
	if !tmos.FileExists(configFilePath) {
		WriteConfigFile(configFilePath, DefaultConfig())
	}
}

// WriteConfigFile renders config using the template and writes it to configFilePath.
func WriteConfigFile(configFilePath string, config *Config) {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, config); err != nil {
		panic(err)
	}

	tmos.MustWriteFile(configFilePath, buffer.Bytes(), 0644)
}

const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# A custom human readable name for this node
moniker = "{{ .BaseConfig.Moniker }}"

# Database backend: goleveldb | memdb
db_backend = "{{ .BaseConfig.DBBackend }}"

# Database directory
db_dir = "{{ js .BaseConfig.DBPath }}"

# Output level for logging, including package level options
log_level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log_format = "{{ .BaseConfig.LogFormat }}"

# Path to the JSON file containing the initial miner list and chain parameters
genesis_file = "{{ js .BaseConfig.Genesis }}"

# Path to the JSON file containing the private keys of the local miners
miner_key_file = "{{ js .MinerKey }}"

#######################################################################
###                 Advanced Configuration Options                  ###
#######################################################################

#######################################################
###       RPC Server Configuration Options          ###
#######################################################
[rpc]

# TCP or UNIX socket address for the RPC server to listen on
laddr = "{{ .RPC.ListenAddress }}"

# Maximum number of simultaneous connections (including WebSocket).
max_open_connections = {{ .RPC.MaxOpenConnections }}

# Maximum size of request body, in bytes
max_body_bytes = {{ .RPC.MaxBodyBytes }}

# Maximum size of request header, in bytes
max_header_bytes = {{ .RPC.MaxHeaderBytes }}

#######################################################
###         Consensus Configuration Options         ###
#######################################################
[consensus]

# 出块间隔，毫秒
mining_interval = {{ .Consensus.MiningInterval }}
# 一届的时长，秒
period_seconds = {{ .Consensus.PeriodSeconds }}
is_main_chain = {{ .Consensus.IsMainChain }}

tiny_blocks_number = {{ .Consensus.TinyBlocksNumber }}
total_tiny_slots = {{ .Consensus.TotalTinySlots }}
limit_block_execution_time_weight = {{ .Consensus.LimitBlockExecutionTimeWeight }}
limit_block_execution_time_total_weight = {{ .Consensus.LimitBlockExecutionTimeTotalWeight }}
time_for_network = {{ .Consensus.TimeForNetwork }}

random_number_due_round_count = {{ .Consensus.RandomNumberDueRoundCount }}
tolerable_missed_time_slots_count = {{ .Consensus.TolerableMissedTimeSlotsCount }}

abnormal_threshold_rounds = {{ .Consensus.AbnormalThresholdRounds }}
severe_threshold_rounds = {{ .Consensus.SevereThresholdRounds }}
severe_threshold_blocks = {{ .Consensus.SevereThresholdBlocks }}

# 保留的历史轮次数，0表示不清理
round_retention = {{ .Consensus.RoundRetention }}
round_cache_size = {{ .Consensus.RoundCacheSize }}
`

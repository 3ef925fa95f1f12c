package state

import (
	"time"

	"chaindpos/types"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// LatestProvider 最近一个出块者以及它还能连续出的块数
type LatestProvider struct {
	Pubkey      string `json:"pubkey"`
	BlocksCount int    `json:"blocks_count"`
}

// MakeGenesisState 根据创世配置生成初始状态，第一轮由调用方保存
func MakeGenesisState(genDoc *types.GenesisDoc, maximumTinyBlocksCount int) State {
	return State{
		ChainID:                genDoc.ChainID,
		IsMainChain:            genDoc.IsMainChain,
		MiningInterval:         genDoc.MiningInterval,
		PeriodSeconds:          genDoc.PeriodSeconds,
		BlockchainStartTime:    genDoc.GenesisTime,
		CurrentRoundNumber:     1,
		CurrentTermNumber:      1,
		MaximumTinyBlocksCount: maximumTinyBlocksCount,
		InitialMiners:          genDoc.MinerList(),
		ReplacedMiners:         map[string]string{},
	}
}

// State 共识的单例字段
// 所有轮次信息按轮次号单独存储，这里只保留指针一样的数据
type State struct {
	// 初始设定值 const value
	ChainID        string `json:"chain_id"`
	IsMainChain    bool   `json:"is_main_chain"`
	MiningInterval int64  `json:"mining_interval"`
	PeriodSeconds  int64  `json:"period_seconds"`

	BlockchainStartTime time.Time `json:"blockchain_start_time"`
	CurrentRoundNumber  int64     `json:"current_round_number"`
	CurrentTermNumber   int64     `json:"current_term_number"`

	// 由链的健康状况决定的小块上限
	MaximumTinyBlocksCount        int  `json:"maximum_tiny_blocks_count"`
	IsPreviousBlockInSevereStatus bool `json:"is_previous_block_in_severe_status"`

	LatestProviderToTinyBlocksCount *LatestProvider `json:"latest_provider_to_tiny_blocks_count"`

	InitialMiners types.MinerList `json:"initial_miners"`
	// 侧链从主链同步过来的矿工列表
	MainChainMinerList types.MinerList `json:"main_chain_miner_list"`
	// 当前轮次中被替换的矿工，新矿工 -> 旧矿工
	ReplacedMiners map[string]string `json:"replaced_miners"`

	RandomNumberNonce uint64 `json:"random_number_nonce"`

	// 最后执行的区块
	LatestBlockHeight int64            `json:"latest_block_height"`
	LatestBlockHash   tmbytes.HexBytes `json:"latest_block_hash"`
}

// Copy 返回当前state的拷贝副本，deepcopy
func (state State) Copy() State {
	newState := state
	if state.LatestProviderToTinyBlocksCount != nil {
		provider := *state.LatestProviderToTinyBlocksCount
		newState.LatestProviderToTinyBlocksCount = &provider
	}
	newState.InitialMiners = types.NewMinerList(state.InitialMiners.Pubkeys)
	newState.MainChainMinerList = types.NewMinerList(state.MainChainMinerList.Pubkeys)
	newState.ReplacedMiners = make(map[string]string, len(state.ReplacedMiners))
	for k, v := range state.ReplacedMiners {
		newState.ReplacedMiners[k] = v
	}
	newState.LatestBlockHash = make([]byte, len(state.LatestBlockHash))
	copy(newState.LatestBlockHash, state.LatestBlockHash)
	return newState
}

func (state State) IsEmpty() bool {
	return state.ChainID == "" && state.CurrentRoundNumber == 0
}

// IsGenesisRound 是否处在第一届的第一轮
func (state State) IsGenesisRound() bool {
	return state.CurrentRoundNumber == 1
}

package consensus

import (
	"chaindpos/types"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// 共识状态提交之后对外发布的事件
const (
	EventIrreversibleBlockFound              = "IrreversibleBlockFound"
	EventIrreversibleBlockHeightUnacceptable = "IrreversibleBlockHeightUnacceptable"
	EventMinerReplaced                       = "MinerReplaced"
	EventEvilMinerDetected                   = "EvilMinerDetected"
	EventNewRoundCommitted                   = "NewRoundCommitted"
	EventNewTermCommitted                    = "NewTermCommitted"
	// 每条共识交易执行成功后发布，矿工据此重新查询命令
	EventBlockExecuted = "BlockExecuted"
)

// IrreversibleBlockFound LIB前进
type IrreversibleBlockFound struct {
	IrreversibleBlockHeight int64            `json:"irreversible_block_height"`
	RoundNumber             int64            `json:"round_number"`
	BlockHash               tmbytes.HexBytes `json:"block_hash"`
}

// IrreversibleBlockHeightUnacceptable 当前高度离LIB太远，Distance为0表示已经恢复
type IrreversibleBlockHeightUnacceptable struct {
	Distance int64 `json:"distance"`
}

type MinerReplaced struct {
	NewMiner string `json:"new_miner"`
	OldMiner string `json:"old_miner"`
}

type EvilMinerDetected struct {
	Pubkey      string `json:"pubkey"`
	RoundNumber int64  `json:"round_number"`
}

// NewRoundCommitted 进入下一轮，换届时同时发布NewTermCommitted
type NewRoundCommitted struct {
	Round *types.Round `json:"round"`
}

type NewTermCommitted struct {
	TermNumber  int64           `json:"term_number"`
	RoundNumber int64           `json:"round_number"`
	Miners      types.MinerList `json:"miners"`
}

type BlockExecuted struct {
	Height int64  `json:"height"`
	Method string `json:"method"`
	Sender string `json:"sender"`
}

// pendingEvent 交易执行过程中产生，提交成功后才发布
type pendingEvent struct {
	name string
	data interface{}
}

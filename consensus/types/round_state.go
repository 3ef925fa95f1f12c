package types

import (
	"fmt"
	"time"

	"chaindpos/types"
)

//-----------------------------------------------------------------------------
// MinerStepType enum type

// MinerStepType enumerates the state of the miner loop
type MinerStepType uint8

// MinerStepType
const (
	MinerStepWait      = MinerStepType(0x01) // 没有可执行的命令
	MinerStepScheduled = MinerStepType(0x02) // 已经设置了出块定时器
	MinerStepMining    = MinerStepType(0x03) // 正在打包和执行区块
)

func (rs MinerStepType) String() string {
	switch rs {
	case MinerStepWait:
		return "Wait"
	case MinerStepScheduled:
		return "Scheduled"
	case MinerStepMining:
		return "Mining"
	default:
		return fmt.Sprintf("UnknownStep(%d)", uint8(rs))
	}
}

// MinerState 矿工循环的内部状态
type MinerState struct {
	Pubkey string        `json:"pubkey"`
	Step   MinerStepType `json:"step"`

	// 当前等待执行的命令
	Command     types.ConsensusCommand `json:"command"`
	ScheduledAt time.Time              `json:"scheduled_at"`

	ProducedBlocks  int64 `json:"produced_blocks"`
	FailedBlocks    int64 `json:"failed_blocks"`
	LastBlockHeight int64 `json:"last_block_height"`
}

func (ms *MinerState) String() string {
	return fmt.Sprintf("MinerState{%s %v %v produced:%d failed:%d}",
		types.ShortKey(ms.Pubkey), ms.Step, ms.Command, ms.ProducedBlocks, ms.FailedBlocks)
}

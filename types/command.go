package types

import (
	"fmt"
	"math"
	"time"
)

// MaxTime 无效命令的预期出块时间
var MaxTime = time.Unix(math.MaxInt32, 0).UTC()

// ConsensusCommand 告诉矿工下一次什么时候出块、出什么块、最多花多少时间
type ConsensusCommand struct {
	ExpectedMiningTime    time.Time `json:"expected_mining_time"`
	RemainingMilliseconds int64     `json:"remaining_milliseconds"`
	LimitMilliseconds     int64     `json:"limit_milliseconds"`
	Behavior              Behavior  `json:"behavior"`

	// 生成命令时的轮次，矿工据此判断命令是否过期
	RoundID         int64 `json:"round_id"`
	PreviousRoundID int64 `json:"previous_round_id"`
}

// InvalidConsensusCommand 非矿工或者不允许出块
func InvalidConsensusCommand() ConsensusCommand {
	return ConsensusCommand{
		ExpectedMiningTime:    MaxTime,
		RemainingMilliseconds: math.MaxInt32,
		LimitMilliseconds:     0,
		Behavior:              BehaviorNothing,
	}
}

func (cmd ConsensusCommand) IsInvalid() bool {
	return cmd.Behavior == BehaviorNothing
}

// MiningDueTime 本次出块的截止时间
func (cmd ConsensusCommand) MiningDueTime() time.Time {
	return cmd.ExpectedMiningTime.Add(Milliseconds(cmd.LimitMilliseconds))
}

func (cmd ConsensusCommand) String() string {
	return fmt.Sprintf("Command{%v at:%v left:%dms limit:%dms}",
		cmd.Behavior, cmd.ExpectedMiningTime.Format(time.RFC3339Nano),
		cmd.RemainingMilliseconds, cmd.LimitMilliseconds)
}

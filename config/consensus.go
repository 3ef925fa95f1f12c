package config

import (
	"errors"
	"fmt"
)

// ConsensusConfig 共识协议的常量
type ConsensusConfig struct {
	// 出块间隔，毫秒
	MiningInterval int64 `mapstructure:"mining_interval"`
	// 一届的时长，秒
	PeriodSeconds int64 `mapstructure:"period_seconds"`
	IsMainChain   bool  `mapstructure:"is_main_chain"`

	// 每个时间槽内最多的小块数
	TinyBlocksNumber int `mapstructure:"tiny_blocks_number"`
	// 一个时间槽被平分成的份数
	TotalTinySlots int `mapstructure:"total_tiny_slots"`
	// 出块耗时占一份时间的比例 weight/total_weight
	LimitBlockExecutionTimeWeight      int64 `mapstructure:"limit_block_execution_time_weight"`
	LimitBlockExecutionTimeTotalWeight int64 `mapstructure:"limit_block_execution_time_total_weight"`
	// 留给网络传播的时间，毫秒
	TimeForNetwork int64 `mapstructure:"time_for_network"`

	RandomNumberDueRoundCount     int64 `mapstructure:"random_number_due_round_count"`
	TolerableMissedTimeSlotsCount int64 `mapstructure:"tolerable_missed_time_slots_count"`

	// 链健康状态的阈值
	AbnormalThresholdRounds int64 `mapstructure:"abnormal_threshold_rounds"`
	SevereThresholdRounds   int64 `mapstructure:"severe_threshold_rounds"`
	SevereThresholdBlocks   int64 `mapstructure:"severe_threshold_blocks"`

	// 保留的历史轮次数，0表示不清理
	RoundRetention int64 `mapstructure:"round_retention"`
	RoundCacheSize int   `mapstructure:"round_cache_size"`
}

func DefaultConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{
		MiningInterval:                     4000,
		PeriodSeconds:                      604800,
		IsMainChain:                        true,
		TinyBlocksNumber:                   8,
		TotalTinySlots:                     8,
		LimitBlockExecutionTimeWeight:      3,
		LimitBlockExecutionTimeTotalWeight: 5,
		TimeForNetwork:                     350,
		RandomNumberDueRoundCount:          5,
		TolerableMissedTimeSlotsCount:      4320,
		AbnormalThresholdRounds:            2,
		SevereThresholdRounds:              10,
		SevereThresholdBlocks:              1024,
		RoundRetention:                     40960,
		RoundCacheSize:                     64,
	}
}

// TestConsensusConfig 出块间隔更短，便于本地测试
func TestConsensusConfig() *ConsensusConfig {
	c := DefaultConsensusConfig()
	c.MiningInterval = 400
	c.TimeForNetwork = 20
	c.RoundRetention = 16
	return c
}

func (c *ConsensusConfig) ValidateBasic() error {
	if c.MiningInterval <= 0 {
		return errors.New("mining_interval must be positive")
	}
	if c.PeriodSeconds <= 0 {
		return errors.New("period_seconds must be positive")
	}
	if c.TinyBlocksNumber < 1 {
		return errors.New("tiny_blocks_number must be at least 1")
	}
	if c.TotalTinySlots < 1 {
		return errors.New("total_tiny_slots must be at least 1")
	}
	if c.LimitBlockExecutionTimeWeight <= 0 || c.LimitBlockExecutionTimeTotalWeight <= 0 ||
		c.LimitBlockExecutionTimeWeight > c.LimitBlockExecutionTimeTotalWeight {
		return fmt.Errorf("invalid block execution time weight %d/%d",
			c.LimitBlockExecutionTimeWeight, c.LimitBlockExecutionTimeTotalWeight)
	}
	if c.TimeForNetwork < 0 {
		return errors.New("time_for_network can't be negative")
	}
	if c.RandomNumberDueRoundCount < 1 {
		return errors.New("random_number_due_round_count must be at least 1")
	}
	if c.TolerableMissedTimeSlotsCount < 1 {
		return errors.New("tolerable_missed_time_slots_count must be at least 1")
	}
	if c.AbnormalThresholdRounds < 0 || c.SevereThresholdRounds <= c.AbnormalThresholdRounds {
		return fmt.Errorf("invalid health thresholds %d/%d", c.AbnormalThresholdRounds, c.SevereThresholdRounds)
	}
	if c.SevereThresholdBlocks <= 0 {
		return errors.New("severe_threshold_blocks must be positive")
	}
	if c.RoundRetention < 0 {
		return errors.New("round_retention can't be negative")
	}
	if c.RoundRetention > 0 && c.RoundRetention < c.RandomNumberDueRoundCount+2 {
		return errors.New("round_retention must cover the random number window")
	}
	return nil
}

// TimeForEachBlock 一个小块可用的时间
func (c *ConsensusConfig) TimeForEachBlock(miningInterval int64) int64 {
	return miningInterval / int64(c.TotalTinySlots)
}

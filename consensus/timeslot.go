package consensus

import (
	"time"

	cfg "chaindpos/config"
	"chaindpos/libs/utils"
	"chaindpos/types"
)

// 时间槽计算，全部是纯函数
// 返回的毫秒数为负表示已经错过了对应的时间槽，由调用方重新决定行为

// ExpectedMiningTimeOfOrder 第k个时间槽的开始时间 round_start + (k-1)*interval
func ExpectedMiningTimeOfOrder(round *types.Round, order int, interval int64) time.Time {
	return round.StartTime().Add(types.Milliseconds(int64(order-1) * interval))
}

// ArrangeAbnormalMiningTime 错过了自己时间槽的矿工下一次出块的时间
// 上一轮的额外区块时间还没过时，额外区块生产者直接使用它
func ArrangeAbnormalMiningTime(round *types.Round, pubkey string, now time.Time, interval int64) (time.Time, error) {
	m, err := round.Miner(pubkey)
	if err != nil {
		return time.Time{}, err
	}

	extraBlockTime := round.ExtraBlockMiningTime()
	if m.IsExtraBlockProducer && extraBlockTime.Add(types.Milliseconds(interval)).Sub(now) > 0 {
		return extraBlockTime, nil
	}

	total := round.TotalMilliseconds(interval)
	missedRounds := now.Sub(round.StartTime()).Milliseconds() / total
	if missedRounds < 0 {
		missedRounds = 0
	}
	futureRoundStart := round.StartTime().Add(types.Milliseconds(total * (missedRounds + 1)))
	return futureRoundStart.Add(types.Milliseconds(int64(m.Order) * interval)), nil
}

// firstRoundMiningLeft 第一轮的预期时间并不准确，按order错开出块避免分叉
func firstRoundMiningLeft(order int, interval int64) int64 {
	return int64(order-1) * interval
}

// firstRoundTerminateLeft 第一轮中等待第一个矿工超时后再尝试结束本轮
func firstRoundTerminateLeft(order, minersCount int, interval int64) int64 {
	return int64(order+minersCount-1) * interval
}

func timeForEachBlock(c *cfg.ConsensusConfig, interval int64) int64 {
	tfeb := c.TimeForEachBlock(interval)
	if tfeb <= 0 {
		tfeb = 1
	}
	return tfeb
}

// blocksBeforeRoundStart 上一轮的额外区块生产者在本轮开始前出的块数
func blocksBeforeRoundStart(round *types.Round, m *types.MinerInRound) int {
	if round.ExtraBlockProducerOfPreviousRound != m.PublicKey {
		return 0
	}
	return m.CountActualMiningTimesBefore(round.StartTime())
}

func earliestActualMiningTime(m *types.MinerInRound) (time.Time, bool) {
	if len(m.ActualMiningTimes) == 0 {
		return time.Time{}, false
	}
	earliest := m.ActualMiningTimes[0]
	for _, t := range m.ActualMiningTimes[1:] {
		if t.Before(earliest) {
			earliest = t
		}
	}
	return earliest, true
}

// tinyBlockMiningTime 下一个小块的出块时间
// 一个时间槽被平分为TotalTinySlots份，每份出一个块；时间槽已经用完时返回false
func tinyBlockMiningTime(c *cfg.ConsensusConfig, view *chainView, pubkey string, now time.Time) (time.Time, bool) {
	current := view.current
	m := current.Miners[pubkey]
	interval := view.miningInterval()
	tfeb := timeForEachBlock(c, interval)
	produced := int64(m.ProducedTinyBlocks)

	var expected, origin time.Time
	switch {
	case current.RoundNumber == 1 || (current.RoundNumber == 2 && !m.IsMined()):
		// 前两轮的预期时间不可信，以实际出块时间为准
		first, ok := earliestActualMiningTime(m)
		if !ok {
			first = now
		}
		origin = first
		expected = first.Add(types.Milliseconds(tfeb * produced))
	case m.IsMined():
		before := int64(blocksBeforeRoundStart(current, m))
		origin = m.ExpectedMiningTime
		expected = origin.Add(types.Milliseconds(tfeb * (produced - before)))
	default:
		// 上一轮额外区块的时间槽
		origin = current.StartTime().Add(-types.Milliseconds(interval))
		expected = origin.Add(types.Milliseconds(tfeb * produced))
	}

	end := origin.Add(types.Milliseconds(interval))
	for expected.Before(now) && expected.Before(end) {
		expected = expected.Add(types.Milliseconds(tfeb))
	}
	return expected, expected.Before(end)
}

// miningLimit 本次出块可以使用的时间
func miningLimit(c *cfg.ConsensusConfig, view *chainView, pubkey string, behavior types.Behavior,
	left int64, isAlone bool) int64 {
	interval := view.miningInterval()
	if isAlone {
		return interval
	}
	if behavior == types.BehaviorNextTerm {
		return interval / 2
	}

	tfeb := timeForEachBlock(c, interval)
	limit := tfeb + utils.MinInt64(left, 0)
	if limit < 0 {
		limit = 0
	}

	m := view.current.Miners[pubkey]
	maxTiny := view.maximumTinyBlocksCount(c.TinyBlocksNumber)
	if m.ProducedTinyBlocks == maxTiny || m.ProducedTinyBlocks == maxTiny+blocksBeforeRoundStart(view.current, m) {
		// 最后一个小块需要给下一个矿工留出时间
		return limit / 2
	}
	return limit * c.LimitBlockExecutionTimeWeight / c.LimitBlockExecutionTimeTotalWeight
}

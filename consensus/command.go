package consensus

import (
	"time"

	cfg "chaindpos/config"
	"chaindpos/types"
)

// getConsensusCommand 根据当前的轮次信息生成出块命令
// 不修改任何状态，相同的输入得到相同的命令
func getConsensusCommand(c *cfg.ConsensusConfig, view *chainView, pubkey string, now time.Time) types.ConsensusCommand {
	current := view.current
	m, ok := current.Miners[pubkey]
	if !ok {
		return types.InvalidConsensusCommand()
	}
	if isSolitaryMiner(view, pubkey) {
		return types.InvalidConsensusCommand()
	}

	provider := newBehaviorProvider(c, view, pubkey, now)
	behavior := provider.decide()

	if behavior == types.BehaviorTinyBlock && isContinuousBlocksExceeded(view, pubkey) {
		// 连续出块数已经用完，等其他矿工出块
		behavior = provider.terminateBehavior()
	}

	isAlone := isLonelyMiner(view, pubkey)
	if behavior == types.BehaviorTinyBlock && isAlone && current.MinersCount() > 2 {
		return types.InvalidConsensusCommand()
	}

	interval := view.miningInterval()
	var expected time.Time
	var left int64
	for {
		switch behavior {
		case types.BehaviorUpdateValueWithoutPreviousInValue:
			if current.RoundNumber == 1 {
				left = firstRoundMiningLeft(m.Order, interval)
				expected = now.Add(types.Milliseconds(left))
			} else {
				expected = m.ExpectedMiningTime
				left = expected.Sub(now).Milliseconds()
			}
		case types.BehaviorUpdateValue:
			expected = m.ExpectedMiningTime
			left = expected.Sub(now).Milliseconds()
		case types.BehaviorTinyBlock:
			var inSlot bool
			expected, inSlot = tinyBlockMiningTime(c, view, pubkey, now)
			left = expected.Sub(now).Milliseconds()
			if !inSlot || left < 0 {
				// 小块的时间槽已经过去，改为结束本轮
				behavior = provider.terminateBehavior()
				continue
			}
		case types.BehaviorNextRound:
			if current.RoundNumber == 1 {
				left = firstRoundTerminateLeft(m.Order, current.MinersCount(), interval)
				expected = now.Add(types.Milliseconds(left))
			} else {
				expected, _ = ArrangeAbnormalMiningTime(current, pubkey, now, interval)
				left = expected.Sub(now).Milliseconds()
			}
		case types.BehaviorNextTerm:
			expected, _ = ArrangeAbnormalMiningTime(current, pubkey, now, interval)
			left = expected.Sub(now).Milliseconds()
		default:
			return types.InvalidConsensusCommand()
		}
		break
	}

	limit := miningLimit(c, view, pubkey, behavior, left, isAlone)
	if behavior == types.BehaviorTinyBlock && left < c.TimeForNetwork {
		// 给上一个块的广播留出时间
		left = c.TimeForNetwork
	}
	if left < 0 {
		left = 0
	}

	return types.ConsensusCommand{
		ExpectedMiningTime:    expected,
		RemainingMilliseconds: left,
		LimitMilliseconds:     limit,
		Behavior:              behavior,
		RoundID:               current.RoundID(),
		PreviousRoundID:       view.previousRoundID(),
	}
}

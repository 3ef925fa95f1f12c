package consensus

import (
	"time"

	cfg "chaindpos/config"
	"chaindpos/types"
)

// behaviorProvider 决定矿工下一步的共识行为
type behaviorProvider struct {
	config *cfg.ConsensusConfig
	view   *chainView
	pubkey string
	now    time.Time

	miner   *types.MinerInRound
	maxTiny int
}

func newBehaviorProvider(c *cfg.ConsensusConfig, view *chainView, pubkey string, now time.Time) *behaviorProvider {
	return &behaviorProvider{
		config:  c,
		view:    view,
		pubkey:  pubkey,
		now:     now,
		miner:   view.current.Miners[pubkey],
		maxTiny: view.maximumTinyBlocksCount(c.TinyBlocksNumber),
	}
}

// decide 按优先级依次判断
func (p *behaviorProvider) decide() types.Behavior {
	if p.miner == nil {
		return types.BehaviorNothing
	}

	if !p.miner.IsMined() {
		if b, ok := p.inNewRound(); ok {
			return b
		}
	} else if p.canProduceTinyBlock() {
		return types.BehaviorTinyBlock
	}

	return p.terminateBehavior()
}

// inNewRound 还没有在本轮发布out value
func (p *behaviorProvider) inNewRound() (types.Behavior, bool) {
	current := p.view.current

	// 第一轮的预期时间不准确，等第一个矿工出块后其他矿工才能出块
	if current.RoundNumber == 1 && current.MinersCount() > 1 && p.miner.Order != 1 {
		if first := current.MinerByOrder(1); first != nil && !first.IsMined() {
			return types.BehaviorNextRound, true
		}
	}

	// 上一轮的额外区块生产者在本轮开始前可以继续出小块
	if current.ExtraBlockProducerOfPreviousRound == p.pubkey &&
		p.now.Before(current.StartTime()) &&
		p.miner.ProducedTinyBlocks < p.maxTiny {
		return types.BehaviorTinyBlock, true
	}

	if p.view.previous == nil || p.view.isJustChangedTerm() {
		return types.BehaviorUpdateValueWithoutPreviousInValue, true
	}

	if !current.IsTimeSlotPassed(p.pubkey, p.now) {
		return types.BehaviorUpdateValue, true
	}

	return types.BehaviorNothing, false
}

// canProduceTinyBlock 已经发布了out value
func (p *behaviorProvider) canProduceTinyBlock() bool {
	current := p.view.current
	if !current.IsTimeSlotPassed(p.pubkey, p.now) && p.miner.ProducedTinyBlocks < p.maxTiny {
		return true
	}
	// 上一轮的额外区块生产者有两倍的小块配额
	return current.ExtraBlockProducerOfPreviousRound == p.pubkey &&
		!current.IsMinerListJustChanged &&
		p.miner.ProducedTinyBlocks < p.maxTiny*2
}

// terminateBehavior 结束本轮还是结束本届
func (p *behaviorProvider) terminateBehavior() types.Behavior {
	if !p.view.state.IsMainChain {
		// 侧链没有换届
		return types.BehaviorNextRound
	}
	if p.view.current.RoundNumber == 1 {
		return types.BehaviorNextRound
	}
	if IsTimeToChangeTerm(p.view.current, p.view.state.BlockchainStartTime, p.view.state.PeriodSeconds) {
		return types.BehaviorNextTerm
	}
	return types.BehaviorNextRound
}

// IsTimeToChangeTerm 超过 N*2/3+1 个矿工最近一次出块时已经进入了下一届的时间段
// (t - start) / period != term - 1
func IsTimeToChangeTerm(round *types.Round, blockchainStart time.Time, periodSeconds int64) bool {
	if periodSeconds <= 0 {
		return false
	}
	approvals := 0
	for _, m := range round.Miners {
		t, ok := m.LatestActualMiningTime()
		if !ok {
			continue
		}
		elapsed := int64(t.Sub(blockchainStart).Seconds())
		if elapsed/periodSeconds != round.TermNumber-1 {
			approvals++
		}
	}
	return approvals >= round.MinersCountOfConsent()
}

// isSolitaryMiner 连续两轮都只有自己出块，本轮也没有其他人出块
// 此时大概率是本节点和网络断开了，不应该继续出块
func isSolitaryMiner(view *chainView, pubkey string) bool {
	current := view.current
	if current.RoundNumber <= 3 || current.MinersCount() <= 2 {
		return false
	}
	for _, pk := range current.MinedPublicKeys() {
		if pk != pubkey {
			return false
		}
	}
	return onlyMinedBy(view.previous, pubkey) && onlyMinedBy(view.beforePrevious, pubkey)
}

// isLonelyMiner 上一轮只有自己出块
func isLonelyMiner(view *chainView, pubkey string) bool {
	return onlyMinedBy(view.previous, pubkey)
}

// isContinuousBlocksExceeded 前两轮不限制连续出块
func isContinuousBlocksExceeded(view *chainView, pubkey string) bool {
	if view.current.RoundNumber <= 2 || view.current.MinersCount() <= 1 {
		return false
	}
	provider := view.state.LatestProviderToTinyBlocksCount
	return provider != nil && provider.Pubkey == pubkey && provider.BlocksCount < 0
}

package consensus

import (
	"time"

	cfg "chaindpos/config"
	"chaindpos/types"
)

// generateNextRound 额外区块生产者生成下一轮，验证者用同样的输入重新计算
// 返回下一轮以及被替换的矿工 新矿工 -> 旧矿工
func generateNextRound(c *cfg.ConsensusConfig, view *chainView, elec Election,
	sender string, now time.Time) (*types.Round, map[string]string, error) {
	current := closeRound(view.current, view.previous)
	interval := view.miningInterval()
	start := view.state.BlockchainStartTime

	if isMainChainMinerListChanged(view) {
		// 侧链同步主链的矿工列表，届数保持不变
		next := view.state.MainChainMinerList.GenerateFirstRoundOfNewTerm(
			interval, now, current.RoundNumber, current.TermNumber-1)
		next.ConfirmedIrreversibleBlockHeight = current.ConfirmedIrreversibleBlockHeight
		next.ConfirmedIrreversibleBlockRoundNumber = current.ConfirmedIrreversibleBlockRoundNumber
		next.BlockchainAge = blockchainAge(start, now)
		markTerminateProducer(next, sender, now)
		return next, map[string]string{}, nil
	}

	replaced := map[string]string{}
	if view.state.IsMainChain && view.previous != nil && view.previous.TermNumber == current.TermNumber {
		evils := DetectEvilMiners(current, view.previous, c.TolerableMissedTimeSlotsCount)
		current, replaced = ReplaceEvilMiners(current, evils, elec, view.state.InitialMiners)
	}

	next := GenerateNextRoundInformation(current, now, interval, start, len(replaced) > 0)
	if err := next.CheckOrders(); err != nil {
		return nil, nil, err
	}
	markTerminateProducer(next, sender, now)
	return next, replaced, nil
}

// generateNextTerm 新一届的矿工取选举的结果，没有结果时沿用当前矿工
func generateNextTerm(view *chainView, elec Election, sender string, now time.Time) *types.Round {
	var victors types.MinerList
	if elec != nil {
		victors = elec.GetCurrentVictors()
	}
	if victors.IsEmpty() {
		victors = types.NewMinerList(view.current.PublicKeys())
	}
	next := GenerateFirstRoundOfNextTerm(victors, view.current, now,
		view.miningInterval(), view.state.BlockchainStartTime)
	markTerminateProducer(next, sender, now)
	return next
}

// isMainChainMinerListChanged 侧链收到的主链矿工列表和当前矿工不同
func isMainChainMinerListChanged(view *chainView) bool {
	if view.state.IsMainChain || view.state.MainChainMinerList.IsEmpty() {
		return false
	}
	return !view.state.MainChainMinerList.Equal(types.NewMinerList(view.current.PublicKeys()))
}

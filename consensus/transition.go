package consensus

import (
	"time"

	"chaindpos/libs/utils"
	"chaindpos/types"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// CalculateSignature 用上一轮所有矿工的签名和本轮的in value计算签名
// 签名依次做 H(a ^ b)，所以必须按order的顺序聚合
func CalculateSignature(previous *types.Round, inValue tmbytes.HexBytes) tmbytes.HexBytes {
	aggregated := types.EmptyHash
	if previous != nil {
		for _, m := range previous.MinersByOrder() {
			aggregated = types.XorAndCompute(aggregated, m.Signature)
		}
	}
	return types.XorAndCompute(inValue, aggregated)
}

// SupposedOrderOfNextRound |sig| mod N + 1
func SupposedOrderOfNextRound(signature tmbytes.HexBytes, minersCount int) int {
	return utils.AbsMod(types.HashToInt64(signature), minersCount) + 1
}

// ApplyNormalConsensusData 矿工发布out value后计算它在下一轮的顺序
// 和已经占用这个顺序的矿工冲突时，把对方顺延到下一个空闲的位置
func ApplyNormalConsensusData(round *types.Round, pubkey string,
	previousInValue, outValue, signature tmbytes.HexBytes) (*types.Round, error) {
	updated := round.Copy()
	m, err := updated.Miner(pubkey)
	if err != nil {
		return nil, err
	}

	n := updated.MinersCount()
	supposed := SupposedOrderOfNextRound(signature, n)
	for _, conflicted := range updated.MinersByOrder() {
		if conflicted.FinalOrderOfNextRound != supposed {
			continue
		}
		for i := supposed + 1; i < n*2; i++ {
			maybe := i
			if i > n {
				maybe = i % n
			}
			if !isFinalOrderTaken(updated, maybe) {
				conflicted.FinalOrderOfNextRound = maybe
				break
			}
		}
	}

	m.SupposedOrderOfNextRound = supposed
	m.FinalOrderOfNextRound = supposed
	m.OutValue = outValue
	m.Signature = signature
	if types.IsEmptyHash(m.PreviousInValue) {
		m.PreviousInValue = previousInValue
	}
	return updated, nil
}

func isFinalOrderTaken(round *types.Round, order int) bool {
	for _, m := range round.Miners {
		if m.FinalOrderOfNextRound == order {
			return true
		}
	}
	return false
}

// TuneOrderInformation 被调整过下一轮顺序的矿工
func TuneOrderInformation(round *types.Round) map[string]int {
	tuned := map[string]int{}
	for pk, m := range round.Miners {
		if m.FinalOrderOfNextRound != m.SupposedOrderOfNextRound {
			tuned[pk] = m.FinalOrderOfNextRound
		}
	}
	return tuned
}

// SupplyCurrentRoundInformation 结束本轮前为没有出块的矿工补全in value和签名
// 保证每一轮的数据都是完整的
func SupplyCurrentRoundInformation(current, previous *types.Round) *types.Round {
	supplied := current.Copy()
	for _, m := range supplied.MinersByOrder() {
		if m.IsMined() {
			continue
		}

		var inValue, signature tmbytes.HexBytes
		if previous.Contains(m.PublicKey) {
			// 其他矿工已经还原出来的，或者它上一轮被补全的
			inValue = m.PreviousInValue
			if types.IsEmptyHash(inValue) {
				inValue = previous.Miners[m.PublicKey].InValue
			}
			if !types.IsEmptyHash(inValue) {
				signature = CalculateSignature(previous, inValue)
			}
		}
		if types.IsEmptyHash(inValue) {
			// 刚刚加入或者被替换上来的矿工
			inValue = types.HashFromString(m.PublicKey)
			if previous.Contains(m.PublicKey) {
				signature = CalculateSignature(previous, inValue)
			} else {
				signature = inValue
			}
		}
		m.InValue = inValue
		m.Signature = signature
	}
	return supplied
}

// NextExtraBlockProducerOrder 由本轮第一个有签名的矿工决定下一轮的额外区块生产者
func NextExtraBlockProducerOrder(round *types.Round) int {
	for _, m := range round.MinersByOrder() {
		if !types.IsEmptyHash(m.Signature) {
			return SupposedOrderOfNextRound(m.Signature, round.MinersCount())
		}
	}
	return 1
}

// GenerateNextRoundInformation 根据本轮生成下一轮
// 出过块的矿工按FinalOrderOfNextRound排列，没出块的矿工依次填补剩余的位置并记一次缺席
func GenerateNextRoundInformation(current *types.Round, now time.Time, miningInterval int64,
	blockchainStart time.Time, isMinerListChanged bool) *types.Round {
	next := types.NewRound(current.RoundNumber+1, current.TermNumber)
	n := current.MinersCount()

	var mined, notMined []*types.MinerInRound
	for _, m := range current.MinersByOrder() {
		if m.SupposedOrderOfNextRound != 0 {
			mined = append(mined, m)
		} else {
			notMined = append(notMined, m)
		}
	}

	taken := make(map[int]bool, n)
	for _, m := range mined {
		order := m.FinalOrderOfNextRound
		taken[order] = true
		nm := types.NewMinerInRound(m.PublicKey, order, now.Add(types.Milliseconds(miningInterval*int64(order))))
		nm.ProducedBlocks = m.ProducedBlocks
		nm.PreviousInValue = m.InValue
		nm.MissedTimeSlots = m.MissedTimeSlots
		next.Miners[m.PublicKey] = nm
	}

	ableOrders := make([]int, 0, n)
	for order := 1; order <= n; order++ {
		if !taken[order] {
			ableOrders = append(ableOrders, order)
		}
	}
	for i, m := range notMined {
		if i >= len(ableOrders) {
			break
		}
		order := ableOrders[i]
		nm := types.NewMinerInRound(m.PublicKey, order, now.Add(types.Milliseconds(miningInterval*int64(order))))
		nm.ProducedBlocks = m.ProducedBlocks
		nm.PreviousInValue = m.InValue
		nm.MissedTimeSlots = m.MissedTimeSlots + 1
		next.Miners[m.PublicKey] = nm
	}

	if ebp := next.MinerByOrder(NextExtraBlockProducerOrder(current)); ebp != nil {
		ebp.IsExtraBlockProducer = true
	}
	BreakContinuousMining(current, next)

	next.ConfirmedIrreversibleBlockHeight = current.ConfirmedIrreversibleBlockHeight
	next.ConfirmedIrreversibleBlockRoundNumber = current.ConfirmedIrreversibleBlockRoundNumber
	next.BlockchainAge = blockchainAge(blockchainStart, now)
	next.IsMinerListJustChanged = isMinerListChanged
	return next
}

// BreakContinuousMining 避免同一个矿工连续出块
// 本轮的额外区块生产者不能是下一轮第一个出块的，下一轮的额外区块生产者不能是最后一个出块的
func BreakContinuousMining(current, next *types.Round) {
	n := next.MinersCount()
	if n <= 1 {
		return
	}

	first := next.MinerByOrder(1)
	if first == nil {
		return
	}
	if ebp := current.ExtraBlockProducer(); ebp != nil && ebp.PublicKey == first.PublicKey {
		second := next.MinerByOrder(2)
		if second == nil {
			return
		}
		swapTimeSlot(first, second)
	}

	last := next.MinerByOrder(n)
	if last == nil {
		return
	}
	if ebp := next.ExtraBlockProducer(); ebp != nil && ebp.PublicKey == last.PublicKey {
		lastButOne := next.MinerByOrder(n - 1)
		if lastButOne == nil {
			return
		}
		swapTimeSlot(last, lastButOne)
	}
}

func swapTimeSlot(a, b *types.MinerInRound) {
	a.Order, b.Order = b.Order, a.Order
	a.ExpectedMiningTime, b.ExpectedMiningTime = b.ExpectedMiningTime, a.ExpectedMiningTime
}

// GenerateFirstRoundOfNextTerm 新一届的第一轮
func GenerateFirstRoundOfNextTerm(victors types.MinerList, current *types.Round, now time.Time,
	miningInterval int64, blockchainStart time.Time) *types.Round {
	next := victors.GenerateFirstRoundOfNewTerm(miningInterval, now, current.RoundNumber, current.TermNumber)
	next.ConfirmedIrreversibleBlockHeight = current.ConfirmedIrreversibleBlockHeight
	next.ConfirmedIrreversibleBlockRoundNumber = current.ConfirmedIrreversibleBlockRoundNumber
	next.BlockchainAge = blockchainAge(blockchainStart, now)
	return next
}

// markTerminateProducer 生成下一轮的矿工记下这个额外区块
func markTerminateProducer(next *types.Round, pubkey string, now time.Time) {
	m, ok := next.Miners[pubkey]
	if !ok {
		return
	}
	next.ExtraBlockProducerOfPreviousRound = pubkey
	m.ProducedBlocks++
	m.ProducedTinyBlocks = 1
	m.ActualMiningTimes = append(m.ActualMiningTimes, now)
}

func blockchainAge(start, now time.Time) int64 {
	if start.IsZero() || now.Before(start) {
		return 0
	}
	return int64(now.Sub(start).Seconds())
}

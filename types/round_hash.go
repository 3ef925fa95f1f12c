package types

import (
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// CheckableRound 用于区块执行前后比对的轮次投影
// 秘密分片和实际出块时间在不同节点上可能不一致，不参与比对
func (r *Round) CheckableRound(withPreviousInValue bool) *Round {
	checkable := &Round{
		RoundNumber:   r.RoundNumber,
		TermNumber:    r.TermNumber,
		BlockchainAge: r.BlockchainAge,
		Miners:        make(map[string]*MinerInRound, len(r.Miners)),

		ConfirmedIrreversibleBlockHeight:      r.ConfirmedIrreversibleBlockHeight,
		ConfirmedIrreversibleBlockRoundNumber: r.ConfirmedIrreversibleBlockRoundNumber,
	}
	for k, m := range r.Miners {
		cm := m.Copy()
		cm.EncryptedInValues = map[string]tmbytes.HexBytes{}
		cm.DecryptedPreviousInValues = map[string]tmbytes.HexBytes{}
		cm.ActualMiningTimes = nil
		if !withPreviousInValue {
			cm.PreviousInValue = nil
		}
		checkable.Miners[k] = cm
	}
	return checkable
}

// Hash 可比对投影的merkle root，矿工按order排列
func (r *Round) Hash(withPreviousInValue bool) tmbytes.HexBytes {
	checkable := r.CheckableRound(withPreviousInValue)
	items := [][]byte{
		int64ToBytes(checkable.RoundNumber),
		int64ToBytes(checkable.TermNumber),
		int64ToBytes(checkable.BlockchainAge),
		int64ToBytes(checkable.ConfirmedIrreversibleBlockHeight),
		int64ToBytes(checkable.ConfirmedIrreversibleBlockRoundNumber),
	}
	for _, m := range checkable.MinersByOrder() {
		items = append(items, m.hashBytes())
	}
	return merkleHash(items)
}

func (m *MinerInRound) hashBytes() []byte {
	fields := [][]byte{
		[]byte(m.PublicKey),
		int64ToBytes(int64(m.Order)),
		int64ToBytes(m.ExpectedMiningTime.UnixNano()),
		hashField(m.OutValue),
		hashField(m.InValue),
		hashField(m.PreviousInValue),
		hashField(m.Signature),
		int64ToBytes(m.ProducedBlocks),
		int64ToBytes(int64(m.ProducedTinyBlocks)),
		int64ToBytes(m.MissedTimeSlots),
		int64ToBytes(m.ImpliedIrreversibleBlockHeight),
		int64ToBytes(int64(m.SupposedOrderOfNextRound)),
		int64ToBytes(int64(m.FinalOrderOfNextRound)),
		boolToBytes(m.IsExtraBlockProducer),
	}
	return merkleHash(fields)
}

// hashField 空hash统一按nil编码
func hashField(h tmbytes.HexBytes) []byte {
	if IsEmptyHash(h) {
		return nil
	}
	return h
}

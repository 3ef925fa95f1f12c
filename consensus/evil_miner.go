package consensus

import (
	"chaindpos/election"
	"chaindpos/types"
)

// Election 选举合约在共识中的接口
type Election interface {
	GetCurrentVictors() types.MinerList
	GetVoteSnapshot() []election.Candidate
	IsBanned(pubkey string) bool
	ReportEvil(pubkey string)
	ReportProductionStats(pubkey string, produced, missed int64)
}

// DetectEvilMiners 公开的previous in value和上一轮的out value对不上，或者缺席次数过多的矿工
// 按本轮的order返回
func DetectEvilMiners(current, previous *types.Round, tolerableMissedTimeSlots int64) []string {
	var evils []string
	for _, m := range current.MinersByOrder() {
		if tolerableMissedTimeSlots > 0 && m.MissedTimeSlots >= tolerableMissedTimeSlots {
			evils = append(evils, m.PublicKey)
			continue
		}
		if previous == nil || types.IsEmptyHash(m.PreviousInValue) {
			continue
		}
		pm, ok := previous.Miners[m.PublicKey]
		if !ok || types.IsEmptyHash(pm.OutValue) {
			continue
		}
		if !types.HashEqual(types.ComputeHash(m.PreviousInValue), pm.OutValue) {
			evils = append(evils, m.PublicKey)
		}
	}
	return evils
}

// selectBackupMiners 优先选得票最高的候选人，不够时从初始矿工中补充
func selectBackupMiners(current *types.Round, count int, elec Election, initialMiners types.MinerList) []string {
	if count <= 0 {
		return nil
	}
	used := map[string]bool{}
	backups := make([]string, 0, count)
	pick := func(pk string) {
		if len(backups) >= count || used[pk] || current.Contains(pk) {
			return
		}
		if elec != nil && elec.IsBanned(pk) {
			return
		}
		used[pk] = true
		backups = append(backups, pk)
	}

	if elec != nil {
		for _, c := range elec.GetVoteSnapshot() {
			pick(c.Pubkey)
		}
	}
	for _, pk := range initialMiners.Pubkeys {
		pick(pk)
	}
	return backups
}

// ReplaceEvilMiners 用备选矿工原地替换作恶的矿工
// 新矿工继承时间槽和额外区块标记，出块统计清零
// 返回替换后的轮次以及 新矿工 -> 旧矿工
func ReplaceEvilMiners(current *types.Round, evils []string, elec Election,
	initialMiners types.MinerList) (*types.Round, map[string]string) {
	replaced := map[string]string{}
	if len(evils) == 0 {
		return current, replaced
	}

	updated := current.Copy()
	backups := selectBackupMiners(current, len(evils), elec, initialMiners)
	for i, evil := range evils {
		if i >= len(backups) {
			break
		}
		old := updated.Miners[evil]
		nm := types.NewMinerInRound(backups[i], old.Order, old.ExpectedMiningTime)
		nm.PreviousInValue = types.EmptyHash
		nm.IsExtraBlockProducer = old.IsExtraBlockProducer
		delete(updated.Miners, evil)
		updated.Miners[nm.PublicKey] = nm
		replaced[nm.PublicKey] = evil
	}
	return updated, replaced
}

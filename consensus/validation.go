package consensus

import (
	cfg "chaindpos/config"
	"chaindpos/types"
)

// validationContext 校验区块头中的共识数据时使用的上下文
// base是本地当前轮次，provided是区块头中的轮次
type validationContext struct {
	config   *cfg.ConsensusConfig
	view     *chainView
	election Election

	header   *types.HeaderInformation
	sender   string
	base     *types.Round
	provided *types.Round
}

type validationProvider func(vc *validationContext) types.ValidationResult

// validateBeforeExecution 根据行为选择校验项，依次执行直到出现失败
func validateBeforeExecution(c *cfg.ConsensusConfig, view *chainView, elec Election,
	header *types.HeaderInformation) types.ValidationResult {
	if header == nil {
		return types.ValidationFailure("empty header information")
	}
	if err := header.ValidateBasic(); err != nil {
		return types.ValidationFailure("invalid header information: %v", err)
	}

	vc := &validationContext{
		config:   c,
		view:     view,
		election: elec,
		header:   header,
		sender:   header.SenderPubkey,
		base:     view.current,
		provided: header.Round,
	}

	providers := []validationProvider{validateMiningPermission}
	switch header.Behavior {
	case types.BehaviorUpdateValue, types.BehaviorUpdateValueWithoutPreviousInValue:
		providers = append(providers,
			validateRoundID,
			validateTimeSlot,
			validateContinuousBlocks,
			validateNoInValueLeak,
			validateUpdateValue,
			validateLibInformation,
		)
	case types.BehaviorTinyBlock:
		providers = append(providers,
			validateRoundID,
			validateTimeSlot,
			validateContinuousBlocks,
			validateNoInValueLeak,
			validateLibInformation,
		)
	case types.BehaviorNextRound:
		providers = append(providers,
			validateTimeSlot,
			validateNextRound,
			validateNextRoundMiningOrder,
			validateRecomputedRound,
		)
	case types.BehaviorNextTerm:
		providers = append(providers,
			validateTimeSlot,
			validateNextTerm,
			validateRecomputedRound,
		)
	default:
		return types.ValidationFailure("invalid behavior %v", header.Behavior)
	}

	for _, provider := range providers {
		if result := provider(vc); !result.Success {
			return result
		}
	}
	return types.ValidationSuccess()
}

func validateMiningPermission(vc *validationContext) types.ValidationResult {
	if !vc.base.Contains(vc.sender) {
		return types.ValidationFailure("sender %s is not a miner", types.ShortKey(vc.sender))
	}
	return types.ValidationSuccess()
}

// validateRoundID 区块头中的轮次必须是本地的当前轮次
func validateRoundID(vc *validationContext) types.ValidationResult {
	if vc.provided.RoundNumber != vc.base.RoundNumber || vc.provided.RoundID() != vc.base.RoundID() {
		return types.ValidationFailure("round id not match, expected %d@%d, got %d@%d",
			vc.base.RoundID(), vc.base.RoundNumber, vc.provided.RoundID(), vc.provided.RoundNumber)
	}
	return types.ValidationSuccess()
}

func validateTimeSlot(vc *validationContext) types.ValidationResult {
	if vc.provided.RoundID() != vc.base.RoundID() {
		// 新的轮次只检查时间槽是否均匀
		return vc.provided.CheckRoundTimeSlots()
	}
	if !checkMinerTimeSlot(vc) {
		result := types.ValidationFailure("time slot of %s already passed before execution", types.ShortKey(vc.sender))
		result.IsReTrigger = true
		return result
	}
	return types.ValidationSuccess()
}

// checkMinerTimeSlot 矿工最近一次出块必须在自己的时间槽内
// 上一轮的额外区块生产者可以在本轮开始之前出块
func checkMinerTimeSlot(vc *validationContext) bool {
	if vc.base.RoundNumber == 1 || vc.view.isJustChangedTerm() {
		return true
	}
	pm, ok := vc.provided.Miners[vc.sender]
	if !ok {
		return false
	}
	latest, ok := pm.LatestActualMiningTime()
	if !ok {
		return true
	}

	expected := vc.base.Miners[vc.sender].ExpectedMiningTime
	if latest.Before(expected) {
		return latest.Before(vc.base.StartTime())
	}
	end := expected.Add(types.Milliseconds(vc.view.miningInterval()))
	return latest.Before(end)
}

func validateContinuousBlocks(vc *validationContext) types.ValidationResult {
	if isContinuousBlocksExceeded(vc.view, vc.sender) {
		return types.ValidationFailure("sender %s produced too many continuous blocks", types.ShortKey(vc.sender))
	}
	return types.ValidationSuccess()
}

// validateNoInValueLeak 本轮结束前不能出现新的in value
func validateNoInValueLeak(vc *validationContext) types.ValidationResult {
	for pk, pm := range vc.provided.Miners {
		bm, ok := vc.base.Miners[pk]
		if !ok {
			return types.ValidationFailure("unknown miner %s in provided round", types.ShortKey(pk))
		}
		if !types.HashEqual(pm.InValue, bm.InValue) {
			return types.ValidationFailure("in value of %s leaked before round terminated", types.ShortKey(pk))
		}
	}
	return types.ValidationSuccess()
}

func validateUpdateValue(vc *validationContext) types.ValidationResult {
	pm := vc.provided.Miners[vc.sender]
	if pm == nil || types.IsEmptyHash(pm.OutValue) || types.IsEmptyHash(pm.Signature) {
		return types.ValidationFailure("incorrect new out value")
	}

	// 只能有一个新的out value
	for pk, m := range vc.provided.Miners {
		if !m.IsMined() || vc.base.Miners[pk].IsMined() {
			continue
		}
		if pk != vc.sender {
			return types.ValidationFailure("unexpected new out value of %s", types.ShortKey(pk))
		}
	}

	if !checkPreviousInValue(vc.view.previous, vc.sender, pm.PreviousInValue) {
		return types.ValidationFailure("incorrect previous in value")
	}

	// 代替其他矿工公开的previous in value同样要和上一轮的out value对应
	for pk, m := range vc.provided.Miners {
		if pk == vc.sender || types.IsEmptyHash(m.PreviousInValue) {
			continue
		}
		if bm, ok := vc.base.Miners[pk]; ok && types.HashEqual(m.PreviousInValue, bm.PreviousInValue) {
			continue
		}
		if !checkRevealedInValue(vc.view.previous, pk, m.PreviousInValue) {
			return types.ValidationFailure("incorrect previous in value of %s", types.ShortKey(pk))
		}
	}
	return types.ValidationSuccess()
}

// checkPreviousInValue H(previous in value)必须等于上一轮的out value
func checkPreviousInValue(previous *types.Round, pubkey string, previousInValue []byte) bool {
	if previous == nil || types.IsEmptyHash(previousInValue) {
		return true
	}
	pm, ok := previous.Miners[pubkey]
	if !ok || types.IsEmptyHash(pm.OutValue) {
		return true
	}
	return types.HashEqual(types.ComputeHash(previousInValue), pm.OutValue)
}

// checkRevealedInValue 替别的矿工公开的in value，上一轮必须有对应的out value
func checkRevealedInValue(previous *types.Round, pubkey string, inValue []byte) bool {
	if previous == nil {
		return false
	}
	pm, ok := previous.Miners[pubkey]
	if !ok || types.IsEmptyHash(pm.OutValue) {
		return false
	}
	return types.HashEqual(types.ComputeHash(inValue), pm.OutValue)
}

// validateLibInformation LIB不能回退
func validateLibInformation(vc *validationContext) types.ValidationResult {
	if vc.provided.ConfirmedIrreversibleBlockRoundNumber < vc.base.ConfirmedIrreversibleBlockRoundNumber ||
		vc.provided.ConfirmedIrreversibleBlockHeight < vc.base.ConfirmedIrreversibleBlockHeight {
		return types.ValidationFailure("incorrect lib information")
	}
	if vc.header.Behavior.IsUpdateValue() {
		pm, bm := vc.provided.Miners[vc.sender], vc.base.Miners[vc.sender]
		if pm.ImpliedIrreversibleBlockHeight < bm.ImpliedIrreversibleBlockHeight {
			return types.ValidationFailure("incorrect implied irreversible block height")
		}
	}
	return types.ValidationSuccess()
}

func validateNextRound(vc *validationContext) types.ValidationResult {
	if vc.provided.RoundNumber != vc.base.RoundNumber+1 {
		return types.ValidationFailure("incorrect round number for next round")
	}
	if vc.provided.TermNumber != vc.base.TermNumber {
		return types.ValidationFailure("term number changed in next round")
	}
	return validateEmptyValues(vc.provided)
}

func validateNextTerm(vc *validationContext) types.ValidationResult {
	if vc.provided.RoundNumber != vc.base.RoundNumber+1 {
		return types.ValidationFailure("incorrect round number for next term")
	}
	if vc.provided.TermNumber != vc.base.TermNumber+1 {
		return types.ValidationFailure("incorrect term number for next term")
	}
	return validateEmptyValues(vc.provided)
}

// validateEmptyValues 新的轮次里还不能有out value和in value
func validateEmptyValues(round *types.Round) types.ValidationResult {
	for pk, m := range round.Miners {
		if !types.IsEmptyHash(m.OutValue) || !types.IsEmptyHash(m.InValue) {
			return types.ValidationFailure("incorrect next round information of %s", types.ShortKey(pk))
		}
	}
	return types.ValidationSuccess()
}

// validateNextRoundMiningOrder 本轮出过块的矿工在下一轮的顺序不能重复
func validateNextRoundMiningOrder(vc *validationContext) types.ValidationResult {
	orders := map[int]bool{}
	mined := 0
	for _, m := range vc.base.Miners {
		if !m.IsMined() {
			continue
		}
		mined++
		if m.FinalOrderOfNextRound > 0 {
			orders[m.FinalOrderOfNextRound] = true
		}
	}
	if len(orders) != mined {
		return types.ValidationFailure("invalid final order of next round, %d distinct orders for %d miners", len(orders), mined)
	}
	return types.ValidationSuccess()
}

// validateRecomputedRound 用本地数据重新生成下一轮并比较
func validateRecomputedRound(vc *validationContext) types.ValidationResult {
	now := vc.provided.StartTime().Add(-types.Milliseconds(vc.view.miningInterval()))
	if pm, ok := vc.provided.Miners[vc.sender]; ok {
		if t, ok := pm.LatestActualMiningTime(); ok {
			now = t
		}
	}

	var expected *types.Round
	var err error
	if vc.header.Behavior == types.BehaviorNextTerm {
		expected = generateNextTerm(vc.view, vc.election, vc.sender, now)
	} else {
		expected, _, err = generateNextRound(vc.config, vc.view, vc.election, vc.sender, now)
	}
	if err != nil {
		return types.ValidationFailure("failed to recompute next round: %v", err)
	}
	if !types.HashEqual(expected.Hash(true), vc.provided.Hash(true)) {
		return types.ValidationFailure("provided round is different from recomputed one")
	}
	return types.ValidationSuccess()
}

// validateAfterExecution 执行后本地的当前轮次必须和区块头一致
func validateAfterExecution(view *chainView, header *types.HeaderInformation) types.ValidationResult {
	if header == nil || header.Round.IsEmpty() {
		return types.ValidationFailure("empty header information")
	}
	current := view.current
	if header.Round.RoundNumber != current.RoundNumber {
		return types.ValidationFailure("round number mismatch after execution, expected %d, got %d",
			current.RoundNumber, header.Round.RoundNumber)
	}

	withPrev := !current.IsMinerListJustChanged
	if types.HashEqual(header.Round.Hash(withPrev), current.Hash(withPrev)) {
		return types.ValidationSuccess()
	}

	// 矿工被替换时允许区块头中是旧的矿工
	var headerOnly, stateOnly []string
	for pk := range header.Round.Miners {
		if !current.Contains(pk) {
			headerOnly = append(headerOnly, pk)
		}
	}
	for pk := range current.Miners {
		if !header.Round.Contains(pk) {
			stateOnly = append(stateOnly, pk)
		}
	}
	if len(headerOnly) == 0 {
		return types.ValidationFailure("current round information is different with consensus extra data")
	}
	if len(headerOnly) != len(stateOnly) {
		return types.ValidationFailure("incorrect replacement information")
	}
	for _, pk := range stateOnly {
		old, ok := view.state.ReplacedMiners[pk]
		if !ok || !header.Round.Contains(old) {
			return types.ValidationFailure("incorrect replacement information of %s", types.ShortKey(pk))
		}
	}
	return types.ValidationSuccess()
}


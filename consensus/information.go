package consensus

import (
	"fmt"

	cfg "chaindpos/config"
	"chaindpos/types"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// getInformationToUpdate 生成区块头中的共识数据，不修改任何状态
func getInformationToUpdate(c *cfg.ConsensusConfig, view *chainView, elec Election,
	trigger *types.TriggerInformation, ctx types.BlockContext) (*types.HeaderInformation, error) {
	if err := trigger.ValidateBasic(); err != nil {
		return nil, err
	}
	if !view.current.Contains(trigger.Pubkey) {
		return nil, fmt.Errorf("%w: %s", ErrNotMiner, types.ShortKey(trigger.Pubkey))
	}
	if ctx.Time.IsZero() {
		return nil, ErrZeroBlockTime
	}

	now := ctx.Time
	var round *types.Round
	var err error
	switch trigger.Behavior {
	case types.BehaviorUpdateValue, types.BehaviorUpdateValueWithoutPreviousInValue:
		round, err = getUpdateValueRound(view, trigger, ctx)
	case types.BehaviorTinyBlock:
		round, err = getTinyBlockRound(view, trigger.Pubkey, ctx)
	case types.BehaviorNextRound:
		round, _, err = generateNextRound(c, view, elec, trigger.Pubkey, now)
	case types.BehaviorNextTerm:
		round = generateNextTerm(view, elec, trigger.Pubkey, now)
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidBehavior, trigger.Behavior)
	}
	if err != nil {
		return nil, err
	}

	return &types.HeaderInformation{
		SenderPubkey: trigger.Pubkey,
		Behavior:     trigger.Behavior,
		Round:        round,
	}, nil
}

// getUpdateValueRound 发布out value之后的当前轮次
func getUpdateValueRound(view *chainView, trigger *types.TriggerInformation, ctx types.BlockContext) (*types.Round, error) {
	pk := trigger.Pubkey
	round := view.current.Copy()
	m, err := round.Miner(pk)
	if err != nil {
		return nil, err
	}
	m.ActualMiningTimes = append(m.ActualMiningTimes, ctx.Time)
	m.ProducedBlocks++
	m.ProducedTinyBlocks++

	outValue := types.ComputeHash(trigger.InValue)
	signature := CalculateSignature(view.previous, trigger.InValue)
	previousInValue := trigger.PreviousInValue
	if !checkPreviousInValue(view.previous, pk, previousInValue) {
		previousInValue = types.EmptyHash
	}

	round, err = ApplyNormalConsensusData(round, pk, previousInValue, outValue, signature)
	if err != nil {
		return nil, err
	}
	m = round.Miners[pk]
	m.ImpliedIrreversibleBlockHeight = ctx.Height

	if trigger.EncryptedPieces != nil {
		m.EncryptedInValues = copyPieceMap(trigger.EncryptedPieces)
	}
	for owner, piece := range trigger.DecryptedPieces {
		if om, ok := round.Miners[owner]; ok {
			om.DecryptedPreviousInValues[pk] = piece
		}
	}
	for owner, inValue := range trigger.RevealedInValues {
		om, ok := round.Miners[owner]
		if !ok || !types.IsEmptyHash(om.PreviousInValue) {
			continue
		}
		if checkRevealedInValue(view.previous, owner, inValue) {
			om.PreviousInValue = inValue
		}
	}

	// 区块头和执行结果携带同一个LIB
	if view.previous != nil {
		updateLastIrreversibleBlock(round, view.previous)
	}
	return round, nil
}

func getTinyBlockRound(view *chainView, pubkey string, ctx types.BlockContext) (*types.Round, error) {
	round := view.current.Copy()
	m, err := round.Miner(pubkey)
	if err != nil {
		return nil, err
	}
	m.ActualMiningTimes = append(m.ActualMiningTimes, ctx.Time)
	m.ProducedBlocks++
	m.ProducedTinyBlocks++
	return round, nil
}

// consensusTransactionOf 从区块头中的共识数据提取这个区块的共识交易
func consensusTransactionOf(header *types.HeaderInformation, ctx types.BlockContext) (*types.ConsensusTransaction, error) {
	if err := header.ValidateBasic(); err != nil {
		return nil, err
	}
	if ctx.Time.IsZero() {
		return nil, ErrZeroBlockTime
	}
	method, err := types.MethodOfBehavior(header.Behavior)
	if err != nil {
		return nil, err
	}

	tx := &types.ConsensusTransaction{Method: method, Sender: header.SenderPubkey}
	round := header.Round
	switch method {
	case types.MethodUpdateValue:
		tx.UpdateValue, err = extractUpdateValueInput(round, header.SenderPubkey, ctx)
	case types.MethodUpdateTinyBlockInformation:
		m, e := round.Miner(header.SenderPubkey)
		if e != nil {
			return nil, e
		}
		tx.TinyBlock = &types.TinyBlockInput{
			RoundID:          round.RoundID(),
			ActualMiningTime: ctx.Time,
			ProducedBlocks:   m.ProducedBlocks,
		}
	case types.MethodNextRound:
		tx.NextRound = round.Copy()
	case types.MethodNextTerm:
		tx.NextTerm = round.Copy()
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func extractUpdateValueInput(round *types.Round, sender string, ctx types.BlockContext) (*types.UpdateValueInput, error) {
	m, err := round.Miner(sender)
	if err != nil {
		return nil, err
	}

	decrypted := map[string]tmbytes.HexBytes{}
	previousInValues := map[string]tmbytes.HexBytes{}
	for pk, om := range round.Miners {
		if piece, ok := om.DecryptedPreviousInValues[sender]; ok {
			decrypted[pk] = piece
		}
		if !types.IsEmptyHash(om.PreviousInValue) {
			previousInValues[pk] = om.PreviousInValue
		}
	}

	return &types.UpdateValueInput{
		RoundID:                        round.RoundID(),
		ActualMiningTime:               ctx.Time,
		ProducedBlocks:                 m.ProducedBlocks,
		OutValue:                       m.OutValue,
		Signature:                      m.Signature,
		PreviousInValue:                m.PreviousInValue,
		SupposedOrderOfNextRound:       m.SupposedOrderOfNextRound,
		TuneOrderInformation:           TuneOrderInformation(round),
		EncryptedPieces:                copyPieceMap(m.EncryptedInValues),
		DecryptedPieces:                decrypted,
		MinersPreviousInValues:         previousInValues,
		ImpliedIrreversibleBlockHeight: m.ImpliedIrreversibleBlockHeight,
	}, nil
}

func copyPieceMap(pieces map[string]tmbytes.HexBytes) map[string]tmbytes.HexBytes {
	cp := make(map[string]tmbytes.HexBytes, len(pieces))
	for k, v := range pieces {
		cp[k] = append(tmbytes.HexBytes{}, v...)
	}
	return cp
}

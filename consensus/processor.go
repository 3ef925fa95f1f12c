package consensus

import (
	"fmt"
	"sort"
	"time"

	cfg "chaindpos/config"
	"chaindpos/state"
	"chaindpos/types"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
)

// txProcessor 执行一条共识交易，所有写操作放进同一个Batch
type txProcessor struct {
	config *cfg.ConsensusConfig
	db     state.Store
	view   *chainView
	logger log.Logger

	state  state.State
	batch  *state.Batch
	events []pendingEvent
	// 提交成功后再通知选举
	reports []func(Election)
	// 交易执行之后的当前轮次
	current *types.Round
	health  MiningHealth
}

func newTxProcessor(c *cfg.ConsensusConfig, db state.Store, view *chainView, logger log.Logger) *txProcessor {
	return &txProcessor{
		config: c,
		db:     db,
		view:   view,
		logger: logger,
		state:  view.state.Copy(),
		batch:  state.NewBatch(),
	}
}

func (p *txProcessor) process(tx *types.ConsensusTransaction, ctx types.BlockContext) error {
	if err := tx.ValidateBasic(); err != nil {
		return err
	}
	if ctx.Time.IsZero() {
		return ErrZeroBlockTime
	}

	var err error
	switch tx.Method {
	case types.MethodUpdateValue:
		err = p.processUpdateValue(tx.Sender, tx.UpdateValue, ctx)
	case types.MethodUpdateTinyBlockInformation:
		err = p.processTinyBlock(tx.Sender, tx.TinyBlock)
	case types.MethodNextRound:
		err = p.processNextRound(tx.Sender, tx.NextRound)
	case types.MethodNextTerm:
		err = p.processNextTerm(tx.Sender, tx.NextTerm)
	default:
		err = fmt.Errorf("%w: %s", types.ErrUnknownMethod, tx.Method)
	}
	if err != nil {
		return err
	}

	p.afterProcess(tx.Sender, ctx)
	p.batch.SetState(p.state)
	return nil
}

func (p *txProcessor) processUpdateValue(sender string, input *types.UpdateValueInput, ctx types.BlockContext) error {
	current := p.view.current.Copy()
	if input.RoundID != current.RoundID() {
		return errors.Wrapf(ErrRoundIDMismatch, "expected %d, got %d", current.RoundID(), input.RoundID)
	}
	m, err := current.Miner(sender)
	if err != nil {
		return errors.Wrap(ErrNotMiner, err.Error())
	}
	if input.ProducedBlocks != m.ProducedBlocks+1 {
		return errors.Wrapf(ErrInvalidInput, "produced blocks of %s, expected %d, got %d",
			types.ShortKey(sender), m.ProducedBlocks+1, input.ProducedBlocks)
	}
	if input.ImpliedIrreversibleBlockHeight > ctx.Height {
		return errors.Wrapf(ErrInvalidInput, "implied irreversible block height %d above block height %d",
			input.ImpliedIrreversibleBlockHeight, ctx.Height)
	}
	if !checkPreviousInValue(p.view.previous, sender, input.PreviousInValue) {
		return errors.Wrapf(ErrInvalidInput, "previous in value of %s", types.ShortKey(sender))
	}

	m.ActualMiningTimes = append(m.ActualMiningTimes, input.ActualMiningTime)
	m.ProducedBlocks = input.ProducedBlocks
	m.ProducedTinyBlocks++
	m.OutValue = input.OutValue
	m.Signature = input.Signature
	m.SupposedOrderOfNextRound = input.SupposedOrderOfNextRound
	m.FinalOrderOfNextRound = input.SupposedOrderOfNextRound
	if types.IsEmptyHash(m.PreviousInValue) {
		m.PreviousInValue = input.PreviousInValue
	}
	m.ImpliedIrreversibleBlockHeight = input.ImpliedIrreversibleBlockHeight
	m.EncryptedInValues = copyPieceMap(input.EncryptedPieces)

	for pk, order := range input.TuneOrderInformation {
		if tm, ok := current.Miners[pk]; ok {
			tm.FinalOrderOfNextRound = order
		}
	}
	for owner, piece := range input.DecryptedPieces {
		if om, ok := current.Miners[owner]; ok {
			om.DecryptedPreviousInValues[sender] = piece
		}
	}
	for pk, inValue := range input.MinersPreviousInValues {
		if pk == sender {
			continue
		}
		om, ok := current.Miners[pk]
		if !ok || !types.IsEmptyHash(om.PreviousInValue) {
			continue
		}
		// 对不上上一轮out value的in value直接忽略
		if !checkRevealedInValue(p.view.previous, pk, inValue) {
			p.logger.Info("ignore mismatched previous in value", "miner", types.ShortKey(pk), "sender", types.ShortKey(sender))
			continue
		}
		om.PreviousInValue = inValue
	}

	if p.view.previous != nil {
		if lib, ok := updateLastIrreversibleBlock(current, p.view.previous); ok {
			p.fire(EventIrreversibleBlockFound, IrreversibleBlockFound{
				IrreversibleBlockHeight: lib,
				RoundNumber:             current.ConfirmedIrreversibleBlockRoundNumber,
			})
		}
	}

	p.putCurrent(current)
	return nil
}

func (p *txProcessor) processTinyBlock(sender string, input *types.TinyBlockInput) error {
	current := p.view.current.Copy()
	if input.RoundID != current.RoundID() {
		return errors.Wrapf(ErrRoundIDMismatch, "expected %d, got %d", current.RoundID(), input.RoundID)
	}
	m, err := current.Miner(sender)
	if err != nil {
		return errors.Wrap(ErrNotMiner, err.Error())
	}
	if input.ProducedBlocks != m.ProducedBlocks+1 {
		return errors.Wrapf(ErrInvalidInput, "produced blocks of %s, expected %d, got %d",
			types.ShortKey(sender), m.ProducedBlocks+1, input.ProducedBlocks)
	}
	m.ActualMiningTimes = append(m.ActualMiningTimes, input.ActualMiningTime)
	m.ProducedBlocks = input.ProducedBlocks
	m.ProducedTinyBlocks++

	p.putCurrent(current)
	return nil
}

func (p *txProcessor) processNextRound(sender string, next *types.Round) error {
	current := p.view.current
	if !current.Contains(sender) {
		return errors.Wrap(ErrNotMiner, types.ShortKey(sender))
	}
	if next.RoundNumber != current.RoundNumber+1 {
		return errors.Wrapf(ErrWrongRoundNumber, "expected %d, got %d", current.RoundNumber+1, next.RoundNumber)
	}
	if next.TermNumber != current.TermNumber {
		return errors.Wrapf(ErrWrongTermNumber, "next round can't change term %d", current.TermNumber)
	}

	closed := p.closeCurrentRound()
	if current.RoundNumber == 1 {
		// 链的开始时间以第一个实际出块时间为准
		if first, ok := firstActualMiningTime(current); ok {
			p.state.BlockchainStartTime = first
		}
	}

	replaced := map[string]string{}
	if p.state.IsMainChain && p.view.previous != nil && p.view.previous.TermNumber == current.TermNumber {
		replaced = pairReplacedMiners(closed, next)
		for newMiner, oldMiner := range replaced {
			old := closed.Miners[oldMiner]
			p.report(func(e Election) {
				e.ReportEvil(old.PublicKey)
				e.ReportProductionStats(old.PublicKey, old.ProducedBlocks, old.MissedTimeSlots)
			})
			p.fire(EventEvilMinerDetected, EvilMinerDetected{Pubkey: oldMiner, RoundNumber: closed.RoundNumber})
			p.fire(EventMinerReplaced, MinerReplaced{NewMiner: newMiner, OldMiner: oldMiner})
			p.logger.Info("miner replaced", "old", types.ShortKey(oldMiner), "new", types.ShortKey(newMiner))
		}
	}
	p.state.ReplacedMiners = replaced

	return p.enterRound(next)
}

func (p *txProcessor) processNextTerm(sender string, next *types.Round) error {
	current := p.view.current
	if !current.Contains(sender) {
		return errors.Wrap(ErrNotMiner, types.ShortKey(sender))
	}
	if next.RoundNumber != current.RoundNumber+1 {
		return errors.Wrapf(ErrWrongRoundNumber, "expected %d, got %d", current.RoundNumber+1, next.RoundNumber)
	}
	if next.TermNumber != current.TermNumber+1 {
		return errors.Wrapf(ErrWrongTermNumber, "expected %d, got %d", current.TermNumber+1, next.TermNumber)
	}

	closed := p.closeCurrentRound()
	// 本届的出块统计交给选举
	for _, m := range closed.MinersByOrder() {
		missed := m.MissedTimeSlots
		if !m.IsMined() {
			missed++
		}
		pk, produced := m.PublicKey, m.ProducedBlocks
		p.report(func(e Election) {
			e.ReportProductionStats(pk, produced, missed)
		})
	}

	p.state.ReplacedMiners = map[string]string{}
	p.state.CurrentTermNumber = next.TermNumber
	p.batch.SetFirstRoundOfTerm(next.TermNumber, next.RoundNumber)
	p.fire(EventNewTermCommitted, NewTermCommitted{
		TermNumber:  next.TermNumber,
		RoundNumber: next.RoundNumber,
		Miners:      types.NewMinerList(next.PublicKeys()),
	})
	return p.enterRound(next)
}

// closeCurrentRound 保存补全之后的当前轮次以及本轮的出块名单
func (p *txProcessor) closeCurrentRound() *types.Round {
	current := p.view.current
	closed := closeRound(current, p.view.previous)
	p.batch.PutRound(closed)
	p.batch.SetMinedMinerList(current.RoundNumber, current.MinedPublicKeys())
	return closed
}

// enterRound 切换到下一轮，并清理过期的轮次和随机数请求
func (p *txProcessor) enterRound(next *types.Round) error {
	if err := next.CheckOrders(); err != nil {
		return err
	}
	p.state.CurrentRoundNumber = next.RoundNumber
	p.putCurrent(next.Copy())

	if retention := p.config.RoundRetention; retention > 0 && next.RoundNumber-retention >= 1 {
		p.batch.DeleteRound(next.RoundNumber - retention)
	}

	if expired := next.RoundNumber - p.config.RandomNumberDueRoundCount; expired >= 1 {
		tokens, err := p.db.GetRandomNumberTokens(expired)
		if err != nil {
			return errors.Wrapf(err, "load random number tokens of round %d", expired)
		}
		p.batch.DeleteRandomRequests(expired, tokens)
	}

	p.fire(EventNewRoundCommitted, NewRoundCommitted{Round: next.Copy()})
	return nil
}

// afterProcess 每条共识交易执行后更新链的健康状况和连续出块计数
func (p *txProcessor) afterProcess(sender string, ctx types.BlockContext) {
	health := EvaluateMiningHealth(p.config, p.current, ctx.Height, p.minedMiners)
	p.health = health
	p.state.MaximumTinyBlocksCount = health.MaximumTinyBlocksCount

	if health.Status == MiningStatusSevere {
		p.state.IsPreviousBlockInSevereStatus = true
		p.fire(EventIrreversibleBlockHeightUnacceptable, IrreversibleBlockHeightUnacceptable{Distance: health.Distance})
		p.logger.Error("irreversible block height unacceptable", "health", health.Status,
			"distance", health.Distance, "round", health.CurrentRoundNumber, "lib_round", health.LibRoundNumber)
	} else if p.state.IsPreviousBlockInSevereStatus {
		p.state.IsPreviousBlockInSevereStatus = false
		p.fire(EventIrreversibleBlockHeightUnacceptable, IrreversibleBlockHeightUnacceptable{Distance: 0})
		p.logger.Info("mining status recovered", "health", health.Status)
	}

	provider := p.state.LatestProviderToTinyBlocksCount
	if provider != nil && provider.Pubkey == sender {
		provider.BlocksCount--
	} else {
		p.state.LatestProviderToTinyBlocksCount = &state.LatestProvider{
			Pubkey:      sender,
			BlocksCount: health.MaximumTinyBlocksCount - 1,
		}
	}

	p.state.LatestBlockHeight = ctx.Height
	p.state.LatestBlockHash = ctx.Hash
	for i := range p.events {
		if e, ok := p.events[i].data.(IrreversibleBlockFound); ok {
			e.BlockHash = ctx.Hash
			p.events[i].data = e
		}
	}
}

// resultView 执行之后、提交之前的链上数据
func (p *txProcessor) resultView() *chainView {
	return &chainView{state: p.state, current: p.current}
}

func (p *txProcessor) putCurrent(round *types.Round) {
	p.current = round
	p.batch.PutRound(round)
}

// minedMiners 先查本批次，再查store
func (p *txProcessor) minedMiners(roundNumber int64) []string {
	if keys, ok := p.batch.MinedMinerLists[roundNumber]; ok {
		return keys
	}
	keys, err := p.db.GetMinedMinerList(roundNumber)
	if err != nil {
		return nil
	}
	return keys
}

func (p *txProcessor) report(fn func(Election)) {
	p.reports = append(p.reports, fn)
}

func (p *txProcessor) fire(name string, data interface{}) {
	p.events = append(p.events, pendingEvent{name: name, data: data})
}

// pairReplacedMiners 下一轮新出现的矿工和离开的矿工按公钥顺序配对
func pairReplacedMiners(current, next *types.Round) map[string]string {
	var olds, news []string
	for pk := range current.Miners {
		if !next.Contains(pk) {
			olds = append(olds, pk)
		}
	}
	for pk := range next.Miners {
		if !current.Contains(pk) {
			news = append(news, pk)
		}
	}
	sort.Strings(olds)
	sort.Strings(news)

	replaced := make(map[string]string, len(news))
	for i := 0; i < len(olds) && i < len(news); i++ {
		replaced[news[i]] = olds[i]
	}
	return replaced
}

// firstActualMiningTime 按order找到第一个出过块的矿工
func firstActualMiningTime(round *types.Round) (time.Time, bool) {
	for _, m := range round.MinersByOrder() {
		if t, ok := earliestActualMiningTime(m); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

package consensus

import (
	"fmt"
	"sync"
	"time"

	cfg "chaindpos/config"
	"chaindpos/libs/metric"
	"chaindpos/state"
	"chaindpos/types"

	"github.com/pkg/errors"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
)

var _ state.ConsensusExecutor = (*Engine)(nil)

// Engine 共识引擎
// 读操作共享读锁，执行共识交易独占写锁，所有写入通过一个Batch原子提交
type Engine struct {
	mtx sync.RWMutex

	config   *cfg.ConsensusConfig
	db       state.Store
	election Election

	// 状态提交后发布事件，和外部模块通信
	eventSwitch events.EventSwitch
	metric      *consensusMetric

	logger log.Logger
}

type EngineOption func(*Engine)

// WithEventSwitch 使用外部的EventSwitch
func WithEventSwitch(evsw events.EventSwitch) EngineOption {
	return func(e *Engine) {
		e.eventSwitch = evsw
	}
}

func NewEngine(config *cfg.ConsensusConfig, db state.Store, elec Election, options ...EngineOption) *Engine {
	e := &Engine{
		config:      config,
		db:          db,
		election:    elec,
		eventSwitch: events.NewEventSwitch(),
		metric:      newConsensusMetric(),
		logger:      log.NewNopLogger(),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

func (e *Engine) SetLogger(logger log.Logger) {
	e.logger = logger
}

func (e *Engine) EventSwitch() events.EventSwitch {
	return e.eventSwitch
}

// Metrics 供rpc查询
func (e *Engine) Metrics() metric.MetricItem {
	return e.metric
}

// InitialConsensus 用创世配置写入第一轮，只能执行一次
func (e *Engine) InitialConsensus(genDoc *types.GenesisDoc) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	if _, err := e.db.LoadState(); err == nil {
		return ErrAlreadyInitialized
	} else if !errors.Is(err, state.ErrStateNotFound) {
		return err
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return err
	}

	genesis := types.MakeGenesisBlock(genDoc.ChainID, genDoc.GenesisTime)
	s := state.MakeGenesisState(genDoc, e.config.TinyBlocksNumber)
	s.LatestBlockHeight = genesis.Height
	s.LatestBlockHash = genesis.Hash()

	first := genDoc.FirstRound()
	batch := state.NewBatch()
	batch.SetState(s)
	batch.PutRound(first)
	batch.SetFirstRoundOfTerm(first.TermNumber, first.RoundNumber)
	batch.SaveBlock(genesis)
	if err := e.db.Commit(batch); err != nil {
		return errors.Wrap(err, "commit genesis round")
	}

	e.metric.MarkRound(first, true)
	e.logger.Info("consensus initialized", "chain", genDoc.ChainID, "round", first)
	return nil
}

// GetConsensusCommand 矿工查询下一次出块的时间和行为
func (e *Engine) GetConsensusCommand(pubkey string, now time.Time) (types.ConsensusCommand, error) {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	view, err := loadView(e.db)
	if err != nil {
		return types.InvalidConsensusCommand(), err
	}
	return getConsensusCommand(e.config, view, pubkey, now), nil
}

// GetInformationToUpdate 生成区块头中的共识数据
func (e *Engine) GetInformationToUpdate(trigger *types.TriggerInformation, ctx types.BlockContext) (*types.HeaderInformation, error) {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	view, err := loadView(e.db)
	if err != nil {
		return nil, err
	}
	return getInformationToUpdate(e.config, view, e.election, trigger, ctx)
}

// GenerateConsensusTransactions 生成区块中唯一的共识交易
func (e *Engine) GenerateConsensusTransactions(trigger *types.TriggerInformation, ctx types.BlockContext) (*types.ConsensusTransaction, error) {
	header, err := e.GetInformationToUpdate(trigger, ctx)
	if err != nil {
		return nil, err
	}
	return consensusTransactionOf(header, ctx)
}

// ConsensusTransactionOf 由区块头中的共识数据得到对应的共识交易
func (e *Engine) ConsensusTransactionOf(header *types.HeaderInformation, ctx types.BlockContext) (*types.ConsensusTransaction, error) {
	return consensusTransactionOf(header, ctx)
}

// ValidateBeforeExecution implements state.ConsensusExecutor
func (e *Engine) ValidateBeforeExecution(header *types.HeaderInformation) types.ValidationResult {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	view, err := loadView(e.db)
	if err != nil {
		return types.ValidationFailure("%v", err)
	}
	result := validateBeforeExecution(e.config, view, e.election, header)
	if !result.Success {
		e.metric.MarkRejected()
		e.logger.Info("consensus header rejected", "header", header, "reason", result.Message)
	}
	return result
}

// ExecuteTransaction 执行共识交易并提交，不做执行后校验
// 交易执行失败时不写入任何数据
func (e *Engine) ExecuteTransaction(tx *types.ConsensusTransaction, ctx types.BlockContext) error {
	return e.execute(tx, ctx, nil)
}

// ExecuteBlock implements state.ConsensusExecutor
// 在提交之前用执行结果校验区块头，校验失败时共识数据和区块都不写入
func (e *Engine) ExecuteBlock(block *types.Block) error {
	return e.execute(block.Tx, block.Context(), block)
}

func (e *Engine) execute(tx *types.ConsensusTransaction, ctx types.BlockContext, block *types.Block) error {
	e.mtx.Lock()
	view, err := loadView(e.db)
	if err != nil {
		e.mtx.Unlock()
		return err
	}

	p := newTxProcessor(e.config, e.db, view, e.logger)
	if err := p.process(tx, ctx); err != nil {
		e.mtx.Unlock()
		return err
	}
	if block != nil {
		if result := validateAfterExecution(p.resultView(), block.Consensus); !result.Success {
			e.mtx.Unlock()
			e.metric.MarkRejected()
			e.logger.Error("validate after execution failed", "height", ctx.Height, "reason", result.Message)
			return errors.Wrap(state.ErrInvalidBlock, result.Message)
		}
		p.batch.SaveBlock(block)
	}
	if err := e.db.Commit(p.batch); err != nil {
		e.mtx.Unlock()
		return errors.Wrap(err, "commit consensus batch")
	}
	e.mtx.Unlock()

	if e.election != nil {
		for _, report := range p.reports {
			report(e.election)
		}
	}

	e.metric.MarkBlock(tx.Method, tx.Sender)
	e.metric.MarkHealth(p.health.Status, p.current.ConfirmedIrreversibleBlockHeight, p.health.Distance)
	if tx.Method == types.MethodNextRound || tx.Method == types.MethodNextTerm {
		e.metric.MarkRound(p.current, tx.Method == types.MethodNextTerm)
		e.metric.MarkReplaced(len(p.state.ReplacedMiners))
	}

	for _, ev := range p.events {
		e.eventSwitch.FireEvent(ev.name, ev.data)
	}
	e.eventSwitch.FireEvent(EventBlockExecuted, BlockExecuted{Height: ctx.Height, Method: tx.Method, Sender: tx.Sender})
	e.logger.Debug("consensus transaction executed", "tx", tx, "height", ctx.Height, "round", p.current)
	return nil
}

// ValidateAfterExecution 用已经提交的当前轮次校验区块头
func (e *Engine) ValidateAfterExecution(header *types.HeaderInformation) types.ValidationResult {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	view, err := loadView(e.db)
	if err != nil {
		return types.ValidationFailure("%v", err)
	}
	return validateAfterExecution(view, header)
}

func (e *Engine) GetState() (state.State, error) {
	e.mtx.RLock()
	defer e.mtx.RUnlock()
	return e.db.LoadState()
}

func (e *Engine) GetCurrentRound() (*types.Round, error) {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	view, err := loadView(e.db)
	if err != nil {
		return nil, err
	}
	return view.current, nil
}

// GetPreviousRound 第一轮时返回nil
func (e *Engine) GetPreviousRound() (*types.Round, error) {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	view, err := loadView(e.db)
	if err != nil {
		return nil, err
	}
	return view.previous, nil
}

func (e *Engine) GetRound(roundNumber int64) (*types.Round, error) {
	e.mtx.RLock()
	defer e.mtx.RUnlock()
	return e.db.GetRound(roundNumber)
}

// GetFirstRoundOfTerm 某一届的第一轮
func (e *Engine) GetFirstRoundOfTerm(termNumber int64) (*types.Round, error) {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	roundNumber, err := e.db.GetFirstRoundOfTerm(termNumber)
	if err != nil {
		return nil, err
	}
	return e.db.GetRound(roundNumber)
}

func (e *Engine) IsCurrentMiner(pubkey string) bool {
	current, err := e.GetCurrentRound()
	if err != nil {
		return false
	}
	return current.Contains(pubkey)
}

// GetMiningHealth 以height作为当前高度评估链的健康状况
func (e *Engine) GetMiningHealth(height int64) (MiningHealth, error) {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	view, err := loadView(e.db)
	if err != nil {
		return MiningHealth{}, err
	}
	return EvaluateMiningHealth(e.config, view.current, height, func(roundNumber int64) []string {
		keys, err := e.db.GetMinedMinerList(roundNumber)
		if err != nil {
			return nil
		}
		return keys
	}), nil
}

// RequestRandomNumber 登记随机数请求，返回的凭证用于之后查询
func (e *Engine) RequestRandomNumber(requester string, height int64) (*types.RandomNumberRequest, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	view, err := loadView(e.db)
	if err != nil {
		return nil, err
	}
	req, s := newRandomNumberRequest(view, requester, height)
	batch := state.NewBatch()
	batch.SetState(s)
	batch.PutRandomRequest(req)
	if err := e.db.Commit(batch); err != nil {
		return nil, errors.Wrap(err, "commit random number request")
	}
	e.logger.Debug("random number requested", "request", req)
	return req, nil
}

// GetRandomNumber 随机数还不能计算时ready为false
func (e *Engine) GetRandomNumber(token tmbytes.HexBytes, height int64) (random tmbytes.HexBytes, ready bool, err error) {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	req, err := e.db.GetRandomNumberRequest(token)
	if err != nil {
		return nil, false, err
	}
	return calculateRandomNumber(e.db, req, height)
}

// UpdateMainChainMinerList 侧链记录主链的矿工列表，在下一次结束本轮时生效
func (e *Engine) UpdateMainChainMinerList(miners types.MinerList) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	s, err := e.db.LoadState()
	if err != nil {
		return err
	}
	if s.IsMainChain {
		return ErrSideChainOnly
	}
	if miners.IsEmpty() {
		return fmt.Errorf("empty main chain miner list")
	}
	if s.MainChainMinerList.Equal(miners) {
		return nil
	}
	s.MainChainMinerList = types.NewMinerList(miners.Pubkeys)
	batch := state.NewBatch()
	batch.SetState(s)
	if err := e.db.Commit(batch); err != nil {
		return err
	}
	e.logger.Info("main chain miner list updated", "miners", miners)
	return nil
}

package consensus

import (
	"fmt"
	"sync"
	"time"

	cstype "chaindpos/consensus/types"
	"chaindpos/state"
	"chaindpos/types"

	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
)

// 没有可执行命令时重新查询的间隔
const idleRetryTimeout = 1 * time.Second

// Miner 一个本地矿工的出块循环
// 按共识命令设置定时器，到期后重新确认命令，然后生成、执行区块
type Miner struct {
	service.BaseService

	engine    *Engine
	blockExec state.BlockExecutor
	trigger   *TriggerProvider

	// 出块定时器
	slotClock *SlotClock

	mtx sync.Mutex
	cstype.MinerState

	// 其他区块执行后重新查询命令
	internalMsgQueue chan msgInfo

	// 方便测试替换时间
	now func() time.Time
}

type MinerOption func(*Miner)

// WithClock 替换矿工使用的时间源
func WithClock(now func() time.Time) MinerOption {
	return func(m *Miner) {
		m.now = now
	}
}

func NewMiner(engine *Engine, blockExec state.BlockExecutor, trigger *TriggerProvider, options ...MinerOption) *Miner {
	m := &Miner{
		engine:    engine,
		blockExec: blockExec,
		trigger:   trigger,
		slotClock: NewSlotClock(0),
		MinerState: cstype.MinerState{
			Pubkey: trigger.Pubkey(),
			Step:   cstype.MinerStepWait,
		},
		internalMsgQueue: make(chan msgInfo, 16),
		now:              time.Now,
	}
	m.BaseService = *service.NewBaseService(nil, "MINER", m)

	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *Miner) SetLogger(logger log.Logger) {
	m.Logger = logger.With("miner", types.ShortKey(m.Pubkey))
	if m.slotClock != nil {
		m.slotClock.SetLogger(m.Logger)
	}
}

func (m *Miner) OnStart() error {
	if err := m.slotClock.Start(); err != nil {
		return err
	}
	subscriber := fmt.Sprintf("miner-%s", m.Pubkey)
	if err := m.engine.EventSwitch().AddListenerForEvent(subscriber, EventBlockExecuted, func(data events.EventData) {
		m.sendInternalMessage(msgInfo{Msg: data})
	}); err != nil {
		return err
	}

	go m.receiveRoutine()
	m.sendInternalMessage(msgInfo{Msg: "start"})
	m.Logger.Info("miner started")
	return nil
}

func (m *Miner) OnStop() {
	m.engine.EventSwitch().RemoveListener(fmt.Sprintf("miner-%s", m.Pubkey))
	if err := m.slotClock.Stop(); err != nil {
		m.Logger.Error("failed trying to stop slotClock", "error", err)
	}
	m.Logger.Info("miner stopped")
}

// GetMinerState 返回矿工状态的拷贝
func (m *Miner) GetMinerState() cstype.MinerState {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.MinerState
}

// String 同时覆盖BaseService和MinerState的String
func (m *Miner) String() string {
	return fmt.Sprintf("Miner{%s}", types.ShortKey(m.Pubkey))
}

// receiveRoutine 负责处理所有的消息
func (m *Miner) receiveRoutine() {
	for {
		select {
		case <-m.Quit():
			m.Logger.Debug("receiveRoutine quit.")
			return
		case <-m.internalMsgQueue:
			m.schedule()
		case ti := <-m.slotClock.Chan():
			m.handleTimeOut(ti)
		}
	}
}

// schedule 查询最新的命令并重置定时器
func (m *Miner) schedule() {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.Step == cstype.MinerStepMining {
		return
	}
	cmd, err := m.engine.GetConsensusCommand(m.Pubkey, m.now())
	if err != nil {
		m.Logger.Error("get consensus command failed", "err", err)
		m.waitIdle()
		return
	}
	if m.Step == cstype.MinerStepScheduled && !cmd.IsInvalid() &&
		cmd.Behavior == m.Command.Behavior && cmd.RoundID == m.Command.RoundID {
		// 命令没有变化，保留已经设置的定时器
		return
	}
	m.scheduleCommand(cmd)
}

func (m *Miner) scheduleCommand(cmd types.ConsensusCommand) {
	if cmd.IsInvalid() {
		m.Command = cmd
		m.waitIdle()
		return
	}

	m.Command = cmd
	m.ScheduledAt = m.now()
	m.updateStep(cstype.MinerStepScheduled)
	m.slotClock.ScheduleTimeout(timeoutInfo{
		Duration: types.Milliseconds(cmd.RemainingMilliseconds),
		Behavior: cmd.Behavior,
		RoundID:  cmd.RoundID,
	})
	m.Logger.Debug("consensus command scheduled", "command", cmd)
}

// waitIdle 不能出块时隔一段时间再查询
func (m *Miner) waitIdle() {
	m.updateStep(cstype.MinerStepWait)
	m.slotClock.ScheduleTimeout(timeoutInfo{Duration: idleRetryTimeout, Behavior: types.BehaviorNothing})
}

// handleTimeOut 定时器到期，命令仍然有效时出块
func (m *Miner) handleTimeOut(ti timeoutInfo) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if ti.Behavior == types.BehaviorNothing || m.Step != cstype.MinerStepScheduled {
		m.unlockedSchedule()
		return
	}

	now := m.now()
	fresh, err := m.engine.GetConsensusCommand(m.Pubkey, now)
	if err != nil {
		m.Logger.Error("get consensus command failed", "err", err)
		m.waitIdle()
		return
	}
	if fresh.IsInvalid() || fresh.Behavior != ti.Behavior || fresh.RoundID != ti.RoundID {
		// 命令已经过期
		m.Logger.Debug("consensus command expired", "scheduled", ti.String(), "fresh", fresh)
		m.scheduleCommand(fresh)
		return
	}
	m.updateStep(cstype.MinerStepMining)
	m.produceBlock(fresh, now)
	m.updateStep(cstype.MinerStepWait)
	m.unlockedSchedule()
}

// unlockedSchedule 调用方已经持有锁
func (m *Miner) unlockedSchedule() {
	cmd, err := m.engine.GetConsensusCommand(m.Pubkey, m.now())
	if err != nil {
		m.Logger.Error("get consensus command failed", "err", err)
		m.waitIdle()
		return
	}
	m.scheduleCommand(cmd)
}

// produceBlock 生成共识数据、打包并执行区块
func (m *Miner) produceBlock(cmd types.ConsensusCommand, now time.Time) {
	start := time.Now()
	block, err := m.createBlock(cmd.Behavior, now)
	if err == nil {
		err = m.blockExec.ApplyBlock(block)
	}
	if err != nil {
		m.FailedBlocks++
		m.Logger.Error("produce block failed", "behavior", cmd.Behavior, "err", err)
		return
	}

	m.ProducedBlocks++
	m.LastBlockHeight = block.Height
	m.engine.metric.MarkMiningLatency(now.Sub(cmd.ExpectedMiningTime))
	if elapsed := time.Since(start); cmd.LimitMilliseconds > 0 && elapsed > types.Milliseconds(cmd.LimitMilliseconds) {
		m.Logger.Info("block production exceeded the limit", "elapsed", elapsed, "limit", cmd.LimitMilliseconds)
	}
	m.Logger.Info("block produced", "block", block, "behavior", cmd.Behavior)
}

func (m *Miner) createBlock(behavior types.Behavior, now time.Time) (*types.Block, error) {
	current, err := m.engine.GetCurrentRound()
	if err != nil {
		return nil, err
	}
	previous, err := m.engine.GetPreviousRound()
	if err != nil {
		return nil, err
	}
	trigger, err := m.trigger.GetTriggerInformation(behavior, current, previous)
	if err != nil {
		return nil, err
	}

	last, err := m.blockExec.LatestBlock()
	if err != nil {
		return nil, err
	}
	ctx := types.BlockContext{Height: last.Height + 1, Time: now}
	header, err := m.engine.GetInformationToUpdate(trigger, ctx)
	if err != nil {
		return nil, err
	}
	tx, err := m.engine.ConsensusTransactionOf(header, ctx)
	if err != nil {
		return nil, err
	}
	return m.blockExec.CreateBlock(m.Pubkey, now, header, tx)
}

func (m *Miner) updateStep(step cstype.MinerStepType) {
	m.Step = step
}

// 往内部的channel写入消息
// 直接写可能会因为receiveRoutine blocked从而导致本协程block
func (m *Miner) sendInternalMessage(mi msgInfo) {
	select {
	case m.internalMsgQueue <- mi:
	default:
		m.Logger.Debug("internal msg queue is full; using a go-routine")
		go func() {
			select {
			case m.internalMsgQueue <- mi:
			case <-m.Quit():
			}
		}()
	}
}

// ----- MsgInfo -----
// 矿工内部流通的消息
type msgInfo struct {
	Msg interface{}
}

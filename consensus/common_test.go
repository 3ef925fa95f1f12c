package consensus

import (
	"fmt"
	"sort"
	"testing"
	"time"

	cfg "chaindpos/config"
	"chaindpos/crypto/secret"
	"chaindpos/state"
	"chaindpos/store"
	"chaindpos/types"

	"github.com/go-kit/kit/log/term"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
)

var testGenesisTime = time.Date(2021, 6, 1, 8, 0, 0, 0, time.UTC)

// newTestKeys 按公钥排序，第i个密钥在第一轮的order为i+1
func newTestKeys(n int) []*secret.KeyPair {
	keys := make([]*secret.KeyPair, n)
	for i := range keys {
		keys[i] = secret.GenKeyPairWithSeed([]byte(fmt.Sprintf("test-miner-%d", i)))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].PubKeyHex() < keys[j].PubKeyHex() })
	return keys
}

func pubkeysOf(keys []*secret.KeyPair) []string {
	pks := make([]string, len(keys))
	for i, kp := range keys {
		pks[i] = kp.PubKeyHex()
	}
	return pks
}

// fakePubkeys 不需要加解密的测试直接使用字符串作为公钥
func fakePubkeys(n int) []string {
	pks := make([]string, n)
	for i := range pks {
		pks[i] = fmt.Sprintf("miner-%02d", i+1)
	}
	return pks
}

func newTestGenesisDoc(pubkeys []string, interval int64) *types.GenesisDoc {
	miners := make([]types.GenesisMiner, len(pubkeys))
	for i, pk := range pubkeys {
		miners[i] = types.GenesisMiner{PubKey: pk, Name: fmt.Sprintf("miner%d", i)}
	}
	return &types.GenesisDoc{
		ChainID:        "dpos-test",
		GenesisTime:    testGenesisTime,
		MiningInterval: interval,
		PeriodSeconds:  604800,
		IsMainChain:    true,
		InitialMiners:  miners,
	}
}

// newTestRound 按pubkeys的顺序排列时间槽，第一个时间槽从start开始
func newTestRound(pubkeys []string, roundNumber, termNumber int64, start time.Time, interval int64) *types.Round {
	r := types.NewRound(roundNumber, termNumber)
	for i, pk := range pubkeys {
		r.Miners[pk] = types.NewMinerInRound(pk, i+1, start.Add(types.Milliseconds(int64(i)*interval)))
	}
	if len(pubkeys) > 0 {
		r.Miners[pubkeys[0]].IsExtraBlockProducer = true
	}
	return r
}

// markMined 矿工在at时刻发布了out value
func markMined(r *types.Round, pk string, at time.Time) {
	m := r.Miners[pk]
	m.OutValue = types.HashFromString(pk + "/out")
	m.Signature = types.HashFromString(pk + "/sig")
	m.ActualMiningTimes = append(m.ActualMiningTimes, at)
	m.ProducedBlocks++
	m.ProducedTinyBlocks++
	m.SupposedOrderOfNextRound = m.Order
	m.FinalOrderOfNextRound = m.Order
}

// newTestView current, previous, beforePrevious
func newTestView(rounds ...*types.Round) *chainView {
	view := &chainView{
		state: state.State{
			ChainID:                "dpos-test",
			IsMainChain:            true,
			MiningInterval:         4000,
			PeriodSeconds:          604800,
			BlockchainStartTime:    testGenesisTime,
			CurrentTermNumber:      1,
			MaximumTinyBlocksCount: 8,
			ReplacedMiners:         map[string]string{},
		},
	}
	if len(rounds) > 0 {
		view.current = rounds[0]
		view.state.CurrentRoundNumber = rounds[0].RoundNumber
		view.state.CurrentTermNumber = rounds[0].TermNumber
	}
	if len(rounds) > 1 {
		view.previous = rounds[1]
	}
	if len(rounds) > 2 {
		view.beforePrevious = rounds[2]
	}
	return view
}

// coloredMinerLogger 不同矿工的日志使用不同的颜色
func coloredMinerLogger(pubkeys []string) log.Logger {
	index := map[string]int{}
	for i, pk := range pubkeys {
		index[types.ShortKey(pk)] = i
	}
	return log.TestingLoggerWithColorFn(func(keyvals ...interface{}) term.FgBgColor {
		for i := 0; i < len(keyvals)-1; i += 2 {
			if keyvals[i] != "miner" {
				continue
			}
			if idx, ok := index[fmt.Sprintf("%v", keyvals[i+1])]; ok {
				return term.FgBgColor{Fg: term.Color(uint8(idx%7) + 1)}
			}
		}
		return term.FgBgColor{}
	})
}

//-----------------------------------------------------------------------------
// testChain 一个使用内存数据库的本地链

type testChain struct {
	t      *testing.T
	config *cfg.ConsensusConfig
	db     *store.KVStore
	engine *Engine
	exec   state.BlockExecutor
	keys   []*secret.KeyPair
	genDoc *types.GenesisDoc
}

func newTestChain(t *testing.T, n int, elec Election, genesisOptions ...func(*types.GenesisDoc)) *testChain {
	c := cfg.TestConsensusConfig()
	keys := newTestKeys(n)
	genDoc := newTestGenesisDoc(pubkeysOf(keys), c.MiningInterval)
	for _, opt := range genesisOptions {
		opt(genDoc)
	}

	db := store.NewMemKVStore(log.TestingLogger())
	engine := NewEngine(c, db, elec)
	engine.SetLogger(log.TestingLogger())
	require.NoError(t, engine.InitialConsensus(genDoc), "初始化共识失败")

	exec := state.NewBlockExec(engine, db)
	exec.SetLogger(log.TestingLogger())
	return &testChain{t: t, config: c, db: db, engine: engine, exec: exec, keys: keys, genDoc: genDoc}
}

// produce 按照矿工出块的流程生成并执行一个区块
func (tc *testChain) produce(kp *secret.KeyPair, behavior types.Behavior, now time.Time) (*types.Block, error) {
	block, err := tc.makeBlock(kp, behavior, now)
	if err != nil {
		return nil, err
	}
	return block, tc.exec.ApplyBlock(block)
}

// makeBlock 只生成区块，不执行
func (tc *testChain) makeBlock(kp *secret.KeyPair, behavior types.Behavior, now time.Time) (*types.Block, error) {
	current, err := tc.engine.GetCurrentRound()
	if err != nil {
		return nil, err
	}
	previous, err := tc.engine.GetPreviousRound()
	if err != nil {
		return nil, err
	}
	trigger, err := NewTriggerProvider(kp).GetTriggerInformation(behavior, current, previous)
	if err != nil {
		return nil, err
	}
	last, err := tc.exec.LatestBlock()
	if err != nil {
		return nil, err
	}

	ctx := types.BlockContext{Height: last.Height + 1, Time: now}
	header, err := tc.engine.GetInformationToUpdate(trigger, ctx)
	if err != nil {
		return nil, err
	}
	tx, err := tc.engine.ConsensusTransactionOf(header, ctx)
	if err != nil {
		return nil, err
	}
	return tc.exec.CreateBlock(kp.PubKeyHex(), now, header, tx)
}

// nextCommand 所有矿工中最早可以出块的命令
func (tc *testChain) nextCommand(now time.Time) (*secret.KeyPair, types.ConsensusCommand) {
	var chosen *secret.KeyPair
	var cmd types.ConsensusCommand
	for _, kp := range tc.keys {
		c, err := tc.engine.GetConsensusCommand(kp.PubKeyHex(), now)
		require.NoError(tc.t, err)
		if c.IsInvalid() {
			continue
		}
		if chosen == nil || c.ExpectedMiningTime.Before(cmd.ExpectedMiningTime) {
			chosen, cmd = kp, c
		}
	}
	require.NotNil(tc.t, chosen, "没有矿工可以出块")
	return chosen, cmd
}

// next 所有矿工查询命令，最早出块的矿工在它的预期时间出块
func (tc *testChain) next(now time.Time) (time.Time, *types.Block) {
	chosen, cmd := tc.nextCommand(now)
	at := now
	if cmd.ExpectedMiningTime.After(at) {
		at = cmd.ExpectedMiningTime
	}
	block, err := tc.produce(chosen, cmd.Behavior, at)
	require.NoError(tc.t, err, "%v 出块失败", cmd)
	return at, block
}

// runUntilRound 一直出块直到进入目标轮次
func (tc *testChain) runUntilRound(now time.Time, roundNumber int64, maxBlocks int) time.Time {
	for i := 0; i < maxBlocks; i++ {
		current, err := tc.engine.GetCurrentRound()
		require.NoError(tc.t, err)
		if current.RoundNumber >= roundNumber {
			return now
		}
		now, _ = tc.next(now)
	}
	tc.t.Fatalf("%d个区块之后仍然没有进入第%d轮", maxBlocks, roundNumber)
	return now
}

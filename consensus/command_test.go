package consensus

import (
	"testing"
	"time"

	cfg "chaindpos/config"
	"chaindpos/state"
	"chaindpos/types"

	"github.com/stretchr/testify/assert"
)

// 五个矿工的第5轮，上一轮和上上轮所有矿工都出过块
func newCommandTestView(start time.Time) (*chainView, []string) {
	pks := fakePubkeys(5)
	beforePrevious := newTestRound(pks, 3, 1, start.Add(-48*time.Second), 4000)
	previous := newTestRound(pks, 4, 1, start.Add(-24*time.Second), 4000)
	for _, pk := range pks {
		markMined(beforePrevious, pk, beforePrevious.Miners[pk].ExpectedMiningTime)
		markMined(previous, pk, previous.Miners[pk].ExpectedMiningTime)
	}
	current := newTestRound(pks, 5, 1, start, 4000)
	return newTestView(current, previous, beforePrevious), pks
}

// N=5，第一轮，order为3的矿工在自己的时间槽之前查询
func TestCommand_FirstRoundStagger(t *testing.T) {
	c := cfg.DefaultConsensusConfig()
	pks := fakePubkeys(5)
	genDoc := newTestGenesisDoc(pks, 4000)
	round := genDoc.FirstRound()
	first := round.MinerByOrder(1)
	markMined(round, first.PublicKey, testGenesisTime)
	view := newTestView(round)

	third := round.MinerByOrder(3)
	cmd := getConsensusCommand(c, view, third.PublicKey, testGenesisTime)
	assert.Equal(t, types.BehaviorUpdateValueWithoutPreviousInValue, cmd.Behavior, "第一轮没有上一轮的in value")
	assert.Equal(t, int64(2*4000), cmd.RemainingMilliseconds, "order为3的矿工等待两个时间槽")
	assert.Equal(t, round.RoundID(), cmd.RoundID)
	assert.Equal(t, int64(0), cmd.PreviousRoundID)
}

// 第一轮第一个矿工还没有出块时，其他矿工推迟到结束本轮
func TestCommand_FirstRoundWaitsForFirstMiner(t *testing.T) {
	c := cfg.DefaultConsensusConfig()
	pks := fakePubkeys(5)
	round := newTestGenesisDoc(pks, 4000).FirstRound()
	view := newTestView(round)

	third := round.MinerByOrder(3)
	cmd := getConsensusCommand(c, view, third.PublicKey, testGenesisTime)
	assert.Equal(t, types.BehaviorNextRound, cmd.Behavior)
	assert.Equal(t, int64((3+5-1)*4000), cmd.RemainingMilliseconds)

	cmd = getConsensusCommand(c, view, round.MinerByOrder(1).PublicKey, testGenesisTime)
	assert.Equal(t, types.BehaviorUpdateValueWithoutPreviousInValue, cmd.Behavior)
	assert.Equal(t, int64(0), cmd.RemainingMilliseconds, "第一个矿工立即出块")
}

func TestCommand_NotMiner(t *testing.T) {
	view, _ := newCommandTestView(testGenesisTime.Add(time.Hour))
	cmd := getConsensusCommand(cfg.DefaultConsensusConfig(), view, "stranger", testGenesisTime)
	assert.True(t, cmd.IsInvalid())
	assert.True(t, cmd.ExpectedMiningTime.Equal(types.MaxTime))
	assert.Equal(t, int64(0), cmd.LimitMilliseconds)
}

func TestCommand_IdempotentReQuery(t *testing.T) {
	c := cfg.DefaultConsensusConfig()
	start := testGenesisTime.Add(time.Hour)
	view, pks := newCommandTestView(start)
	markMined(view.current, pks[0], start)
	before := view.current.Hash(true)

	now := start.Add(1234 * time.Millisecond)
	for _, pk := range pks {
		first := getConsensusCommand(c, view, pk, now)
		second := getConsensusCommand(c, view, pk, now)
		assert.Equal(t, first, second, "相同的输入必须得到相同的命令")
	}
	assert.Equal(t, before, view.current.Hash(true), "查询命令不能修改轮次")
}

func TestCommand_UpdateValue(t *testing.T) {
	c := cfg.DefaultConsensusConfig()
	start := testGenesisTime.Add(time.Hour)
	view, pks := newCommandTestView(start)

	m := view.current.Miners[pks[2]]
	cmd := getConsensusCommand(c, view, pks[2], start)
	assert.Equal(t, types.BehaviorUpdateValue, cmd.Behavior)
	assert.True(t, cmd.ExpectedMiningTime.Equal(m.ExpectedMiningTime))
	assert.Equal(t, int64(8000), cmd.RemainingMilliseconds)
	assert.Equal(t, view.previous.RoundID(), cmd.PreviousRoundID)
}

func TestCommand_TinyBlockAndReDispatch(t *testing.T) {
	c := cfg.DefaultConsensusConfig()
	start := testGenesisTime.Add(time.Hour)
	view, pks := newCommandTestView(start)
	pk := pks[1]
	expected := view.current.Miners[pk].ExpectedMiningTime
	markMined(view.current, pk, expected)

	cmd := getConsensusCommand(c, view, pk, expected.Add(100*time.Millisecond))
	assert.Equal(t, types.BehaviorTinyBlock, cmd.Behavior)
	assert.True(t, cmd.ExpectedMiningTime.Equal(expected.Add(500*time.Millisecond)))

	// 时间槽剩下的时间不够一个小块，改为结束本轮
	cmd = getConsensusCommand(c, view, pk, expected.Add(3900*time.Millisecond))
	assert.Equal(t, types.BehaviorNextRound, cmd.Behavior)
	assert.True(t, cmd.RemainingMilliseconds >= 0)

	// 小块用完
	view.current.Miners[pk].ProducedTinyBlocks = 8
	cmd = getConsensusCommand(c, view, pk, expected.Add(100*time.Millisecond))
	assert.Equal(t, types.BehaviorNextRound, cmd.Behavior)
}

func TestCommand_ContinuousBlocksExceeded(t *testing.T) {
	c := cfg.DefaultConsensusConfig()
	start := testGenesisTime.Add(time.Hour)
	view, pks := newCommandTestView(start)
	pk := pks[1]
	expected := view.current.Miners[pk].ExpectedMiningTime
	markMined(view.current, pk, expected)
	view.state.LatestProviderToTinyBlocksCount = &state.LatestProvider{Pubkey: pk, BlocksCount: -1}

	cmd := getConsensusCommand(c, view, pk, expected.Add(100*time.Millisecond))
	assert.Equal(t, types.BehaviorNextRound, cmd.Behavior, "连续出块数用完后不能再出小块")
}

func TestCommand_ExtraBlockProducerBeforeRoundStart(t *testing.T) {
	c := cfg.DefaultConsensusConfig()
	start := testGenesisTime.Add(time.Hour)
	view, pks := newCommandTestView(start)
	ebp := pks[4]
	view.current.ExtraBlockProducerOfPreviousRound = ebp
	view.current.Miners[ebp].ProducedTinyBlocks = 1
	view.current.Miners[ebp].ActualMiningTimes = []time.Time{start.Add(-4 * time.Second)}

	cmd := getConsensusCommand(c, view, ebp, start.Add(-3900*time.Millisecond))
	assert.Equal(t, types.BehaviorTinyBlock, cmd.Behavior, "上一轮的额外区块生产者在本轮开始前出小块")

	view.current.Miners[ebp].ProducedTinyBlocks = 8
	cmd = getConsensusCommand(c, view, ebp, start.Add(-3900*time.Millisecond))
	assert.Equal(t, types.BehaviorUpdateValue, cmd.Behavior, "配额用完后等待自己的时间槽")
}

func TestCommand_NextTerm(t *testing.T) {
	c := cfg.DefaultConsensusConfig()
	start := testGenesisTime.Add(time.Hour)
	view, pks := newCommandTestView(start)
	view.state.PeriodSeconds = 60
	for _, pk := range pks {
		markMined(view.current, pk, view.current.Miners[pk].ExpectedMiningTime)
	}

	pk := pks[0]
	now := view.current.Miners[pk].ExpectedMiningTime.Add(5 * time.Second)
	cmd := getConsensusCommand(c, view, pk, now)
	assert.Equal(t, types.BehaviorNextTerm, cmd.Behavior, "超过 N*2/3+1 个矿工已经进入下一届的时间段")
	assert.Equal(t, int64(4000/2), cmd.LimitMilliseconds)

	view.state.IsMainChain = false
	cmd = getConsensusCommand(c, view, pk, now)
	assert.Equal(t, types.BehaviorNextRound, cmd.Behavior, "侧链没有换届")
}

// 第5轮只有一个矿工出块，并且它在之前两轮都是唯一出块的矿工
func TestCommand_SolitaryMiner(t *testing.T) {
	c := cfg.DefaultConsensusConfig()
	pks := fakePubkeys(5)
	start := testGenesisTime.Add(time.Hour)
	lonely := pks[0]

	beforePrevious := newTestRound(pks, 3, 1, start.Add(-48*time.Second), 4000)
	previous := newTestRound(pks, 4, 1, start.Add(-24*time.Second), 4000)
	current := newTestRound(pks, 5, 1, start, 4000)
	markMined(beforePrevious, lonely, beforePrevious.StartTime())
	markMined(previous, lonely, previous.StartTime())
	markMined(current, lonely, current.StartTime())
	view := newTestView(current, previous, beforePrevious)

	now := current.ExtraBlockMiningTime().Add(10 * time.Second)
	cmd := getConsensusCommand(c, view, lonely, now)
	assert.True(t, cmd.IsInvalid(), "孤立的矿工不能继续出块")
	assert.Equal(t, types.InvalidConsensusCommand(), cmd)

	// 其他矿工在上上轮出过块
	markMined(beforePrevious, pks[1], beforePrevious.Miners[pks[1]].ExpectedMiningTime)
	cmd = getConsensusCommand(c, view, lonely, now)
	assert.False(t, cmd.IsInvalid())
	assert.Equal(t, types.BehaviorNextRound, cmd.Behavior)
}

// 上一轮只有自己出块时不能出小块
func TestCommand_LonelyMinerTinyBlock(t *testing.T) {
	c := cfg.DefaultConsensusConfig()
	pks := fakePubkeys(5)
	start := testGenesisTime.Add(time.Hour)
	pk := pks[1]

	beforePrevious := newTestRound(pks, 3, 1, start.Add(-48*time.Second), 4000)
	previous := newTestRound(pks, 4, 1, start.Add(-24*time.Second), 4000)
	current := newTestRound(pks, 5, 1, start, 4000)
	for _, other := range pks {
		markMined(beforePrevious, other, beforePrevious.Miners[other].ExpectedMiningTime)
	}
	markMined(previous, pk, previous.Miners[pk].ExpectedMiningTime)
	markMined(current, pks[0], current.StartTime())
	expected := current.Miners[pk].ExpectedMiningTime
	markMined(current, pk, expected)
	view := newTestView(current, previous, beforePrevious)

	cmd := getConsensusCommand(c, view, pk, expected.Add(100*time.Millisecond))
	assert.True(t, cmd.IsInvalid())
}

package consensus

import (
	"testing"
	"time"

	cfg "chaindpos/config"
	"chaindpos/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectedMiningTimeOfOrder(t *testing.T) {
	pks := fakePubkeys(5)
	start := testGenesisTime.Add(time.Minute)
	round := newTestRound(pks, 5, 1, start, 4000)

	for order := 1; order <= 5; order++ {
		expected := ExpectedMiningTimeOfOrder(round, order, 4000)
		assert.True(t, expected.Equal(round.MinerByOrder(order).ExpectedMiningTime), "第%d个时间槽的开始时间错误", order)
	}
}

func TestArrangeAbnormalMiningTime(t *testing.T) {
	pks := fakePubkeys(3)
	start := testGenesisTime.Add(time.Minute)
	round := newTestRound(pks, 5, 1, start, 4000)
	// 一轮总时长为 (3+1)*4000ms
	ebp, other := pks[0], pks[1]

	arranged, err := ArrangeAbnormalMiningTime(round, other, start.Add(5*time.Second), 4000)
	require.NoError(t, err)
	assert.True(t, arranged.Equal(start.Add(24*time.Second)), "错过时间槽的矿工应当在下一轮自己的位置出块, got %v", arranged)

	arranged, err = ArrangeAbnormalMiningTime(round, ebp, start.Add(5*time.Second), 4000)
	require.NoError(t, err)
	assert.True(t, arranged.Equal(round.ExtraBlockMiningTime()), "额外区块生产者直接使用额外区块时间")

	arranged, err = ArrangeAbnormalMiningTime(round, ebp, start.Add(17*time.Second), 4000)
	require.NoError(t, err)
	assert.True(t, arranged.Equal(start.Add(36*time.Second)), "额外区块时间已过，按错过的轮数顺延, got %v", arranged)

	_, err = ArrangeAbnormalMiningTime(round, "unknown", start, 4000)
	assert.Error(t, err, "不在轮次中的矿工")
}

func TestFirstRoundStagger(t *testing.T) {
	assert.Equal(t, int64(0), firstRoundMiningLeft(1, 4000))
	assert.Equal(t, int64(8000), firstRoundMiningLeft(3, 4000))
	// 结束第一轮要等所有矿工的时间槽都过去
	assert.Equal(t, int64(7*4000), firstRoundTerminateLeft(3, 5, 4000))
}

func TestTinyBlockMiningTime(t *testing.T) {
	c := cfg.DefaultConsensusConfig()
	pks := fakePubkeys(3)
	start := testGenesisTime.Add(time.Minute)
	current := newTestRound(pks, 5, 1, start, 4000)
	previous := newTestRound(pks, 4, 1, start.Add(-16*time.Second), 4000)
	pk := pks[1]
	expected := current.Miners[pk].ExpectedMiningTime
	markMined(current, pk, expected)
	view := newTestView(current, previous)

	// 每个小块 4000/8 = 500ms
	at, ok := tinyBlockMiningTime(c, view, pk, expected.Add(10*time.Millisecond))
	assert.True(t, ok)
	assert.True(t, at.Equal(expected.Add(500*time.Millisecond)), "第二个块在第二个小时间槽, got %v", at)

	at, ok = tinyBlockMiningTime(c, view, pk, expected.Add(1200*time.Millisecond))
	assert.True(t, ok)
	assert.True(t, at.Equal(expected.Add(1500*time.Millisecond)), "错过的小时间槽被跳过, got %v", at)

	_, ok = tinyBlockMiningTime(c, view, pk, expected.Add(3900*time.Millisecond))
	assert.False(t, ok, "自己的时间槽已经用完")
}

func TestTinyBlockMiningTimeBeforeRoundStart(t *testing.T) {
	c := cfg.DefaultConsensusConfig()
	pks := fakePubkeys(3)
	start := testGenesisTime.Add(time.Minute)
	current := newTestRound(pks, 5, 1, start, 4000)
	previous := newTestRound(pks, 4, 1, start.Add(-16*time.Second), 4000)
	ebp := pks[2]
	current.ExtraBlockProducerOfPreviousRound = ebp
	current.Miners[ebp].ProducedTinyBlocks = 1
	current.Miners[ebp].ActualMiningTimes = []time.Time{start.Add(-4 * time.Second)}
	view := newTestView(current, previous)

	// 额外区块时间槽为本轮开始前的一个间隔
	at, ok := tinyBlockMiningTime(c, view, ebp, start.Add(-3900*time.Millisecond))
	assert.True(t, ok)
	assert.True(t, at.Equal(start.Add(-3500*time.Millisecond)), "got %v", at)
}

func TestMiningLimit(t *testing.T) {
	c := cfg.DefaultConsensusConfig()
	pks := fakePubkeys(3)
	start := testGenesisTime.Add(time.Minute)
	current := newTestRound(pks, 5, 1, start, 4000)
	view := newTestView(current, newTestRound(pks, 4, 1, start.Add(-16*time.Second), 4000))
	pk := pks[0]

	// tfeb = 500, 按 3/5 的比例
	assert.Equal(t, int64(300), miningLimit(c, view, pk, types.BehaviorUpdateValue, 1000, false))
	assert.Equal(t, int64(180), miningLimit(c, view, pk, types.BehaviorUpdateValue, -200, false), "迟到的时间从限额中扣除")
	assert.Equal(t, int64(0), miningLimit(c, view, pk, types.BehaviorUpdateValue, -800, false), "限额不能为负")
	assert.Equal(t, int64(4000), miningLimit(c, view, pk, types.BehaviorTinyBlock, 100, true), "只有自己出块时使用整个间隔")
	assert.Equal(t, int64(2000), miningLimit(c, view, pk, types.BehaviorNextTerm, 100, false))

	current.Miners[pk].ProducedTinyBlocks = 8
	assert.Equal(t, int64(250), miningLimit(c, view, pk, types.BehaviorTinyBlock, 100, false), "最后一个小块的限额减半")
}

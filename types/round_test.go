package types

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2021, 6, 1, 8, 0, 0, 0, time.UTC)

// 生成n个矿工的第一轮
func newTestRound(n int, interval int64) *Round {
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = fmt.Sprintf("miner-%02d", i)
	}
	return NewMinerList(keys).GenerateFirstRoundOfNewTerm(interval, testStart, 0, 0)
}

func TestRound_FirstRoundOfNewTerm(t *testing.T) {
	round := newTestRound(5, 4000)

	assert.Equal(t, int64(1), round.RoundNumber)
	assert.Equal(t, int64(1), round.TermNumber)
	assert.True(t, round.IsMinerListJustChanged)
	require.NoError(t, round.CheckOrders(), "第一轮的order应该是1..N的排列")

	assert.Equal(t, int64(4000), round.MiningInterval())
	assert.Equal(t, testStart.Add(4*time.Second), round.StartTime())
	assert.Equal(t, "miner-00", round.ExtraBlockProducer().PublicKey)
	assert.Equal(t, []string{"miner-00", "miner-01", "miner-02", "miner-03", "miner-04"}, round.PublicKeys())

	// 最后一个时间槽之后是额外区块时间
	assert.Equal(t, testStart.Add(24*time.Second), round.ExtraBlockMiningTime())
	assert.Equal(t, int64(24000), round.TotalMilliseconds(0))
	assert.Equal(t, round.StartTime().Add(48*time.Second), round.ExpectedEndTime(1, 0))
	assert.True(t, round.CheckRoundTimeSlots().Success)
}

func TestRound_MiningIntervalSingleMiner(t *testing.T) {
	round := newTestRound(1, 8000)
	assert.Equal(t, int64(DefaultMiningInterval), round.MiningInterval())
}

func TestRound_CheckOrders(t *testing.T) {
	round := newTestRound(4, 4000)
	round.Miners["miner-03"].Order = 2
	assert.Error(t, round.CheckOrders(), "重复的order")

	round = newTestRound(4, 4000)
	round.Miners["miner-03"].Order = 5
	assert.Error(t, round.CheckOrders(), "order超出范围")
}

func TestRound_CheckRoundTimeSlots(t *testing.T) {
	round := newTestRound(4, 4000)
	round.Miners["miner-03"].ExpectedMiningTime = round.Miners["miner-03"].ExpectedMiningTime.Add(9 * time.Second)
	assert.False(t, round.CheckRoundTimeSlots().Success, "时间槽间隔相差超过一个间隔")

	round = newTestRound(4, 4000)
	round.Miners["miner-01"].ExpectedMiningTime = round.StartTime()
	assert.False(t, round.CheckRoundTimeSlots().Success, "出块间隔必须大于0")
}

func TestRound_IsTimeSlotPassed(t *testing.T) {
	round := newTestRound(3, 4000)
	expected := round.Miners["miner-01"].ExpectedMiningTime

	assert.False(t, round.IsTimeSlotPassed("miner-01", expected))
	assert.False(t, round.IsTimeSlotPassed("miner-01", expected.Add(3999*time.Millisecond)))
	assert.True(t, round.IsTimeSlotPassed("miner-01", expected.Add(4*time.Second)), "时间槽的结束时间不属于这个时间槽")
	assert.True(t, round.IsTimeSlotPassed("unknown", expected), "不在轮次中的矿工视为已经错过时间槽")
}

func TestRound_CopyIsDeep(t *testing.T) {
	round := newTestRound(3, 4000)
	m := round.Miners["miner-00"]
	m.OutValue = HashFromString("out")
	m.ActualMiningTimes = []time.Time{testStart}
	m.EncryptedInValues["miner-01"] = []byte{1, 2, 3}

	cp := round.Copy()
	cm := cp.Miners["miner-00"]
	cm.OutValue[0] ^= 0xff
	cm.ActualMiningTimes[0] = testStart.Add(time.Hour)
	cm.EncryptedInValues["miner-01"][0] = 9
	cp.RoundNumber = 100

	assert.Equal(t, HashFromString("out"), m.OutValue, "修改副本不应该影响原始轮次")
	assert.Equal(t, testStart, m.ActualMiningTimes[0])
	assert.Equal(t, byte(1), m.EncryptedInValues["miner-01"][0])
	assert.Equal(t, int64(1), round.RoundNumber)
}

func TestRound_MinedMiners(t *testing.T) {
	round := newTestRound(5, 4000)
	round.Miners["miner-03"].OutValue = HashFromString("3")
	round.Miners["miner-01"].OutValue = HashFromString("1")

	assert.Equal(t, []string{"miner-01", "miner-03"}, round.MinedPublicKeys())
	assert.Len(t, round.NotMinedMiners(), 3)
	assert.Equal(t, 4, round.MinersCountOfConsent())
}

func TestRound_HashIgnoresPiecesAndActualTimes(t *testing.T) {
	round := newTestRound(3, 4000)
	round.Miners["miner-00"].OutValue = HashFromString("out")
	round.Miners["miner-00"].PreviousInValue = HashFromString("prev")
	h := round.Hash(true)

	other := round.Copy()
	other.Miners["miner-00"].EncryptedInValues["miner-02"] = []byte("piece")
	other.Miners["miner-00"].ActualMiningTimes = append(other.Miners["miner-00"].ActualMiningTimes, testStart)
	assert.Equal(t, h, other.Hash(true), "秘密分片和实际出块时间不参与比对")

	other.Miners["miner-00"].PreviousInValue = nil
	assert.NotEqual(t, h, other.Hash(true))
	assert.Equal(t, round.Hash(false), other.Hash(false), "不比对previous in value时应该相等")

	other.Miners["miner-01"].ProducedBlocks++
	assert.NotEqual(t, round.Hash(false), other.Hash(false))
}

func TestRound_HashCoversLastIrreversibleBlock(t *testing.T) {
	round := newTestRound(3, 4000)
	h := round.Hash(true)

	other := round.Copy()
	other.ConfirmedIrreversibleBlockHeight = 99
	assert.NotEqual(t, h, other.Hash(true), "LIB高度参与比对")

	other = round.Copy()
	other.ConfirmedIrreversibleBlockRoundNumber = 7
	assert.NotEqual(t, h, other.Hash(false), "LIB轮次参与比对")
}

func TestRound_RoundID(t *testing.T) {
	round := newTestRound(3, 4000)
	var sum int64
	for _, m := range round.Miners {
		sum += m.ExpectedMiningTime.Unix()
	}
	assert.Equal(t, sum, round.RoundID())

	round.RoundIDForValidation = 42
	round.Miners["miner-01"].ExpectedMiningTime = time.Time{}
	assert.Equal(t, int64(42), round.RoundID(), "缺少预期出块时间时使用RoundIDForValidation")
}

func TestMinerInRound_LatestActualMiningTime(t *testing.T) {
	m := NewMinerInRound("a", 1, testStart)
	_, ok := m.LatestActualMiningTime()
	assert.False(t, ok)

	m.ActualMiningTimes = []time.Time{testStart.Add(2 * time.Second), testStart.Add(5 * time.Second), testStart}
	latest, ok := m.LatestActualMiningTime()
	assert.True(t, ok)
	assert.Equal(t, testStart.Add(5*time.Second), latest)
	assert.Equal(t, 2, m.CountActualMiningTimesBefore(testStart.Add(3*time.Second)))
}

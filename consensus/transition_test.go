package consensus

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"chaindpos/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyNormalConsensusData_ShiftsConflictedOrder(t *testing.T) {
	pks := fakePubkeys(3)
	round := newTestRound(pks, 5, 1, testGenesisTime, 4000)

	signature := types.HashFromString("signature")
	supposed := SupposedOrderOfNextRound(signature, 3)
	other := round.Miners[pks[0]]
	other.OutValue = types.HashFromString("out-0")
	other.SupposedOrderOfNextRound = supposed
	other.FinalOrderOfNextRound = supposed

	prevIn := types.HashFromString("previous")
	updated, err := ApplyNormalConsensusData(round, pks[1], prevIn, types.HashFromString("out-1"), signature)
	require.NoError(t, err)

	m := updated.Miners[pks[1]]
	assert.Equal(t, supposed, m.SupposedOrderOfNextRound)
	assert.Equal(t, supposed, m.FinalOrderOfNextRound)
	assert.Equal(t, prevIn, m.PreviousInValue)
	assert.NotEqual(t, supposed, updated.Miners[pks[0]].FinalOrderOfNextRound, "冲突的矿工被顺延")
	assert.NotZero(t, updated.Miners[pks[0]].FinalOrderOfNextRound)

	tuned := TuneOrderInformation(updated)
	assert.Equal(t, map[string]int{pks[0]: updated.Miners[pks[0]].FinalOrderOfNextRound}, tuned)

	assert.Equal(t, supposed, round.Miners[pks[0]].FinalOrderOfNextRound, "原来的轮次不能被修改")
	assert.Empty(t, round.Miners[pks[1]].OutValue)

	_, err = ApplyNormalConsensusData(round, "stranger", prevIn, signature, signature)
	assert.Error(t, err)
}

func TestApplyNormalConsensusData_KeepsRevealedPreviousInValue(t *testing.T) {
	pks := fakePubkeys(3)
	round := newTestRound(pks, 5, 1, testGenesisTime, 4000)
	revealed := types.HashFromString("revealed")
	round.Miners[pks[2]].PreviousInValue = revealed

	updated, err := ApplyNormalConsensusData(round, pks[2], types.HashFromString("other"),
		types.HashFromString("out"), types.HashFromString("sig"))
	require.NoError(t, err)
	assert.Equal(t, revealed, updated.Miners[pks[2]].PreviousInValue, "已经被还原的previous in value不会被覆盖")
}

func TestGenerateNextRoundInformation(t *testing.T) {
	pks := fakePubkeys(5)
	current := newTestRound(pks, 5, 1, testGenesisTime, 4000)
	current.ConfirmedIrreversibleBlockHeight = 100
	current.ConfirmedIrreversibleBlockRoundNumber = 4
	finals := map[string]int{pks[0]: 3, pks[1]: 1, pks[2]: 5}
	for pk, order := range finals {
		markMined(current, pk, current.Miners[pk].ExpectedMiningTime)
		current.Miners[pk].InValue = types.HashFromString(pk + "/in")
		current.Miners[pk].FinalOrderOfNextRound = order
	}
	current.Miners[pks[3]].MissedTimeSlots = 2

	now := testGenesisTime.Add(time.Minute)
	next := GenerateNextRoundInformation(current, now, 4000, testGenesisTime, false)

	assert.Equal(t, int64(6), next.RoundNumber)
	assert.Equal(t, int64(1), next.TermNumber)
	require.NoError(t, next.CheckOrders(), "下一轮的order必须是1..N的排列")
	assert.Equal(t, 5, next.MinersCount())
	assert.Equal(t, int64(100), next.ConfirmedIrreversibleBlockHeight)
	assert.Equal(t, int64(4), next.ConfirmedIrreversibleBlockRoundNumber)
	assert.Equal(t, int64(60), next.BlockchainAge)
	assert.False(t, next.IsMinerListJustChanged)

	ebps := 0
	for pk, m := range next.Miners {
		assert.True(t, m.ExpectedMiningTime.Equal(now.Add(types.Milliseconds(int64(m.Order)*4000))), "时间槽和order不一致")
		assert.Equal(t, current.Miners[pk].InValue, m.PreviousInValue)
		if m.IsExtraBlockProducer {
			ebps++
		}
	}
	assert.Equal(t, 1, ebps, "每一轮只有一个额外区块生产者")
	assert.Equal(t, int64(3), next.Miners[pks[3]].MissedTimeSlots, "没有出块的矿工缺席次数加一")
	assert.Equal(t, int64(1), next.Miners[pks[4]].MissedTimeSlots)
	assert.Equal(t, int64(0), next.Miners[pks[0]].MissedTimeSlots)
	assert.Equal(t, int64(1), next.Miners[pks[1]].ProducedBlocks)

	assert.NotEqual(t, current.ExtraBlockProducer().PublicKey, next.MinerByOrder(1).PublicKey, "额外区块生产者不能连续出块")
	assert.False(t, next.MinerByOrder(5).IsExtraBlockProducer)
}

// 随机选择出块的矿工，连续生成多轮，检查轮次单调递增以及order的排列
func TestGenerateNextRoundInformation_Permutation(t *testing.T) {
	r := rand.New(rand.NewSource(20210601))
	for _, n := range []int{1, 2, 3, 5, 7, 17} {
		round := types.NewMinerList(fakePubkeys(n)).GenerateFirstRoundOfNewTerm(4000, testGenesisTime, 0, 0)
		var previous *types.Round
		now := testGenesisTime
		for i := 0; i < 20; i++ {
			for _, m := range round.MinersByOrder() {
				if r.Intn(3) == 0 {
					continue
				}
				inValue := types.HashFromString(fmt.Sprintf("%s/%d", m.PublicKey, round.RoundNumber))
				sig := CalculateSignature(previous, inValue)
				var err error
				round, err = ApplyNormalConsensusData(round, m.PublicKey, nil, types.ComputeHash(inValue), sig)
				require.NoError(t, err)
			}
			closed := SupplyCurrentRoundInformation(round, previous)
			now = now.Add(time.Duration(n+1) * 4 * time.Second)
			next := GenerateNextRoundInformation(closed, now, 4000, testGenesisTime, false)

			require.NoError(t, next.CheckOrders(), "N=%d 第%d轮", n, next.RoundNumber)
			require.Equal(t, round.RoundNumber+1, next.RoundNumber, "轮次必须加一")
			require.Equal(t, n, next.MinersCount())
			require.True(t, next.CheckRoundTimeSlots().Success)
			previous, round = closed, next
		}
	}
}

func TestSupplyCurrentRoundInformation(t *testing.T) {
	pks := fakePubkeys(3)
	previous := newTestRound(pks[:2], 4, 1, testGenesisTime, 4000)
	previous.Miners[pks[1]].InValue = types.HashFromString("supplied-last-round")
	previous.Miners[pks[0]].Signature = types.HashFromString("sig-0")

	current := newTestRound(pks, 5, 1, testGenesisTime.Add(time.Minute), 4000)
	markMined(current, pks[0], current.StartTime())

	supplied := SupplyCurrentRoundInformation(current, previous)
	assert.Empty(t, supplied.Miners[pks[0]].InValue, "出过块的矿工不补全")

	m1 := supplied.Miners[pks[1]]
	assert.Equal(t, previous.Miners[pks[1]].InValue, m1.InValue, "沿用上一轮补全的in value")
	assert.Equal(t, CalculateSignature(previous, m1.InValue), m1.Signature)

	m2 := supplied.Miners[pks[2]]
	assert.Equal(t, types.HashFromString(pks[2]), m2.InValue, "新加入的矿工用公钥的hash补全")
	assert.Equal(t, m2.InValue, m2.Signature)

	assert.Empty(t, current.Miners[pks[1]].InValue, "原来的轮次不能被修改")
}

func TestCalculateSignature(t *testing.T) {
	pks := fakePubkeys(3)
	previous := newTestRound(pks, 4, 1, testGenesisTime, 4000)
	for _, pk := range pks {
		previous.Miners[pk].Signature = types.HashFromString(pk)
	}
	in := types.HashFromString("in")

	sig := CalculateSignature(previous, in)
	assert.Equal(t, sig, CalculateSignature(previous.Copy(), in), "签名是确定性的")
	assert.NotEqual(t, sig, CalculateSignature(previous, types.HashFromString("other")))
	assert.NotEmpty(t, CalculateSignature(nil, in), "第一轮没有上一轮的签名")
}

func TestGenerateFirstRoundOfNextTerm(t *testing.T) {
	pks := fakePubkeys(4)
	current := newTestRound(pks[:3], 9, 2, testGenesisTime, 4000)
	current.ConfirmedIrreversibleBlockHeight = 77
	current.ConfirmedIrreversibleBlockRoundNumber = 8

	victors := types.NewMinerList([]string{pks[3], pks[1], pks[0]})
	now := testGenesisTime.Add(time.Hour)
	next := GenerateFirstRoundOfNextTerm(victors, current, now, 4000, testGenesisTime)

	assert.Equal(t, int64(10), next.RoundNumber)
	assert.Equal(t, int64(3), next.TermNumber)
	assert.True(t, next.IsMinerListJustChanged)
	assert.Equal(t, int64(77), next.ConfirmedIrreversibleBlockHeight)
	assert.Equal(t, int64(3600), next.BlockchainAge)
	require.NoError(t, next.CheckOrders())
	assert.Equal(t, pks[0], next.MinerByOrder(1).PublicKey, "按公钥排序")
	assert.Equal(t, pks[3], next.MinerByOrder(3).PublicKey)
	assert.False(t, next.Contains(pks[2]))
}

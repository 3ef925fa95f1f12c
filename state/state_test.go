package state

import (
	"testing"
	"time"

	"chaindpos/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

func newGenesisDoc() *types.GenesisDoc {
	return &types.GenesisDoc{
		ChainID:        "state_test",
		GenesisTime:    time.Date(2021, 6, 1, 8, 0, 0, 0, time.UTC),
		MiningInterval: 4000,
		PeriodSeconds:  604800,
		IsMainChain:    true,
		InitialMiners:  []types.GenesisMiner{{PubKey: "miner-02"}, {PubKey: "miner-01"}},
	}
}

func TestMakeGenesisState(t *testing.T) {
	genDoc := newGenesisDoc()
	s := MakeGenesisState(genDoc, 8)

	assert.Equal(t, "state_test", s.ChainID)
	assert.Equal(t, int64(1), s.CurrentRoundNumber)
	assert.Equal(t, int64(1), s.CurrentTermNumber)
	assert.True(t, s.IsGenesisRound())
	assert.False(t, s.IsEmpty())
	assert.Equal(t, []string{"miner-01", "miner-02"}, s.InitialMiners.Pubkeys, "初始矿工按公钥排序")
	assert.True(t, s.BlockchainStartTime.Equal(genDoc.GenesisTime))
	assert.True(t, State{}.IsEmpty())
}

// Copy 之后修改副本不能影响原来的state
func TestStateCopy(t *testing.T) {
	s := MakeGenesisState(newGenesisDoc(), 8)
	s.LatestProviderToTinyBlocksCount = &LatestProvider{Pubkey: "miner-01", BlocksCount: 7}
	s.ReplacedMiners["miner-03"] = "miner-02"
	s.LatestBlockHash = tmbytes.HexBytes{1, 2, 3}

	cp := s.Copy()
	cp.LatestProviderToTinyBlocksCount.BlocksCount--
	cp.ReplacedMiners["miner-04"] = "miner-01"
	cp.LatestBlockHash[0] = 9
	cp.InitialMiners.Pubkeys[0] = "changed"

	assert.Equal(t, 7, s.LatestProviderToTinyBlocksCount.BlocksCount)
	assert.Len(t, s.ReplacedMiners, 1)
	assert.Equal(t, tmbytes.HexBytes{1, 2, 3}, s.LatestBlockHash)
	assert.Equal(t, "miner-01", s.InitialMiners.Pubkeys[0])
}

func TestBatch(t *testing.T) {
	b := NewBatch()
	assert.True(t, b.IsEmpty())

	r2 := types.NewRound(2, 1)
	r1 := types.NewRound(1, 1)
	b.PutRound(r2)
	b.PutRound(r1)
	r2.TermNumber = 5
	assert.False(t, b.IsEmpty())

	rounds := b.Rounds()
	require.Len(t, rounds, 2)
	assert.Equal(t, int64(1), rounds[0].RoundNumber, "按轮次号升序")
	assert.Equal(t, int64(1), rounds[1].TermNumber, "写入的是轮次的副本")

	b.DeleteRound(2)
	_, ok := b.Round(2)
	assert.False(t, ok, "删除会覆盖之前的写入")
	assert.Equal(t, []int64{2}, b.DeletedRounds())

	b.PutRound(r2)
	assert.Empty(t, b.DeletedRounds(), "重新写入会取消删除")

	keys := []string{"miner-01"}
	b.SetMinedMinerList(1, keys)
	keys[0] = "changed"
	assert.Equal(t, []string{"miner-01"}, b.MinedMinerLists[1])

	s := MakeGenesisState(newGenesisDoc(), 8)
	b.SetState(s)
	s.ReplacedMiners["x"] = "y"
	assert.Empty(t, b.State.ReplacedMiners)
}

package state

import (
	"sort"

	"chaindpos/types"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// Batch 一次共识交易产生的全部写操作
// 同一个Batch里后写入的轮次会覆盖先写入的
type Batch struct {
	State *State

	rounds        map[int64]*types.Round
	deletedRounds map[int64]bool

	FirstRoundOfTerm map[int64]int64
	MinedMinerLists  map[int64][]string

	RandomRequests      []*types.RandomNumberRequest
	DeletedRandomTokens []tmbytes.HexBytes
	// 清理随机数索引的轮次
	DeletedRandomRounds []int64

	// 和共识数据一起提交的区块
	Block *types.Block
}

func NewBatch() *Batch {
	return &Batch{
		rounds:           make(map[int64]*types.Round),
		deletedRounds:    make(map[int64]bool),
		FirstRoundOfTerm: make(map[int64]int64),
		MinedMinerLists:  make(map[int64][]string),
	}
}

func (b *Batch) SetState(s State) {
	cp := s.Copy()
	b.State = &cp
}

func (b *Batch) PutRound(round *types.Round) {
	b.rounds[round.RoundNumber] = round.Copy()
	delete(b.deletedRounds, round.RoundNumber)
}

func (b *Batch) DeleteRound(roundNumber int64) {
	delete(b.rounds, roundNumber)
	b.deletedRounds[roundNumber] = true
}

// Round 读取本批次中写入的轮次
func (b *Batch) Round(roundNumber int64) (*types.Round, bool) {
	r, ok := b.rounds[roundNumber]
	return r, ok
}

// Rounds 按轮次号升序返回写入的轮次
func (b *Batch) Rounds() []*types.Round {
	rounds := make([]*types.Round, 0, len(b.rounds))
	for _, r := range b.rounds {
		rounds = append(rounds, r)
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].RoundNumber < rounds[j].RoundNumber })
	return rounds
}

func (b *Batch) DeletedRounds() []int64 {
	numbers := make([]int64, 0, len(b.deletedRounds))
	for n := range b.deletedRounds {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers
}

func (b *Batch) SetFirstRoundOfTerm(termNumber, roundNumber int64) {
	b.FirstRoundOfTerm[termNumber] = roundNumber
}

func (b *Batch) SetMinedMinerList(roundNumber int64, pubkeys []string) {
	keys := make([]string, len(pubkeys))
	copy(keys, pubkeys)
	b.MinedMinerLists[roundNumber] = keys
}

func (b *Batch) PutRandomRequest(req *types.RandomNumberRequest) {
	b.RandomRequests = append(b.RandomRequests, req)
}

func (b *Batch) DeleteRandomRequests(roundNumber int64, tokens []tmbytes.HexBytes) {
	b.DeletedRandomTokens = append(b.DeletedRandomTokens, tokens...)
	b.DeletedRandomRounds = append(b.DeletedRandomRounds, roundNumber)
}

func (b *Batch) SaveBlock(block *types.Block) {
	b.Block = block
}

func (b *Batch) IsEmpty() bool {
	return b.State == nil && b.Block == nil && len(b.rounds) == 0 && len(b.deletedRounds) == 0 &&
		len(b.FirstRoundOfTerm) == 0 && len(b.MinedMinerLists) == 0 &&
		len(b.RandomRequests) == 0 && len(b.DeletedRandomTokens) == 0
}

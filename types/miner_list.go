package types

import (
	"sort"
	"strings"
	"time"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// MinerList 一届矿工的公钥集合，公钥保持升序且不重复
type MinerList struct {
	Pubkeys []string `json:"pubkeys"`
}

func NewMinerList(pubkeys []string) MinerList {
	seen := make(map[string]bool, len(pubkeys))
	keys := make([]string, 0, len(pubkeys))
	for _, pk := range pubkeys {
		if pk == "" || seen[pk] {
			continue
		}
		seen[pk] = true
		keys = append(keys, pk)
	}
	sort.Strings(keys)
	return MinerList{Pubkeys: keys}
}

func (ml MinerList) Len() int {
	return len(ml.Pubkeys)
}

func (ml MinerList) IsEmpty() bool {
	return len(ml.Pubkeys) == 0
}

func (ml MinerList) Contains(pubkey string) bool {
	i := sort.SearchStrings(ml.Pubkeys, pubkey)
	return i < len(ml.Pubkeys) && ml.Pubkeys[i] == pubkey
}

// Hash 排序后的公钥拼接后的hash，用于侧链判断主链矿工列表是否变化
func (ml MinerList) Hash() tmbytes.HexBytes {
	return HashFromString(strings.Join(ml.Pubkeys, ""))
}

func (ml MinerList) Equal(other MinerList) bool {
	return HashEqual(ml.Hash(), other.Hash())
}

// GenerateFirstRoundOfNewTerm 按公钥顺序为新一届矿工生成第一轮
// 第一个矿工同时负责这一轮的额外区块
func (ml MinerList) GenerateFirstRoundOfNewTerm(miningInterval int64, now time.Time,
	currentRoundNumber, currentTermNumber int64) *Round {
	round := NewRound(currentRoundNumber+1, currentTermNumber+1)
	for i, pk := range ml.Pubkeys {
		expected := now.Add(Milliseconds(int64(i)*miningInterval + miningInterval))
		m := NewMinerInRound(pk, i+1, expected)
		m.IsExtraBlockProducer = i == 0
		round.Miners[pk] = m
	}
	round.IsMinerListJustChanged = true
	return round
}

func (ml MinerList) String() string {
	short := make([]string, len(ml.Pubkeys))
	for i, pk := range ml.Pubkeys {
		short[i] = ShortKey(pk)
	}
	return "MinerList{" + strings.Join(short, " ") + "}"
}

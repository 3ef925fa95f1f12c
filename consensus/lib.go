package consensus

import (
	"sort"

	"chaindpos/types"

	"github.com/bits-and-blooms/bitset"
)

// CalculateLastIrreversibleBlockHeight 由本轮已出块矿工在上一轮声明的高度计算LIB
// 数量达到 N*2/3+1 后，排序取第 (k-1)/3 个，最多容忍 N/3 个错误的声明
// 返回0表示LIB不前进
func CalculateLastIrreversibleBlockHeight(current, previous *types.Round) int64 {
	if current.IsEmpty() || previous.IsEmpty() {
		return 0
	}

	heights := impliedIrreversibleBlockHeights(previous, minedBitmap(current, previous))
	if len(heights) < current.MinersCountOfConsent() {
		return 0
	}
	return heights[(len(heights)-1)/3]
}

// updateLastIrreversibleBlock LIB只会前进，前进时返回新的高度
func updateLastIrreversibleBlock(current, previous *types.Round) (int64, bool) {
	lib := CalculateLastIrreversibleBlockHeight(current, previous)
	if lib <= current.ConfirmedIrreversibleBlockHeight {
		return 0, false
	}
	current.ConfirmedIrreversibleBlockHeight = lib
	current.ConfirmedIrreversibleBlockRoundNumber = current.RoundNumber - 1
	return lib, true
}

// minedBitmap 本轮已经出块的矿工在上一轮中的位置
func minedBitmap(current, previous *types.Round) *bitset.BitSet {
	keys := previous.PublicKeys()
	mined := bitset.New(uint(len(keys)))
	for i, pk := range keys {
		if m, ok := current.Miners[pk]; ok && m.IsMined() {
			mined.Set(uint(i))
		}
	}
	return mined
}

func impliedIrreversibleBlockHeights(previous *types.Round, mined *bitset.BitSet) []int64 {
	keys := previous.PublicKeys()
	heights := make([]int64, 0, mined.Count())
	for i, ok := mined.NextSet(0); ok; i, ok = mined.NextSet(i + 1) {
		if h := previous.Miners[keys[i]].ImpliedIrreversibleBlockHeight; h > 0 {
			heights = append(heights, h)
		}
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights
}

package consensus

import (
	"fmt"
	"sort"

	cfg "chaindpos/config"
	"chaindpos/libs/utils"
	"chaindpos/types"

	"github.com/bits-and-blooms/bitset"
)

// MiningStatus 链的出块健康状况
type MiningStatus uint8

const (
	MiningStatusNormal = MiningStatus(iota)
	MiningStatusAbnormal
	MiningStatusSevere
)

func (s MiningStatus) String() string {
	switch s {
	case MiningStatusNormal:
		return "Normal"
	case MiningStatusAbnormal:
		return "Abnormal"
	case MiningStatusSevere:
		return "Severe"
	default:
		return fmt.Sprintf("UnknownMiningStatus(%d)", uint8(s))
	}
}

func (s MiningStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// MiningHealth 健康评估的结果
type MiningHealth struct {
	Status             MiningStatus `json:"status"`
	CurrentRoundNumber int64        `json:"current_round_number"`
	LibRoundNumber     int64        `json:"lib_round_number"`
	CurrentHeight      int64        `json:"current_height"`
	LibHeight          int64        `json:"lib_height"`
	// 当前高度到LIB的距离
	Distance int64 `json:"distance"`

	MaximumTinyBlocksCount int `json:"maximum_tiny_blocks_count"`
}

// EvaluateMiningStatus
// R <= R_lib + 2: Normal
// R_lib + 2 < R < R_lib + 10: Abnormal
// R >= R_lib + 10 或者高度落后LIB超过1024: Severe
func EvaluateMiningStatus(c *cfg.ConsensusConfig, libRound, currentRound, libHeight, currentHeight int64) MiningStatus {
	if libRound == 0 {
		return MiningStatusNormal
	}
	if currentRound >= libRound+c.SevereThresholdRounds || currentHeight-libHeight >= c.SevereThresholdBlocks {
		return MiningStatusSevere
	}
	if currentRound > libRound+c.AbnormalThresholdRounds {
		return MiningStatusAbnormal
	}
	return MiningStatusNormal
}

// EvaluateMiningHealth 根据LIB落后的程度限制小块的数量
// Abnormal: min(TinyBlocksNumber, ceil(k * (10 - (R - R_lib)) / N))，k为最近两轮都出过块的矿工数
// Severe: 1
// minedMiners返回某一轮出过块的矿工，不存在时返回nil
func EvaluateMiningHealth(c *cfg.ConsensusConfig, current *types.Round, currentHeight int64,
	minedMiners func(roundNumber int64) []string) MiningHealth {
	health := MiningHealth{
		CurrentRoundNumber:     current.RoundNumber,
		LibRoundNumber:         current.ConfirmedIrreversibleBlockRoundNumber,
		CurrentHeight:          currentHeight,
		LibHeight:              current.ConfirmedIrreversibleBlockHeight,
		Distance:               currentHeight - current.ConfirmedIrreversibleBlockHeight,
		MaximumTinyBlocksCount: c.TinyBlocksNumber,
	}
	health.Status = EvaluateMiningStatus(c, health.LibRoundNumber, health.CurrentRoundNumber, health.LibHeight, currentHeight)

	switch health.Status {
	case MiningStatusAbnormal:
		k := minedInBothRounds(minedMiners(current.RoundNumber-1), minedMiners(current.RoundNumber-2))
		factor := int64(k) * (c.SevereThresholdRounds - (current.RoundNumber - health.LibRoundNumber))
		count := utils.CeilDiv(factor, int64(current.MinersCount()))
		health.MaximumTinyBlocksCount = int(utils.MinInt64(int64(c.TinyBlocksNumber), count))
		if health.MaximumTinyBlocksCount < 1 {
			health.MaximumTinyBlocksCount = 1
		}
	case MiningStatusSevere:
		health.MaximumTinyBlocksCount = 1
	}
	return health
}

// minedInBothRounds 两个出块名单的交集大小
func minedInBothRounds(a, b []string) int {
	index := map[string]uint{}
	for _, pk := range append(append([]string{}, a...), b...) {
		if _, ok := index[pk]; !ok {
			index[pk] = 0
		}
	}
	keys := make([]string, 0, len(index))
	for pk := range index {
		keys = append(keys, pk)
	}
	sort.Strings(keys)
	for i, pk := range keys {
		index[pk] = uint(i)
	}

	setA, setB := bitset.New(uint(len(keys))), bitset.New(uint(len(keys)))
	for _, pk := range a {
		setA.Set(index[pk])
	}
	for _, pk := range b {
		setB.Set(index[pk])
	}
	return int(setA.IntersectionCardinality(setB))
}

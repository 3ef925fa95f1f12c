package consensus

import (
	"chaindpos/state"
	"chaindpos/types"

	"github.com/pkg/errors"
)

// chainView 一次调用中使用的链上数据快照，全部是拷贝
type chainView struct {
	state    state.State
	current  *types.Round
	previous *types.Round
	// 上上轮，孤立矿工检测使用
	beforePrevious *types.Round
}

// loadView 从store中读取当前轮次以及之前的两轮
// 当前轮次不存在时直接返回错误
func loadView(db state.Store) (*chainView, error) {
	s, err := db.LoadState()
	if err != nil {
		return nil, errors.Wrap(ErrCurrentRoundNotFound, err.Error())
	}
	current, err := db.GetRound(s.CurrentRoundNumber)
	if err != nil {
		return nil, errors.Wrap(ErrCurrentRoundNotFound, err.Error())
	}

	view := &chainView{state: s, current: current}
	if view.previous, err = tryGetRound(db, s.CurrentRoundNumber-1); err != nil {
		return nil, err
	}
	if view.previous != nil {
		if view.beforePrevious, err = tryGetRound(db, s.CurrentRoundNumber-2); err != nil {
			return nil, err
		}
	}
	return view, nil
}

// tryGetRound 轮次不存在时返回nil
func tryGetRound(db state.Store, roundNumber int64) (*types.Round, error) {
	if roundNumber < 1 {
		return nil, nil
	}
	round, err := db.GetRound(roundNumber)
	if errors.Is(err, state.ErrRoundNotFound) {
		return nil, nil
	}
	return round, err
}

func (v *chainView) miningInterval() int64 {
	if v.state.MiningInterval > 0 {
		return v.state.MiningInterval
	}
	return v.current.MiningInterval()
}

// isJustChangedTerm 上一轮和当前轮不在同一届
func (v *chainView) isJustChangedTerm() bool {
	return v.previous != nil && v.previous.TermNumber != v.current.TermNumber
}

func (v *chainView) maximumTinyBlocksCount(defaultCount int) int {
	if v.state.MaximumTinyBlocksCount > 0 {
		return v.state.MaximumTinyBlocksCount
	}
	return defaultCount
}

func (v *chainView) previousRoundID() int64 {
	if v.previous == nil {
		return 0
	}
	return v.previous.RoundID()
}

// onlyMinedBy 轮次中出过块的矿工恰好只有pubkey
func onlyMinedBy(round *types.Round, pubkey string) bool {
	if round == nil {
		return false
	}
	mined := round.MinedPublicKeys()
	return len(mined) == 1 && mined[0] == pubkey
}

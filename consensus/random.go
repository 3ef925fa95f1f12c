package consensus

import (
	"chaindpos/libs/utils"
	"chaindpos/state"
	"chaindpos/types"

	"github.com/pkg/errors"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// newRandomNumberRequest 登记一个随机数请求
// 随机数由当前轮次中已出块的最后一个矿工之后的矿工公开的previous in value生成，请求时还无法预知
func newRandomNumberRequest(view *chainView, requester string, height int64) (*types.RandomNumberRequest, state.State) {
	s := view.state.Copy()
	current := view.current

	token := types.GenerateRandomNumberToken(requester, height, current.RoundNumber, s.RandomNumberNonce)
	s.RandomNumberNonce++

	order := 0
	if mined := current.MinedMiners(); len(mined) > 0 {
		order = mined[len(mined)-1].Order
	}

	return &types.RandomNumberRequest{
		Token:               token,
		Requester:           requester,
		RequestRoundNumber:  current.RoundNumber,
		TargetRoundNumber:   current.RoundNumber,
		Order:               order,
		ExpectedBlockHeight: height + int64(current.MinersCount()),
	}, s
}

// randomNumberQuorum min(N, ceil(2N/3))
func randomNumberQuorum(minersCount int) int {
	quorum := int(utils.CeilDiv(int64(minersCount)*2, 3))
	if quorum > minersCount {
		return minersCount
	}
	return quorum
}

// calculateRandomNumber 收集足够的previous in value之后计算随机数
// 数量不够时返回false，调用方可以在之后的高度再次查询
func calculateRandomNumber(db state.Store, req *types.RandomNumberRequest, height int64) (tmbytes.HexBytes, bool, error) {
	if height < req.ExpectedBlockHeight {
		return nil, false, nil
	}
	s, err := db.LoadState()
	if err != nil {
		return nil, false, err
	}

	target, err := db.GetRound(req.TargetRoundNumber)
	if err != nil {
		return nil, false, errors.Wrapf(err, "load target round %d", req.TargetRoundNumber)
	}
	quorum := randomNumberQuorum(target.MinersCount())

	var inValues []tmbytes.HexBytes
	for _, m := range target.MinersByOrder() {
		if m.Order > req.Order && !types.IsEmptyHash(m.PreviousInValue) {
			inValues = append(inValues, m.PreviousInValue)
		}
	}
	for n := req.TargetRoundNumber + 1; len(inValues) < quorum && n <= s.CurrentRoundNumber; n++ {
		round, err := tryGetRound(db, n)
		if err != nil {
			return nil, false, err
		}
		if round == nil {
			continue
		}
		for _, m := range round.MinersByOrder() {
			if !types.IsEmptyHash(m.PreviousInValue) {
				inValues = append(inValues, m.PreviousInValue)
			}
		}
	}
	if len(inValues) < quorum || quorum == 0 {
		return nil, false, nil
	}

	folded := inValues[0]
	for _, v := range inValues[1:quorum] {
		folded = types.ConcatAndCompute(folded, v)
	}
	return types.ConcatAndCompute(folded, req.Token), true, nil
}

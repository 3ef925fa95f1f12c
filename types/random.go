package types

import (
	"fmt"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// RandomNumberRequest 请求随机数时登记的信息
// 随机数由目标轮次中order之后的矿工公开的previous in value计算
type RandomNumberRequest struct {
	Token     tmbytes.HexBytes `json:"token"`
	Requester string           `json:"requester"`

	// 登记时所在的轮次，过期清理以它为准
	RequestRoundNumber  int64 `json:"request_round_number"`
	TargetRoundNumber   int64 `json:"target_round_number"`
	Order               int   `json:"order"`
	ExpectedBlockHeight int64 `json:"expected_block_height"`
}

// GenerateRandomNumberToken 由请求者、高度和请求序号得到请求凭证
func GenerateRandomNumberToken(requester string, height, roundNumber int64, nonce uint64) tmbytes.HexBytes {
	return ComputeHash([]byte(requester), int64ToBytes(height), int64ToBytes(roundNumber), int64ToBytes(int64(nonce)))
}

func (req *RandomNumberRequest) String() string {
	return fmt.Sprintf("RandomRequest{%X round:%d order:%d height:%d}",
		[]byte(req.Token), req.TargetRoundNumber, req.Order, req.ExpectedBlockHeight)
}

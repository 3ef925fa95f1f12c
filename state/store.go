package state

import (
	"errors"

	"chaindpos/types"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

var (
	ErrStateNotFound         = errors.New("consensus state not found")
	ErrRoundNotFound         = errors.New("round not found")
	ErrTermNotFound          = errors.New("first round of term not found")
	ErrMinedMinerListMissing = errors.New("mined miner list not found")
	ErrRandomRequestNotFound = errors.New("random number request not found")
	ErrBlockNotFound         = errors.New("block not found")
)

// Store 共识数据的持久化接口
// 写操作只能通过Commit一次性原子地提交一个Batch
type Store interface {
	LoadState() (State, error)

	GetRound(roundNumber int64) (*types.Round, error)
	GetFirstRoundOfTerm(termNumber int64) (int64, error)
	GetMinedMinerList(roundNumber int64) ([]string, error)

	GetRandomNumberRequest(token tmbytes.HexBytes) (*types.RandomNumberRequest, error)
	// 在该轮次登记的随机数请求
	GetRandomNumberTokens(roundNumber int64) ([]tmbytes.HexBytes, error)

	Commit(batch *Batch) error

	SaveBlock(block *types.Block) error
	LoadBlock(height int64) (*types.Block, error)

	Close() error
}

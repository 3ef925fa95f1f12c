package rpc

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"chaindpos/consensus"
	cstype "chaindpos/consensus/types"
	"chaindpos/state"
	"chaindpos/types"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultConsensusState struct {
	State          state.State `json:"state"`
	CurrentRoundID int64       `json:"current_round_id"`
}

type ResultRound struct {
	Round *types.Round `json:"round"`
	// 轮次的可校验hash
	Hash tmbytes.HexBytes `json:"hash"`
}

type ResultBlock struct {
	Block *types.Block `json:"block"`
}

type ResultCommand struct {
	Pubkey  string                 `json:"pubkey"`
	Command types.ConsensusCommand `json:"command"`
}

type ResultMiners struct {
	Miners []cstype.MinerState `json:"miners"`
}

type ResultRandomNumberRequest struct {
	Request *types.RandomNumberRequest `json:"request"`
}

type ResultRandomNumber struct {
	Token  tmbytes.HexBytes `json:"token"`
	Ready  bool             `json:"ready"`
	Random tmbytes.HexBytes `json:"random"`
}

func ConsensusState(ctx *rpctypes.Context) (*ResultConsensusState, error) {
	s, err := env.Engine.GetState()
	if err != nil {
		return nil, err
	}
	current, err := env.Engine.GetCurrentRound()
	if err != nil {
		return nil, err
	}
	return &ResultConsensusState{State: s, CurrentRoundID: current.RoundID()}, nil
}

func newResultRound(round *types.Round) *ResultRound {
	return &ResultRound{Round: round, Hash: round.Hash(true)}
}

func Round(ctx *rpctypes.Context, number int64) (*ResultRound, error) {
	round, err := env.Engine.GetRound(number)
	if err != nil {
		return nil, err
	}
	return newResultRound(round), nil
}

func CurrentRound(ctx *rpctypes.Context) (*ResultRound, error) {
	round, err := env.Engine.GetCurrentRound()
	if err != nil {
		return nil, err
	}
	return newResultRound(round), nil
}

// FirstRoundOfTerm 某一届的第一轮
func FirstRoundOfTerm(ctx *rpctypes.Context, term int64) (*ResultRound, error) {
	round, err := env.Engine.GetFirstRoundOfTerm(term)
	if err != nil {
		return nil, err
	}
	return newResultRound(round), nil
}

// Block height<=0 时返回最新的区块
func Block(ctx *rpctypes.Context, height int64) (*ResultBlock, error) {
	if height <= 0 {
		block, err := env.BlockExec.LatestBlock()
		if err != nil {
			return nil, err
		}
		return &ResultBlock{Block: block}, nil
	}
	block, err := env.Store.LoadBlock(height)
	if err != nil {
		return nil, err
	}
	return &ResultBlock{Block: block}, nil
}

func ConsensusCommand(ctx *rpctypes.Context, pubkey string) (*ResultCommand, error) {
	cmd, err := env.Engine.GetConsensusCommand(pubkey, time.Now())
	if err != nil {
		return nil, err
	}
	return &ResultCommand{Pubkey: pubkey, Command: cmd}, nil
}

// MiningHealth height<=0 时使用最新区块的高度
func MiningHealth(ctx *rpctypes.Context, height int64) (*consensus.MiningHealth, error) {
	if height <= 0 {
		s, err := env.Engine.GetState()
		if err != nil {
			return nil, err
		}
		height = s.LatestBlockHeight
	}
	health, err := env.Engine.GetMiningHealth(height)
	if err != nil {
		return nil, err
	}
	return &health, nil
}

// Miners 本节点运行的矿工
func Miners(ctx *rpctypes.Context) (*ResultMiners, error) {
	result := &ResultMiners{Miners: make([]cstype.MinerState, 0, len(env.Miners))}
	for _, m := range env.Miners {
		result.Miners = append(result.Miners, m.GetMinerState())
	}
	return result, nil
}

func RequestRandomNumber(ctx *rpctypes.Context, requester string) (*ResultRandomNumberRequest, error) {
	if requester == "" {
		return nil, fmt.Errorf("empty requester")
	}
	s, err := env.Engine.GetState()
	if err != nil {
		return nil, err
	}
	req, err := env.Engine.RequestRandomNumber(requester, s.LatestBlockHeight)
	if err != nil {
		return nil, err
	}
	return &ResultRandomNumberRequest{Request: req}, nil
}

// RandomNumber token为hex编码，可以带0x前缀
func RandomNumber(ctx *rpctypes.Context, token string) (*ResultRandomNumber, error) {
	bz, err := hex.DecodeString(strings.TrimPrefix(token, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid token %q: %w", token, err)
	}
	s, err := env.Engine.GetState()
	if err != nil {
		return nil, err
	}
	random, ready, err := env.Engine.GetRandomNumber(bz, s.LatestBlockHeight)
	if err != nil {
		return nil, err
	}
	return &ResultRandomNumber{Token: bz, Ready: ready, Random: random}, nil
}

package consensus

import (
	"errors"
)

var (
	ErrCurrentRoundNotFound = errors.New("current round information not found")
	ErrNotMiner             = errors.New("sender is not a miner of current round")
	ErrInvalidBehavior      = errors.New("invalid consensus behavior")
	ErrRoundIDMismatch      = errors.New("round id mismatch")
	ErrWrongRoundNumber     = errors.New("wrong round number")
	ErrWrongTermNumber      = errors.New("wrong term number")
	ErrAlreadyInitialized   = errors.New("consensus already initialized")
	ErrNoBackupMiner        = errors.New("no backup miner available")
	ErrSideChainOnly        = errors.New("only side chain can update main chain miner list")
	ErrTinyBlockExceeded    = errors.New("tiny blocks exceed the limit")
	ErrZeroBlockTime        = errors.New("block time is zero")
	ErrInvalidInput         = errors.New("invalid consensus transaction input")
)

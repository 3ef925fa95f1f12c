package state

import (
	"fmt"
	"sync"
	"time"

	"chaindpos/types"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
)

var (
	ErrInvalidBlock = errors.New("invalid block")
)

// ConsensusExecutor 区块执行时需要的共识入口
type ConsensusExecutor interface {
	ValidateBeforeExecution(header *types.HeaderInformation) types.ValidationResult
	// ExecuteBlock 执行共识交易，执行后校验通过才把共识数据和区块一起提交
	ExecuteBlock(block *types.Block) error
}

type BlockExecutor interface {
	// CreateBlock 在最后一个区块之后打包共识数据
	CreateBlock(proposer string, t time.Time, header *types.HeaderInformation, tx *types.ConsensusTransaction) (*types.Block, error)

	// ApplyBlock 校验并执行一个区块，成功后区块被保存
	ApplyBlock(block *types.Block) error

	// LatestBlock 最后一个执行成功的区块
	LatestBlock() (*types.Block, error)

	SetLogger(logger log.Logger)
}

func NewBlockExec(consensus ConsensusExecutor, db Store) BlockExecutor {
	return &blockExecutor{
		consensus: consensus,
		db:        db,
		logger:    log.NewNopLogger(),
	}
}

type blockExecutor struct {
	// 多个本地矿工共用一个executor时，区块依次执行
	mtx sync.Mutex

	consensus ConsensusExecutor

	db Store

	logger log.Logger
}

// SetLogger implements BlockExecutor
func (exec *blockExecutor) SetLogger(logger log.Logger) {
	exec.logger = logger
}

// LatestBlock implements BlockExecutor
func (exec *blockExecutor) LatestBlock() (*types.Block, error) {
	s, err := exec.db.LoadState()
	if err != nil {
		return nil, err
	}
	return exec.db.LoadBlock(s.LatestBlockHeight)
}

// CreateBlock implements BlockExecutor
func (exec *blockExecutor) CreateBlock(proposer string, t time.Time,
	header *types.HeaderInformation, tx *types.ConsensusTransaction) (*types.Block, error) {
	last, err := exec.LatestBlock()
	if err != nil {
		return nil, errors.Wrap(err, "load latest block")
	}
	return types.MakeBlock(last, proposer, t, header, tx), nil
}

// ApplyBlock implements BlockExecutor
// 执行前后各校验一次共识数据
func (exec *blockExecutor) ApplyBlock(block *types.Block) error {
	exec.mtx.Lock()
	defer exec.mtx.Unlock()

	// 首先验证区块是否合法，不合法直接返回
	if err := exec.validateBlock(block); err != nil {
		return errors.Wrap(ErrInvalidBlock, err.Error())
	}

	if result := exec.consensus.ValidateBeforeExecution(block.Consensus); !result.Success {
		exec.logger.Error("validate before execution failed", "block", block, "reason", result.Message)
		return errors.Wrap(ErrInvalidBlock, result.Message)
	}

	// 执行后校验失败时什么都不会写入
	if err := exec.consensus.ExecuteBlock(block); err != nil {
		exec.logger.Error("execute block failed", "block", block, "err", err)
		return errors.Wrapf(err, "execute %v", block.Tx)
	}
	exec.logger.Debug("apply block done", "block", block, "tx", block.Tx)
	return nil
}

// 根据当前的state验证一个区块是否可以接在最后一个区块之后
func (exec *blockExecutor) validateBlock(block *types.Block) error {
	// 先检验区块基本的信息是否正确
	if err := block.ValidateBasic(); err != nil {
		return err
	}

	last, err := exec.LatestBlock()
	if err != nil {
		return err
	}
	if block.Height != last.Height+1 {
		return fmt.Errorf("wrong height, expected %d, got %d", last.Height+1, block.Height)
	}
	if !types.HashEqual(block.LastBlockHash, last.Hash()) {
		return fmt.Errorf("wrong last block hash, expected %v, got %v", last.Hash(), block.LastBlockHash)
	}
	if block.Time.Before(last.Time) {
		return fmt.Errorf("block time %v before last block time %v", block.Time, last.Time)
	}
	return nil
}

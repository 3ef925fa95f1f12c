package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/tendermint/tendermint/crypto/merkle"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// Block 本地链维护的区块，只携带共识数据和一条共识交易
type Block struct {
	Header    `json:"header"`
	Consensus *HeaderInformation    `json:"consensus"`
	Tx        *ConsensusTransaction `json:"tx"`
}

type Header struct {
	ChainID       string           `json:"chain_id"`
	Height        int64            `json:"height"`
	Time          time.Time        `json:"time"`
	Proposer      string           `json:"proposer"`
	LastBlockHash tmbytes.HexBytes `json:"last_block_hash"`

	// 区块头中共识数据的hash，矿工按照order排列后计算
	ConsensusHash tmbytes.HexBytes `json:"consensus_hash"`
	BlockHash     tmbytes.HexBytes `json:"block_hash"`
}

func MakeGenesisBlock(chainID string, genesisTime time.Time) *Block {
	block := &Block{
		Header: Header{
			ChainID:       chainID,
			Height:        0,
			Time:          genesisTime,
			LastBlockHash: []byte{},
		},
	}
	block.Hash()
	return block
}

// MakeBlock 在last之后生成一个新区块
func MakeBlock(last *Block, proposer string, t time.Time, consensus *HeaderInformation, tx *ConsensusTransaction) *Block {
	block := &Block{
		Header: Header{
			ChainID:       last.ChainID,
			Height:        last.Height + 1,
			Time:          t,
			Proposer:      proposer,
			LastBlockHash: last.Hash(),
		},
		Consensus: consensus,
		Tx:        tx,
	}
	block.Hash()
	return block
}

// ValidateBasic 检验区块本身没有明显的错误
func (b *Block) ValidateBasic() error {
	if len(b.BlockHash) == 0 {
		return errors.New("block had no blockhash")
	}
	if b.Height == 0 {
		return nil
	}
	if b.Time.IsZero() {
		return errors.New("block had zero time")
	}
	if b.Consensus == nil || b.Tx == nil {
		return errors.New("block had no consensus information")
	}
	if err := b.Consensus.ValidateBasic(); err != nil {
		return err
	}
	if err := b.Tx.ValidateBasic(); err != nil {
		return err
	}
	if b.Consensus.SenderPubkey != b.Proposer || b.Tx.Sender != b.Proposer {
		return fmt.Errorf("proposer %s mismatch consensus sender", ShortKey(b.Proposer))
	}
	if !HashEqual(b.ConsensusHash, b.Consensus.Round.Hash(true)) {
		return errors.New("wrong consensus hash")
	}
	return nil
}

// Context 执行区块时交给共识的上下文
func (b *Block) Context() BlockContext {
	return BlockContext{Height: b.Height, Time: b.Time, Hash: b.Hash()}
}

func (b *Block) Hash() tmbytes.HexBytes {
	if b == nil {
		return nil
	}
	if b.BlockHash == nil {
		if b.Consensus != nil && b.Consensus.Round != nil {
			b.ConsensusHash = b.Consensus.Round.Hash(true)
		}
		b.BlockHash = merkle.HashFromByteSlices([][]byte{
			[]byte(b.ChainID),
			int64ToBytes(b.Height),
			int64ToBytes(b.Time.UnixNano()),
			[]byte(b.Proposer),
			b.LastBlockHash,
			b.ConsensusHash,
		})
	}
	return b.BlockHash
}

func (b *Block) String() string {
	if b == nil {
		return "Block{nil}"
	}
	return fmt.Sprintf("Block{#%d %v by %s}", b.Height, b.BlockHash, ShortKey(b.Proposer))
}

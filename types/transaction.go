package types

import (
	"errors"
	"fmt"
	"time"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// 共识交易的方法名
const (
	MethodUpdateValue                = "UpdateValue"
	MethodUpdateTinyBlockInformation = "UpdateTinyBlockInformation"
	MethodNextRound                  = "NextRound"
	MethodNextTerm                   = "NextTerm"
)

var (
	ErrUnknownMethod = errors.New("unknown consensus method")
	ErrEmptyInput    = errors.New("empty consensus transaction input")
)

// UpdateValueInput 矿工在自己的时间槽发布out value
type UpdateValueInput struct {
	RoundID          int64     `json:"round_id"`
	ActualMiningTime time.Time `json:"actual_mining_time"`
	ProducedBlocks   int64     `json:"produced_blocks"`

	OutValue        tmbytes.HexBytes `json:"out_value"`
	Signature       tmbytes.HexBytes `json:"signature"`
	PreviousInValue tmbytes.HexBytes `json:"previous_in_value"`

	SupposedOrderOfNextRound int `json:"supposed_order_of_next_round"`
	// 因为冲突被调整了下一轮顺序的矿工
	TuneOrderInformation map[string]int `json:"tune_order_information"`

	EncryptedPieces map[string]tmbytes.HexBytes `json:"encrypted_pieces"`
	DecryptedPieces map[string]tmbytes.HexBytes `json:"decrypted_pieces"`
	// 本地还原出的其他矿工上一轮的in value
	MinersPreviousInValues map[string]tmbytes.HexBytes `json:"miners_previous_in_values"`

	ImpliedIrreversibleBlockHeight int64 `json:"implied_irreversible_block_height"`
}

// TinyBlockInput 额外的小块只更新出块统计
type TinyBlockInput struct {
	RoundID          int64     `json:"round_id"`
	ActualMiningTime time.Time `json:"actual_mining_time"`
	ProducedBlocks   int64     `json:"produced_blocks"`
}

// ConsensusTransaction 每个区块有且只有一条共识交易
type ConsensusTransaction struct {
	Method string `json:"method"`
	Sender string `json:"sender"`

	UpdateValue *UpdateValueInput `json:"update_value,omitempty"`
	TinyBlock   *TinyBlockInput   `json:"tiny_block,omitempty"`
	NextRound   *Round            `json:"next_round,omitempty"`
	NextTerm    *Round            `json:"next_term,omitempty"`
}

func (tx *ConsensusTransaction) ValidateBasic() error {
	if tx.Sender == "" {
		return errors.New("empty sender")
	}
	switch tx.Method {
	case MethodUpdateValue:
		if tx.UpdateValue == nil {
			return fmt.Errorf("%w: %s", ErrEmptyInput, tx.Method)
		}
	case MethodUpdateTinyBlockInformation:
		if tx.TinyBlock == nil {
			return fmt.Errorf("%w: %s", ErrEmptyInput, tx.Method)
		}
	case MethodNextRound:
		if tx.NextRound.IsEmpty() {
			return fmt.Errorf("%w: %s", ErrEmptyInput, tx.Method)
		}
	case MethodNextTerm:
		if tx.NextTerm.IsEmpty() {
			return fmt.Errorf("%w: %s", ErrEmptyInput, tx.Method)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMethod, tx.Method)
	}
	return nil
}

func (tx *ConsensusTransaction) String() string {
	return fmt.Sprintf("ConsensusTx{%s by %s}", tx.Method, ShortKey(tx.Sender))
}

// MethodOfBehavior 行为对应的共识交易
func MethodOfBehavior(b Behavior) (string, error) {
	switch b {
	case BehaviorUpdateValue, BehaviorUpdateValueWithoutPreviousInValue:
		return MethodUpdateValue, nil
	case BehaviorTinyBlock:
		return MethodUpdateTinyBlockInformation, nil
	case BehaviorNextRound:
		return MethodNextRound, nil
	case BehaviorNextTerm:
		return MethodNextTerm, nil
	default:
		return "", fmt.Errorf("%w: behavior %v", ErrUnknownMethod, b)
	}
}

package types

import (
	"errors"
	"fmt"
	"time"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// BlockContext 正在生成或者执行的区块的上下文
type BlockContext struct {
	Height int64            `json:"height"`
	Time   time.Time        `json:"time"`
	Hash   tmbytes.HexBytes `json:"hash"`
}

// TriggerInformation 矿工出块前本地准备好的数据
type TriggerInformation struct {
	Pubkey   string   `json:"pubkey"`
	Behavior Behavior `json:"behavior"`

	InValue         tmbytes.HexBytes `json:"in_value"`
	PreviousInValue tmbytes.HexBytes `json:"previous_in_value"`

	// 发给每个矿工的加密分片
	EncryptedPieces map[string]tmbytes.HexBytes `json:"encrypted_pieces"`
	// 解密出的其他矿工上一轮的分片，key为分片的所有者
	DecryptedPieces map[string]tmbytes.HexBytes `json:"decrypted_pieces"`
	// 本地已经还原出的其他矿工上一轮的in value
	RevealedInValues map[string]tmbytes.HexBytes `json:"revealed_in_values"`
}

func (ti *TriggerInformation) ValidateBasic() error {
	if ti.Pubkey == "" {
		return errors.New("empty pubkey in trigger information")
	}
	if ti.Behavior.IsUpdateValue() && IsEmptyHash(ti.InValue) {
		return fmt.Errorf("%v requires in value", ti.Behavior)
	}
	return nil
}

// HeaderInformation 区块头中携带的共识数据
type HeaderInformation struct {
	SenderPubkey string   `json:"sender_pubkey"`
	Behavior     Behavior `json:"behavior"`
	Round        *Round   `json:"round"`
}

func (hi *HeaderInformation) ValidateBasic() error {
	if hi.SenderPubkey == "" {
		return errors.New("empty sender pubkey")
	}
	if hi.Round.IsEmpty() {
		return errors.New("empty round in header information")
	}
	return hi.Round.CheckOrders()
}

func (hi *HeaderInformation) String() string {
	return fmt.Sprintf("Header{%v by %s %v}", hi.Behavior, ShortKey(hi.SenderPubkey), hi.Round)
}

// ValidationResult 协议违规不是error，而是一个失败的校验结果
type ValidationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	// 校验通过后是否需要重新触发共识命令
	IsReTrigger bool `json:"is_re_trigger"`
}

func ValidationSuccess() ValidationResult {
	return ValidationResult{Success: true}
}

func ValidationFailure(format string, args ...interface{}) ValidationResult {
	return ValidationResult{Success: false, Message: fmt.Sprintf(format, args...)}
}

func (vr ValidationResult) String() string {
	if vr.Success {
		return "Validation{ok}"
	}
	return "Validation{failed: " + vr.Message + "}"
}

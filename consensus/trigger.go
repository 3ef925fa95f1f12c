package consensus

import (
	"chaindpos/crypto/secret"
	"chaindpos/types"

	"github.com/pkg/errors"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// TriggerProvider 矿工本地准备出块需要的秘密数据
// in value由私钥和轮次派生，节点重启后仍然可以得到上一轮的in value
type TriggerProvider struct {
	kp *secret.KeyPair
}

func NewTriggerProvider(kp *secret.KeyPair) *TriggerProvider {
	return &TriggerProvider{kp: kp}
}

func (tp *TriggerProvider) Pubkey() string {
	return tp.kp.PubKeyHex()
}

// GetTriggerInformation current为当前轮次，previous可以为nil
func (tp *TriggerProvider) GetTriggerInformation(behavior types.Behavior,
	current, previous *types.Round) (*types.TriggerInformation, error) {
	pk := tp.Pubkey()
	trigger := &types.TriggerInformation{Pubkey: pk, Behavior: behavior}
	if !behavior.IsUpdateValue() {
		return trigger, nil
	}

	trigger.InValue = tp.kp.DeriveInValue(current.RoundNumber)
	if behavior == types.BehaviorUpdateValue && previous.Contains(pk) {
		trigger.PreviousInValue = tp.kp.DeriveInValue(previous.RoundNumber)
	}

	if current.MinersCount() > 1 {
		encrypted, err := EncryptInValuePieces(current, trigger.InValue)
		if err != nil {
			return nil, errors.Wrap(err, "encrypt in value pieces")
		}
		trigger.EncryptedPieces = encrypted
	}

	trigger.DecryptedPieces = DecryptPreviousPieces(tp.kp, current, previous)
	trigger.RevealedInValues = tp.revealInValues(current, previous, trigger.DecryptedPieces)
	return trigger, nil
}

// revealInValues 加上自己刚解密的分片后，分片足够的矿工可以还原出上一轮的in value
func (tp *TriggerProvider) revealInValues(current, previous *types.Round,
	decrypted map[string]tmbytes.HexBytes) map[string]tmbytes.HexBytes {
	revealed := map[string]tmbytes.HexBytes{}
	if previous == nil {
		return revealed
	}
	me := tp.Pubkey()
	for _, m := range current.MinersByOrder() {
		if m.PublicKey == me || !types.IsEmptyHash(m.PreviousInValue) || !previous.Contains(m.PublicKey) {
			continue
		}
		owner := m.Copy()
		if piece, ok := decrypted[m.PublicKey]; ok {
			owner.DecryptedPreviousInValues[me] = piece
		}
		if inValue, ok := RevealInValue(owner, previous); ok {
			revealed[m.PublicKey] = inValue
		}
	}
	return revealed
}

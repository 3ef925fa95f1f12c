package consensus

import (
	"sort"

	"chaindpos/crypto/secret"
	"chaindpos/types"

	"github.com/pkg/errors"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// EncryptInValuePieces 将in value拆成N份，用每个矿工的公钥加密后发给它
// 第i份对应order为i的矿工
func EncryptInValuePieces(current *types.Round, inValue tmbytes.HexBytes) (map[string]tmbytes.HexBytes, error) {
	n := current.MinersCount()
	pieces, err := secret.Split(inValue, n, secret.Threshold(n))
	if err != nil {
		return nil, err
	}

	encrypted := make(map[string]tmbytes.HexBytes, n)
	for _, m := range current.MinersByOrder() {
		ct, err := secret.Encrypt(m.PublicKey, pieces[m.Order-1])
		if err != nil {
			return nil, errors.Wrapf(err, "encrypt piece for %s", types.ShortKey(m.PublicKey))
		}
		encrypted[m.PublicKey] = ct
	}
	return encrypted, nil
}

// DecryptPreviousPieces 解密上一轮其他矿工发给自己的分片
// 只处理本轮还没有公开previous in value的矿工
func DecryptPreviousPieces(kp *secret.KeyPair, current, previous *types.Round) map[string]tmbytes.HexBytes {
	decrypted := map[string]tmbytes.HexBytes{}
	if previous == nil {
		return decrypted
	}
	me := kp.PubKeyHex()
	for _, pm := range previous.MinersByOrder() {
		if pm.PublicKey == me {
			continue
		}
		cm, ok := current.Miners[pm.PublicKey]
		if !ok || !types.IsEmptyHash(cm.PreviousInValue) {
			continue
		}
		ct, ok := pm.EncryptedInValues[me]
		if !ok || len(ct) == 0 {
			continue
		}
		piece, err := kp.Decrypt(ct)
		if err != nil {
			// 错误的分片不影响出块，其他矿工的分片足够时仍然可以还原
			continue
		}
		decrypted[pm.PublicKey] = piece
	}
	return decrypted
}

// RevealInValue 用本轮收集到的分片还原owner上一轮的in value
// 分片的下标是解密者在上一轮的order
func RevealInValue(owner *types.MinerInRound, previous *types.Round) (tmbytes.HexBytes, bool) {
	if previous == nil {
		return nil, false
	}
	n := previous.MinersCount()
	threshold := secret.Threshold(n)
	if len(owner.DecryptedPreviousInValues) < threshold {
		return nil, false
	}

	decrypters := make([]string, 0, len(owner.DecryptedPreviousInValues))
	for pk := range owner.DecryptedPreviousInValues {
		if previous.Contains(pk) {
			decrypters = append(decrypters, pk)
		}
	}
	if len(decrypters) < threshold {
		return nil, false
	}
	sort.Slice(decrypters, func(i, j int) bool {
		return previous.Miners[decrypters[i]].Order < previous.Miners[decrypters[j]].Order
	})

	pieces := make([][]byte, len(decrypters))
	orders := make([]int, len(decrypters))
	for i, pk := range decrypters {
		pieces[i] = owner.DecryptedPreviousInValues[pk]
		orders[i] = previous.Miners[pk].Order
	}
	inValue, err := secret.Recover(pieces, orders, threshold, n)
	if err != nil {
		return nil, false
	}
	return inValue, true
}

// RevealSharedInValues 结束本轮时还原所有分片足够的矿工上一轮的in value
func RevealSharedInValues(current, previous *types.Round) *types.Round {
	revealed := current.Copy()
	if previous == nil {
		return revealed
	}
	for _, m := range revealed.MinersByOrder() {
		if !types.IsEmptyHash(m.PreviousInValue) || !previous.Contains(m.PublicKey) {
			continue
		}
		if inValue, ok := RevealInValue(m, previous); ok {
			m.PreviousInValue = inValue
		}
	}
	return revealed
}

// closeRound 结束本轮前补全数据，出块者和验证者得到相同的结果
func closeRound(current, previous *types.Round) *types.Round {
	return SupplyCurrentRoundInformation(RevealSharedInValues(current, previous), previous)
}

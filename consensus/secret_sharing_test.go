package consensus

import (
	"testing"
	"time"

	"chaindpos/crypto/secret"
	"chaindpos/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// newSharedRounds owner在上一轮把in value分片加密发给所有矿工
func newSharedRounds(t *testing.T, n int) ([]*secret.KeyPair, *types.Round, *types.Round, tmbytes.HexBytes) {
	keys := newTestKeys(n)
	pks := pubkeysOf(keys)
	previous := newTestRound(pks, 4, 1, testGenesisTime, 4000)
	current := newTestRound(pks, 5, 1, testGenesisTime.Add(time.Duration(n+1)*4*time.Second), 4000)

	owner := keys[0]
	inValue := owner.DeriveInValue(4)
	encrypted, err := EncryptInValuePieces(previous, inValue)
	require.NoError(t, err)
	require.Len(t, encrypted, n, "每个矿工一个分片")
	previous.Miners[owner.PubKeyHex()].EncryptedInValues = encrypted
	return keys, previous, current, inValue
}

func TestSecretSharing_RevealInValue(t *testing.T) {
	keys, previous, current, inValue := newSharedRounds(t, 4)
	owner := keys[0].PubKeyHex()
	threshold := secret.Threshold(4)

	for _, kp := range keys[1 : 1+threshold] {
		decrypted := DecryptPreviousPieces(kp, current, previous)
		piece, ok := decrypted[owner]
		require.True(t, ok, "应当能解密发给自己的分片")
		current.Miners[owner].DecryptedPreviousInValues[kp.PubKeyHex()] = piece
	}

	revealed, ok := RevealInValue(current.Miners[owner], previous)
	require.True(t, ok)
	assert.Equal(t, inValue, revealed, "还原出的in value错误")

	closed := RevealSharedInValues(current, previous)
	assert.Equal(t, inValue, closed.Miners[owner].PreviousInValue)
	assert.Empty(t, current.Miners[owner].PreviousInValue, "原来的轮次不能被修改")
}

func TestSecretSharing_NotEnoughPieces(t *testing.T) {
	keys, previous, current, _ := newSharedRounds(t, 7)
	owner := keys[0].PubKeyHex()
	threshold := secret.Threshold(7)

	for _, kp := range keys[1:threshold] {
		decrypted := DecryptPreviousPieces(kp, current, previous)
		current.Miners[owner].DecryptedPreviousInValues[kp.PubKeyHex()] = decrypted[owner]
	}
	_, ok := RevealInValue(current.Miners[owner], previous)
	assert.False(t, ok, "少于门限的分片不能还原")

	closed := RevealSharedInValues(current, previous)
	assert.Empty(t, closed.Miners[owner].PreviousInValue)
}

func TestDecryptPreviousPieces_SkipsRevealed(t *testing.T) {
	keys, previous, current, inValue := newSharedRounds(t, 4)
	owner := keys[0].PubKeyHex()

	assert.Empty(t, DecryptPreviousPieces(keys[0], current, previous), "不解密自己的分片")

	current.Miners[owner].PreviousInValue = inValue
	assert.Empty(t, DecryptPreviousPieces(keys[1], current, previous), "已经公开的in value不需要解密")
	assert.Empty(t, DecryptPreviousPieces(keys[1], current, nil))
}

package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreshold(t *testing.T) {
	cases := map[int]int{1: 1, 2: 1, 3: 2, 5: 3, 7: 4, 17: 11}
	for n, want := range cases {
		assert.Equal(t, want, Threshold(n), "N=%d", n)
	}
}

func TestSplitRecover_AnyThresholdSubset(t *testing.T) {
	kp := GenKeyPairWithSeed([]byte("miner-0"))
	in := kp.DeriveInValue(3)
	n := 7
	th := Threshold(n)

	pieces, err := Split(in, n, th)
	require.NoError(t, err)
	require.Len(t, pieces, n)

	// 前t个、后t个、间隔选取都应该还原出同一个值
	subsets := [][]int{{1, 2, 3, 4}, {4, 5, 6, 7}, {1, 3, 5, 7}, {2, 3, 5, 6, 7}}
	for _, orders := range subsets {
		selected := make([][]byte, len(orders))
		for i, o := range orders {
			selected[i] = pieces[o-1]
		}
		recovered, err := Recover(selected, orders, th, n)
		require.NoError(t, err)
		assert.Equal(t, []byte(in), recovered, "orders=%v", orders)
	}
}

func TestRecover_NotEnoughPieces(t *testing.T) {
	kp := GenKeyPairWithSeed([]byte("miner-1"))
	in := kp.DeriveInValue(10)
	n, th := 5, Threshold(5)

	pieces, err := Split(in, n, th)
	require.NoError(t, err)

	_, err = Recover(pieces[:th-1], []int{1, 2}, th, n)
	assert.Error(t, err, "少于门限的分片不能还原")

	// 假装门限是t-1，得到的值与原值不同
	recovered, err := Recover(pieces[:th-1], []int{1, 2}, th-1, n)
	require.NoError(t, err)
	assert.NotEqual(t, []byte(in), recovered)
}

func TestSplit_RejectsNonCanonicalSecret(t *testing.T) {
	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = 0xff
	}
	_, err := Split(secret, 5, 3)
	assert.ErrorIs(t, err, ErrNonCanonicalSecret)

	_, err = Split(secret[:8], 5, 6)
	assert.ErrorIs(t, err, ErrInvalidShares)
}

func TestEncryptDecrypt(t *testing.T) {
	alice := GenKeyPair()
	bob := GenKeyPair()
	msg := []byte("share for bob")

	ct, err := Encrypt(bob.PubKeyHex(), msg)
	require.NoError(t, err)

	plain, err := bob.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, msg, plain)

	_, err = alice.Decrypt(ct)
	assert.Error(t, err, "别人的私钥不能解密")

	_, err = Encrypt("not-hex", msg)
	assert.Error(t, err)
}

func TestKeyPair_HexRoundTrip(t *testing.T) {
	kp := GenKeyPairWithSeed([]byte("seed"))
	assert.Equal(t, kp.PubKeyHex(), GenKeyPairWithSeed([]byte("seed")).PubKeyHex(), "相同的seed生成相同的密钥")

	loaded, err := KeyPairFromHex(kp.PrivKeyHex())
	require.NoError(t, err)
	assert.Equal(t, kp.PubKeyHex(), loaded.PubKeyHex())

	assert.Equal(t, kp.DeriveInValue(1), loaded.DeriveInValue(1))
	assert.NotEqual(t, kp.DeriveInValue(1), kp.DeriveInValue(2), "不同轮次的in value不同")
}

package secret

import (
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/encrypt/ecies"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/util/key"
)

// 所有矿工密钥、秘密分片都在同一个群上
var suite = edwards25519.NewBlakeSHA256Ed25519()

// KeyPair 矿工的密钥对，公钥的hex编码就是矿工的身份
type KeyPair struct {
	Private kyber.Scalar
	Public  kyber.Point
}

func GenKeyPair() *KeyPair {
	kp := key.NewKeyPair(suite)
	return &KeyPair{Private: kp.Private, Public: kp.Public}
}

// GenKeyPairWithSeed 相同的seed得到相同的密钥，便于测试和本地多矿工部署
func GenKeyPairWithSeed(seed []byte) *KeyPair {
	priv := suite.Scalar().Pick(suite.XOF(seed))
	return &KeyPair{Private: priv, Public: suite.Point().Mul(priv, nil)}
}

func KeyPairFromHex(privHex string) (*KeyPair, error) {
	bz, err := hex.DecodeString(privHex)
	if err != nil {
		return nil, errors.Wrap(err, "decode private key")
	}
	priv := suite.Scalar()
	if err := priv.UnmarshalBinary(bz); err != nil {
		return nil, errors.Wrap(err, "unmarshal private key")
	}
	return &KeyPair{Private: priv, Public: suite.Point().Mul(priv, nil)}, nil
}

func PublicKeyFromHex(pubHex string) (kyber.Point, error) {
	bz, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, errors.Wrap(err, "decode public key")
	}
	pub := suite.Point()
	if err := pub.UnmarshalBinary(bz); err != nil {
		return nil, errors.Wrapf(err, "unmarshal public key %s", pubHex)
	}
	return pub, nil
}

func (kp *KeyPair) PubKeyHex() string {
	bz, _ := kp.Public.MarshalBinary()
	return hex.EncodeToString(bz)
}

func (kp *KeyPair) PrivKeyHex() string {
	bz, _ := kp.Private.MarshalBinary()
	return hex.EncodeToString(bz)
}

// Decrypt 解密别的矿工发给自己的分片
func (kp *KeyPair) Decrypt(ciphertext []byte) ([]byte, error) {
	plain, err := ecies.Decrypt(suite, kp.Private, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "ecies decrypt")
	}
	return plain, nil
}

// DeriveInValue 由私钥和轮次派生出这一轮的in value
// in value是一个标量的规范编码，可以经过Shamir分片后精确还原
func (kp *KeyPair) DeriveInValue(roundNumber int64) tmbytes.HexBytes {
	privBz, _ := kp.Private.MarshalBinary()
	seed := append(privBz, []byte(fmt.Sprintf("/in-value/%d", roundNumber))...)
	bz, _ := suite.Scalar().Pick(suite.XOF(seed)).MarshalBinary()
	return bz
}

// Encrypt 用对方的公钥加密
func Encrypt(pubHex string, data []byte) ([]byte, error) {
	pub, err := PublicKeyFromHex(pubHex)
	if err != nil {
		return nil, err
	}
	ct, err := ecies.Encrypt(suite, pub, data, nil)
	if err != nil {
		return nil, errors.Wrap(err, "ecies encrypt")
	}
	return ct, nil
}

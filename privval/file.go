package privval

import (
	"fmt"
	"io/ioutil"

	"chaindpos/crypto/secret"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/libs/tempfile"
)

//-------------------------------------------------------------------------------

// FilePVKey 一个矿工的密钥，私钥和公钥都是hex编码
type FilePVKey struct {
	Name    string `json:"name"`
	PubKey  string `json:"pub_key"`
	PrivKey string `json:"priv_key"`
}

// KeyPair 还原出kyber密钥对，并检查公钥和私钥是否匹配
func (pvKey FilePVKey) KeyPair() (*secret.KeyPair, error) {
	kp, err := secret.KeyPairFromHex(pvKey.PrivKey)
	if err != nil {
		return nil, err
	}
	if pvKey.PubKey != "" && kp.PubKeyHex() != pvKey.PubKey {
		return nil, fmt.Errorf("pub_key of %s does not match its priv_key", pvKey.Name)
	}
	return kp, nil
}

//-------------------------------------------------------------------------------

// FilePV 保存在本地的矿工私钥
// 本地开发网络中一个节点可以同时运行多个矿工，所以一个文件里保存多个密钥
type FilePV struct {
	Keys []FilePVKey `json:"keys"`

	filePath string
}

func newFilePVKey(name string, kp *secret.KeyPair) FilePVKey {
	return FilePVKey{
		Name:    name,
		PubKey:  kp.PubKeyHex(),
		PrivKey: kp.PrivKeyHex(),
	}
}

// NewFilePV 由给定的密钥生成FilePV，不会保存
func NewFilePV(keyFilePath string, kps ...*secret.KeyPair) *FilePV {
	pv := &FilePV{filePath: keyFilePath}
	for i, kp := range kps {
		pv.Keys = append(pv.Keys, newFilePVKey(fmt.Sprintf("miner-%d", i+1), kp))
	}
	return pv
}

// GenFilePV 随机生成count个矿工密钥，不会保存
func GenFilePV(keyFilePath string, count int) *FilePV {
	kps := make([]*secret.KeyPair, count)
	for i := range kps {
		kps[i] = secret.GenKeyPair()
	}
	return NewFilePV(keyFilePath, kps...)
}

// GenFilePVWithSeed 相同的seed和编号得到相同的密钥
// 多个节点用同一个seed生成创世文件和各自的密钥
func GenFilePVWithSeed(keyFilePath, seed string, indexes ...int) *FilePV {
	pv := &FilePV{filePath: keyFilePath}
	for _, idx := range indexes {
		kp := secret.GenKeyPairWithSeed([]byte(fmt.Sprintf("%s/%d", seed, idx)))
		pv.Keys = append(pv.Keys, newFilePVKey(fmt.Sprintf("miner-%d", idx), kp))
	}
	return pv
}

// LoadFilePV 读取密钥文件
func LoadFilePV(keyFilePath string) (*FilePV, error) {
	keyJSONBytes, err := ioutil.ReadFile(keyFilePath)
	if err != nil {
		return nil, errors.Wrap(err, "read miner key file")
	}
	pv := &FilePV{}
	if err := tmjson.Unmarshal(keyJSONBytes, pv); err != nil {
		return nil, errors.Wrapf(err, "error reading miner keys from %v", keyFilePath)
	}
	if len(pv.Keys) == 0 {
		return nil, fmt.Errorf("no miner key in %v", keyFilePath)
	}
	// 以私钥为准重新计算公钥
	for i, key := range pv.Keys {
		kp, err := key.KeyPair()
		if err != nil {
			return nil, errors.Wrapf(err, "miner key %d in %v", i, keyFilePath)
		}
		pv.Keys[i].PubKey = kp.PubKeyHex()
	}
	pv.filePath = keyFilePath
	return pv, nil
}

// LoadOrGenFilePV 文件存在时读取，否则生成count个密钥并保存
func LoadOrGenFilePV(keyFilePath string, count int) (*FilePV, error) {
	if tmos.FileExists(keyFilePath) {
		return LoadFilePV(keyFilePath)
	}
	pv := GenFilePV(keyFilePath, count)
	if err := pv.Save(); err != nil {
		return nil, err
	}
	return pv, nil
}

// Save 原子写入文件
func (pv *FilePV) Save() error {
	if pv.filePath == "" {
		return errors.New("cannot save miner keys: filePath not set")
	}
	jsonBytes, err := tmjson.MarshalIndent(pv, "", "  ")
	if err != nil {
		return err
	}
	return tempfile.WriteFileAtomic(pv.filePath, jsonBytes, 0600)
}

func (pv *FilePV) PubKeys() []string {
	keys := make([]string, len(pv.Keys))
	for i, key := range pv.Keys {
		keys[i] = key.PubKey
	}
	return keys
}

func (pv *FilePV) KeyPairs() ([]*secret.KeyPair, error) {
	kps := make([]*secret.KeyPair, len(pv.Keys))
	for i, key := range pv.Keys {
		kp, err := key.KeyPair()
		if err != nil {
			return nil, err
		}
		kps[i] = kp
	}
	return kps, nil
}

func (pv *FilePV) String() string {
	return fmt.Sprintf("FilePV{%d keys @ %v}", len(pv.Keys), pv.filePath)
}

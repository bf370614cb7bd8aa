package privval

import (
	"fmt"
	"io/ioutil"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/ed25519"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/libs/tempfile"

	"hotbft/crypto/bls"
	"hotbft/types"
)

// 支持的私钥类型
const (
	KeyTypeEd25519 = "ed25519"
	KeyTypeBLS     = "bls"
)

//-------------------------------------------------------------------------------

// FilePVKey stores the immutable part of PrivValidator.
type FilePVKey struct {
	Address types.Address  `json:"address"`
	PubKey  crypto.PubKey  `json:"pub_key"`
	PrivKey crypto.PrivKey `json:"priv_key"`

	filePath string
}

// Save 原子地写入filePath，文件权限0600
func (pvKey FilePVKey) Save() error {
	if pvKey.filePath == "" {
		return errors.New("cannot save PrivValidator key: filePath not set")
	}

	jsonBytes, err := tmjson.MarshalIndent(pvKey, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal priv validator key")
	}
	return errors.Wrapf(tempfile.WriteFileAtomic(pvKey.filePath, jsonBytes, 0600),
		"write priv validator key to %s", pvKey.filePath)
}

//-------------------------------------------------------------------------------

// FilePV implements PrivValidator using a key persisted to disk.
// 防止重复投票的状态由SafetyRules持久化，这里只保存私钥
type FilePV struct {
	Key FilePVKey
}

var _ types.PrivValidator = (*FilePV)(nil)

// NewFilePV generates a new validator from the given key and paths.
func NewFilePV(privKey crypto.PrivKey, keyFilePath string) *FilePV {
	return &FilePV{
		Key: FilePVKey{
			Address:  privKey.PubKey().Address(),
			PubKey:   privKey.PubKey(),
			PrivKey:  privKey,
			filePath: keyFilePath,
		},
	}
}

// GenPrivKey 按类型生成私钥，seed为空时使用随机源
func GenPrivKey(keyType string, seed []byte) (crypto.PrivKey, error) {
	switch keyType {
	case KeyTypeEd25519, "":
		if len(seed) == 0 {
			return ed25519.GenPrivKey(), nil
		}
		return ed25519.GenPrivKeyFromSecret(seed), nil
	case KeyTypeBLS:
		if len(seed) == 0 {
			return bls.GenPrivKey(), nil
		}
		return bls.GenPrivKeyWithSeed(seed), nil
	default:
		return nil, fmt.Errorf("unknown key type %q", keyType)
	}
}

// GenFilePV generates a new validator with randomly generated private key
// and sets the filePaths, but does not call Save().
func GenFilePV(keyFilePath, keyType string) (*FilePV, error) {
	privKey, err := GenPrivKey(keyType, nil)
	if err != nil {
		return nil, err
	}
	return NewFilePV(privKey, keyFilePath), nil
}

// GenFilePVWithSeed 本地集群中第idx个节点的确定性私钥
func GenFilePVWithSeed(keyFilePath, keyType string, seed int64, idx int) (*FilePV, error) {
	privKey, err := GenPrivKey(keyType, []byte(fmt.Sprintf("hotbft-%d-%d", seed, idx)))
	if err != nil {
		return nil, err
	}
	return NewFilePV(privKey, keyFilePath), nil
}

// LoadFilePV loads a FilePV from the filePaths.
func LoadFilePV(keyFilePath string) (*FilePV, error) {
	keyJSONBytes, err := ioutil.ReadFile(keyFilePath)
	if err != nil {
		return nil, errors.Wrap(err, "read priv validator key")
	}
	pvKey := FilePVKey{}
	err = tmjson.Unmarshal(keyJSONBytes, &pvKey)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading PrivValidator key from %v", keyFilePath)
	}
	if pvKey.PrivKey == nil {
		return nil, fmt.Errorf("no private key in %v", keyFilePath)
	}

	// overwrite pubkey and address for convenience
	pvKey.PubKey = pvKey.PrivKey.PubKey()
	pvKey.Address = pvKey.PubKey.Address()
	pvKey.filePath = keyFilePath

	return &FilePV{
		Key: pvKey,
	}, nil
}

// LoadOrGenFilePV loads a FilePV from the given filePath
// or else generates a new one and saves it to the filePath.
func LoadOrGenFilePV(keyFilePath, keyType string) (*FilePV, error) {
	if tmos.FileExists(keyFilePath) {
		return LoadFilePV(keyFilePath)
	}
	pv, err := GenFilePV(keyFilePath, keyType)
	if err != nil {
		return nil, err
	}
	if err := pv.Save(); err != nil {
		return nil, err
	}
	return pv, nil
}

// GetAddress returns the address of the validator.
// Implements PrivValidator.
func (pv *FilePV) GetAddress() types.Address {
	return pv.Key.Address
}

// GetPubKey returns the public key of the validator.
// Implements PrivValidator.
func (pv *FilePV) GetPubKey() (crypto.PubKey, error) {
	return pv.Key.PubKey, nil
}

// Sign 对共识消息的digest签名
// Implements PrivValidator.
func (pv *FilePV) Sign(digest []byte) ([]byte, error) {
	sig, err := pv.Key.PrivKey.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("error signing digest: %v", err)
	}
	return sig, nil
}

func (pv *FilePV) Save() error {
	return pv.Key.Save()
}

// String returns a string representation of the FilePV.
func (pv *FilePV) String() string {
	return fmt.Sprintf(
		"PrivValidator{%v}",
		pv.GetAddress(),
	)
}

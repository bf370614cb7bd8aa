// Package bls 基于kyber bn256曲线的BLS签名，实现tendermint的crypto接口
// 公钥在G2上，签名在G1上
package bls

import (
	"bytes"
	"crypto/subtle"
	"fmt"

	"github.com/tendermint/tendermint/crypto"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/sign/bls"
	"go.dedis.ch/kyber/v3/util/random"
)

const (
	PrivKeyName = "hotbft/PrivKeyBLS"
	PubKeyName  = "hotbft/PubKeyBLS"

	KeyType = "bls"

	PrivKeySize   = 32
	PubKeySize    = 128
	SignatureSize = 64
)

var suite = bn256.NewSuite()

func init() {
	tmjson.RegisterType(PubKey{}, PubKeyName)
	tmjson.RegisterType(PrivKey{}, PrivKeyName)
}

var _ crypto.PrivKey = PrivKey{}

// PrivKey 序列化后的标量
type PrivKey []byte

// GenPrivKey 使用系统随机源生成私钥
func GenPrivKey() PrivKey {
	x, _ := bls.NewKeyPair(suite, random.New())
	return scalarToPrivKey(x)
}

// GenPrivKeyWithSeed 相同的seed总是生成相同的私钥，用于本地集群和测试
func GenPrivKeyWithSeed(seed []byte) PrivKey {
	x, _ := bls.NewKeyPair(suite, suite.XOF(seed))
	return scalarToPrivKey(x)
}

func scalarToPrivKey(x kyber.Scalar) PrivKey {
	bz, err := x.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return PrivKey(bz)
}

func (privKey PrivKey) scalar() (kyber.Scalar, error) {
	x := suite.G2().Scalar()
	if err := x.UnmarshalBinary(privKey); err != nil {
		return nil, err
	}
	return x, nil
}

func (privKey PrivKey) Bytes() []byte {
	return []byte(privKey)
}

// Sign 对msg做hash-to-G1后签名
func (privKey PrivKey) Sign(msg []byte) ([]byte, error) {
	x, err := privKey.scalar()
	if err != nil {
		return nil, fmt.Errorf("invalid bls private key: %w", err)
	}
	return bls.Sign(suite, x, msg)
}

func (privKey PrivKey) PubKey() crypto.PubKey {
	x, err := privKey.scalar()
	if err != nil {
		panic(err)
	}
	X := suite.G2().Point().Mul(x, nil)
	bz, err := X.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return PubKey(bz)
}

func (privKey PrivKey) Equals(other crypto.PrivKey) bool {
	if otherBLS, ok := other.(PrivKey); ok {
		return subtle.ConstantTimeCompare(privKey[:], otherBLS[:]) == 1
	}
	return false
}

func (privKey PrivKey) Type() string {
	return KeyType
}

//-------------------------------------

var _ crypto.PubKey = PubKey{}

// PubKey G2上的点
type PubKey []byte

func (pubKey PubKey) Address() crypto.Address {
	return crypto.AddressHash(pubKey)
}

func (pubKey PubKey) Bytes() []byte {
	return []byte(pubKey)
}

func (pubKey PubKey) VerifySignature(msg []byte, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	X := suite.G2().Point()
	if err := X.UnmarshalBinary(pubKey); err != nil {
		return false
	}
	return bls.Verify(suite, X, msg, sig) == nil
}

func (pubKey PubKey) String() string {
	return fmt.Sprintf("PubKeyBLS{%X}", []byte(pubKey))
}

func (pubKey PubKey) Type() string {
	return KeyType
}

func (pubKey PubKey) Equals(other crypto.PubKey) bool {
	if otherBLS, ok := other.(PubKey); ok {
		return bytes.Equal(pubKey[:], otherBLS[:])
	}
	return false
}

package types

import (
	"bytes"
	"fmt"

	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/ed25519"
)

// PrivValidator 持有私钥的本地签名者
// 共识只签名digest，digest的构造由消息自身决定
type PrivValidator interface {
	GetPubKey() (crypto.PubKey, error)
	GetAddress() Address
	Sign(digest []byte) ([]byte, error)
}

type PrivValidatorsByAddress []PrivValidator

func (pvs PrivValidatorsByAddress) Len() int {
	return len(pvs)
}

func (pvs PrivValidatorsByAddress) Less(i, j int) bool {
	return bytes.Compare(pvs[i].GetAddress(), pvs[j].GetAddress()) == -1
}

func (pvs PrivValidatorsByAddress) Swap(i, j int) {
	pvs[i], pvs[j] = pvs[j], pvs[i]
}

//----------------------------------------
// MockPV

// MockPV implements PrivValidator without any safety or persistence.
// Only use it for testing.
type MockPV struct {
	PrivKey crypto.PrivKey
}

func NewMockPV() MockPV {
	return MockPV{ed25519.GenPrivKey()}
}

// NewMockPVWithKey 使用给定私钥，privval测试和bls验证者使用
func NewMockPVWithKey(privKey crypto.PrivKey) MockPV {
	return MockPV{privKey}
}

// Implements PrivValidator.
func (pv MockPV) GetPubKey() (crypto.PubKey, error) {
	return pv.PrivKey.PubKey(), nil
}

func (pv MockPV) GetAddress() Address {
	return pv.PrivKey.PubKey().Address()
}

// Implements PrivValidator.
func (pv MockPV) Sign(digest []byte) ([]byte, error) {
	return pv.PrivKey.Sign(digest)
}

// String returns a string representation of the MockPV.
func (pv MockPV) String() string {
	return fmt.Sprintf("MockPV{%v}", pv.GetAddress())
}

// ErroringMockPV 签名总是失败
type ErroringMockPV struct {
	MockPV
}

var ErroringMockPVErr = fmt.Errorf("erroringMockPV always returns an error")

// Implements PrivValidator.
func (pv *ErroringMockPV) Sign(digest []byte) ([]byte, error) {
	return nil, ErroringMockPVErr
}

// NewErroringMockPV returns a MockPV that fails on each signing request. Again, for testing only.
func NewErroringMockPV() *ErroringMockPV {
	return &ErroringMockPV{MockPV{ed25519.GenPrivKey()}}
}

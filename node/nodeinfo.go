package node

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/tendermint/tendermint/crypto"

	"hotbft/types"
)

const nodeVersion = "1.0"

func NewNodeInfo(pv types.PrivValidator, chainID, moniker string) (NodeInfo, error) {
	pubKey, err := pv.GetPubKey()
	if err != nil {
		return NodeInfo{}, err
	}
	info := NodeInfo{
		Address: pv.GetAddress(),
		PubKey:  pubKey,
		ChainID: chainID,
		Moniker: moniker,
		Version: nodeVersion,
	}
	return info, info.Validate()
}

// NodeInfo 节点的身份，地址就是验证者地址
type NodeInfo struct {
	Address types.Address `json:"address"`
	PubKey  crypto.PubKey `json:"pub_key"`
	ChainID string        `json:"chain_id"`
	Moniker string        `json:"moniker"`

	Version string `json:"version"`
}

func (info NodeInfo) Validate() error {
	if len(info.Address) == 0 {
		return errors.New("node address is empty")
	}
	if info.PubKey != nil && !bytes.Equal(info.PubKey.Address(), info.Address) {
		return fmt.Errorf("node address %v does not match pub key %v", info.Address, info.PubKey.Address())
	}
	if len(info.Version) > 0 && (strings.Trim(info.Version, "\t ") == "") {
		return fmt.Errorf("info.Version must be valid ASCII text without tabs, but got %v", info.Version)
	}
	return nil
}

// CompatibleWith 同一条链并且版本一致
func (info NodeInfo) CompatibleWith(other NodeInfo) error {
	if other.ChainID != info.ChainID {
		return fmt.Errorf("wrong chain id. Expected %v, but got %v", info.ChainID, other.ChainID)
	}
	if other.Version != info.Version {
		return fmt.Errorf("wrong NodeInfo Version. Expected %v, but got %v", info.Version, other.Version)
	}
	return nil
}

func (info NodeInfo) String() string {
	return fmt.Sprintf("NodeInfo{%v %v}", info.Moniker, info.Address)
}

package types

import (
	"bytes"

	"github.com/tendermint/tendermint/crypto"
)

type Address = crypto.Address

func GetAddress(key crypto.PubKey) Address {
	return key.Address()
}

// AddressEqual 比较两个地址，任意一个为空都返回false
func AddressEqual(addr, other Address) bool {
	if len(addr) == 0 || len(other) == 0 {
		return false
	}
	return bytes.Equal(addr, other)
}

package types

import (
	"bytes"
	"sort"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// ValidationState 针对同一个payload累积验证者签名
// 不检查签名内容本身，签名的密码学正确性由调用者负责
//
// NOTE: Not goroutine-safe.
type ValidationState struct {
	vals *ValidatorSet

	signatures       map[string]tmbytes.HexBytes
	accumulatedPower int64
}

// NewValidationState 返回一个绑定到vals的空累加器
func (vals *ValidatorSet) NewValidationState() *ValidationState {
	return &ValidationState{
		vals:       vals,
		signatures: make(map[string]tmbytes.HexBytes),
	}
}

// AddSignature 作者不是验证者或者已经签过名返回false
func (vs *ValidationState) AddSignature(author Address, sig []byte) bool {
	_, val := vs.vals.GetByAddress(author)
	if val == nil {
		return false
	}
	key := string(author)
	if _, ok := vs.signatures[key]; ok {
		return false
	}
	vs.signatures[key] = sig
	vs.accumulatedPower += val.VotingPower
	return true
}

// RemoveSignature 删除某个作者的签名，用于清理过期的view
func (vs *ValidationState) RemoveSignature(author Address) bool {
	key := string(author)
	if _, ok := vs.signatures[key]; !ok {
		return false
	}
	delete(vs.signatures, key)
	if _, val := vs.vals.GetByAddress(author); val != nil {
		vs.accumulatedPower -= val.VotingPower
	}
	return true
}

// Complete 累积的权重达到了quorum
func (vs *ValidationState) Complete() bool {
	return vs.accumulatedPower >= vs.vals.QuorumThreshold()
}

func (vs *ValidationState) IsEmpty() bool {
	return len(vs.signatures) == 0
}

func (vs *ValidationState) AccumulatedPower() int64 {
	return vs.accumulatedPower
}

// Signatures 按地址排序返回
func (vs *ValidationState) Signatures() []CommitSig {
	sigs := make([]CommitSig, 0, len(vs.signatures))
	for addr, sig := range vs.signatures {
		sigs = append(sigs, CommitSig{
			ValidatorAddress: Address(addr),
			Signature:        sig,
		})
	}
	sort.Slice(sigs, func(i, j int) bool {
		return bytes.Compare(sigs[i].ValidatorAddress, sigs[j].ValidatorAddress) < 0
	})
	return sigs
}

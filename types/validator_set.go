// fork from github.com/tendermint/tendermint/types/validator_set.go
package types

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/tendermint/tendermint/crypto/merkle"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// ValidatorSet 某个epoch内固定的验证者集合
//
// 验证者按照地址升序排列，index在整个epoch内不变，
// proposer按照 view mod n 轮流选出。
//
// NOTE: Not goroutine-safe.
// NOTE: All get/set to validators should copy the value for safety.
type ValidatorSet struct {
	// NOTE: persisted via reflect, must be exported.
	Validators []*Validator `json:"validators"`

	totalVotingPower int64
}

// NewValidatorSet 拷贝valz构造集合，权重为0的验证者被丢弃，重复地址只保留第一个
func NewValidatorSet(valz []*Validator) *ValidatorSet {
	vals := &ValidatorSet{}
	vals.Validators = make([]*Validator, 0, len(valz))

	seen := make(map[string]struct{}, len(valz))
	for _, val := range valz {
		if val == nil || val.VotingPower <= 0 {
			continue
		}
		if _, ok := seen[string(val.Address)]; ok {
			continue
		}
		seen[string(val.Address)] = struct{}{}
		vals.Validators = append(vals.Validators, val.Copy())
	}
	sort.Sort(ValidatorsByAddress(vals.Validators))
	vals.updateTotalVotingPower()

	return vals
}

func (vals *ValidatorSet) ValidateBasic() error {
	if vals.IsNilOrEmpty() {
		return errors.New("validator set is nil or empty")
	}

	for idx, val := range vals.Validators {
		if err := val.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid validator #%d: %w", idx, err)
		}
	}

	return nil
}

// IsNilOrEmpty returns true if validator set is nil or empty.
func (vals *ValidatorSet) IsNilOrEmpty() bool {
	return vals == nil || len(vals.Validators) == 0
}

// Makes a copy of the validator list.
func validatorListCopy(valsList []*Validator) []*Validator {
	if valsList == nil {
		return nil
	}
	valsCopy := make([]*Validator, len(valsList))
	for i, val := range valsList {
		valsCopy[i] = val.Copy()
	}
	return valsCopy
}

// Copy each validator into a new ValidatorSet.
func (vals *ValidatorSet) Copy() *ValidatorSet {
	return &ValidatorSet{
		Validators:       validatorListCopy(vals.Validators),
		totalVotingPower: vals.totalVotingPower,
	}
}

func (vals *ValidatorSet) updateTotalVotingPower() {
	var sum int64
	for _, val := range vals.Validators {
		sum += val.VotingPower
	}
	vals.totalVotingPower = sum
}

// TotalVotingPower returns the sum of the voting powers of all validators.
func (vals *ValidatorSet) TotalVotingPower() int64 {
	if vals.totalVotingPower == 0 && len(vals.Validators) > 0 {
		// 从json反序列化得到的集合没有缓存
		vals.updateTotalVotingPower()
	}
	return vals.totalVotingPower
}

// QuorumThreshold 形成QC需要的最小权重，total - floor((total-1)/3)
// total = 3f+1 时等于 2f+1
func (vals *ValidatorSet) QuorumThreshold() int64 {
	total := vals.TotalVotingPower()
	if total == 0 {
		return 0
	}
	return total - (total-1)/3
}

// HasAddress returns true if address given is in the validator set, false -
// otherwise.
func (vals *ValidatorSet) HasAddress(address []byte) bool {
	idx, _ := vals.GetByAddress(address)
	return idx >= 0
}

// GetByAddress returns an index of the validator with address and validator
// itself (copy) if found. Otherwise, -1 and nil are returned.
func (vals *ValidatorSet) GetByAddress(address []byte) (index int32, val *Validator) {
	idx := sort.Search(len(vals.Validators), func(i int) bool {
		return bytes.Compare(address, vals.Validators[i].Address) <= 0
	})
	if idx < len(vals.Validators) && bytes.Equal(vals.Validators[idx].Address, address) {
		return int32(idx), vals.Validators[idx].Copy()
	}
	return -1, nil
}

// Size returns the length of the validator set.
func (vals *ValidatorSet) Size() int {
	return len(vals.Validators)
}

// GetProposer 返回view对应的proposer，空集合返回nil
func (vals *ValidatorSet) GetProposer(view View) (proposer *Validator) {
	if len(vals.Validators) == 0 {
		return nil
	}
	idx := view.Mod(len(vals.Validators))

	return vals.Validators[idx].Copy()
}

// Hash returns the Merkle root hash build using validators (as leaves) in the
// set.
func (vals *ValidatorSet) Hash() []byte {
	bzs := make([][]byte, len(vals.Validators))
	for i, val := range vals.Validators {
		bzs[i] = val.Bytes()
	}
	return merkle.HashFromByteSlices(bzs)
}

// Equal 两个集合的成员和权重完全一致
func (vals *ValidatorSet) Equal(other *ValidatorSet) bool {
	if vals == nil || other == nil {
		return vals == other
	}
	return bytes.Equal(vals.Hash(), other.Hash())
}

// Iterate will run the given function over the set.
func (vals *ValidatorSet) Iterate(fn func(index int, val *Validator) bool) {
	for i, val := range vals.Validators {
		stop := fn(i, val.Copy())
		if stop {
			break
		}
	}
}

//-----------------

// IsErrNotEnoughVotingPowerSigned returns true if err is
// ErrNotEnoughVotingPowerSigned.
func IsErrNotEnoughVotingPowerSigned(err error) bool {
	return errors.As(err, &ErrNotEnoughVotingPowerSigned{})
}

// ErrNotEnoughVotingPowerSigned is returned when not enough validators signed
// a quorum certificate.
type ErrNotEnoughVotingPowerSigned struct {
	Got    int64
	Needed int64
}

func (e ErrNotEnoughVotingPowerSigned) Error() string {
	return fmt.Sprintf("invalid quorum certificate -- insufficient voting power: got %d, needed %d", e.Got, e.Needed)
}

//----------------

// String 日志中使用，只打印规模和hash
func (vals *ValidatorSet) String() string {
	if vals == nil {
		return "nil-ValidatorSet"
	}
	return fmt.Sprintf("ValidatorSet{n=%d power=%d hash=%X}", vals.Size(), vals.TotalVotingPower(), tmbytes.Fingerprint(vals.Hash()))
}

//-------------------------------------

// ValidatorsByAddress implements sort.Interface for []*Validator sorted by address.
type ValidatorsByAddress []*Validator

func (valz ValidatorsByAddress) Len() int { return len(valz) }

func (valz ValidatorsByAddress) Less(i, j int) bool {
	return bytes.Compare(valz[i].Address, valz[j].Address) == -1
}

func (valz ValidatorsByAddress) Swap(i, j int) {
	valz[i], valz[j] = valz[j], valz[i]
}

//----------------------------------------

// RandValidatorSet returns a randomized validator set (size: +numValidators+),
// where each validator has a voting power of +votingPower+.
//
// EXPOSED FOR TESTING.
func RandValidatorSet(numValidators int, votingPower int64) (*ValidatorSet, []PrivValidator) {
	var (
		valz           = make([]*Validator, numValidators)
		privValidators = make([]PrivValidator, numValidators)
	)

	for i := 0; i < numValidators; i++ {
		val, privValidator := RandValidator(votingPower)
		valz[i] = val
		privValidators[i] = privValidator
	}

	sort.Sort(PrivValidatorsByAddress(privValidators))

	return NewValidatorSet(valz), privValidators
}

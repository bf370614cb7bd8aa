package types

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/tendermint/tendermint/crypto/merkle"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

var (
	ErrEmptyQuorumCertificate = errors.New("quorum certificate has no signatures")
	ErrDuplicateSigner        = errors.New("quorum certificate contains duplicate signer")
)

// CommitSig 单个验证者对VoteData的签名
type CommitSig struct {
	ValidatorAddress Address          `json:"validator_address"`
	Signature        tmbytes.HexBytes `json:"signature"`
}

// QuorumCertificate 明确的表示quorum权重的验证者对同一个VoteData投了票
type QuorumCertificate struct {
	VoteData   VoteData    `json:"vote_data"`
	Signatures []CommitSig `json:"signatures"`
}

// NewQuorumCertificate 签名按照地址排序，保证同一组签名的QC hash一致
func NewQuorumCertificate(voteData VoteData, sigs []CommitSig) *QuorumCertificate {
	sorted := make([]CommitSig, len(sigs))
	copy(sorted, sigs)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].ValidatorAddress, sorted[j].ValidatorAddress) < 0
	})
	return &QuorumCertificate{
		VoteData:   voteData,
		Signatures: sorted,
	}
}

// NewGenesisQC genesis vertex的QC，proposed、parent、committed都指向genesis本身，不带签名
func NewGenesisQC(genesis VertexMetadata) *QuorumCertificate {
	committed := genesis
	return &QuorumCertificate{
		VoteData:   NewVoteData(genesis, genesis, &committed),
		Signatures: []CommitSig{},
	}
}

func (qc *QuorumCertificate) View() View {
	return qc.VoteData.Proposed.View
}

func (qc *QuorumCertificate) Epoch() int64 {
	return qc.VoteData.Proposed.Epoch
}

func (qc *QuorumCertificate) Proposed() VertexMetadata {
	return qc.VoteData.Proposed
}

func (qc *QuorumCertificate) Parent() VertexMetadata {
	return qc.VoteData.Parent
}

// Committed 如果这个QC构成了3-chain，返回被提交的vertex
func (qc *QuorumCertificate) Committed() *VertexMetadata {
	return qc.VoteData.Committed
}

// IsGenesis 只检查结构: 没有签名，proposed、parent、committed都是同一个epoch的genesis vertex
// 是否是本epoch真正的genesis QC(state version一致)要和本地保存的比较
func (qc *QuorumCertificate) IsGenesis() bool {
	if len(qc.Signatures) != 0 || !qc.View().IsGenesis() {
		return false
	}
	proposed := qc.Proposed()
	committed := qc.Committed()
	return committed != nil &&
		committed.Equal(proposed) &&
		qc.Parent().Equal(proposed) &&
		!proposed.IsEndOfEpoch &&
		bytes.Equal(proposed.VertexID, NewGenesisVertex(proposed.Epoch).ID())
}

// Hash 参与vertex id的计算
func (qc *QuorumCertificate) Hash() []byte {
	if qc == nil {
		return nil
	}
	bzs := make([][]byte, 0, len(qc.Signatures)+1)
	bzs = append(bzs, qc.VoteData.Hash())
	for _, sig := range qc.Signatures {
		bzs = append(bzs, append(append([]byte{}, sig.ValidatorAddress...), sig.Signature...))
	}
	return merkle.HashFromByteSlices(bzs)
}

// Verify 验证QC中的每个签名，并且签名者的权重之和达到quorum
// genesis QC没有签名，由调用者单独判断
func (qc *QuorumCertificate) Verify(vals *ValidatorSet) error {
	if len(qc.Signatures) == 0 {
		return ErrEmptyQuorumCertificate
	}

	digest := qc.VoteData.Hash()
	seen := make(map[string]struct{}, len(qc.Signatures))
	var power int64
	for _, sig := range qc.Signatures {
		key := string(sig.ValidatorAddress)
		if _, ok := seen[key]; ok {
			return ErrDuplicateSigner
		}
		seen[key] = struct{}{}

		_, val := vals.GetByAddress(sig.ValidatorAddress)
		if val == nil {
			return fmt.Errorf("signer %v is not a validator", sig.ValidatorAddress)
		}
		if !val.PubKey.VerifySignature(digest, sig.Signature) {
			return fmt.Errorf("invalid signature from %v", sig.ValidatorAddress)
		}
		power += val.VotingPower
	}

	if needed := vals.QuorumThreshold(); power < needed {
		return ErrNotEnoughVotingPowerSigned{Got: power, Needed: needed}
	}
	return nil
}

func (qc *QuorumCertificate) String() string {
	if qc == nil {
		return "nil-QC"
	}
	return fmt.Sprintf("QC{view=%d proposed=%v sigs=%d}", qc.View(), qc.VoteData.Proposed.VertexID, len(qc.Signatures))
}

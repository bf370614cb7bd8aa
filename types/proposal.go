package types

import (
	"errors"
	"fmt"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

var (
	ErrProposalNonValidator     = errors.New("proposal author is not a validator")
	ErrProposalInvalidSignature = errors.New("invalid proposal signature")
	ErrProposalNoVertex         = errors.New("proposal has no vertex")
)

// Proposal leader在某个view提出的vertex
// 附带最新的committed QC，方便落后的节点追上提交进度
type Proposal struct {
	Vertex             *Vertex            `json:"vertex"`
	HighestCommittedQC *QuorumCertificate `json:"highest_committed_qc"`
	Author             Address            `json:"author"`
	Signature          tmbytes.HexBytes   `json:"signature"`
}

func NewProposal(vertex *Vertex, highestCommittedQC *QuorumCertificate, author Address, sig []byte) *Proposal {
	return &Proposal{
		Vertex:             vertex,
		HighestCommittedQC: highestCommittedQC,
		Author:             author,
		Signature:          sig,
	}
}

func (p *Proposal) GetEpoch() int64 {
	return p.Vertex.Epoch
}

func (p *Proposal) View() View {
	return p.Vertex.View
}

// SignBytes proposal签名的内容是vertex id
func (p *Proposal) SignBytes() []byte {
	return p.Vertex.ID()
}

// Verify 检查vertex基本合法性、作者身份和签名
func (p *Proposal) Verify(vals *ValidatorSet) error {
	if p.Vertex == nil {
		return ErrProposalNoVertex
	}
	if err := p.Vertex.ValidateBasic(); err != nil {
		return err
	}
	_, val := vals.GetByAddress(p.Author)
	if val == nil {
		return ErrProposalNonValidator
	}
	if !val.PubKey.VerifySignature(p.SignBytes(), p.Signature) {
		return ErrProposalInvalidSignature
	}
	return nil
}

func (p *Proposal) String() string {
	if p == nil {
		return "nil-Proposal"
	}
	return fmt.Sprintf("Proposal{author=%v %v}", p.Author, p.Vertex)
}

package types

import (
	"fmt"

	"github.com/tendermint/tendermint/crypto/merkle"
)

// VoteData 每张投票和QC签名的内容
// proposed extends parent，可选地提交committed
type VoteData struct {
	Proposed  VertexMetadata  `json:"proposed"`
	Parent    VertexMetadata  `json:"parent"`
	Committed *VertexMetadata `json:"committed"`
}

func NewVoteData(proposed, parent VertexMetadata, committed *VertexMetadata) VoteData {
	return VoteData{
		Proposed:  proposed,
		Parent:    parent,
		Committed: committed,
	}
}

func (vd VoteData) View() View {
	return vd.Proposed.View
}

func (vd VoteData) Epoch() int64 {
	return vd.Proposed.Epoch
}

// Hash 投票真正签名的digest
func (vd VoteData) Hash() []byte {
	var committed []byte
	if vd.Committed != nil {
		committed = vd.Committed.Bytes()
	}
	return merkle.HashFromByteSlices([][]byte{
		vd.Proposed.Bytes(),
		vd.Parent.Bytes(),
		committed,
	})
}

func (vd VoteData) Equal(other VoteData) bool {
	if !vd.Proposed.Equal(other.Proposed) || !vd.Parent.Equal(other.Parent) {
		return false
	}
	if vd.Committed == nil || other.Committed == nil {
		return vd.Committed == nil && other.Committed == nil
	}
	return vd.Committed.Equal(*other.Committed)
}

func (vd VoteData) String() string {
	return fmt.Sprintf("VoteData{proposed=%v parent=%v committed=%v}", vd.Proposed, vd.Parent, vd.Committed)
}

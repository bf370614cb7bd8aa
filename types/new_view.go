package types

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto/merkle"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

var (
	ErrNewViewNonValidator     = errors.New("new-view author is not a validator")
	ErrNewViewInvalidSignature = errors.New("invalid new-view signature")
)

// NewView 超时之后发送给下一个leader的换view消息
// 携带发送者的highQC，新leader以此同步DAG
type NewView struct {
	Epoch              int64              `json:"epoch"`
	View               View               `json:"view"`
	HighQC             *QuorumCertificate `json:"high_qc"`
	HighestCommittedQC *QuorumCertificate `json:"highest_committed_qc"`
	Author             Address            `json:"author"`
	Signature          tmbytes.HexBytes   `json:"signature"`
}

func NewNewView(epoch int64, view View, highQC, highestCommittedQC *QuorumCertificate, author Address, sig []byte) *NewView {
	return &NewView{
		Epoch:              epoch,
		View:               view,
		HighQC:             highQC,
		HighestCommittedQC: highestCommittedQC,
		Author:             author,
		Signature:          sig,
	}
}

// NewViewSignBytes 签名只覆盖 epoch + view，同一view的new-view可以相互聚合
func NewViewSignBytes(epoch int64, view View) []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, uint64(epoch))
	return merkle.HashFromByteSlices([][]byte{bz, view.Hash()})
}

func (nv *NewView) GetEpoch() int64 {
	return nv.Epoch
}

func (nv *NewView) SignBytes() []byte {
	return NewViewSignBytes(nv.Epoch, nv.View)
}

func (nv *NewView) Verify(vals *ValidatorSet) error {
	_, val := vals.GetByAddress(nv.Author)
	if val == nil {
		return ErrNewViewNonValidator
	}
	if !val.PubKey.VerifySignature(nv.SignBytes(), nv.Signature) {
		return ErrNewViewInvalidSignature
	}
	return nil
}

func (nv *NewView) String() string {
	if nv == nil {
		return "nil-NewView"
	}
	return fmt.Sprintf("NewView{author=%v epoch=%d view=%d highQC=%v}", nv.Author, nv.Epoch, nv.View, nv.HighQC)
}

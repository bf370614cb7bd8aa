package types

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tendermint/tendermint/crypto/merkle"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// VertexMetadata 对某个vertex在账本特定位置的承诺
type VertexMetadata struct {
	Epoch        int64            `json:"epoch"`
	View         View             `json:"view"`
	VertexID     tmbytes.HexBytes `json:"vertex_id"`
	StateVersion int64            `json:"state_version"`
	IsEndOfEpoch bool             `json:"is_end_of_epoch"`
}

func NewVertexMetadata(epoch int64, view View, vertexID []byte, stateVersion int64, isEndOfEpoch bool) VertexMetadata {
	return VertexMetadata{
		Epoch:        epoch,
		View:         view,
		VertexID:     vertexID,
		StateVersion: stateVersion,
		IsEndOfEpoch: isEndOfEpoch,
	}
}

func (m VertexMetadata) Equal(other VertexMetadata) bool {
	return m.Epoch == other.Epoch &&
		m.View == other.View &&
		bytes.Equal(m.VertexID, other.VertexID) &&
		m.StateVersion == other.StateVersion &&
		m.IsEndOfEpoch == other.IsEndOfEpoch
}

// Bytes 规范编码，参与VoteData的hash
func (m VertexMetadata) Bytes() []byte {
	int64Bytes := func(i int64) []byte {
		bz := make([]byte, 8)
		binary.BigEndian.PutUint64(bz, uint64(i))
		return bz
	}
	endOfEpoch := []byte{0}
	if m.IsEndOfEpoch {
		endOfEpoch[0] = 1
	}
	return merkle.HashFromByteSlices([][]byte{
		int64Bytes(m.Epoch),
		m.View.Hash(),
		m.VertexID,
		int64Bytes(m.StateVersion),
		endOfEpoch,
	})
}

func (m VertexMetadata) String() string {
	return fmt.Sprintf("Meta{epoch=%d view=%d id=%v version=%d eoe=%v}",
		m.Epoch, m.View, m.VertexID, m.StateVersion, m.IsEndOfEpoch)
}

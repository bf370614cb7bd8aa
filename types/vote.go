package types

import (
	"errors"
	"fmt"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

var (
	ErrVoteNonValidator     = errors.New("vote author is not a validator")
	ErrVoteInvalidSignature = errors.New("invalid vote signature")
	ErrVoteEmptySignature   = errors.New("vote has no signature")
)

// Vote - 单个验证者对VoteData的投票，一个验证者在一个view只能投一次
type Vote struct {
	Author    Address          `json:"author"`
	VoteData  VoteData         `json:"vote_data"`
	Signature tmbytes.HexBytes `json:"signature"`
}

func NewVote(author Address, voteData VoteData, sig []byte) *Vote {
	return &Vote{
		Author:    author,
		VoteData:  voteData,
		Signature: sig,
	}
}

func (vote *Vote) GetEpoch() int64 {
	return vote.VoteData.Epoch()
}

func (vote *Vote) View() View {
	return vote.VoteData.View()
}

// Verify 作者在验证者集合中并且签名正确
func (vote *Vote) Verify(vals *ValidatorSet) error {
	if len(vote.Signature) == 0 {
		return ErrVoteEmptySignature
	}
	_, val := vals.GetByAddress(vote.Author)
	if val == nil {
		return ErrVoteNonValidator
	}
	if !val.PubKey.VerifySignature(vote.VoteData.Hash(), vote.Signature) {
		return ErrVoteInvalidSignature
	}
	return nil
}

func (vote *Vote) String() string {
	if vote == nil {
		return "nil-Vote"
	}
	return fmt.Sprintf("Vote{author=%v epoch=%d view=%d proposed=%v}",
		vote.Author, vote.GetEpoch(), vote.View(), vote.VoteData.Proposed.VertexID)
}

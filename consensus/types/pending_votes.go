package types

import (
	"hotbft/types"
)

// PendingVotes 把同一个VoteData上的投票聚合成QC
// 每个作者最多只有一张在途的投票，作者投了新的VoteData之后旧的投票被清理
//
// NOTE: Not goroutine-safe. 只在共识主循环中使用
type PendingVotes struct {
	voteState     map[string]*types.ValidationState // voteData hash -> 签名
	voteData      map[string]types.VoteData
	previousVotes map[string]string // author -> voteData hash
}

func NewPendingVotes() *PendingVotes {
	return &PendingVotes{
		voteState:     make(map[string]*types.ValidationState),
		voteData:      make(map[string]types.VoteData),
		previousVotes: make(map[string]string),
	}
}

// InsertVote 签名不合法返回error，形成quorum时返回QC
func (pv *PendingVotes) InsertVote(vote *types.Vote, vals *types.ValidatorSet) (*types.QuorumCertificate, error) {
	if err := vote.Verify(vals); err != nil {
		return nil, err
	}

	key := string(vote.VoteData.Hash())
	author := string(vote.Author)
	if !pv.replacePreviousVote(author, key) {
		// 重复的投票不重复计数
		return nil, nil
	}

	state, ok := pv.voteState[key]
	if !ok {
		state = vals.NewValidationState()
		pv.voteState[key] = state
		pv.voteData[key] = vote.VoteData
	}
	state.AddSignature(vote.Author, vote.Signature)

	if state.Complete() {
		return types.NewQuorumCertificate(pv.voteData[key], state.Signatures()), nil
	}
	return nil, nil
}

// replacePreviousVote 返回false表示同一个作者重复投了同一个VoteData
func (pv *PendingVotes) replacePreviousVote(author, key string) bool {
	previous, ok := pv.previousVotes[author]
	if ok && previous == key {
		return false
	}
	if ok {
		if state, ok := pv.voteState[previous]; ok {
			state.RemoveSignature(types.Address(author))
			if state.IsEmpty() {
				delete(pv.voteState, previous)
				delete(pv.voteData, previous)
			}
		}
	}
	pv.previousVotes[author] = key
	return true
}

// Size 在途的VoteData数量
func (pv *PendingVotes) Size() int {
	return len(pv.voteState)
}

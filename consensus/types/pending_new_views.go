package types

import (
	"hotbft/types"
)

// PendingNewViews 把换view消息聚合成quorum，与SafetyRules的状态无关
// 每个作者最多只有一个在途的view，内存占用 O(validators)
//
// NOTE: Not goroutine-safe. 只在共识主循环中使用
type PendingNewViews struct {
	newViewState     map[types.View]*types.ValidationState
	previousNewViews map[string]types.View // author -> view
}

func NewPendingNewViews() *PendingNewViews {
	return &PendingNewViews{
		newViewState:     make(map[types.View]*types.ValidationState),
		previousNewViews: make(map[string]types.View),
	}
}

// InsertNewView 作者不是验证者或签名不合法返回error
// 某个view的签名达到quorum时返回该view
func (p *PendingNewViews) InsertNewView(nv *types.NewView, vals *types.ValidatorSet) (types.View, bool, error) {
	if err := nv.Verify(vals); err != nil {
		return types.GenesisView, false, err
	}

	view := nv.View
	author := string(nv.Author)
	if !p.replacePreviousNewView(author, view) {
		return types.GenesisView, false, nil
	}

	state, ok := p.newViewState[view]
	if !ok {
		state = vals.NewValidationState()
		p.newViewState[view] = state
	}
	state.AddSignature(nv.Author, nv.Signature)

	if state.Complete() {
		return view, true, nil
	}
	return types.GenesisView, false, nil
}

func (p *PendingNewViews) replacePreviousNewView(author string, view types.View) bool {
	previous, ok := p.previousNewViews[author]
	if ok && previous == view {
		return false
	}
	if ok {
		if state, ok := p.newViewState[previous]; ok {
			state.RemoveSignature(types.Address(author))
			if state.IsEmpty() {
				delete(p.newViewState, previous)
			}
		}
	}
	p.previousNewViews[author] = view
	return true
}

// Size 在途的view数量
func (p *PendingNewViews) Size() int {
	return len(p.newViewState)
}

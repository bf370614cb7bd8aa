package syncservice

import (
	"github.com/google/btree"

	"hotbft/types"
)

// atom 同步到的一个已提交命令，按state version排序
type atom struct {
	cc types.CommittedCommand
}

func (a atom) Less(than btree.Item) bool {
	return a.cc.StateVersion() < than.(atom).cc.StateVersion()
}

func versionKey(version int64) atom {
	return atom{cc: types.CommittedCommand{Metadata: types.VertexMetadata{StateVersion: version}}}
}

// atomSet 有容量上限、按版本有序、去重的命令集合
// 满了之后只有版本更低的命令才能替换掉当前版本最高的命令
type atomSet struct {
	tree     *btree.BTree
	capacity int
}

func newAtomSet(capacity int) *atomSet {
	return &atomSet{
		tree:     btree.New(8),
		capacity: capacity,
	}
}

// add 返回命令是否被加入
func (s *atomSet) add(cc types.CommittedCommand) bool {
	item := atom{cc: cc}
	if s.tree.Has(item) {
		return false
	}
	if s.tree.Len() >= s.capacity {
		highest := s.tree.Max()
		if highest == nil || !item.Less(highest) {
			return false
		}
		s.tree.DeleteMax()
	}
	s.tree.ReplaceOrInsert(item)
	return true
}

func (s *atomSet) has(version int64) bool {
	return s.tree.Has(versionKey(version))
}

// first 版本最低的命令
func (s *atomSet) first() (types.CommittedCommand, bool) {
	item := s.tree.Min()
	if item == nil {
		return types.CommittedCommand{}, false
	}
	return item.(atom).cc, true
}

func (s *atomSet) removeFirst() {
	s.tree.DeleteMin()
}

// removeUpTo 删除版本不超过version的命令
func (s *atomSet) removeUpTo(version int64) int {
	removed := 0
	for {
		cc, ok := s.first()
		if !ok || cc.StateVersion() > version {
			return removed
		}
		s.tree.DeleteMin()
		removed++
	}
}

func (s *atomSet) size() int {
	return s.tree.Len()
}

func (s *atomSet) clear() {
	s.tree = btree.New(8)
}

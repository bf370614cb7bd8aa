package types

import (
	"encoding/binary"
	"fmt"
)

// View 共识协议的轮次，每个view唯一对应一个proposer
type View int64

const (
	GenesisView = View(0)
)

func (v View) Next() View {
	return v + 1
}

func (v View) IsGenesis() bool {
	return v == GenesisView
}

func (v View) Greater(other View) bool {
	return v > other
}

func (v View) Less(other View) bool {
	return v < other
}

func (v View) Equal(other View) bool {
	return v == other
}

// Mod 返回view对n取模的结果，用于计算proposer
func (v View) Mod(n int) int {
	if n <= 0 {
		return 0
	}
	return int(int64(v) % int64(n))
}

func (v View) Int64() int64 {
	return int64(v)
}

// Hash 返回view的规范字节表示，参与签名和hash计算
func (v View) Hash() []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, uint64(v))
	return bz
}

func (v View) String() string {
	return fmt.Sprintf("View{%d}", int64(v))
}

package types

import (
	"encoding/hex"

	"github.com/tendermint/tendermint/crypto/merkle"
	"github.com/tendermint/tendermint/crypto/tmhash"
)

// CommandID 命令的内容地址，固定长度，可以直接作为map的key
type CommandID [tmhash.Size]byte

func (id CommandID) String() string {
	return hex.EncodeToString(id[:])
}

// Command 共识排序的基本单位，内容对共识层不透明
// nil表示空命令，空vertex依然可以推进QC链
type Command []byte

func (cmd Command) ID() CommandID {
	var id CommandID
	copy(id[:], tmhash.Sum(cmd))
	return id
}

func (cmd Command) IsEmpty() bool {
	return len(cmd) == 0
}

func (cmd Command) Size() int64 {
	return int64(len(cmd))
}

// ===== command array =====
type Commands []Command

// Hash 返回命令组成的merkle tree的根
func (cmds Commands) Hash() []byte {
	bzs := make([][]byte, len(cmds))
	for i := 0; i < len(cmds); i++ {
		id := cmds[i].ID()
		bzs[i] = id[:]
	}
	return merkle.HashFromByteSlices(bzs)
}

// CommandIDSet 已经出现在某条链上的命令集合
type CommandIDSet map[CommandID]struct{}

func (set CommandIDSet) Add(id CommandID) {
	set[id] = struct{}{}
}

func (set CommandIDSet) Has(id CommandID) bool {
	_, ok := set[id]
	return ok
}

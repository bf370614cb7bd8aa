package store

import (
	"bytes"
	"sync"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"

	"hotbft/types"
)

const tableKV = "kv/"

// KVStateComputer 简单的key-value应用
// 命令格式为 key=value，其他格式的命令只记录不执行
// committed必须和db是同一个数据库
type KVStateComputer struct {
	mtx sync.RWMutex

	db        tmdb.DB
	committed *CommittedStore

	validators *types.ValidatorSet
	// 每个epoch的最大view，0表示不切换epoch
	epochViews types.View

	logger log.Logger
}

func NewKVStateComputer(
	db tmdb.DB,
	committed *CommittedStore,
	validators *types.ValidatorSet,
	epochViews int64,
	logger log.Logger,
) *KVStateComputer {
	return &KVStateComputer{
		db:         db,
		committed:  committed,
		validators: validators,
		epochViews: types.View(epochViews),
		logger:     logger,
	}
}

// Prepare 到达epoch的最后一个view时返回下一个epoch的验证者
func (kv *KVStateComputer) Prepare(vertex *types.Vertex) (*types.ValidatorSet, error) {
	if kv.epochViews <= 0 || vertex.View.Less(kv.epochViews) {
		return nil, nil
	}
	kv.mtx.RLock()
	defer kv.mtx.RUnlock()
	return kv.validators.Copy(), nil
}

// Commit 命令的执行结果和提交记录在同一个batch里写入
func (kv *KVStateComputer) Commit(cc types.CommittedCommand) error {
	kv.mtx.Lock()
	defer kv.mtx.Unlock()

	batch := kv.db.NewBatch()
	defer batch.Close()
	if key, value, ok := parseKV(cc.Command); ok {
		if err := batch.Set(genKey(tableKV, key), value); err != nil {
			return err
		}
	} else if !cc.Command.IsEmpty() {
		kv.logger.Debug("skip malformed command", "version", cc.StateVersion())
	}
	if err := kv.committed.saveCommittedTo(batch, cc); err != nil {
		return err
	}
	if err := batch.WriteSync(); err != nil {
		return errors.Wrapf(err, "apply command at version %d", cc.StateVersion())
	}

	if cc.NextValidators != nil {
		kv.validators = cc.NextValidators
	}
	return nil
}

// Query 不存在时返回nil
func (kv *KVStateComputer) Query(key []byte) ([]byte, error) {
	return kv.db.Get(genKey(tableKV, key))
}

func (kv *KVStateComputer) Validators() *types.ValidatorSet {
	kv.mtx.RLock()
	defer kv.mtx.RUnlock()
	return kv.validators
}

func parseKV(cmd types.Command) (key, value []byte, ok bool) {
	idx := bytes.IndexByte(cmd, '=')
	if idx <= 0 {
		return nil, nil, false
	}
	return cmd[:idx], cmd[idx+1:], true
}

func genKey(table string, primaryKey []byte) []byte {
	buffer := new(bytes.Buffer)
	buffer.WriteString(table)
	buffer.Write(primaryKey)
	return buffer.Bytes()
}

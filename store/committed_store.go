package store

import (
	"encoding/binary"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmdb "github.com/tendermint/tm-db"

	"hotbft/types"
)

var (
	prefixCommitted = []byte("committed/")
	keyLastVersion  = []byte("committed_last")
	keyEpochChange  = []byte("epoch_change")
)

// 大端序保证iterator按state version顺序遍历
func committedKey(version int64) []byte {
	key := make([]byte, len(prefixCommitted)+8)
	copy(key, prefixCommitted)
	binary.BigEndian.PutUint64(key[len(prefixCommitted):], uint64(version))
	return key
}

// CommittedStore 按state version保存已提交的命令，用于回答SyncRequest
// 命令可能携带验证者集合(接口类型的公钥)，所以用tmjson编码
type CommittedStore struct {
	db tmdb.DB
}

func NewCommittedStore(db tmdb.DB) *CommittedStore {
	return &CommittedStore{db: db}
}

func (s *CommittedStore) SaveCommitted(cc types.CommittedCommand) error {
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.saveCommittedTo(batch, cc); err != nil {
		return err
	}
	return batch.WriteSync()
}

// saveCommittedTo 只写入batch，由调用者提交
func (s *CommittedStore) saveCommittedTo(batch tmdb.Batch, cc types.CommittedCommand) error {
	bz, err := tmjson.Marshal(cc)
	if err != nil {
		return errors.Wrap(err, "marshal committed command")
	}
	meta, err := tmjson.Marshal(cc.Metadata)
	if err != nil {
		return errors.Wrap(err, "marshal metadata")
	}

	if err := batch.Set(committedKey(cc.StateVersion()), bz); err != nil {
		return err
	}
	if err := batch.Set(keyLastVersion, meta); err != nil {
		return err
	}
	if cc.NextValidators != nil {
		ec, err := tmjson.Marshal(types.EpochChange{Ancestor: cc.Metadata, Validators: cc.NextValidators})
		if err != nil {
			return errors.Wrap(err, "marshal epoch change")
		}
		if err := batch.Set(keyEpochChange, ec); err != nil {
			return err
		}
	}
	return nil
}

// GetCommitted 不存在时返回nil
func (s *CommittedStore) GetCommitted(version int64) (*types.CommittedCommand, error) {
	bz, err := s.db.Get(committedKey(version))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, nil
	}
	cc := new(types.CommittedCommand)
	if err := tmjson.Unmarshal(bz, cc); err != nil {
		return nil, errors.Wrapf(err, "unmarshal committed command %d", version)
	}
	return cc, nil
}

// GetCommittedAfter 返回 (version, version+count] 中连续的已提交命令
func (s *CommittedStore) GetCommittedAfter(version int64, count int) ([]types.CommittedCommand, error) {
	if count <= 0 {
		return nil, nil
	}
	itr, err := s.db.Iterator(committedKey(version+1), committedKey(version+int64(count)+1))
	if err != nil {
		return nil, err
	}
	defer itr.Close()

	commands := make([]types.CommittedCommand, 0, count)
	next := version + 1
	for ; itr.Valid(); itr.Next() {
		var cc types.CommittedCommand
		if err := tmjson.Unmarshal(itr.Value(), &cc); err != nil {
			return nil, errors.Wrap(err, "unmarshal committed command")
		}
		if cc.StateVersion() != next {
			break
		}
		commands = append(commands, cc)
		next++
	}
	return commands, itr.Error()
}

// LastCommitted 没有任何提交时返回空的metadata
func (s *CommittedStore) LastCommitted() (types.VertexMetadata, error) {
	var meta types.VertexMetadata
	bz, err := s.db.Get(keyLastVersion)
	if err != nil || len(bz) == 0 {
		return meta, err
	}
	err = tmjson.Unmarshal(bz, &meta)
	return meta, errors.Wrap(err, "unmarshal last committed")
}

// LatestEpochChange 最近一次结束epoch的提交，重启时用来恢复当前epoch
func (s *CommittedStore) LatestEpochChange() (*types.EpochChange, error) {
	bz, err := s.db.Get(keyEpochChange)
	if err != nil || len(bz) == 0 {
		return nil, err
	}
	ec := new(types.EpochChange)
	if err := tmjson.Unmarshal(bz, ec); err != nil {
		return nil, errors.Wrap(err, "unmarshal epoch change")
	}
	return ec, nil
}

package store

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	tmdb "github.com/tendermint/tm-db"

	cstypes "hotbft/consensus/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func safetyKey(epoch int64) []byte {
	return []byte(fmt.Sprintf("safety/%d", epoch))
}

// SafetyStore 每次SafetyState变化都要落盘，重启后不能重复投票
type SafetyStore struct {
	db tmdb.DB
}

func NewSafetyStore(db tmdb.DB) *SafetyStore {
	return &SafetyStore{db: db}
}

func (s *SafetyStore) SaveSafetyState(epoch int64, state cstypes.SafetyState) error {
	bz, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "marshal safety state")
	}
	return s.db.SetSync(safetyKey(epoch), bz)
}

// LoadSafetyState epoch没有记录时返回初始状态
func (s *SafetyStore) LoadSafetyState(epoch int64) (cstypes.SafetyState, error) {
	bz, err := s.db.Get(safetyKey(epoch))
	if err != nil {
		return cstypes.SafetyState{}, err
	}
	if len(bz) == 0 {
		return cstypes.NewSafetyState(), nil
	}
	var state cstypes.SafetyState
	if err := json.Unmarshal(bz, &state); err != nil {
		return cstypes.SafetyState{}, errors.Wrapf(err, "unmarshal safety state of epoch %d", epoch)
	}
	return state, nil
}

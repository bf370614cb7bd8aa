package store

import (
	"github.com/pkg/errors"
	tmdb "github.com/tendermint/tm-db"

	"hotbft/types"
)

var keyVertexStoreState = []byte("vertex_store_state")

// VertexStoreStateStore vertex store每次提交后的快照
type VertexStoreStateStore struct {
	db tmdb.DB
}

func NewVertexStoreStateStore(db tmdb.DB) *VertexStoreStateStore {
	return &VertexStoreStateStore{db: db}
}

func (s *VertexStoreStateStore) SaveVertexStoreState(state *types.VerifiedVertexStoreState) error {
	bz, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "marshal vertex store state")
	}
	return s.db.SetSync(keyVertexStoreState, bz)
}

// LoadVertexStoreState 读出后重新校验，没有快照时返回nil
func (s *VertexStoreStateStore) LoadVertexStoreState() (*types.VerifiedVertexStoreState, error) {
	bz, err := s.db.Get(keyVertexStoreState)
	if err != nil || len(bz) == 0 {
		return nil, err
	}
	var raw types.VerifiedVertexStoreState
	if err := json.Unmarshal(bz, &raw); err != nil {
		return nil, errors.Wrap(err, "unmarshal vertex store state")
	}
	state, err := types.NewVerifiedVertexStoreState(raw.RootQC, raw.Root, raw.Vertices, raw.HighQC)
	if err != nil {
		return nil, errors.Wrap(err, "invalid vertex store state")
	}
	if err := state.SetGenesisQC(raw.GenesisQC); err != nil {
		return nil, errors.Wrap(err, "invalid vertex store state")
	}
	return state, nil
}

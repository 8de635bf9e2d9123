package state

import (
	"context"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type entry struct {
	state   State
	scratch Scratch
}

// memoryStore держит диалоги в шардированной карте. Теряется при рестарте.
type memoryStore struct {
	dialogs cmap.ConcurrentMap[int64, entry]
}

func NewMemoryStore() Store {
	return &memoryStore{
		dialogs: cmap.NewWithCustomShardingFunction[int64, entry](shard),
	}
}

func shard(id int64) uint32 {
	return uint32(id) ^ uint32(id>>32)
}

func (m *memoryStore) SetState(_ context.Context, principalID int64, st State) error {
	m.dialogs.Upsert(principalID, entry{}, func(exist bool, cur, _ entry) entry {
		cur.state = st
		return cur
	})
	return nil
}

func (m *memoryStore) GetState(_ context.Context, principalID int64) (State, error) {
	e, _ := m.dialogs.Get(principalID)
	return e.state, nil
}

func (m *memoryStore) UpdateScratch(_ context.Context, principalID int64, patch Scratch) error {
	m.dialogs.Upsert(principalID, entry{}, func(exist bool, cur, _ entry) entry {
		cur.scratch = cur.scratch.Merge(patch)
		return cur
	})
	return nil
}

func (m *memoryStore) GetScratch(_ context.Context, principalID int64) (Scratch, error) {
	e, _ := m.dialogs.Get(principalID)
	return e.scratch, nil
}

func (m *memoryStore) Clear(_ context.Context, principalID int64) error {
	m.dialogs.Remove(principalID)
	return nil
}

package persist

import (
	"context"
	"sync/atomic"

	"opsbot/internal/cache"
)

// Memory keeps snapshots in process. Stored values are encoded copies, so
// later changes to a saved map are not visible through Recover.
type Memory struct {
	store   *cache.Store[[]byte]
	started atomic.Bool
}

func NewMemory() *Memory {
	return &Memory{store: cache.NewStore[[]byte]()}
}

func (m *Memory) Start(ctx context.Context) error {
	m.started.Store(true)
	return nil
}

func (m *Memory) Verify(snapshot Snapshot) bool {
	return Verify(snapshot)
}

func (m *Memory) Save(ctx context.Context, snapshot Snapshot, key string) error {
	if !m.started.Load() {
		return ErrNotInitialized
	}
	data, err := encode(snapshot)
	if err != nil {
		return err
	}
	m.store.Set(key, data, 0)
	return nil
}

func (m *Memory) Recover(ctx context.Context, key string) (Snapshot, error) {
	if !m.started.Load() {
		return nil, ErrNotInitialized
	}
	value, ok := m.store.Get(key)
	if !ok {
		return nil, nil
	}
	return decode(value)
}

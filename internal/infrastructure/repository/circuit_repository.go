package repository

import (
	"sync"

	"ikedadada/go-mixway/internal/domain/entity"
	"ikedadada/go-mixway/internal/domain/repository"
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// circuitRepositoryImpl is the in-memory circuit table. Circuits stay
// findable after failing so they can be inspected; ListActive hides only
// the Destroyed ones.
type circuitRepositoryImpl struct {
	mu sync.RWMutex
	m  map[vo.CircuitID]*entity.Circuit
}

// NewCircuitRepository creates an empty circuit table.
func NewCircuitRepository() repository.CircuitRepository {
	return &circuitRepositoryImpl{m: make(map[vo.CircuitID]*entity.Circuit)}
}

func (r *circuitRepositoryImpl) Save(c *entity.Circuit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[c.ID()] = c
	return nil
}

func (r *circuitRepositoryImpl) Find(id vo.CircuitID) (*entity.Circuit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.m[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (r *circuitRepositoryImpl) Delete(id vo.CircuitID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.m, id)
	return nil
}

func (r *circuitRepositoryImpl) ListActive() ([]*entity.Circuit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Circuit, 0, len(r.m))
	for _, c := range r.m {
		if c.State() == vo.StateDestroyed {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

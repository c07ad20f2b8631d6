package repository

import (
	"net"
	"time"

	"ikedadada/go-mixway/internal/domain/entity"
	"ikedadada/go-mixway/internal/domain/repository"
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// connStateRepositoryImpl adapts the link arena to the repository port.
type connStateRepositoryImpl struct {
	t *entity.LinkTable
}

// NewConnStateRepository creates a link table for up to capacity live
// circuit hops.
func NewConnStateRepository(capacity int) (repository.ConnStateRepository, error) {
	t, err := entity.NewLinkTable(capacity)
	if err != nil {
		return nil, err
	}
	return &connStateRepositoryImpl{t: t}, nil
}

func (r *connStateRepositoryImpl) Alloc(st *entity.ConnState) (vo.LinkID, error) {
	return r.t.Alloc(st)
}

func (r *connStateRepositoryImpl) Find(id vo.LinkID) (*entity.ConnState, error) {
	st, ok := r.t.Get(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return st, nil
}

func (r *connStateRepositoryImpl) Free(id vo.LinkID) (*entity.ConnState, error) {
	st, ok := r.t.Free(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return st, nil
}

func (r *connStateRepositoryImpl) FreeConn(up net.Conn) []*entity.ConnState {
	return r.t.FreeConn(up)
}

func (r *connStateRepositoryImpl) SweepIdle(ttl time.Duration) []*entity.ConnState {
	return r.t.SweepIdle(ttl)
}

func (r *connStateRepositoryImpl) Len() int { return r.t.Len() }

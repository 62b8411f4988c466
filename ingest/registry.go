package ingest

import (
	"errors"
	"sync"
)

// ErrIngestionInProgress is returned when a second ingestion is requested for
// a target that already has one running. The caller keeps the existing run.
var ErrIngestionInProgress = errors.New("ingestion already in progress for target")

// Registry enforces at most one in-flight ingestion per target.
type Registry struct {
	m       sync.Mutex
	running map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{running: make(map[string]bool)}
}

func (r *Registry) Acquire(targetId string) error {
	r.m.Lock()
	defer r.m.Unlock()
	if r.running[targetId] {
		return ErrIngestionInProgress
	}
	r.running[targetId] = true
	return nil
}

func (r *Registry) Release(targetId string) {
	r.m.Lock()
	defer r.m.Unlock()
	delete(r.running, targetId)
}

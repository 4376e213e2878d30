// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package job

import (
	"context"
	"sync"
)

// Store persists job records. Update is the only mutation path after
// Create: it runs the mutator atomically per job ID, so two concurrent
// reconciliations of the same job serialize.
type Store interface {
	// Create stores a new record. ErrAlreadyExists if the ID is taken.
	Create(ctx context.Context, j *Job) error

	// Get returns a copy of the record. ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Job, error)

	// Update applies fn to the record under the job's lock and persists
	// the result. fn returning an error aborts the write. The updated
	// copy is returned.
	Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error)

	// ListActive returns all non-terminal jobs.
	ListActive(ctx context.Context) ([]*Job, error)

	Close() error
}

// MemoryStore keeps job records in process. A per-key lock serializes
// updates to the same job while unrelated jobs proceed in parallel.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	locks map[string]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[string]*Job),
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) keyLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[id] = l
	return l
}

func (s *MemoryStore) Create(ctx context.Context, j *Job) error {
	lock := s.keyLock(j.ID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.ID]; exists {
		return ErrAlreadyExists
	}
	s.jobs[j.ID] = j.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	lock := s.keyLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	stored, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	working := stored.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.jobs[id] = working
	s.mu.Unlock()

	return working.Clone(), nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Job
	for _, j := range s.jobs {
		if !j.Status.IsTerminal() {
			active = append(active, j.Clone())
		}
	}
	return active, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)

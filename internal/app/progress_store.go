package app

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yourusername/dl-progress/internal/domain"
)

// ProgressStore holds the latest snapshot per download.
// Snapshots are stored by value, so every write is an atomic replace.
type ProgressStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.DownloadRequest
}

// NewProgressStore creates an empty store
func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		snapshots: make(map[string]domain.DownloadRequest),
	}
}

// Update overwrites the snapshot stored for id (last write wins)
func (s *ProgressStore) Update(id string, req domain.DownloadRequest) error {
	if req.ID == "" {
		req.ID = id
	}
	if req.ID != id {
		return fmt.Errorf("%w: snapshot id %q does not match %q", domain.ErrInvalidSnapshot, req.ID, id)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.snapshots[id] = req
	s.mu.Unlock()
	return nil
}

// Get returns the latest snapshot for id
func (s *ProgressStore) Get(id string) (domain.DownloadRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.snapshots[id]
	return req, ok
}

// Apply replaces the snapshot for id with fn's result under the write lock.
// It returns false when no snapshot exists; an invalid result is rejected.
func (s *ProgressStore) Apply(id string, fn func(domain.DownloadRequest) domain.DownloadRequest) (domain.DownloadRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.snapshots[id]
	if !ok {
		return domain.DownloadRequest{}, false, nil
	}
	next := fn(current)
	next.ID = id
	if err := next.Validate(); err != nil {
		return current, true, err
	}
	s.snapshots[id] = next
	return next, true, nil
}

// Remove deletes the snapshot for id and reports whether one existed
func (s *ProgressStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.snapshots[id]
	delete(s.snapshots, id)
	return ok
}

// List returns all snapshots ordered by id
func (s *ProgressStore) List() []domain.DownloadRequest {
	s.mu.RLock()
	list := make([]domain.DownloadRequest, 0, len(s.snapshots))
	for _, req := range s.snapshots {
		list = append(list, req)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Len returns the number of stored snapshots
func (s *ProgressStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// Restore loads snapshots without overwriting newer ones already present.
// Invalid snapshots are skipped; the number loaded is returned.
func (s *ProgressStore) Restore(snapshots []domain.DownloadRequest) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := 0
	for _, req := range snapshots {
		if req.Validate() != nil {
			continue
		}
		if existing, ok := s.snapshots[req.ID]; ok && existing.UpdatedAt.After(req.UpdatedAt) {
			continue
		}
		s.snapshots[req.ID] = req
		loaded++
	}
	return loaded
}

package store

import (
	"context"
	"sync"

	"bitbucket.org/mmdatafocus/stockflow_backend/models"
	"github.com/google/uuid"
)

// FetchFunc loads the authoritative record set from the provider.
type FetchFunc func(ctx context.Context) ([]*models.TransactionRecord, error)

// CollectionStore is the in-memory read-through cache for one transaction
// collection. Subscribers get a snapshot on every change; optimistic
// writes insert a placeholder that is later reconciled or rolled back.
type CollectionStore struct {
	mu      sync.RWMutex
	fetchMu sync.Mutex
	records []*models.TransactionRecord
	loaded  bool
	subs    map[int]chan []*models.TransactionRecord
	nextSub int
}

func New() *CollectionStore {
	return &CollectionStore{subs: map[int]chan []*models.TransactionRecord{}}
}

// Get returns the cached records, fetching through fetch on a cold cache.
// The cold path is single-flight: concurrent cold callers serialize on
// fetchMu, and all but the first find the cache warm on the re-check.
func (s *CollectionStore) Get(ctx context.Context, fetch FetchFunc) ([]*models.TransactionRecord, error) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.snapshotLocked(), nil
	}
	s.mu.RUnlock()

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.snapshotLocked(), nil
	}
	s.mu.RUnlock()

	records, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.Set(records)
	return records, nil
}

// Peek returns whatever is cached without fetching. Nil on a cold cache.
func (s *CollectionStore) Peek() []*models.TransactionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return nil
	}
	return s.snapshotLocked()
}

func (s *CollectionStore) Set(records []*models.TransactionRecord) {
	s.mu.Lock()
	s.records = records
	s.loaded = true
	s.notifyLocked()
	s.mu.Unlock()
}

// Subscribe registers for change notifications. Each notification carries
// a snapshot of the full record set. The returned func unsubscribes.
func (s *CollectionStore) Subscribe() (<-chan []*models.TransactionRecord, func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan []*models.TransactionRecord, 1)
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// InsertOptimistic appends rec under a placeholder id so the collection
// reflects the write before the provider confirms it. Returns the
// placeholder id for the later Reconcile or Rollback call.
func (s *CollectionStore) InsertOptimistic(rec *models.TransactionRecord) string {
	placeholder := "pending-" + uuid.New().String()
	rec.ID = placeholder
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.loaded = true
	s.notifyLocked()
	s.mu.Unlock()
	return placeholder
}

// Reconcile swaps the placeholder record for the authoritative one the
// provider returned. A missing placeholder means a concurrent refresh
// already replaced the collection; the authoritative record still wins.
func (s *CollectionStore) Reconcile(placeholderID string, authoritative *models.TransactionRecord) {
	s.mu.Lock()
	replaced := false
	for i, rec := range s.records {
		if rec.ID == placeholderID {
			s.records[i] = authoritative
			replaced = true
			break
		}
	}
	if !replaced {
		s.records = append(s.records, authoritative)
	}
	s.notifyLocked()
	s.mu.Unlock()
}

// Rollback removes a placeholder after the provider rejected the write.
func (s *CollectionStore) Rollback(placeholderID string) {
	s.mu.Lock()
	for i, rec := range s.records {
		if rec.ID == placeholderID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			break
		}
	}
	s.notifyLocked()
	s.mu.Unlock()
}

func (s *CollectionStore) snapshotLocked() []*models.TransactionRecord {
	out := make([]*models.TransactionRecord, len(s.records))
	copy(out, s.records)
	return out
}

// notifyLocked pushes a snapshot to every subscriber without blocking: a
// slow subscriber keeps its pending snapshot and misses the intermediate
// ones.
func (s *CollectionStore) notifyLocked() {
	snapshot := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quocanhngo/memento/internal/model"
)

// Backend persists the whole subscriber document as one blob
type Backend interface {
	// Load returns nil data when nothing has been stored yet
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	String() string
}

// SnapshotStore keeps subscribers as a single JSON document. Each mutation
// reads the full set, applies one change and writes the full set back while
// holding the store mutex.
type SnapshotStore struct {
	mu      sync.Mutex
	backend Backend
	now     func() time.Time
}

// NewSnapshotStore creates a store over backend and checks that it is readable
func NewSnapshotStore(ctx context.Context, backend Backend) (*SnapshotStore, error) {
	s := &SnapshotStore{backend: backend, now: time.Now}
	if _, err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SnapshotStore) Upsert(ctx context.Context, sub *model.Subscriber) (*model.Subscriber, error) {
	var out model.Subscriber
	err := s.mutate(ctx, func(set map[string]*model.Subscriber) (bool, error) {
		now := s.now().UTC()
		if existing, ok := set[sub.Endpoint]; ok {
			refresh(existing, sub)
			existing.UpdatedAt = now
			out = existing.Clone()
			return true, nil
		}

		created := sub.Clone()
		if created.CreatedAt.IsZero() {
			created.CreatedAt = now
		}
		created.UpdatedAt = now
		set[created.Endpoint] = &created
		out = created.Clone()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SnapshotStore) Find(ctx context.Context, endpoint string) (*model.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	sub, ok := set[endpoint]
	if !ok {
		return nil, ErrNotFound
	}
	out := sub.Clone()
	return &out, nil
}

func (s *SnapshotStore) Remove(ctx context.Context, endpoint string) error {
	return s.mutate(ctx, func(set map[string]*model.Subscriber) (bool, error) {
		if _, ok := set[endpoint]; !ok {
			return false, nil
		}
		delete(set, endpoint)
		return true, nil
	})
}

func (s *SnapshotStore) ListAll(ctx context.Context) ([]model.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return sorted(set), nil
}

func (s *SnapshotStore) UpdatePreferences(ctx context.Context, endpoint string, patch model.PreferencesPatch) (*model.Subscriber, error) {
	var out model.Subscriber
	err := s.mutate(ctx, func(set map[string]*model.Subscriber) (bool, error) {
		sub, ok := set[endpoint]
		if !ok {
			return false, ErrNotFound
		}
		patch.Apply(sub)
		sub.UpdatedAt = s.now().UTC()
		out = sub.Clone()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SnapshotStore) ApplyBatch(ctx context.Context, batch Batch) error {
	if batch.Empty() {
		return nil
	}
	return s.mutate(ctx, func(set map[string]*model.Subscriber) (bool, error) {
		changed := false
		now := s.now().UTC()
		for endpoint, dateKey := range batch.MarkSent {
			sub, ok := set[endpoint]
			if !ok {
				continue
			}
			d := dateKey
			sub.LastSentLocalDate = &d
			sub.UpdatedAt = now
			changed = true
		}
		for _, endpoint := range batch.Remove {
			if _, ok := set[endpoint]; ok {
				delete(set, endpoint)
				changed = true
			}
		}
		return changed, nil
	})
}

// mutate runs fn on the current set and saves the result when fn reports a change
func (s *SnapshotStore) mutate(ctx context.Context, fn func(map[string]*model.Subscriber) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.load(ctx)
	if err != nil {
		return err
	}
	changed, err := fn(set)
	if err != nil || !changed {
		return err
	}
	return s.save(ctx, set)
}

func (s *SnapshotStore) load(ctx context.Context) (map[string]*model.Subscriber, error) {
	data, err := s.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrStoreUnavailable, s.backend, err)
	}

	set := make(map[string]*model.Subscriber)
	if len(data) == 0 {
		return set, nil
	}

	var list []model.Subscriber
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrStoreUnavailable, s.backend, err)
	}
	for i := range list {
		sub := list[i]
		set[sub.Endpoint] = &sub
	}
	return set, nil
}

func (s *SnapshotStore) save(ctx context.Context, set map[string]*model.Subscriber) error {
	data, err := json.MarshalIndent(sorted(set), "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrStoreUnavailable, err)
	}
	if err := s.backend.Save(ctx, data); err != nil {
		return fmt.Errorf("%w: save %s: %v", ErrStoreUnavailable, s.backend, err)
	}
	return nil
}

// sorted returns deep copies ordered by creation time then endpoint
func sorted(set map[string]*model.Subscriber) []model.Subscriber {
	list := make([]model.Subscriber, 0, len(set))
	for _, sub := range set {
		list = append(list, sub.Clone())
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].Endpoint < list[j].Endpoint
	})
	return list
}

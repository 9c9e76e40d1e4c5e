package ordering

import (
	"context"
	"errors"
	"sort"
	"sync"
)

type memKey struct {
	kind Kind
	id   string
}

// memStore is a transactional in-memory Store: InTx works on a copy and
// swaps it in only when fn succeeds.
type memStore struct {
	mu    sync.Mutex
	items map[memKey]Item
	// failOn makes the n-th SetPlacement call of a transaction fail (1-based).
	failOn int
}

func newMemStore(items ...Item) *memStore {
	s := &memStore{items: make(map[memKey]Item)}
	for _, item := range items {
		s.items[memKey{item.Kind, item.ID}] = item
	}
	return s
}

func (s *memStore) InTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := make(map[memKey]Item, len(s.items))
	for k, v := range s.items {
		work[k] = v
	}
	tx := &memTx{items: work, failOn: s.failOn}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.items = work
	return nil
}

func (s *memStore) ListItems(_ context.Context, ownerID string, kind Kind) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, 0)
	for _, item := range s.items {
		if item.Kind == kind && item.OwnerID == ownerID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := parentKey(out[i].ParentID), parentKey(out[j].ParentID)
		if pi != pj {
			return pi < pj
		}
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memStore) snapshot() map[memKey]Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[memKey]Item, len(s.items))
	for k, v := range s.items {
		out[k] = v
	}
	return out
}

type memTx struct {
	items  map[memKey]Item
	failOn int
	sets   int
}

var errInjected = errors.New("injected storage failure")

func (t *memTx) LockOwner(context.Context, string) error { return nil }

func (t *memTx) Placement(_ context.Context, kind Kind, ownerID, id string) (Placement, error) {
	item, ok := t.items[memKey{kind, id}]
	if !ok || item.OwnerID != ownerID {
		return Placement{}, ErrItemNotFound
	}
	return Placement{ParentID: item.ParentID, Position: item.Position}, nil
}

func (t *memTx) FolderParent(_ context.Context, ownerID, folderID string) (*string, error) {
	item, ok := t.items[memKey{KindFolder, folderID}]
	if !ok || item.OwnerID != ownerID {
		return nil, ErrParentNotFound
	}
	return item.ParentID, nil
}

func (t *memTx) ShiftSiblings(_ context.Context, kind Kind, ownerID string, parentID *string, from, delta int, excludeID string) error {
	for k, item := range t.items {
		if k.kind != kind || item.OwnerID != ownerID || item.ID == excludeID {
			continue
		}
		if !sameParent(item.ParentID, parentID) || item.Position < from {
			continue
		}
		item.Position += delta
		t.items[k] = item
	}
	return nil
}

func (t *memTx) SetPlacement(_ context.Context, kind Kind, ownerID, id string, parentID *string, position int) (int64, error) {
	t.sets++
	if t.failOn > 0 && t.sets == t.failOn {
		return 0, errInjected
	}
	key := memKey{kind, id}
	item, ok := t.items[key]
	if !ok || item.OwnerID != ownerID {
		return 0, nil
	}
	item.ParentID = parentID
	item.Position = position
	t.items[key] = item
	return 1, nil
}

func parentKey(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

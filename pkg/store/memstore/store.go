// Package memstore is an in-memory item store that keeps every revision.
// It backs tests and the development server.
package memstore

import (
	"context"
	"slices"
	"strconv"
	"sync"

	"github.com/BobSilent/aggregator-cli/pkg/apperror"
	"github.com/BobSilent/aggregator-cli/pkg/field"
	"github.com/BobSilent/aggregator-cli/pkg/itemid"
	"github.com/BobSilent/aggregator-cli/pkg/jsonpatch"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
	"github.com/BobSilent/aggregator-cli/pkg/store/patchapply"
)

var (
	_ remote.Store    = (*Store)(nil)
	_ remote.Recycler = (*Store)(nil)
	_ remote.Locator  = (*Store)(nil)
)

// DefaultBaseURL is used when New is called with an empty base URL.
const DefaultBaseURL = "mem://items"

type record struct {
	deleted bool
	// revs[i] is revision i+1
	revs []*remote.Snapshot
}

func (r *record) head() *remote.Snapshot { return r.revs[len(r.revs)-1] }

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	base    string
	nextID  int64
	records map[int64]*record
}

// New creates an empty store whose items live below base.
func New(base string) *Store {
	if base == "" {
		base = DefaultBaseURL
	}
	return &Store{base: base, records: make(map[int64]*record)}
}

// ItemURL implements remote.Locator.
func (s *Store) ItemURL(id itemid.ID) string {
	return itemid.URL(s.base, id)
}

func (s *Store) url(id int64, deleted bool) string {
	return remote.RecycleBinURL(s.base, id, deleted)
}

func notFound(id int64) error {
	return apperror.NewNotFound("item", strconv.FormatInt(id, 10))
}

// Seed stores fields and relations as a new item and returns its snapshot.
func (s *Store) Seed(fields map[string]field.Value, rels ...remote.Relation) *remote.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := patchapply.Clone(&remote.Snapshot{Fields: fields, Relations: rels})
	return patchapply.Clone(s.insert(snap))
}

func (s *Store) insert(snap *remote.Snapshot) *remote.Snapshot {
	s.nextID++
	snap.ID = s.nextID
	snap.Rev = 1
	snap.URL = s.url(snap.ID, false)
	s.records[snap.ID] = &record{revs: []*remote.Snapshot{snap}}
	return snap
}

// FetchByID implements remote.Store.
func (s *Store) FetchByID(ctx context.Context, id int64, rev remote.Revision) (*remote.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, notFound(id)
	}
	if rev == remote.Latest {
		return patchapply.Clone(rec.head()), nil
	}
	if rev < 1 || int(rev) > len(rec.revs) {
		return nil, apperror.ErrNotFound.WithMessagef("item %d has no revision %d", id, rev)
	}
	return patchapply.Clone(rec.revs[rev-1]), nil
}

// FetchMany implements remote.Store.
func (s *Store) FetchMany(ctx context.Context, ids []int64) ([]*remote.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*remote.Snapshot, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			out = append(out, patchapply.Clone(rec.head()))
		}
	}
	return out, nil
}

// Create implements remote.Store.
func (s *Store) Create(ctx context.Context, doc jsonpatch.Document) (*remote.Created, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := patchapply.Apply(&remote.Snapshot{}, doc)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	snap = s.insert(snap)
	return &remote.Created{ID: snap.ID, Rev: snap.Rev, URL: snap.URL}, nil
}

// ApplyPatch implements remote.Store.
func (s *Store) ApplyPatch(ctx context.Context, id int64, doc jsonpatch.Document) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return 0, notFound(id)
	}
	next, err := patchapply.Apply(rec.head(), doc)
	if err != nil {
		return 0, err
	}
	return s.append(rec, next), nil
}

func (s *Store) append(rec *record, next *remote.Snapshot) int {
	next.Rev = len(rec.revs) + 1
	next.URL = s.url(next.ID, rec.deleted)
	rec.revs = append(rec.revs, next)
	return next.Rev
}

// Recycle implements remote.Recycler.
func (s *Store) Recycle(ctx context.Context, id int64) (int, error) {
	return s.setDeleted(ctx, id, true)
}

// Restore implements remote.Recycler.
func (s *Store) Restore(ctx context.Context, id int64) (int, error) {
	return s.setDeleted(ctx, id, false)
}

func (s *Store) setDeleted(ctx context.Context, id int64, deleted bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return 0, notFound(id)
	}
	if rec.deleted == deleted {
		return rec.head().Rev, nil
	}
	rec.deleted = deleted
	return s.append(rec, patchapply.Clone(rec.head())), nil
}

// IDs lists the ids of every stored item in ascending order.
func (s *Store) IDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

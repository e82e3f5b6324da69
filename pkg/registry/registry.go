// Package registry tracks which wrappers hold which item identities so a
// temporary id can be rewritten everywhere once the store assigns a real one.
package registry

import (
	"cmp"
	"slices"
	"sync"

	"github.com/BobSilent/aggregator-cli/pkg/apperror"
	"github.com/BobSilent/aggregator-cli/pkg/itemid"
)

// Referrer is anything that holds item ids: as its own identity, inside
// links, or both.
//
// ReplaceIdentity is called with the registry lock held and must not call
// back into the registry.
type Referrer interface {
	comparable
	ID() itemid.ID
	ReplaceIdentity(from, to itemid.ID, url string)
}

type entry[T Referrer] struct {
	owner     T
	hasOwner  bool
	seq       uint64
	revisions map[T]struct{}
	refs      map[T]struct{}
}

func (e *entry[T]) empty() bool {
	return !e.hasOwner && len(e.revisions) == 0 && len(e.refs) == 0
}

// Registry is owned by a single unit of work and is never shared between them.
type Registry[T Referrer] struct {
	mu       sync.Mutex
	entries  map[itemid.ID]*entry[T]
	resolved map[itemid.ID]itemid.ID
	next     uint64
	seq      uint64
	urlFor   func(itemid.ID) string
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	urlFor func(itemid.ID) string
}

// WithBaseURL renders item URLs as {base}/{id}.
func WithBaseURL(base string) Option {
	return func(o *options) {
		o.urlFor = func(id itemid.ID) string { return itemid.URL(base, id) }
	}
}

// WithURLFunc renders item URLs with fn.
func WithURLFunc(fn func(itemid.ID) string) Option {
	return func(o *options) {
		if fn != nil {
			o.urlFor = fn
		}
	}
}

// New creates an empty registry.
func New[T Referrer](opts ...Option) *Registry[T] {
	o := options{urlFor: func(id itemid.ID) string { return itemid.URL("", id) }}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry[T]{
		entries:  make(map[itemid.ID]*entry[T]),
		resolved: make(map[itemid.ID]itemid.ID),
		urlFor:   o.urlFor,
	}
}

func (r *Registry[T]) entry(id itemid.ID) *entry[T] {
	e, ok := r.entries[id]
	if !ok {
		e = &entry[T]{
			revisions: make(map[T]struct{}),
			refs:      make(map[T]struct{}),
		}
		r.entries[id] = e
	}
	return e
}

// MintTemporary allocates a temporary id. Tokens increase monotonically and
// are never reused, not even after a remap.
func (r *Registry[T]) MintTemporary() itemid.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	return itemid.Temporary(r.next)
}

// TrackExisting registers a wrapper loaded from the store.
func (r *Registry[T]) TrackExisting(owner T) error {
	id := owner.ID()
	if !id.IsPermanent() {
		return apperror.ErrBadRequest.WithMessagef("existing item must have a permanent id, got %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.track(owner)
}

// TrackNew registers a wrapper whose id came from MintTemporary. The token
// check and the registration happen under one lock.
func (r *Registry[T]) TrackNew(owner T) error {
	id := owner.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if !id.IsTemporary() || id.Token() > r.next {
		return apperror.ErrBadRequest.WithMessagef("new item must carry a minted temporary id, got %s", id)
	}
	return r.track(owner)
}

// track requires r.mu.
func (r *Registry[T]) track(owner T) error {
	id := owner.ID()
	e := r.entry(id)
	if e.hasOwner && e.owner != owner {
		return apperror.ErrIdentityConflict.WithMessagef("item %s is already tracked", id)
	}
	if !e.hasOwner {
		r.seq++
		e.owner, e.hasOwner, e.seq = owner, true, r.seq
	}
	return nil
}

// TrackRevision registers a read-only historical wrapper. Revisions never
// own their id and are kept only so they are rewritten along with it.
func (r *Registry[T]) TrackRevision(w T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(w.ID()).revisions[w] = struct{}{}
}

// Reference records that referrer holds id inside one of its links.
func (r *Registry[T]) Reference(id itemid.ID, referrer T) {
	if id.IsZero() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if to, ok := r.resolved[id]; ok {
		id = to
	}
	r.entry(id).refs[referrer] = struct{}{}
}

// Unreference records that referrer no longer holds id in any link. An entry
// left without owner, revisions or referrers is dropped.
func (r *Registry[T]) Unreference(id itemid.ID, referrer T) {
	if id.IsZero() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if to, ok := r.resolved[id]; ok {
		id = to
	}
	e, ok := r.entries[id]
	if !ok {
		return
	}
	delete(e.refs, referrer)
	if e.empty() {
		delete(r.entries, id)
	}
}

// Remap moves every holder of from onto the permanent id to. It fails with
// IdentityConflict when a different wrapper already owns to. Remapping an id
// nobody holds, or one already resolved to the same target, is a no-op.
func (r *Registry[T]) Remap(from, to itemid.ID) error {
	if from == to {
		return nil
	}
	if to.IsZero() || to.IsTemporary() {
		return apperror.ErrBadRequest.WithMessagef("cannot remap %s onto %s", from, to)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.resolved[from]; ok {
		if prev == to {
			return nil
		}
		return apperror.ErrIdentityConflict.WithMessagef("%s was already resolved to %s", from, prev)
	}

	src, ok := r.entries[from]
	if !ok || src.empty() {
		return nil
	}
	dst := r.entries[to]
	if dst != nil && dst.hasOwner && src.hasOwner && dst.owner != src.owner {
		return apperror.ErrIdentityConflict.WithMessagef("item %s is already owned by another wrapper", to).
			WithDetails(map[string]any{"from": from.String(), "to": to.String()})
	}

	url := r.urlFor(to)
	if src.hasOwner {
		src.owner.ReplaceIdentity(from, to, url)
	}
	for w := range src.revisions {
		w.ReplaceIdentity(from, to, url)
	}
	for ref := range src.refs {
		if src.hasOwner && ref == src.owner {
			continue
		}
		ref.ReplaceIdentity(from, to, url)
	}

	dst = r.entry(to)
	if src.hasOwner && !dst.hasOwner {
		dst.owner, dst.hasOwner, dst.seq = src.owner, true, src.seq
	}
	for w := range src.revisions {
		dst.revisions[w] = struct{}{}
	}
	for ref := range src.refs {
		dst.refs[ref] = struct{}{}
	}
	delete(r.entries, from)
	if from.IsTemporary() {
		r.resolved[from] = to
	}
	return nil
}

// Resolve returns the permanent id a temporary id was remapped to.
func (r *Registry[T]) Resolve(id itemid.ID) (itemid.ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	to, ok := r.resolved[id]
	return to, ok
}

// Owner returns the live wrapper registered under id. A resolved temporary
// id leads to the wrapper under its permanent id.
func (r *Registry[T]) Owner(id itemid.ID) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if to, ok := r.resolved[id]; ok {
		id = to
	}
	var zero T
	e, ok := r.entries[id]
	if !ok || !e.hasOwner {
		return zero, false
	}
	return e.owner, true
}

// PendingCreations lists owners whose id is still temporary, oldest first.
func (r *Registry[T]) PendingCreations() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]itemid.ID, 0)
	for id, e := range r.entries {
		if id.IsTemporary() && e.hasOwner {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b itemid.ID) int { return cmp.Compare(a.Token(), b.Token()) })

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.entries[id].owner)
	}
	return out
}

// Owners lists every live owner in registration order.
func (r *Registry[T]) Owners() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	es := make([]*entry[T], 0, len(r.entries))
	for _, e := range r.entries {
		if e.hasOwner {
			es = append(es, e)
		}
	}
	slices.SortFunc(es, func(a, b *entry[T]) int { return cmp.Compare(a.seq, b.seq) })

	out := make([]T, 0, len(es))
	for _, e := range es {
		out = append(out, e.owner)
	}
	return out
}

// Referrers returns the wrappers holding id in a link, excluding its owner.
func (r *Registry[T]) Referrers(id itemid.ID) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil
	}
	out := make([]T, 0, len(e.refs))
	for ref := range e.refs {
		if e.hasOwner && ref == e.owner {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// ItemURL renders the URL an item with id is addressed by.
func (r *Registry[T]) ItemURL(id itemid.ID) string {
	return r.urlFor(id)
}

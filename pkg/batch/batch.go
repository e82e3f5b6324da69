// Package batch is the unit of work around a remote store: it loads items
// into one registry, lets callers edit them and saves every change.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/BobSilent/aggregator-cli/pkg/field"
	"github.com/BobSilent/aggregator-cli/pkg/item"
	"github.com/BobSilent/aggregator-cli/pkg/itemid"
	"github.com/BobSilent/aggregator-cli/pkg/logger"
	"github.com/BobSilent/aggregator-cli/pkg/registry"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
)

// Mode selects how new items and their links are written.
type Mode string

const (
	// ModeTwoPhase creates every new item without relations first, then
	// patches all remaining changes. Links between new items always resolve.
	ModeTwoPhase Mode = "twophase"
	// ModeItem creates new items with their relations in dependency order
	// and falls back to a separate relation patch for cycles.
	ModeItem Mode = "item"
)

// ParseMode accepts "", "default", "twophase" and "item".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "default", string(ModeTwoPhase):
		return ModeTwoPhase, nil
	case string(ModeItem):
		return ModeItem, nil
	default:
		return "", fmt.Errorf("unknown save mode %q", s)
	}
}

const defaultConcurrency = 4

// Options configures a Batch.
type Options struct {
	Mode   Mode
	DryRun bool
	// Concurrency bounds the number of patches applied in parallel.
	Concurrency int
	Logger      *slog.Logger
}

// Batch is not safe for concurrent use. Save applies independent patches
// in parallel internally.
type Batch struct {
	id    string
	store remote.Store
	reg   *item.Registry
	opts  Options
	log   *slog.Logger
}

// New creates a batch over store with an empty registry.
func New(store remote.Store, opts Options) *Batch {
	if opts.Mode == "" {
		opts.Mode = ModeTwoPhase
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	id := uuid.NewString()
	var regOpts []registry.Option
	if loc, ok := store.(remote.Locator); ok {
		regOpts = append(regOpts, registry.WithURLFunc(loc.ItemURL))
	}
	return &Batch{
		id:    id,
		store: store,
		reg:   item.NewRegistry(regOpts...),
		opts:  opts,
		log:   log.With(logger.Scope("batch"), slog.String("batch_id", id)),
	}
}

func (b *Batch) ID() string { return b.id }

func (b *Batch) Registry() *item.Registry { return b.reg }

func (b *Batch) Options() Options { return b.opts }

// Get returns the tracked wrapper for id, loading the head revision on
// first use.
func (b *Batch) Get(ctx context.Context, id int64) (*item.Item, error) {
	if it, ok := b.reg.Owner(itemid.Permanent(id)); ok {
		return it, nil
	}
	snap, err := b.store.FetchByID(ctx, id, remote.Latest)
	if err != nil {
		return nil, err
	}
	return item.Load(b.reg, snap)
}

// GetMany returns the wrappers for ids in order. Ids the store does not
// know are skipped.
func (b *Batch) GetMany(ctx context.Context, ids []int64) ([]*item.Item, error) {
	var missing []int64
	for _, id := range ids {
		if _, ok := b.reg.Owner(itemid.Permanent(id)); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		snaps, err := b.store.FetchMany(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, snap := range snaps {
			if _, ok := b.reg.Owner(itemid.Permanent(snap.ID)); ok {
				continue
			}
			if _, err := item.Load(b.reg, snap); err != nil {
				return nil, err
			}
		}
	}

	out := make([]*item.Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := b.reg.Owner(itemid.Permanent(id)); ok {
			out = append(out, it)
		}
	}
	return out, nil
}

// GetRevision loads a read-only historical revision of id.
func (b *Batch) GetRevision(ctx context.Context, id int64, rev int) (*item.Item, error) {
	snap, err := b.store.FetchByID(ctx, id, remote.Revision(rev))
	if err != nil {
		return nil, err
	}
	return item.LoadRevision(b.reg, snap), nil
}

// New creates a new item with fields as pending additions.
func (b *Batch) New(fields map[string]field.Value) (*item.Item, error) {
	return item.New(b.reg, fields)
}

// Linked returns the items it links to with kind. New items are returned
// as tracked, permanent ones are loaded when needed.
func (b *Batch) Linked(ctx context.Context, it *item.Item, kind string) ([]*item.Item, error) {
	var ids []int64
	for _, l := range it.Relations().ByKind(kind) {
		if l.Target.IsPermanent() {
			ids = append(ids, l.Target.Value())
		}
	}
	loaded, err := b.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*item.Item, 0, len(loaded))
	for _, l := range it.Relations().ByKind(kind) {
		if !l.Target.IsTemporary() {
			continue
		}
		if target, ok := b.reg.Owner(l.Target); ok {
			out = append(out, target)
		}
	}
	return append(loaded, out...), nil
}

// Children returns the hierarchy children of it.
func (b *Batch) Children(ctx context.Context, it *item.Item) ([]*item.Item, error) {
	return b.Linked(ctx, it, item.KindChild)
}

// Parent returns the hierarchy parent of it, or nil.
func (b *Batch) Parent(ctx context.Context, it *item.Item) (*item.Item, error) {
	parents, err := b.Linked(ctx, it, item.KindParent)
	if err != nil || len(parents) == 0 {
		return nil, err
	}
	return parents[0], nil
}

// Related returns the items related to it.
func (b *Batch) Related(ctx context.Context, it *item.Item) ([]*item.Item, error) {
	return b.Linked(ctx, it, item.KindRelated)
}

// Dirty lists the new items and the tracked items with unsaved changes, in
// the order they were first tracked.
func (b *Batch) Dirty() []*item.Item {
	var out []*item.Item
	for _, it := range b.reg.Owners() {
		if !it.IsReadOnly() && (it.IsNew() || it.IsDirty()) {
			out = append(out, it)
		}
	}
	return out
}

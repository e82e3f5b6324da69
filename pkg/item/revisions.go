package item

import (
	"context"

	"github.com/BobSilent/aggregator-cli/pkg/remote"
)

// PreviousRevision fetches the revision before this one as a read-only
// item. It returns nil without error when there is none: for new items and
// for the first revision.
func (it *Item) PreviousRevision(ctx context.Context, store remote.Fetcher) (*Item, error) {
	if !it.id.IsPermanent() || it.rev <= 1 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := store.FetchByID(ctx, it.id.Value(), remote.Revision(it.rev-1))
	if err != nil {
		return nil, err
	}
	return LoadRevision(it.reg, snap), nil
}

// Revisions walks the history of the item backwards, starting with the
// revision before the current one.
func (it *Item) Revisions(store remote.Fetcher) *RevisionWalker {
	return &RevisionWalker{store: store, at: it}
}

// RevisionWalker is a forward-only iterator over historical revisions.
//
//	w := it.Revisions(store)
//	for w.Next(ctx) {
//	    fmt.Println(w.Item().Revision())
//	}
//	if err := w.Err(); err != nil { ... }
type RevisionWalker struct {
	store remote.Fetcher
	at    *Item
	cur   *Item
	err   error
	done  bool
}

// Next advances to the previous revision. It returns false at the
// beginning of history, on error, or when ctx is done.
func (w *RevisionWalker) Next(ctx context.Context) bool {
	if w.done {
		return false
	}
	prev, err := w.at.PreviousRevision(ctx, w.store)
	if err != nil || prev == nil {
		w.err, w.done, w.cur = err, true, nil
		return false
	}
	w.at, w.cur = prev, prev
	return true
}

// Item returns the revision produced by the last successful Next.
func (w *RevisionWalker) Item() *Item { return w.cur }

// Err returns the error that stopped the walk, if any.
func (w *RevisionWalker) Err() error { return w.err }

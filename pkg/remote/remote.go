// Package remote declares the boundary to a store of revisioned items.
package remote

import (
	"context"
	"strings"

	"github.com/BobSilent/aggregator-cli/pkg/field"
	"github.com/BobSilent/aggregator-cli/pkg/itemid"
	"github.com/BobSilent/aggregator-cli/pkg/jsonpatch"
)

// Revision selects a revision of an item. Revisions start at 1.
type Revision int

// Latest selects the head revision.
const Latest Revision = 0

// Snapshot is an item as stored at one revision.
type Snapshot struct {
	ID        int64                  `json:"id"`
	Rev       int                    `json:"rev"`
	URL       string                 `json:"url"`
	Fields    map[string]field.Value `json:"fields"`
	Relations []Relation             `json:"relations,omitempty"`
}

// Relation is a stored link.
type Relation struct {
	Rel        string         `json:"rel"`
	URL        string         `json:"url"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Comment returns the comment attribute of the link, if any.
func (r Relation) Comment() string {
	c, _ := r.Attributes["comment"].(string)
	return c
}

// Created describes an item the store just created.
type Created struct {
	ID  int64  `json:"id"`
	Rev int    `json:"rev"`
	URL string `json:"url"`
}

// Store is the remote item store.
type Store interface {
	// FetchByID returns the item at rev, or at its head for Latest.
	// Missing items and revisions fail with apperror.ErrNotFound.
	FetchByID(ctx context.Context, id int64, rev Revision) (*Snapshot, error)

	// FetchMany returns the head of every item that exists. Missing ids are
	// skipped, so the result may be shorter than ids.
	FetchMany(ctx context.Context, ids []int64) ([]*Snapshot, error)

	// Create applies doc to an empty item and stores it at revision 1.
	Create(ctx context.Context, doc jsonpatch.Document) (*Created, error)

	// ApplyPatch applies doc to item id and returns the new revision. A
	// failed test operation fails with apperror.ErrConflict, an operation
	// the store refuses with apperror.ErrRejected.
	ApplyPatch(ctx context.Context, id int64, doc jsonpatch.Document) (int, error)
}

// Fetcher is the part of Store needed to walk revisions.
type Fetcher interface {
	FetchByID(ctx context.Context, id int64, rev Revision) (*Snapshot, error)
}

// Recycler is implemented by stores with a recycle bin. Both calls return
// the new revision.
type Recycler interface {
	Recycle(ctx context.Context, id int64) (int, error)
	Restore(ctx context.Context, id int64) (int, error)
}

// Locator is implemented by stores that know the URL of their items.
type Locator interface {
	ItemURL(id itemid.ID) string
}

// RecycleBinSegment is the path segment under which deleted items live.
const RecycleBinSegment = "recyclebin"

// InRecycleBin reports whether url addresses an item in the recycle bin,
// i.e. ends in /recyclebin/{id}.
func InRecycleBin(url string) bool {
	parts := strings.Split(strings.TrimRight(url, "/"), "/")
	if len(parts) < 2 {
		return false
	}
	return strings.EqualFold(parts[len(parts)-2], RecycleBinSegment)
}

// RecycleBinURL moves an item URL into or out of the recycle bin.
func RecycleBinURL(base string, id int64, deleted bool) string {
	u := strings.TrimRight(base, "/")
	if deleted {
		u += "/" + RecycleBinSegment
	}
	return itemid.URL(u, itemid.Permanent(id))
}

// MoveURL rewrites an item URL for the given recycle bin state.
func MoveURL(url string, deleted bool) string {
	u := strings.TrimRight(url, "/")
	i := strings.LastIndexByte(u, '/')
	if i < 0 {
		return url
	}
	parent, last := u[:i], u[i:]
	if InRecycleBin(u) {
		parent = parent[:max(strings.LastIndexByte(parent, '/'), 0)]
	}
	if deleted {
		parent += "/" + RecycleBinSegment
	}
	return parent + last
}

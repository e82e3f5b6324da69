package item

import (
	"slices"

	"github.com/BobSilent/aggregator-cli/pkg/apperror"
	"github.com/BobSilent/aggregator-cli/pkg/itemid"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
)

// Link kinds understood by the helpers below. Any other kind string is
// passed through as is.
const (
	KindChild     = "System.LinkTypes.Hierarchy-Forward"
	KindParent    = "System.LinkTypes.Hierarchy-Reverse"
	KindRelated   = "System.LinkTypes.Related"
	KindHyperlink = "Hyperlink"
)

// Link is a typed, directed relation to another item or to a plain URL.
// Two links are the same link when kind and URL match; the comment is an
// attribute only.
type Link struct {
	Kind    string
	URL     string
	Target  itemid.ID
	Comment string
}

// Same reports whether l and o address the same relation.
func (l Link) Same(o Link) bool {
	return l.Kind == o.Kind && l.URL == o.URL
}

// IsItemLink reports whether the link points at an item.
func (l Link) IsItemLink() bool {
	return !l.Target.IsZero()
}

func (l Link) withTarget() Link {
	if l.Target.IsZero() && l.Kind != KindHyperlink {
		if id, err := itemid.FromURL(l.URL); err == nil {
			l.Target = id
		}
	}
	return l
}

// RemovedLink is a baseline link pending removal.
type RemovedLink struct {
	Index int
	Link  Link
}

// Diff is the pending relation change set. Removals come in descending
// baseline index order so they can be applied one after another.
type Diff struct {
	Removed []RemovedLink
	Added   []Link
}

func (d Diff) IsEmpty() bool { return len(d.Removed) == 0 && len(d.Added) == 0 }

// Relations is the link collection of an item: the baseline loaded from the
// store and the current working set.
type Relations struct {
	owner    *Item
	baseline []Link
	current  []Link
}

func newRelations(owner *Item, rels []remote.Relation) *Relations {
	r := &Relations{owner: owner}
	for _, rel := range rels {
		l := Link{Kind: rel.Rel, URL: rel.URL, Comment: rel.Comment()}.withTarget()
		if indexOf(r.baseline, l) >= 0 {
			continue
		}
		r.baseline = append(r.baseline, l)
	}
	r.current = slices.Clone(r.baseline)
	return r
}

func indexOf(links []Link, l Link) int {
	return slices.IndexFunc(links, l.Same)
}

func (r *Relations) referenceTargets() {
	for _, l := range r.current {
		if l.IsItemLink() {
			r.owner.reg.Reference(l.Target, r.owner)
		}
	}
}

// Len returns the number of current links.
func (r *Relations) Len() int { return len(r.current) }

// Links returns the current links in insertion order.
func (r *Relations) Links() []Link { return slices.Clone(r.current) }

// Baseline returns the links as loaded from the store.
func (r *Relations) Baseline() []Link { return slices.Clone(r.baseline) }

func (r *Relations) Contains(l Link) bool { return indexOf(r.current, l) >= 0 }

// resolve fills in the target of l and, when the target is a temporary id
// that was already remapped, points l at the permanent id.
func (r *Relations) resolve(l Link) Link {
	l = l.withTarget()
	if l.Target.IsTemporary() {
		if to, ok := r.owner.reg.Resolve(l.Target); ok {
			l.Target, l.URL = to, r.owner.reg.ItemURL(to)
		}
	}
	return l
}

// holds reports whether any current or baseline link still targets id.
func (r *Relations) holds(id itemid.ID) bool {
	has := func(l Link) bool { return l.Target == id }
	return slices.ContainsFunc(r.current, has) || slices.ContainsFunc(r.baseline, has)
}

func (r *Relations) release(removed []Link) {
	for _, l := range removed {
		if l.IsItemLink() && !r.holds(l.Target) {
			r.owner.reg.Unreference(l.Target, r.owner)
		}
	}
}

// Add links the owner to l. Adding a present link is a no-op; re-adding a
// removed baseline link restores it.
func (r *Relations) Add(l Link) error {
	if r.owner.readOnly {
		return r.owner.readOnlyError()
	}
	if l.Kind == "" || l.URL == "" {
		return apperror.NewBadRequest("link kind and url are required")
	}
	l = r.resolve(l)
	if r.Contains(l) {
		return nil
	}
	if i := indexOf(r.baseline, l); i >= 0 {
		l = r.baseline[i]
	}
	r.current = append(r.current, l)
	if l.IsItemLink() {
		r.owner.reg.Reference(l.Target, r.owner)
	}
	return nil
}

// Remove unlinks l. A pending addition is cancelled, a baseline link becomes
// a pending removal, an unknown link is ignored.
func (r *Relations) Remove(l Link) error {
	if r.owner.readOnly {
		return r.owner.readOnlyError()
	}
	i := indexOf(r.current, r.resolve(l))
	if i < 0 {
		return nil
	}
	removed := r.current[i]
	r.current = slices.Delete(r.current, i, i+1)
	r.release([]Link{removed})
	return nil
}

// Clear removes every link.
func (r *Relations) Clear() error {
	if r.owner.readOnly {
		return r.owner.readOnlyError()
	}
	removed := r.current
	r.current = nil
	r.release(removed)
	return nil
}

// AddLink adds a link of any kind to url.
func (r *Relations) AddLink(kind, url, comment string) error {
	return r.Add(Link{Kind: kind, URL: url, Comment: comment})
}

// AddLinkTo adds a link of kind to target, which may be a new item.
func (r *Relations) AddLinkTo(kind string, target *Item, comment string) error {
	return r.Add(Link{Kind: kind, URL: target.URL(), Target: target.ID(), Comment: comment})
}

func (r *Relations) AddChild(child *Item) error {
	return r.AddLinkTo(KindChild, child, "")
}

func (r *Relations) AddParent(parent *Item) error {
	return r.AddLinkTo(KindParent, parent, "")
}

func (r *Relations) AddRelated(target *Item, comment string) error {
	return r.AddLinkTo(KindRelated, target, comment)
}

func (r *Relations) AddHyperlink(url, comment string) error {
	return r.AddLink(KindHyperlink, url, comment)
}

// RemoveLink removes the link of kind to url.
func (r *Relations) RemoveLink(kind, url string) error {
	return r.Remove(Link{Kind: kind, URL: url})
}

// RemoveLinkTo removes the link of kind to target.
func (r *Relations) RemoveLinkTo(kind string, target *Item) error {
	return r.Remove(Link{Kind: kind, URL: target.URL()})
}

// ByKind returns the current links of kind.
func (r *Relations) ByKind(kind string) []Link {
	var out []Link
	for _, l := range r.current {
		if l.Kind == kind {
			out = append(out, l)
		}
	}
	return out
}

// Parent returns the hierarchy parent link, if any.
func (r *Relations) Parent() (Link, bool) {
	for _, l := range r.current {
		if l.Kind == KindParent {
			return l, true
		}
	}
	return Link{}, false
}

func (r *Relations) Children() []Link { return r.ByKind(KindChild) }

// TemporaryTargets lists the distinct ids of linked items that do not exist
// remotely yet.
func (r *Relations) TemporaryTargets() []itemid.ID {
	var out []itemid.ID
	for _, l := range r.current {
		if l.Target.IsTemporary() && !slices.Contains(out, l.Target) {
			out = append(out, l.Target)
		}
	}
	return out
}

// IsDirty reports whether the current set differs from the baseline.
func (r *Relations) IsDirty() bool {
	if len(r.current) != len(r.baseline) {
		return true
	}
	for _, l := range r.current {
		if indexOf(r.baseline, l) < 0 {
			return true
		}
	}
	return false
}

// Diff returns the pending changes: removed baseline links with their
// baseline index, then added links in insertion order.
func (r *Relations) Diff() Diff {
	var d Diff
	for i := len(r.baseline) - 1; i >= 0; i-- {
		if indexOf(r.current, r.baseline[i]) < 0 {
			d.Removed = append(d.Removed, RemovedLink{Index: i, Link: r.baseline[i]})
		}
	}
	for _, l := range r.current {
		if indexOf(r.baseline, l) < 0 {
			d.Added = append(d.Added, l)
		}
	}
	return d
}

func (r *Relations) rebase() {
	dropped := r.Diff().Removed
	r.baseline = slices.Clone(r.current)
	for _, d := range dropped {
		r.release([]Link{d.Link})
	}
}

func (r *Relations) replaceTarget(from, to itemid.ID, url string) {
	rewrite := func(links []Link) {
		for i := range links {
			if links[i].Target == from {
				links[i].Target = to
				links[i].URL = url
			}
		}
	}
	rewrite(r.baseline)
	rewrite(r.current)
}

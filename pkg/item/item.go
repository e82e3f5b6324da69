// Package item wraps snapshots of remote items and tracks local edits to
// their fields, relations and recycle state.
package item

import (
	"maps"
	"slices"
	"time"

	"github.com/BobSilent/aggregator-cli/pkg/apperror"
	"github.com/BobSilent/aggregator-cli/pkg/field"
	"github.com/BobSilent/aggregator-cli/pkg/itemid"
	"github.com/BobSilent/aggregator-cli/pkg/registry"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
)

// Registry tracks the identities held by items of one unit of work.
type Registry = registry.Registry[*Item]

// NewRegistry creates a registry for items.
func NewRegistry(opts ...registry.Option) *Registry {
	return registry.New[*Item](opts...)
}

// ChangeKind classifies a pending field change.
type ChangeKind uint8

const (
	ChangeAdd ChangeKind = iota + 1
	ChangeReplace
	ChangeRemove
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdd:
		return "add"
	case ChangeReplace:
		return "replace"
	case ChangeRemove:
		return "remove"
	default:
		return "none"
	}
}

// FieldChange is a pending edit of one field.
type FieldChange struct {
	Name  string
	Kind  ChangeKind
	Value field.Value
}

// RecycleIntent is a pending soft-delete or restore.
type RecycleIntent uint8

const (
	RecycleNone RecycleIntent = iota
	RecycleDelete
	RecycleRestore
)

func (r RecycleIntent) String() string {
	switch r {
	case RecycleDelete:
		return "delete"
	case RecycleRestore:
		return "restore"
	default:
		return "none"
	}
}

// Item is a tracked wrapper around one item snapshot. Items are not safe for
// concurrent use.
type Item struct {
	reg       *Registry
	id        itemid.ID
	rev       int
	url       string
	fields    map[string]field.Value
	changes   map[string]FieldChange
	readOnly  bool
	deleted   bool
	intent    RecycleIntent
	relations *Relations
}

func newItem(reg *Registry, snap *remote.Snapshot, readOnly bool) *Item {
	it := &Item{
		reg:      reg,
		id:       itemid.Permanent(snap.ID),
		rev:      snap.Rev,
		url:      snap.URL,
		fields:   make(map[string]field.Value, len(snap.Fields)),
		changes:  make(map[string]FieldChange),
		readOnly: readOnly,
		deleted:  remote.InRecycleBin(snap.URL),
	}
	for name, v := range snap.Fields {
		if !v.IsNull() {
			it.fields[name] = v
		}
	}
	it.relations = newRelations(it, snap.Relations)
	return it
}

// Load wraps the head snapshot of an existing item and tracks it in reg.
func Load(reg *Registry, snap *remote.Snapshot) (*Item, error) {
	it := newItem(reg, snap, false)
	if err := reg.TrackExisting(it); err != nil {
		return nil, err
	}
	it.relations.referenceTargets()
	return it, nil
}

// LoadRevision wraps a historical snapshot. The result is read-only.
func LoadRevision(reg *Registry, snap *remote.Snapshot) *Item {
	it := newItem(reg, snap, true)
	reg.TrackRevision(it)
	return it
}

// New creates an item that does not exist remotely yet. The given fields
// become pending additions.
func New(reg *Registry, fields map[string]field.Value) (*Item, error) {
	id := reg.MintTemporary()
	it := &Item{
		reg:     reg,
		id:      id,
		url:     reg.ItemURL(id),
		fields:  make(map[string]field.Value),
		changes: make(map[string]FieldChange),
	}
	it.relations = newRelations(it, nil)
	if err := reg.TrackNew(it); err != nil {
		return nil, err
	}
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		if err := it.Set(name, fields[name]); err != nil {
			return nil, err
		}
	}
	return it, nil
}

func (it *Item) ID() itemid.ID { return it.id }

// Revision is the revision the snapshot was taken at, 0 for new items.
func (it *Item) Revision() int { return it.rev }

func (it *Item) URL() string { return it.url }

func (it *Item) IsNew() bool      { return it.id.IsTemporary() }
func (it *Item) IsReadOnly() bool { return it.readOnly }
func (it *Item) IsDeleted() bool  { return it.deleted }

// RecycleIntent returns the pending soft-delete state change.
func (it *Item) RecycleIntent() RecycleIntent { return it.intent }

// Relations returns the links of the item.
func (it *Item) Relations() *Relations { return it.relations }

// IsDirty reports whether saving the item would send anything.
func (it *Item) IsDirty() bool {
	return len(it.changes) > 0 || it.relations.IsDirty() || it.intent != RecycleNone
}

// Get returns the effective value of a field. Pending changes win over the
// snapshot; removed and absent fields report false.
func (it *Item) Get(name string) (field.Value, bool) {
	if c, ok := it.changes[name]; ok {
		if c.Kind == ChangeRemove {
			return field.Null(), false
		}
		return c.Value, true
	}
	v, ok := it.fields[name]
	return v, ok
}

// Value returns the effective value of a field, or def.
func (it *Item) Value(name string, def field.Value) field.Value {
	if v, ok := it.Get(name); ok {
		return v
	}
	return def
}

// Names lists the fields that currently have a value, sorted.
func (it *Item) Names() []string {
	names := make([]string, 0, len(it.fields)+len(it.changes))
	for name := range it.fields {
		if _, ok := it.Get(name); ok {
			names = append(names, name)
		}
	}
	for name, c := range it.changes {
		if c.Kind == ChangeAdd {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Fields returns a copy of every effective field value.
func (it *Item) Fields() map[string]field.Value {
	out := make(map[string]field.Value, len(it.fields)+len(it.changes))
	for _, name := range it.Names() {
		out[name], _ = it.Get(name)
	}
	return out
}

// GetString returns the string value of a field, or def when it is unset.
// The typed getters below fail with apperror.ErrTypeMismatch.
func (it *Item) GetString(name, def string) (string, error) {
	v, ok := it.Get(name)
	if !ok {
		return def, nil
	}
	return v.AsString()
}

func (it *Item) GetInt(name string, def int64) (int64, error) {
	v, ok := it.Get(name)
	if !ok {
		return def, nil
	}
	return v.AsInt()
}

func (it *Item) GetFloat(name string, def float64) (float64, error) {
	v, ok := it.Get(name)
	if !ok {
		return def, nil
	}
	return v.AsFloat()
}

func (it *Item) GetBool(name string, def bool) (bool, error) {
	v, ok := it.Get(name)
	if !ok {
		return def, nil
	}
	return v.AsBool()
}

func (it *Item) GetTime(name string, def time.Time) (time.Time, error) {
	v, ok := it.Get(name)
	if !ok {
		return def, nil
	}
	return v.AsTime()
}

func (it *Item) GetIdentity(name string, def field.Identity) (field.Identity, error) {
	v, ok := it.Get(name)
	if !ok {
		return def, nil
	}
	return v.AsIdentity()
}

func (it *Item) readOnlyError() error {
	return apperror.ErrReadOnly.WithMessagef("item %s at revision %d is read-only", it.id, it.rev)
}

// Set records a change of one field. Setting the snapshot value again
// cancels the pending change; setting Null removes the field.
func (it *Item) Set(name string, v field.Value) error {
	if it.readOnly {
		return it.readOnlyError()
	}
	if name == "" {
		return apperror.NewBadRequest("field name must not be empty")
	}

	old, present := it.fields[name]
	switch {
	case v.IsNull() && !present:
		delete(it.changes, name)
	case v.IsNull():
		it.changes[name] = FieldChange{Name: name, Kind: ChangeRemove}
	case present && old.Equal(v):
		delete(it.changes, name)
	case present:
		it.changes[name] = FieldChange{Name: name, Kind: ChangeReplace, Value: v}
	default:
		it.changes[name] = FieldChange{Name: name, Kind: ChangeAdd, Value: v}
	}
	return nil
}

// SetValue converts x with field.Of and sets it.
func (it *Item) SetValue(name string, x any) error {
	v, err := field.Of(x)
	if err != nil {
		return err
	}
	return it.Set(name, v)
}

// Clear removes a field.
func (it *Item) Clear(name string) error {
	return it.Set(name, field.Null())
}

// FieldChanges lists pending field changes sorted by field name.
func (it *Item) FieldChanges() []FieldChange {
	out := make([]FieldChange, 0, len(it.changes))
	for _, name := range slices.Sorted(maps.Keys(it.changes)) {
		out = append(out, it.changes[name])
	}
	return out
}

// MarkForDelete requests moving the item to the recycle bin. Requesting it
// for an item that is already deleted cancels any pending intent.
func (it *Item) MarkForDelete() error {
	return it.setIntent(RecycleDelete)
}

// MarkForRestore requests restoring the item from the recycle bin.
func (it *Item) MarkForRestore() error {
	return it.setIntent(RecycleRestore)
}

func (it *Item) setIntent(intent RecycleIntent) error {
	if it.readOnly {
		return it.readOnlyError()
	}
	if (intent == RecycleDelete) == it.deleted {
		it.intent = RecycleNone
		return nil
	}
	it.intent = intent
	return nil
}

// AssignPermanentIdentity gives a new item the id the store assigned to it
// and rewrites every link holding its temporary id. With
// preserveFieldChanges the pending field changes are taken as persisted and
// folded into the snapshot.
func (it *Item) AssignPermanentIdentity(id int64, preserveFieldChanges bool) error {
	if it.id.IsPermanent() {
		return apperror.ErrAlreadyPermanent.WithMessagef("item %s already has a permanent id", it.id)
	}
	if err := it.reg.Remap(it.id, itemid.Permanent(id)); err != nil {
		return err
	}
	if preserveFieldChanges {
		it.foldFieldChanges()
	}
	return nil
}

func (it *Item) foldFieldChanges() {
	for name, c := range it.changes {
		if c.Kind == ChangeRemove {
			delete(it.fields, name)
		} else {
			it.fields[name] = c.Value
		}
	}
	clear(it.changes)
}

// MarkSaved records that the store accepted the pending field changes, and
// with withRelations also the relation changes, at revision rev.
func (it *Item) MarkSaved(rev int, url string, withRelations bool) {
	it.foldFieldChanges()
	if withRelations {
		it.relations.rebase()
	}
	it.rev = rev
	if url != "" {
		it.url = url
	}
}

// MarkRecycled records that the pending recycle intent was persisted. It is
// the only place the deleted state changes after the wrapper is built.
func (it *Item) MarkRecycled(rev int, url string) {
	switch it.intent {
	case RecycleDelete:
		it.deleted = true
	case RecycleRestore:
		it.deleted = false
	}
	it.intent = RecycleNone
	it.rev = rev
	if url != "" {
		it.url = url
	}
}

// ReplaceIdentity implements registry.Referrer.
func (it *Item) ReplaceIdentity(from, to itemid.ID, url string) {
	if it.id == from {
		it.id = to
		it.url = url
	}
	it.relations.replaceTarget(from, to, url)
}

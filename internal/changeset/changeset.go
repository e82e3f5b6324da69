// Package changeset reads YAML changesets and applies them to a batch.
//
// A changeset names existing items by id and new items by a local alias:
//
//	items:
//	  - alias: epic
//	    fields:
//	      Title: Checkout revamp
//	  - alias: story
//	    fields:
//	      Title: Pay by invoice
//	      AssignedTo: {displayName: Ann}
//	    links:
//	      - {kind: parent, to: epic}
//	  - id: 42
//	    clear: [Description]
//	    unlink:
//	      - {kind: related, to: 7}
//	    delete: true
package changeset

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BobSilent/aggregator-cli/pkg/apperror"
	"github.com/BobSilent/aggregator-cli/pkg/batch"
	"github.com/BobSilent/aggregator-cli/pkg/field"
	"github.com/BobSilent/aggregator-cli/pkg/item"
	"github.com/BobSilent/aggregator-cli/pkg/itemid"
)

// Changeset is a list of item edits.
type Changeset struct {
	Items []Entry `yaml:"items"`
}

// Entry edits one item. Either ID names an existing item or Alias names a
// new one; an existing item may carry an alias too so links can name it.
type Entry struct {
	ID      int64          `yaml:"id,omitempty"`
	Alias   string         `yaml:"alias,omitempty"`
	Fields  map[string]any `yaml:"fields,omitempty"`
	Clear   []string       `yaml:"clear,omitempty"`
	Links   []Link         `yaml:"links,omitempty"`
	Unlink  []Link         `yaml:"unlink,omitempty"`
	Delete  bool           `yaml:"delete,omitempty"`
	Restore bool           `yaml:"restore,omitempty"`
}

// Link names a relation. To is an alias or an item id; hyperlinks use URL.
type Link struct {
	Kind    string `yaml:"kind"`
	To      Ref    `yaml:"to,omitempty"`
	URL     string `yaml:"url,omitempty"`
	Comment string `yaml:"comment,omitempty"`
}

// Ref is an alias or a numeric item id.
type Ref string

// UnmarshalYAML accepts any scalar so `to: 42` and `to: epic` both work.
func (r *Ref) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: link target must be an alias or an id", node.Line)
	}
	*r = Ref(node.Value)
	return nil
}

// ID returns the item id r names, if it is numeric.
func (r Ref) ID() (int64, bool) {
	id, err := strconv.ParseInt(string(r), 10, 64)
	return id, err == nil && id > 0
}

var kinds = map[string]string{
	"parent":    item.KindParent,
	"child":     item.KindChild,
	"related":   item.KindRelated,
	"hyperlink": item.KindHyperlink,
}

// LinkKind expands the short kind names parent, child, related and
// hyperlink. Other kinds pass through unchanged.
func LinkKind(kind string) string {
	if k, ok := kinds[strings.ToLower(kind)]; ok {
		return k
	}
	return kind
}

// Parse decodes and validates a changeset.
func Parse(data []byte) (*Changeset, error) {
	var cs Changeset
	if err := yaml.Unmarshal(data, &cs); err != nil {
		return nil, apperror.NewBadRequest("invalid changeset: " + err.Error())
	}
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	return &cs, nil
}

// Load reads a changeset file.
func Load(path string) (*Changeset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Validate checks that every entry names one item and every link target
// is known.
func (cs *Changeset) Validate() error {
	aliases := make(map[string]bool)
	ids := make(map[int64]bool)
	for i, e := range cs.Items {
		switch {
		case e.ID < 0:
			return entryError(i, "id must be positive")
		case e.ID == 0 && e.Alias == "":
			return entryError(i, "id or alias is required")
		case e.ID == 0 && e.Restore:
			return entryError(i, "a new item cannot be restored")
		case e.Delete && e.Restore:
			return entryError(i, "delete and restore are exclusive")
		}
		if e.Alias != "" {
			if _, numeric := Ref(e.Alias).ID(); numeric {
				return entryError(i, "alias %q must not be numeric", e.Alias)
			}
			if aliases[e.Alias] {
				return entryError(i, "duplicate alias %q", e.Alias)
			}
			aliases[e.Alias] = true
		}
		if e.ID != 0 {
			if ids[e.ID] {
				return entryError(i, "item %d is listed twice", e.ID)
			}
			ids[e.ID] = true
		}
	}

	for i, e := range cs.Items {
		for _, l := range append(e.Links, e.Unlink...) {
			if l.Kind == "" {
				return entryError(i, "link kind is required")
			}
			if LinkKind(l.Kind) == item.KindHyperlink {
				if l.URL == "" {
					return entryError(i, "hyperlink needs a url")
				}
				continue
			}
			if _, ok := l.To.ID(); ok {
				continue
			}
			if l.To == "" {
				return entryError(i, "link %s needs a target", l.Kind)
			}
			if !aliases[string(l.To)] {
				return entryError(i, "unknown alias %q", l.To)
			}
		}
	}
	return nil
}

func entryError(i int, format string, args ...any) error {
	return apperror.NewBadRequest(fmt.Sprintf("item %d: ", i+1) + fmt.Sprintf(format, args...))
}

// Applied maps a changeset to the wrappers it edited.
type Applied struct {
	// Items holds one wrapper per entry, in entry order.
	Items   []*item.Item
	Aliases map[string]*item.Item
}

// Apply loads the existing items of cs into b, creates the new ones and
// records every edit. Nothing is saved.
func Apply(ctx context.Context, b *batch.Batch, cs *Changeset) (*Applied, error) {
	if err := cs.Validate(); err != nil {
		return nil, err
	}

	var ids []int64
	for _, e := range cs.Items {
		if e.ID != 0 {
			ids = append(ids, e.ID)
		}
	}
	if _, err := b.GetMany(ctx, ids); err != nil {
		return nil, err
	}

	a := &Applied{Aliases: make(map[string]*item.Item)}
	for _, e := range cs.Items {
		var it *item.Item
		if e.ID != 0 {
			var ok bool
			if it, ok = b.Registry().Owner(itemid.Permanent(e.ID)); !ok {
				return nil, apperror.NewNotFound("item", strconv.FormatInt(e.ID, 10))
			}
		} else {
			var err error
			if it, err = b.New(nil); err != nil {
				return nil, err
			}
		}
		if e.Alias != "" {
			a.Aliases[e.Alias] = it
		}
		a.Items = append(a.Items, it)
	}

	for i, e := range cs.Items {
		if err := a.edit(b, a.Items[i], e); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
	}
	return a, nil
}

func (a *Applied) edit(b *batch.Batch, it *item.Item, e Entry) error {
	for _, name := range slices.Sorted(maps.Keys(e.Fields)) {
		v, err := field.FromWire(e.Fields[name])
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		if err := it.Set(name, v); err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
	}
	for _, name := range e.Clear {
		if err := it.Clear(name); err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
	}

	for _, l := range e.Links {
		kind, url := a.target(b, l)
		if err := it.Relations().AddLink(kind, url, l.Comment); err != nil {
			return err
		}
	}
	for _, l := range e.Unlink {
		kind, url := a.target(b, l)
		if err := it.Relations().RemoveLink(kind, url); err != nil {
			return err
		}
	}

	switch {
	case e.Delete:
		return it.MarkForDelete()
	case e.Restore:
		return it.MarkForRestore()
	}
	return nil
}

// target resolves the kind and URL of l. Aliases resolve to the tracked
// wrapper, so a new target is addressed by its temporary URL.
func (a *Applied) target(b *batch.Batch, l Link) (string, string) {
	kind := LinkKind(l.Kind)
	if kind == item.KindHyperlink {
		return kind, l.URL
	}
	if it, ok := a.Aliases[string(l.To)]; ok {
		return kind, it.URL()
	}
	id, _ := l.To.ID()
	return kind, b.Registry().ItemURL(itemid.Permanent(id))
}

// Package patch renders the pending changes of an item as a patch document.
package patch

import (
	"github.com/BobSilent/aggregator-cli/pkg/field"
	"github.com/BobSilent/aggregator-cli/pkg/item"
	"github.com/BobSilent/aggregator-cli/pkg/jsonpatch"
)

// Translator converts a field value into its wire representation.
type Translator func(name string, v field.Value) any

// DefaultTranslate sends identity references by display name and every
// other value as is.
func DefaultTranslate(_ string, v field.Value) any {
	if id, err := v.AsIdentity(); err == nil {
		return id.DisplayName
	}
	return v.Wire()
}

// Options selects what Build renders.
type Options struct {
	// IncludeRelations adds relation removals and additions.
	IncludeRelations bool
	// IncludeRevisionPrecondition starts the document with a test on /rev.
	// It is skipped for items that do not exist remotely.
	IncludeRevisionPrecondition bool
	// Translate overrides DefaultTranslate.
	Translate Translator
}

// Full renders everything, guarded by the revision precondition.
var Full = Options{IncludeRelations: true, IncludeRevisionPrecondition: true}

// Build renders the pending changes of it. Operations come in three
// sections: the precondition, field changes by field name, then relation
// removals followed by relation additions. Building an unchanged item twice
// gives the same document.
func Build(it *item.Item, opts Options) jsonpatch.Document {
	translate := opts.Translate
	if translate == nil {
		translate = DefaultTranslate
	}

	doc := jsonpatch.Document{}
	if opts.IncludeRevisionPrecondition && it.ID().IsPermanent() {
		doc = append(doc, jsonpatch.Test(jsonpatch.PathRev, it.Revision()))
	}

	for _, c := range it.FieldChanges() {
		op := jsonpatch.Op{Path: jsonpatch.FieldPath(c.Name)}
		switch c.Kind {
		case item.ChangeAdd:
			op.Op, op.Value = jsonpatch.OpAdd, translate(c.Name, c.Value)
		case item.ChangeReplace:
			op.Op, op.Value = jsonpatch.OpReplace, translate(c.Name, c.Value)
		case item.ChangeRemove:
			op.Op = jsonpatch.OpRemove
		default:
			continue
		}
		doc = append(doc, op)
	}

	if opts.IncludeRelations {
		doc = append(doc, Relations(it.Relations().Diff())...)
	}
	return doc
}

// Relations renders a relation diff.
func Relations(d item.Diff) jsonpatch.Document {
	doc := make(jsonpatch.Document, 0, len(d.Removed)+len(d.Added))
	for _, r := range d.Removed {
		doc = append(doc, jsonpatch.Op{Op: jsonpatch.OpRemove, Path: jsonpatch.PathRelations, Value: r.Index})
	}
	for _, l := range d.Added {
		doc = append(doc, jsonpatch.Op{Op: jsonpatch.OpAdd, Path: jsonpatch.PathRelations, Value: LinkValue(l)})
	}
	return doc
}

// LinkValue is the wire value of a relation addition.
func LinkValue(l item.Link) jsonpatch.RelationValue {
	v := jsonpatch.RelationValue{Rel: l.Kind, URL: l.URL}
	if l.Comment != "" {
		v.Attributes = &jsonpatch.RelationAttributes{Comment: l.Comment}
	}
	return v
}

// NeedsUpdate reports whether saving it with opts would change anything.
func NeedsUpdate(it *item.Item, opts Options) bool {
	return !Build(it, opts).IsEmpty()
}

// Package patchapply executes patch documents against item snapshots. It is
// the server half of pkg/patch and is shared by the store implementations.
package patchapply

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/BobSilent/aggregator-cli/pkg/apperror"
	"github.com/BobSilent/aggregator-cli/pkg/field"
	"github.com/BobSilent/aggregator-cli/pkg/jsonpatch"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
)

const relationsPrefix = "/relations/"

// Apply runs doc against a copy of snap and returns the result. The input
// is never modified; on error nothing is applied. Revision and URL are left
// for the caller to advance.
func Apply(snap *remote.Snapshot, doc jsonpatch.Document) (*remote.Snapshot, error) {
	out := Clone(snap)
	for i, op := range doc {
		if err := applyOp(out, op); err != nil {
			return nil, withOp(err, i, op)
		}
	}
	return out, nil
}

// Clone deep-copies a snapshot.
func Clone(snap *remote.Snapshot) *remote.Snapshot {
	out := *snap
	out.Fields = maps.Clone(snap.Fields)
	if out.Fields == nil {
		out.Fields = make(map[string]field.Value)
	}
	out.Relations = make([]remote.Relation, len(snap.Relations))
	for i, r := range snap.Relations {
		r.Attributes = maps.Clone(r.Attributes)
		out.Relations[i] = r
	}
	return &out
}

func withOp(err error, index int, op jsonpatch.Op) error {
	appErr, ok := err.(*apperror.Error)
	if !ok {
		return err
	}
	return appErr.WithDetails(map[string]any{
		"index": index,
		"op":    string(op.Op),
		"path":  op.Path,
	})
}

func rejected(format string, args ...any) error {
	return apperror.ErrRejected.WithMessagef(format, args...)
}

func applyOp(s *remote.Snapshot, op jsonpatch.Op) error {
	switch {
	case op.Path == jsonpatch.PathRev:
		return testScalar(op, "rev", int64(s.Rev))
	case op.Path == jsonpatch.PathID:
		return testScalar(op, "id", s.ID)
	case strings.HasPrefix(op.Path, relationsPrefix):
		return applyRelation(s, op)
	}

	name, ok := jsonpatch.FieldName(op.Path)
	if !ok {
		return rejected("unsupported path %q", op.Path)
	}
	return applyField(s, name, op)
}

func testScalar(op jsonpatch.Op, what string, current int64) error {
	if op.Op != jsonpatch.OpTest {
		return rejected("/%s only supports test", what)
	}
	want, ok := op.Index()
	if !ok {
		return rejected("test /%s needs an integer value", what)
	}
	if int64(want) != current {
		return apperror.ErrConflict.WithMessagef("%s is %d, expected %d", what, current, want)
	}
	return nil
}

func applyField(s *remote.Snapshot, name string, op jsonpatch.Op) error {
	cur, present := s.Fields[name]
	switch op.Op {
	case jsonpatch.OpTest:
		v, err := field.FromWire(op.Value)
		if err != nil {
			return rejected("field %s: %v", name, err)
		}
		if !present && v.IsNull() {
			return nil
		}
		if !present || !cur.Equal(v) {
			return apperror.ErrConflict.WithMessagef("field %s does not match", name)
		}
		return nil
	case jsonpatch.OpAdd, jsonpatch.OpReplace:
		if op.Op == jsonpatch.OpReplace && !present {
			return rejected("cannot replace missing field %s", name)
		}
		v, err := field.FromWire(op.Value)
		if err != nil {
			return rejected("field %s: %v", name, err)
		}
		if v.IsNull() {
			delete(s.Fields, name)
		} else {
			s.Fields[name] = v
		}
		return nil
	case jsonpatch.OpRemove:
		if !present {
			return rejected("cannot remove missing field %s", name)
		}
		delete(s.Fields, name)
		return nil
	default:
		return rejected("unsupported op %q", op.Op)
	}
}

func applyRelation(s *remote.Snapshot, op jsonpatch.Op) error {
	target := strings.TrimPrefix(op.Path, relationsPrefix)

	switch op.Op {
	case jsonpatch.OpAdd:
		if target != "-" {
			return rejected("relations can only be appended")
		}
		rv, ok := op.Relation()
		if !ok {
			return rejected("relation value needs rel and url")
		}
		if slices.ContainsFunc(s.Relations, func(r remote.Relation) bool {
			return r.Rel == rv.Rel && r.URL == rv.URL
		}) {
			return rejected("relation %s to %s already exists", rv.Rel, rv.URL)
		}
		rel := remote.Relation{Rel: rv.Rel, URL: rv.URL}
		if rv.Attributes != nil && rv.Attributes.Comment != "" {
			rel.Attributes = map[string]any{"comment": rv.Attributes.Comment}
		}
		s.Relations = append(s.Relations, rel)
		return nil
	case jsonpatch.OpRemove:
		idx, ok := relationIndex(target, op)
		if !ok {
			return rejected("relation removal needs an index")
		}
		if idx < 0 || idx >= len(s.Relations) {
			return rejected("relation index %d out of range", idx)
		}
		s.Relations = slices.Delete(s.Relations, idx, idx+1)
		return nil
	default:
		return rejected("unsupported relation op %q", op.Op)
	}
}

// relationIndex accepts both /relations/- with the index as value and the
// plain RFC 6902 form /relations/{index}.
func relationIndex(target string, op jsonpatch.Op) (int, bool) {
	if target == "-" {
		return op.Index()
	}
	i, err := strconv.Atoi(target)
	return i, err == nil
}

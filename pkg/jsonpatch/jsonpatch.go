// Package jsonpatch models the patch documents exchanged with item stores.
//
// A document is a JSON array of operations in the shape of RFC 6902:
//
//	[
//	  {"op": "test", "path": "/rev", "value": 4},
//	  {"op": "replace", "path": "/fields/Title", "value": "B"},
//	  {"op": "remove", "path": "/relations/-", "value": 2},
//	  {"op": "add", "path": "/relations/-", "value": {"rel": "...", "url": "..."}}
//	]
//
// Relation removal addresses the baseline link by index through the value,
// relation additions always append.
package jsonpatch

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Operation is the verb of a patch operation.
type Operation string

const (
	OpTest    Operation = "test"
	OpAdd     Operation = "add"
	OpReplace Operation = "replace"
	OpRemove  Operation = "remove"
)

// Well-known paths.
const (
	PathRev       = "/rev"
	PathID        = "/id"
	PathRelations = "/relations/-"
	fieldsPrefix  = "/fields/"
)

// Op is one patch operation.
type Op struct {
	Op    Operation `json:"op"`
	Path  string    `json:"path"`
	From  string    `json:"from,omitempty"`
	Value any       `json:"value"`
}

// Document is an ordered list of operations.
type Document []Op

// RelationValue is the value of a relation add operation.
type RelationValue struct {
	Rel        string              `json:"rel"`
	URL        string              `json:"url"`
	Attributes *RelationAttributes `json:"attributes,omitempty"`
}

// RelationAttributes carries the optional link comment.
type RelationAttributes struct {
	Comment string `json:"comment,omitempty"`
}

var (
	pointerEscaper   = strings.NewReplacer("~", "~0", "/", "~1")
	pointerUnescaper = strings.NewReplacer("~1", "/", "~0", "~")
)

// FieldPath returns the JSON pointer for a field, escaping "~" and "/".
func FieldPath(name string) string {
	return fieldsPrefix + pointerEscaper.Replace(name)
}

// FieldName is the inverse of FieldPath.
func FieldName(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, fieldsPrefix)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return pointerUnescaper.Replace(rest), true
}

// Test builds a test operation.
func Test(path string, value any) Op { return Op{Op: OpTest, Path: path, Value: value} }

// IsEmpty reports whether the document does nothing beyond preconditions.
func (d Document) IsEmpty() bool {
	for _, op := range d {
		if op.Op != OpTest {
			return false
		}
	}
	return true
}

// Marshal renders the document as compact JSON.
func (d Document) Marshal() ([]byte, error) {
	if d == nil {
		d = Document{}
	}
	return json.Marshal([]Op(d))
}

// Decode parses a document. Numbers are kept as json.Number.
func Decode(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Relation decodes the value of a relation add operation, whether it was
// built in process or decoded from JSON.
func (op Op) Relation() (RelationValue, bool) {
	switch v := op.Value.(type) {
	case RelationValue:
		return v, true
	case *RelationValue:
		if v == nil {
			return RelationValue{}, false
		}
		return *v, true
	case map[string]any:
		var rv RelationValue
		rv.Rel, _ = v["rel"].(string)
		rv.URL, _ = v["url"].(string)
		if attrs, ok := v["attributes"].(map[string]any); ok {
			if c, _ := attrs["comment"].(string); c != "" {
				rv.Attributes = &RelationAttributes{Comment: c}
			}
		}
		return rv, rv.Rel != "" && rv.URL != ""
	}
	return RelationValue{}, false
}

// Index decodes an integer operation value such as a relation index or
// revision.
func (op Op) Index() (int, bool) {
	switch v := op.Value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	case json.Number:
		i, err := v.Int64()
		return int(i), err == nil
	}
	return 0, false
}

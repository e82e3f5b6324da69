package patchapply

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BobSilent/aggregator-cli/pkg/apperror"
	"github.com/BobSilent/aggregator-cli/pkg/field"
	"github.com/BobSilent/aggregator-cli/pkg/jsonpatch"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
)

func base() *remote.Snapshot {
	return &remote.Snapshot{
		ID:  4,
		Rev: 3,
		Fields: map[string]field.Value{
			"Title": field.String("A"),
			"Tags":  field.String("x"),
		},
		Relations: []remote.Relation{
			{Rel: "r", URL: "u/1"},
			{Rel: "r", URL: "u/2"},
			{Rel: "r", URL: "u/3"},
		},
	}
}

func TestApplyFullDocument(t *testing.T) {
	doc := jsonpatch.Document{
		jsonpatch.Test(jsonpatch.PathRev, 3),
		{Op: jsonpatch.OpAdd, Path: jsonpatch.FieldPath("Effort"), Value: int64(5)},
		{Op: jsonpatch.OpRemove, Path: jsonpatch.FieldPath("Tags")},
		{Op: jsonpatch.OpReplace, Path: jsonpatch.FieldPath("Title"), Value: "B"},
		{Op: jsonpatch.OpRemove, Path: jsonpatch.PathRelations, Value: 2},
		{Op: jsonpatch.OpRemove, Path: jsonpatch.PathRelations, Value: 0},
		{Op: jsonpatch.OpAdd, Path: jsonpatch.PathRelations, Value: jsonpatch.RelationValue{
			Rel: "r", URL: "u/9", Attributes: &jsonpatch.RelationAttributes{Comment: "new"},
		}},
	}

	in := base()
	out, err := Apply(in, doc)
	require.NoError(t, err)

	assert.Equal(t, map[string]field.Value{"Title": field.String("B"), "Effort": field.Int(5)}, out.Fields)
	assert.Equal(t, []remote.Relation{
		{Rel: "r", URL: "u/2"},
		{Rel: "r", URL: "u/9", Attributes: map[string]any{"comment": "new"}},
	}, out.Relations)

	assert.Equal(t, base(), in, "input snapshot is not modified")
}

func TestApplyDecodedDocument(t *testing.T) {
	doc, err := jsonpatch.Decode([]byte(`[
		{"op":"test","path":"/rev","value":3},
		{"op":"remove","path":"/relations/1"},
		{"op":"add","path":"/fields/Owner","value":{"displayName":"Ann"}},
		{"op":"add","path":"/relations/-","value":{"rel":"q","url":"u/7"}}
	]`))
	require.NoError(t, err)

	out, err := Apply(base(), doc)
	require.NoError(t, err)
	assert.Len(t, out.Relations, 3)
	assert.Equal(t, "u/3", out.Relations[1].URL)
	who, err := out.Fields["Owner"].AsIdentity()
	require.NoError(t, err)
	assert.Equal(t, "Ann", who.DisplayName)
}

func TestApplyErrors(t *testing.T) {
	tests := []struct {
		name string
		op   jsonpatch.Op
		want *apperror.Error
	}{
		{"stale revision", jsonpatch.Test(jsonpatch.PathRev, 2), apperror.ErrConflict},
		{"wrong id", jsonpatch.Test(jsonpatch.PathID, 5), apperror.ErrConflict},
		{"field test mismatch", jsonpatch.Test(jsonpatch.FieldPath("Title"), "Z"), apperror.ErrConflict},
		{"replace rev", jsonpatch.Op{Op: jsonpatch.OpReplace, Path: jsonpatch.PathRev, Value: 9}, apperror.ErrRejected},
		{"replace missing", jsonpatch.Op{Op: jsonpatch.OpReplace, Path: jsonpatch.FieldPath("Nope"), Value: "x"}, apperror.ErrRejected},
		{"remove missing", jsonpatch.Op{Op: jsonpatch.OpRemove, Path: jsonpatch.FieldPath("Nope")}, apperror.ErrRejected},
		{"unknown path", jsonpatch.Op{Op: jsonpatch.OpAdd, Path: "/other", Value: 1}, apperror.ErrRejected},
		{"bad field value", jsonpatch.Op{Op: jsonpatch.OpAdd, Path: jsonpatch.FieldPath("X"), Value: []int{1}}, apperror.ErrRejected},
		{"index out of range", jsonpatch.Op{Op: jsonpatch.OpRemove, Path: jsonpatch.PathRelations, Value: 3}, apperror.ErrRejected},
		{"index missing", jsonpatch.Op{Op: jsonpatch.OpRemove, Path: jsonpatch.PathRelations}, apperror.ErrRejected},
		{"duplicate relation", jsonpatch.Op{Op: jsonpatch.OpAdd, Path: jsonpatch.PathRelations, Value: jsonpatch.RelationValue{Rel: "r", URL: "u/1"}}, apperror.ErrRejected},
		{"insert relation", jsonpatch.Op{Op: jsonpatch.OpAdd, Path: "/relations/0", Value: jsonpatch.RelationValue{Rel: "r", URL: "u/8"}}, apperror.ErrRejected},
		{"replace relation", jsonpatch.Op{Op: jsonpatch.OpReplace, Path: "/relations/0", Value: 1}, apperror.ErrRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := jsonpatch.Document{
				{Op: jsonpatch.OpReplace, Path: jsonpatch.FieldPath("Title"), Value: "changed first"},
				tt.op,
			}
			out, err := Apply(base(), doc)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, tt.want)

			var appErr *apperror.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, 1, appErr.Details["index"])
		})
	}
}

func TestApplyFieldTestPasses(t *testing.T) {
	_, err := Apply(base(), jsonpatch.Document{
		jsonpatch.Test(jsonpatch.FieldPath("Title"), "A"),
		jsonpatch.Test(jsonpatch.FieldPath("Absent"), nil),
		jsonpatch.Test(jsonpatch.PathID, 4),
	})
	assert.NoError(t, err)
}

func TestCloneEmpty(t *testing.T) {
	out := Clone(&remote.Snapshot{})
	assert.NotNil(t, out.Fields)
	assert.Empty(t, out.Relations)
}

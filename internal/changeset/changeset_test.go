package changeset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BobSilent/aggregator-cli/internal/changeset"
	"github.com/BobSilent/aggregator-cli/pkg/apperror"
	"github.com/BobSilent/aggregator-cli/pkg/batch"
	"github.com/BobSilent/aggregator-cli/pkg/field"
	"github.com/BobSilent/aggregator-cli/pkg/item"
	"github.com/BobSilent/aggregator-cli/pkg/itemid"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
	"github.com/BobSilent/aggregator-cli/pkg/store/memstore"
)

func TestLinkKind(t *testing.T) {
	tests := map[string]string{
		"parent":                  item.KindParent,
		"Child":                   item.KindChild,
		"related":                 item.KindRelated,
		"hyperlink":               item.KindHyperlink,
		"System.LinkTypes.Custom": "System.LinkTypes.Custom",
	}
	for in, want := range tests {
		assert.Equal(t, want, changeset.LinkKind(in), in)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "valid",
			yaml: `
items:
  - alias: epic
    fields: {Title: Epic}
  - id: 3
    links:
      - {kind: parent, to: epic}
      - {kind: related, to: 9}
      - {kind: hyperlink, url: "https://example.com"}
`,
		},
		{name: "bad yaml", yaml: "items: [", wantErr: "invalid changeset"},
		{name: "no id or alias", yaml: "items:\n  - fields: {Title: x}\n", wantErr: "id or alias is required"},
		{name: "negative id", yaml: "items:\n  - id: -1\n", wantErr: "id must be positive"},
		{name: "duplicate alias", yaml: "items:\n  - alias: a\n  - alias: a\n", wantErr: `duplicate alias "a"`},
		{name: "duplicate id", yaml: "items:\n  - id: 1\n  - id: 1\n", wantErr: "item 1 is listed twice"},
		{name: "numeric alias", yaml: "items:\n  - alias: \"12\"\n", wantErr: "must not be numeric"},
		{name: "delete and restore", yaml: "items:\n  - id: 1\n    delete: true\n    restore: true\n", wantErr: "exclusive"},
		{name: "restore new", yaml: "items:\n  - alias: a\n    restore: true\n", wantErr: "cannot be restored"},
		{name: "unknown alias", yaml: "items:\n  - id: 1\n    links: [{kind: child, to: nope}]\n", wantErr: `unknown alias "nope"`},
		{name: "no target", yaml: "items:\n  - id: 1\n    unlink: [{kind: child}]\n", wantErr: "needs a target"},
		{name: "no kind", yaml: "items:\n  - id: 1\n    links: [{to: 2}]\n", wantErr: "kind is required"},
		{name: "hyperlink without url", yaml: "items:\n  - id: 1\n    links: [{kind: hyperlink}]\n", wantErr: "needs a url"},
		{name: "target is a list", yaml: "items:\n  - id: 1\n    links: [{kind: child, to: [1]}]\n", wantErr: "alias or an id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs, err := changeset.Parse([]byte(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperror.ErrBadRequest)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, cs.Items, 2)
			id, ok := cs.Items[1].Links[1].To.ID()
			assert.True(t, ok)
			assert.Equal(t, int64(9), id)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("items:\n  - id: 4\n    delete: true\n"), 0o644))

	cs, err := changeset.Load(path)
	require.NoError(t, err)
	require.Len(t, cs.Items, 1)
	assert.Equal(t, int64(4), cs.Items[0].ID)
	assert.True(t, cs.Items[0].Delete)

	_, err = changeset.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

const plan = `
items:
  - alias: epic
    fields:
      Title: Checkout revamp
  - alias: story
    fields:
      Title: Pay by invoice
      Priority: 2
      Effort: 1.5
      Blocked: false
      AssignedTo: {displayName: Ann, uniqueName: ann@example.com}
    links:
      - {kind: parent, to: epic}
  - id: 1
    alias: legacy
    fields:
      Title: renamed
    clear: [Description]
    unlink:
      - {kind: related, to: 2}
    links:
      - {kind: hyperlink, url: "https://wiki.example.com/checkout", comment: wiki}
      - {kind: related, to: story}
  - id: 2
    delete: true
`

func seed(t *testing.T) *memstore.Store {
	t.Helper()
	store := memstore.New("")
	store.Seed(
		map[string]field.Value{"Title": field.String("old"), "Description": field.String("d")},
		remote.Relation{Rel: item.KindRelated, URL: store.ItemURL(itemid.Permanent(2))},
	)
	store.Seed(map[string]field.Value{"Title": field.String("obsolete")})
	return store
}

func TestApply(t *testing.T) {
	store := seed(t)
	b := batch.New(store, batch.Options{})

	cs, err := changeset.Parse([]byte(plan))
	require.NoError(t, err)
	applied, err := changeset.Apply(t.Context(), b, cs)
	require.NoError(t, err)

	require.Len(t, applied.Items, 4)
	epic, story, legacy := applied.Aliases["epic"], applied.Aliases["story"], applied.Aliases["legacy"]
	assert.True(t, epic.IsNew())
	assert.True(t, story.IsNew())
	assert.Equal(t, itemid.Permanent(1), legacy.ID())
	assert.Same(t, legacy, applied.Items[2])

	priority, err := story.GetInt("Priority", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), priority)
	effort, err := story.GetFloat("Effort", 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, effort, 1e-9)
	who, err := story.GetIdentity("AssignedTo", field.Identity{})
	require.NoError(t, err)
	assert.Equal(t, "Ann", who.DisplayName)
	assert.Equal(t, []itemid.ID{epic.ID()}, story.Relations().TemporaryTargets())

	deleted := applied.Items[3]
	assert.Equal(t, item.RecycleDelete, deleted.RecycleIntent())

	res, err := b.Save(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count(batch.OutcomeCreated))

	head, err := store.FetchByID(t.Context(), 1, remote.Latest)
	require.NoError(t, err)
	assert.True(t, field.String("renamed").Equal(head.Fields["Title"]))
	assert.NotContains(t, head.Fields, "Description")
	require.Len(t, head.Relations, 2)
	assert.Equal(t, "https://wiki.example.com/checkout", head.Relations[0].URL)
	assert.Equal(t, "wiki", head.Relations[0].Comment())
	assert.Equal(t, story.URL(), head.Relations[1].URL)

	created, err := store.FetchByID(t.Context(), story.ID().Value(), remote.Latest)
	require.NoError(t, err)
	require.Len(t, created.Relations, 1)
	assert.Equal(t, epic.URL(), created.Relations[0].URL)
	assert.Equal(t, item.KindParent, created.Relations[0].Rel)

	gone, err := store.FetchByID(t.Context(), 2, remote.Latest)
	require.NoError(t, err)
	assert.True(t, remote.InRecycleBin(gone.URL))
}

func TestApplyDryRun(t *testing.T) {
	store := seed(t)
	b := batch.New(store, batch.Options{DryRun: true})

	cs, err := changeset.Parse([]byte(plan))
	require.NoError(t, err)
	_, err = changeset.Apply(t.Context(), b, cs)
	require.NoError(t, err)

	res, err := b.Save(t.Context())
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 4, res.Count(batch.OutcomePlanned))
	assert.Equal(t, []int64{1, 2}, store.IDs())
}

func TestApplyMissingItem(t *testing.T) {
	b := batch.New(memstore.New(""), batch.Options{})
	cs, err := changeset.Parse([]byte("items:\n  - id: 77\n    fields: {Title: x}\n"))
	require.NoError(t, err)

	_, err = changeset.Apply(t.Context(), b, cs)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestApplyRejectsUnsupportedValues(t *testing.T) {
	b := batch.New(memstore.New(""), batch.Options{})
	cs, err := changeset.Parse([]byte("items:\n  - alias: a\n    fields:\n      Tags: [x, y]\n"))
	require.NoError(t, err)

	_, err = changeset.Apply(t.Context(), b, cs)
	assert.ErrorIs(t, err, apperror.ErrTypeMismatch)
	assert.Contains(t, err.Error(), "field Tags")
}

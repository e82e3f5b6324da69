package testutil

import (
	"context"

	"github.com/stretchr/testify/suite"

	"github.com/BobSilent/aggregator-cli/pkg/apperror"
	"github.com/BobSilent/aggregator-cli/pkg/field"
	"github.com/BobSilent/aggregator-cli/pkg/itemid"
	"github.com/BobSilent/aggregator-cli/pkg/jsonpatch"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
)

// StoreSuite checks the behaviour every remote.Store has to provide.
//
// Usage:
//
//	func TestStore(t *testing.T) {
//	    suite.Run(t, &testutil.StoreSuite{
//	        NewStore: func() remote.Store { return memstore.New("") },
//	    })
//	}
type StoreSuite struct {
	suite.Suite

	// NewStore returns an empty store. It is called before every test.
	NewStore func() remote.Store

	Store remote.Store
	Ctx   context.Context
}

func (s *StoreSuite) SetupTest() {
	s.Ctx = context.Background()
	s.Store = s.NewStore()
}

func (s *StoreSuite) create(doc jsonpatch.Document) *remote.Created {
	created, err := s.Store.Create(s.Ctx, doc)
	s.Require().NoError(err)
	s.Require().NotNil(created)
	return created
}

func titleDoc(title string) jsonpatch.Document {
	return jsonpatch.Document{{Op: jsonpatch.OpAdd, Path: jsonpatch.FieldPath("Title"), Value: title}}
}

func (s *StoreSuite) TestCreateAndFetch() {
	doc := append(titleDoc("first"),
		jsonpatch.Op{Op: jsonpatch.OpAdd, Path: jsonpatch.FieldPath("Priority"), Value: 2},
		jsonpatch.Op{Op: jsonpatch.OpAdd, Path: jsonpatch.PathRelations, Value: jsonpatch.RelationValue{
			Rel: "Hyperlink", URL: "https://docs", Attributes: &jsonpatch.RelationAttributes{Comment: "docs"},
		}},
	)
	created := s.create(doc)
	s.Equal(1, created.Rev)
	s.NotEmpty(created.URL)

	snap, err := s.Store.FetchByID(s.Ctx, created.ID, remote.Latest)
	s.Require().NoError(err)
	s.Equal(created.ID, snap.ID)
	s.Equal(1, snap.Rev)
	s.Equal(created.URL, snap.URL)
	s.True(field.String("first").Equal(snap.Fields["Title"]))
	s.True(field.Int(2).Equal(snap.Fields["Priority"]))
	s.Require().Len(snap.Relations, 1)
	s.Equal("docs", snap.Relations[0].Comment())

	if loc, ok := s.Store.(remote.Locator); ok {
		s.Equal(created.URL, loc.ItemURL(itemid.Permanent(created.ID)))
	}
}

func (s *StoreSuite) TestCreateRejected() {
	_, err := s.Store.Create(s.Ctx, jsonpatch.Document{{Op: jsonpatch.OpRemove, Path: jsonpatch.FieldPath("Nope")}})
	s.ErrorIs(err, apperror.ErrRejected)
}

func (s *StoreSuite) TestApplyPatchKeepsHistory() {
	created := s.create(titleDoc("A"))

	rev, err := s.Store.ApplyPatch(s.Ctx, created.ID, jsonpatch.Document{
		jsonpatch.Test(jsonpatch.PathRev, 1),
		{Op: jsonpatch.OpReplace, Path: jsonpatch.FieldPath("Title"), Value: "B"},
	})
	s.Require().NoError(err)
	s.Equal(2, rev)

	head, err := s.Store.FetchByID(s.Ctx, created.ID, remote.Latest)
	s.Require().NoError(err)
	s.Equal(2, head.Rev)
	s.True(field.String("B").Equal(head.Fields["Title"]))

	first, err := s.Store.FetchByID(s.Ctx, created.ID, 1)
	s.Require().NoError(err)
	s.Equal(1, first.Rev)
	s.True(field.String("A").Equal(first.Fields["Title"]))
}

func (s *StoreSuite) TestApplyPatchConflict() {
	created := s.create(titleDoc("A"))
	_, err := s.Store.ApplyPatch(s.Ctx, created.ID, titleDoc("B"))
	s.Require().NoError(err)

	_, err = s.Store.ApplyPatch(s.Ctx, created.ID, jsonpatch.Document{
		jsonpatch.Test(jsonpatch.PathRev, 1),
		{Op: jsonpatch.OpReplace, Path: jsonpatch.FieldPath("Title"), Value: "stale"},
	})
	s.ErrorIs(err, apperror.ErrConflict)

	head, err := s.Store.FetchByID(s.Ctx, created.ID, remote.Latest)
	s.Require().NoError(err)
	s.Equal(2, head.Rev)
	s.True(field.String("B").Equal(head.Fields["Title"]))
}

func (s *StoreSuite) TestApplyPatchRejected() {
	created := s.create(titleDoc("A"))
	_, err := s.Store.ApplyPatch(s.Ctx, created.ID, jsonpatch.Document{
		{Op: jsonpatch.OpReplace, Path: jsonpatch.FieldPath("Title"), Value: "B"},
		{Op: jsonpatch.OpRemove, Path: jsonpatch.PathRelations, Value: 0},
	})
	s.ErrorIs(err, apperror.ErrRejected)

	head, err := s.Store.FetchByID(s.Ctx, created.ID, remote.Latest)
	s.Require().NoError(err)
	s.Equal(1, head.Rev, "a rejected patch is not partially applied")
	s.True(field.String("A").Equal(head.Fields["Title"]))
}

func (s *StoreSuite) TestNotFound() {
	_, err := s.Store.FetchByID(s.Ctx, 999_999, remote.Latest)
	s.ErrorIs(err, apperror.ErrNotFound)

	_, err = s.Store.ApplyPatch(s.Ctx, 999_999, titleDoc("x"))
	s.ErrorIs(err, apperror.ErrNotFound)

	created := s.create(titleDoc("A"))
	_, err = s.Store.FetchByID(s.Ctx, created.ID, 5)
	s.ErrorIs(err, apperror.ErrNotFound)
}

func (s *StoreSuite) TestFetchManySkipsMissing() {
	a := s.create(titleDoc("a"))
	b := s.create(titleDoc("b"))

	snaps, err := s.Store.FetchMany(s.Ctx, []int64{a.ID, 999_999, b.ID})
	s.Require().NoError(err)
	s.Require().Len(snaps, 2)

	ids := []int64{snaps[0].ID, snaps[1].ID}
	s.ElementsMatch([]int64{a.ID, b.ID}, ids)

	snaps, err = s.Store.FetchMany(s.Ctx, nil)
	s.Require().NoError(err)
	s.Empty(snaps)
}

func (s *StoreSuite) TestRecycle() {
	rec, ok := s.Store.(remote.Recycler)
	if !ok {
		s.T().Skip("store has no recycle bin")
	}
	created := s.create(titleDoc("A"))

	rev, err := rec.Recycle(s.Ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(2, rev)

	head, err := s.Store.FetchByID(s.Ctx, created.ID, remote.Latest)
	s.Require().NoError(err)
	s.True(remote.InRecycleBin(head.URL))

	rev, err = rec.Recycle(s.Ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(2, rev, "recycling twice does nothing")

	rev, err = rec.Restore(s.Ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(3, rev)

	head, err = s.Store.FetchByID(s.Ctx, created.ID, remote.Latest)
	s.Require().NoError(err)
	s.False(remote.InRecycleBin(head.URL))
}

func (s *StoreSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.Ctx)
	cancel()

	_, err := s.Store.Create(ctx, titleDoc("x"))
	s.ErrorIs(err, context.Canceled)
	_, err = s.Store.FetchByID(ctx, 1, remote.Latest)
	s.ErrorIs(err, context.Canceled)
}

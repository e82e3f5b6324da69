package item_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BobSilent/aggregator-cli/pkg/apperror"
	"github.com/BobSilent/aggregator-cli/pkg/field"
	"github.com/BobSilent/aggregator-cli/pkg/item"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
)

type historyFetcher struct {
	revs  map[int]*remote.Snapshot
	fail  map[int]error
	calls []int
}

func (h *historyFetcher) FetchByID(ctx context.Context, id int64, rev remote.Revision) (*remote.Snapshot, error) {
	h.calls = append(h.calls, int(rev))
	if err := h.fail[int(rev)]; err != nil {
		return nil, err
	}
	snap, ok := h.revs[int(rev)]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	return snap, nil
}

func history(n int) *historyFetcher {
	h := &historyFetcher{revs: map[int]*remote.Snapshot{}, fail: map[int]error{}}
	for rev := 1; rev <= n; rev++ {
		h.revs[rev] = snapshot(1, rev, map[string]field.Value{"Rev": field.Int(int64(rev))})
	}
	return h
}

func TestPreviousRevision(t *testing.T) {
	h := history(3)
	head := load(t, newRegistry(), h.revs[3])
	require.NoError(t, head.Set("Rev", field.Int(42)))

	prev, err := head.PreviousRevision(t.Context(), h)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, 2, prev.Revision())
	assert.True(t, prev.IsReadOnly())
	assert.Equal(t, field.Int(2), prev.Value("Rev", field.Null()))
	assert.Len(t, head.FieldChanges(), 1, "head is untouched")
}

func TestPreviousRevisionFirstAndNew(t *testing.T) {
	h := history(1)
	reg := newRegistry()
	first := load(t, reg, h.revs[1])

	prev, err := first.PreviousRevision(t.Context(), h)
	require.NoError(t, err)
	assert.Nil(t, prev)

	fresh, err := item.New(reg, nil)
	require.NoError(t, err)
	prev, err = fresh.PreviousRevision(t.Context(), h)
	require.NoError(t, err)
	assert.Nil(t, prev)
	assert.Empty(t, h.calls)
}

func TestPreviousRevisionCancelled(t *testing.T) {
	h := history(3)
	head := load(t, newRegistry(), h.revs[3])

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := head.PreviousRevision(ctx, h)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.calls, "no fetch after cancellation")
}

func TestRevisionWalker(t *testing.T) {
	h := history(4)
	head := load(t, newRegistry(), h.revs[4])

	var seen []int
	w := head.Revisions(h)
	for w.Next(t.Context()) {
		seen = append(seen, w.Item().Revision())
	}
	require.NoError(t, w.Err())
	assert.Equal(t, []int{3, 2, 1}, seen)
	assert.False(t, w.Next(t.Context()), "walker is not restartable")
	assert.Nil(t, w.Item())

	again := head.Revisions(h)
	require.True(t, again.Next(t.Context()))
	assert.Equal(t, 3, again.Item().Revision(), "a new walk starts from the head")
}

func TestRevisionWalkerError(t *testing.T) {
	h := history(4)
	boom := errors.New("network down")
	h.fail[2] = boom
	head := load(t, newRegistry(), h.revs[4])

	w := head.Revisions(h)
	require.True(t, w.Next(t.Context()))
	assert.False(t, w.Next(t.Context()))
	assert.ErrorIs(t, w.Err(), boom)
}

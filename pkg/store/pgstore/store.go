// Package pgstore is a remote.Store persisted in PostgreSQL through bun.
//
// Every save adds a row to item_revisions; the items row holds the head
// revision and is locked for the duration of the save.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/uptrace/bun"

	"github.com/BobSilent/aggregator-cli/pkg/apperror"
	"github.com/BobSilent/aggregator-cli/pkg/itemid"
	"github.com/BobSilent/aggregator-cli/pkg/jsonpatch"
	"github.com/BobSilent/aggregator-cli/pkg/logger"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
	"github.com/BobSilent/aggregator-cli/pkg/store/patchapply"
)

var (
	_ remote.Store    = (*Store)(nil)
	_ remote.Recycler = (*Store)(nil)
	_ remote.Locator  = (*Store)(nil)
)

// Store implements remote.Store on top of a bun database.
type Store struct {
	db   *bun.DB
	base string
	log  *slog.Logger
}

// New creates a store whose item URLs start with base.
func New(db *bun.DB, base string, log *slog.Logger) *Store {
	if log == nil {
		log = logger.Discard()
	}
	return &Store{db: db, base: base, log: log.With(logger.Scope("pgstore"))}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ItemURL implements remote.Locator.
func (s *Store) ItemURL(id itemid.ID) string {
	return itemid.URL(s.base, id)
}

func notFound(id int64) error {
	return apperror.NewNotFound("item", strconv.FormatInt(id, 10))
}

// FetchByID implements remote.Store.
func (s *Store) FetchByID(ctx context.Context, id int64, rev remote.Revision) (*remote.Snapshot, error) {
	var row revisionRow
	q := s.db.NewSelect().Model(&row).Where("r.item_id = ?", id)
	if rev == remote.Latest {
		q = q.OrderExpr("r.rev DESC").Limit(1)
	} else {
		q = q.Where("r.rev = ?", int(rev))
	}

	if err := q.Scan(ctx); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NewInternal("failed to load item", err)
		}
		if rev == remote.Latest {
			return nil, notFound(id)
		}
		return nil, apperror.ErrNotFound.WithMessagef("item %d has no revision %d", id, rev)
	}
	return row.snapshot(s.base), nil
}

// FetchMany implements remote.Store.
func (s *Store) FetchMany(ctx context.Context, ids []int64) ([]*remote.Snapshot, error) {
	if len(ids) == 0 {
		return []*remote.Snapshot{}, nil
	}

	var rows []revisionRow
	err := s.db.NewSelect().
		Model(&rows).
		DistinctOn("r.item_id").
		Where("r.item_id IN (?)", bun.In(ids)).
		OrderExpr("r.item_id, r.rev DESC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.NewInternal("failed to load items", err)
	}

	byID := make(map[int64]*revisionRow, len(rows))
	for i := range rows {
		byID[rows[i].ItemID] = &rows[i]
	}
	out := make([]*remote.Snapshot, 0, len(rows))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			out = append(out, row.snapshot(s.base))
		}
	}
	return out, nil
}

// Create implements remote.Store.
func (s *Store) Create(ctx context.Context, doc jsonpatch.Document) (*remote.Created, error) {
	snap, err := patchapply.Apply(&remote.Snapshot{}, doc)
	if err != nil {
		return nil, err
	}

	head := &itemRow{Rev: 1}
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(head).Returning("id").Exec(ctx); err != nil {
			return err
		}
		snap.ID, snap.Rev = head.ID, head.Rev
		_, err := tx.NewInsert().Model(newRevision(snap, false)).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, apperror.NewInternal("failed to create item", err)
	}

	s.log.DebugContext(ctx, "item created", slog.Int64("id", head.ID))
	return &remote.Created{ID: head.ID, Rev: head.Rev, URL: s.ItemURL(itemid.Permanent(head.ID))}, nil
}

// ApplyPatch implements remote.Store.
func (s *Store) ApplyPatch(ctx context.Context, id int64, doc jsonpatch.Document) (int, error) {
	return s.update(ctx, id, func(head *remote.Snapshot, deleted bool) (*remote.Snapshot, bool, error) {
		next, err := patchapply.Apply(head, doc)
		return next, deleted, err
	})
}

// Recycle implements remote.Recycler.
func (s *Store) Recycle(ctx context.Context, id int64) (int, error) {
	return s.setDeleted(ctx, id, true)
}

// Restore implements remote.Recycler.
func (s *Store) Restore(ctx context.Context, id int64) (int, error) {
	return s.setDeleted(ctx, id, false)
}

func (s *Store) setDeleted(ctx context.Context, id int64, deleted bool) (int, error) {
	return s.update(ctx, id, func(head *remote.Snapshot, was bool) (*remote.Snapshot, bool, error) {
		if was == deleted {
			return nil, was, nil
		}
		return patchapply.Clone(head), deleted, nil
	})
}

// errUnchanged stops a transaction that has nothing to write.
var errUnchanged = errors.New("unchanged")

// update locks the item, derives the next revision from the head with fn
// and stores it. A nil snapshot from fn leaves the item unchanged.
func (s *Store) update(ctx context.Context, id int64, fn func(head *remote.Snapshot, deleted bool) (*remote.Snapshot, bool, error)) (int, error) {
	var rev int
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		head := &itemRow{ID: id}
		if err := tx.NewSelect().Model(head).WherePK().For("UPDATE").Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound(id)
			}
			return err
		}
		rev = head.Rev

		cur := &revisionRow{ItemID: id, Rev: head.Rev}
		if err := tx.NewSelect().Model(cur).WherePK().Scan(ctx); err != nil {
			return err
		}

		next, deleted, err := fn(cur.snapshot(s.base), head.Deleted)
		if err != nil {
			return err
		}
		if next == nil {
			return errUnchanged
		}

		next.ID, next.Rev = id, head.Rev+1
		if _, err := tx.NewInsert().Model(newRevision(next, deleted)).Exec(ctx); err != nil {
			return err
		}
		head.Rev, head.Deleted, head.UpdatedAt = next.Rev, deleted, time.Now()
		if _, err := tx.NewUpdate().Model(head).Column("rev", "deleted", "updated_at").WherePK().Exec(ctx); err != nil {
			return err
		}
		rev = head.Rev
		return nil
	})

	var appErr *apperror.Error
	switch {
	case err == nil, errors.Is(err, errUnchanged):
		return rev, nil
	case errors.As(err, &appErr):
		return 0, err
	default:
		return 0, apperror.NewInternal("failed to save item", err)
	}
}

// IDs lists the ids of every stored item in ascending order.
func (s *Store) IDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.NewSelect().Model((*itemRow)(nil)).Column("id").Scan(ctx, &ids); err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}

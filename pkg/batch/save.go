package batch

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/BobSilent/aggregator-cli/pkg/apperror"
	"github.com/BobSilent/aggregator-cli/pkg/item"
	"github.com/BobSilent/aggregator-cli/pkg/itemid"
	"github.com/BobSilent/aggregator-cli/pkg/jsonpatch"
	"github.com/BobSilent/aggregator-cli/pkg/logger"
	"github.com/BobSilent/aggregator-cli/pkg/patch"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
	"github.com/BobSilent/aggregator-cli/pkg/tracing"
)

var (
	fieldsOnly    = patch.Options{}
	withRelations = patch.Options{IncludeRelations: true}
	errNoRecycler = apperror.ErrRejected.WithMessage("Store has no recycle bin")
	errNotCreated = apperror.ErrRejected.WithMessage("Linked item was not created")
)

// Save writes every pending change. Items are saved independently: the
// returned Result reports each of them and the error joins the failures.
// In a dry run nothing is sent and the documents are only planned.
func (b *Batch) Save(ctx context.Context) (*Result, error) {
	ctx, span := tracing.Start(ctx, "batch.save",
		attribute.String("itemsync.batch.id", b.id),
		attribute.String("itemsync.batch.mode", string(b.opts.Mode)),
		attribute.Bool("itemsync.batch.dry_run", b.opts.DryRun),
	)
	defer span.End()

	start := time.Now()
	SavesTotal.WithLabelValues(string(b.opts.Mode), strconv.FormatBool(b.opts.DryRun)).Inc()
	defer func() {
		SaveDuration.WithLabelValues(string(b.opts.Mode)).Observe(time.Since(start).Seconds())
	}()

	s := &saver{
		b:      b,
		res:    &Result{BatchID: b.id, DryRun: b.opts.DryRun},
		byItem: make(map[*item.Item]*ItemResult),
		failed: make(map[itemid.ID]error),
	}
	for _, it := range b.Dirty() {
		ir := &ItemResult{Item: it}
		if it.IsNew() {
			ir.TempID = it.ID()
		}
		s.res.Items = append(s.res.Items, ir)
		s.byItem[it] = ir
	}
	span.SetAttributes(attribute.Int("itemsync.batch.items", len(s.res.Items)))
	if len(s.res.Items) == 0 {
		return s.res, nil
	}

	b.log.DebugContext(ctx, "saving batch", slog.Int("items", len(s.res.Items)))
	if b.opts.DryRun {
		s.plan()
	} else {
		if b.opts.Mode == ModeItem {
			s.createInOrder(ctx)
		} else {
			s.createFieldsOnly(ctx)
		}
		s.patchAll(ctx)
	}

	for _, ir := range s.res.Items {
		ItemOutcomes.WithLabelValues(string(ir.Outcome)).Inc()
	}
	err := s.res.Err()
	tracing.Fail(span, err)
	b.log.InfoContext(ctx, "batch saved",
		slog.Int("created", s.res.Count(OutcomeCreated)),
		slog.Int("updated", s.res.Count(OutcomeUpdated)),
		slog.Int("conflicts", s.res.Count(OutcomeConflict)),
		slog.Int("failed", s.res.Count(OutcomeFailed)),
		slog.Bool("dry_run", b.opts.DryRun),
	)
	return s.res, err
}

type saver struct {
	b      *Batch
	res    *Result
	byItem map[*item.Item]*ItemResult
	// failed holds the temporary ids of items whose creation failed.
	failed map[itemid.ID]error
}

func (s *saver) plan() {
	for _, ir := range s.res.Items {
		it := ir.Item
		ir.Outcome = OutcomePlanned
		if !it.IsNew() {
			if doc := patch.Build(it, patch.Full); !doc.IsEmpty() {
				ir.Docs = append(ir.Docs, doc)
			}
			continue
		}

		inline := s.b.opts.Mode == ModeItem && len(it.Relations().TemporaryTargets()) == 0
		if inline {
			ir.Docs = append(ir.Docs, patch.Build(it, withRelations))
			continue
		}
		ir.Docs = append(ir.Docs, patch.Build(it, fieldsOnly))
		if rels := patch.Relations(it.Relations().Diff()); len(rels) > 0 {
			// the item is at revision 1 once created
			doc := append(jsonpatch.Document{jsonpatch.Test(jsonpatch.PathRev, 1)}, rels...)
			ir.Docs = append(ir.Docs, doc)
		}
	}
}

// createFieldsOnly creates every new item without its relations so that
// all temporary ids resolve before any link is written.
func (s *saver) createFieldsOnly(ctx context.Context) {
	for _, it := range s.b.reg.PendingCreations() {
		if ir, ok := s.byItem[it]; ok {
			s.create(ctx, ir, false)
		}
	}
}

// createInOrder creates new items whose links all point at existing items,
// relations included, until none is left. A cycle of new items is broken by
// creating one of them without relations.
func (s *saver) createInOrder(ctx context.Context) {
	var pending []*ItemResult
	for _, it := range s.b.reg.PendingCreations() {
		if ir, ok := s.byItem[it]; ok {
			pending = append(pending, ir)
		}
	}

	for len(pending) > 0 {
		var waiting []*ItemResult
		progress := false
		for _, ir := range pending {
			if err := s.dependencyError(ir.Item); err != nil {
				s.fail(ctx, ir, err)
				progress = true
				continue
			}
			if len(ir.Item.Relations().TemporaryTargets()) > 0 {
				waiting = append(waiting, ir)
				continue
			}
			s.create(ctx, ir, true)
			progress = true
		}
		if !progress {
			s.b.log.DebugContext(ctx, "breaking link cycle", slog.String("item", waiting[0].Item.ID().String()))
			s.create(ctx, waiting[0], false)
			waiting = waiting[1:]
		}
		pending = waiting
	}
}

func (s *saver) create(ctx context.Context, ir *ItemResult, inline bool) {
	it := ir.Item
	opts := fieldsOnly
	if inline {
		opts = withRelations
	}
	doc := patch.Build(it, opts)
	ir.Docs = append(ir.Docs, doc)

	if err := ctx.Err(); err != nil {
		s.fail(ctx, ir, err)
		return
	}
	created, err := s.b.store.Create(ctx, doc)
	if err != nil {
		s.fail(ctx, ir, err)
		return
	}
	if err := it.AssignPermanentIdentity(created.ID, true); err != nil {
		s.fail(ctx, ir, err)
		return
	}
	it.MarkSaved(created.Rev, created.URL, inline)

	ir.Outcome, ir.Rev = OutcomeCreated, created.Rev
	ItemsCreated.Inc()
	s.b.log.DebugContext(ctx, "created item",
		slog.String("temp_id", ir.TempID.String()),
		slog.Int64("id", created.ID),
		slog.Int("rev", created.Rev),
	)
}

// patchAll applies the remaining changes of every existing or created item.
func (s *saver) patchAll(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(s.b.opts.Concurrency)
	for _, ir := range s.res.Items {
		if ir.Err != nil || ir.Item.IsNew() {
			continue
		}
		g.Go(func() error {
			s.patch(ctx, ir)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *saver) patch(ctx context.Context, ir *ItemResult) {
	it := ir.Item
	if err := s.dependencyError(it); err != nil {
		s.fail(ctx, ir, err)
		return
	}

	if doc := patch.Build(it, patch.Full); !doc.IsEmpty() {
		ir.Docs = append(ir.Docs, doc)
		if err := ctx.Err(); err != nil {
			s.fail(ctx, ir, err)
			return
		}
		rev, err := s.b.store.ApplyPatch(ctx, it.ID().Value(), doc)
		if err != nil {
			s.fail(ctx, ir, err)
			return
		}
		it.MarkSaved(rev, "", true)
		s.updated(ir, rev)
	}

	if it.RecycleIntent() != item.RecycleNone {
		if err := s.recycle(ctx, ir); err != nil {
			s.fail(ctx, ir, err)
		}
	}
}

func (s *saver) recycle(ctx context.Context, ir *ItemResult) error {
	rc, ok := s.b.store.(remote.Recycler)
	if !ok {
		return errNoRecycler
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	it := ir.Item
	call, deleted := rc.Restore, false
	if it.RecycleIntent() == item.RecycleDelete {
		call, deleted = rc.Recycle, true
	}
	rev, err := call(ctx, it.ID().Value())
	if err != nil {
		return err
	}
	it.MarkRecycled(rev, remote.MoveURL(it.URL(), deleted))
	s.updated(ir, rev)
	return nil
}

func (s *saver) updated(ir *ItemResult, rev int) {
	ir.Rev = rev
	if ir.Outcome != OutcomeCreated {
		ir.Outcome = OutcomeUpdated
	}
}

// dependencyError reports a link of it whose target is still temporary
// because its creation failed or never happened.
func (s *saver) dependencyError(it *item.Item) error {
	for _, id := range it.Relations().TemporaryTargets() {
		if cause, ok := s.failed[id]; ok {
			return errNotCreated.WithMessagef("Linked item %s was not created", id).WithInternal(cause)
		}
		if !it.IsNew() {
			return errNotCreated.WithMessagef("Linked item %s was not created", id)
		}
	}
	return nil
}

func (s *saver) fail(ctx context.Context, ir *ItemResult, err error) {
	ir.Err = err
	ir.Outcome = OutcomeFailed
	if errors.Is(err, apperror.ErrConflict) {
		ir.Outcome = OutcomeConflict
	}
	if ir.TempID.IsTemporary() && ir.Item.IsNew() {
		s.failed[ir.TempID] = err
	}
	s.b.log.WarnContext(ctx, "item not saved",
		slog.String("item", ir.Item.ID().String()),
		slog.String("outcome", string(ir.Outcome)),
		logger.Error(err),
	)
}

package batch

import (
	"errors"
	"fmt"

	"github.com/BobSilent/aggregator-cli/pkg/item"
	"github.com/BobSilent/aggregator-cli/pkg/itemid"
	"github.com/BobSilent/aggregator-cli/pkg/jsonpatch"
)

// Outcome is what happened to one item during a save.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeUpdated  Outcome = "updated"
	OutcomeConflict Outcome = "conflict"
	OutcomeFailed   Outcome = "failed"
	OutcomePlanned  Outcome = "planned"
)

// ItemResult reports the save of one item.
type ItemResult struct {
	Item *item.Item
	// TempID is the temporary id a created item had before the save.
	TempID  itemid.ID
	Outcome Outcome
	Rev     int
	// Docs are the documents sent, or that would be sent in a dry run. A
	// create document comes first.
	Docs []jsonpatch.Document
	Err  error
}

// Result collects the outcome of every dirty item, in save order.
type Result struct {
	BatchID string
	DryRun  bool
	Items   []*ItemResult
}

// Count returns the number of items with outcome o.
func (r *Result) Count(o Outcome) int {
	n := 0
	for _, ir := range r.Items {
		if ir.Outcome == o {
			n++
		}
	}
	return n
}

// Err joins the errors of every failed or conflicting item.
func (r *Result) Err() error {
	var errs []error
	for _, ir := range r.Items {
		if ir.Err != nil {
			errs = append(errs, fmt.Errorf("item %s: %w", ir.Item.ID(), ir.Err))
		}
	}
	return errors.Join(errs...)
}

// For returns the result recorded for it.
func (r *Result) For(it *item.Item) (*ItemResult, bool) {
	for _, ir := range r.Items {
		if ir.Item == it {
			return ir, true
		}
	}
	return nil, false
}

package cmd

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BobSilent/aggregator-cli/pkg/batch"
	"github.com/BobSilent/aggregator-cli/pkg/item"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
)

func (a *app) newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "List the revisions of an item, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			store, err := a.store(cmd)
			if err != nil {
				return err
			}
			revs, err := history(cmd, store, id, limit)
			if err != nil {
				return err
			}
			return a.printHistory(cmd, revs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many revisions (0 for all)")
	return cmd
}

// history returns the head of id followed by up to limit-1 older revisions.
func history(cmd *cobra.Command, store remote.Store, id int64, limit int) ([]*item.Item, error) {
	b := batch.New(store, batch.Options{})
	head, err := b.Get(cmd.Context(), id)
	if err != nil {
		return nil, err
	}

	revs := []*item.Item{head}
	w := head.Revisions(store)
	for (limit <= 0 || len(revs) < limit) && w.Next(cmd.Context()) {
		revs = append(revs, w.Item())
	}
	return revs, w.Err()
}

// changedFields lists the fields that differ between a revision and the
// one before it.
func changedFields(cur, prev *item.Item) []string {
	a, b := cur.Fields(), prev.Fields()
	var out []string
	for _, name := range slices.Sorted(maps.Keys(a)) {
		if old, ok := b[name]; !ok || !old.Equal(a[name]) {
			out = append(out, name)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(b)) {
		if _, ok := a[name]; !ok {
			out = append(out, "-"+name)
		}
	}
	return out
}

type revisionView struct {
	Rev     int      `json:"rev"`
	Deleted bool     `json:"deleted"`
	Links   int      `json:"links"`
	Changed []string `json:"changed"`
}

func revisionViews(revs []*item.Item) []revisionView {
	out := make([]revisionView, 0, len(revs))
	for i, it := range revs {
		v := revisionView{Rev: it.Revision(), Deleted: it.IsDeleted(), Links: it.Relations().Len()}
		switch {
		case i+1 < len(revs):
			v.Changed = changedFields(it, revs[i+1])
		case it.Revision() == 1:
			v.Changed = []string{"(created)"}
		}
		out = append(out, v)
	}
	return out
}

func (a *app) printHistory(cmd *cobra.Command, revs []*item.Item) error {
	views := revisionViews(revs)
	if a.settings.Output == "json" {
		return writeJSON(cmd.OutOrStdout(), views)
	}

	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{
			strconv.Itoa(v.Rev),
			strconv.FormatBool(v.Deleted),
			strconv.Itoa(v.Links),
			strings.Join(v.Changed, ", "),
		})
	}
	return renderTable(cmd.OutOrStdout(), []string{"Rev", "Deleted", "Links", "Changed"}, rows)
}

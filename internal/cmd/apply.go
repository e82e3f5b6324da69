package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/BobSilent/aggregator-cli/internal/changeset"
	"github.com/BobSilent/aggregator-cli/pkg/batch"
	"github.com/BobSilent/aggregator-cli/pkg/item"
	"github.com/BobSilent/aggregator-cli/pkg/jsonpatch"
)

func (a *app) newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <changeset.yaml>",
		Short: "Apply a changeset in one batch",
		Long: `Apply a YAML changeset to the item store.

New items are created and every edit is sent as one patch per item. With
--dry-run the patch documents are printed instead of sent.`,
		Args: cobra.ExactArgs(1),
		RunE: a.runApply,
	}

	flags := cmd.Flags()
	flags.Bool("dry-run", false, "print the patch documents without saving")
	flags.String("save-mode", string(batch.ModeTwoPhase), "save mode: twophase or item")
	flags.Int("concurrency", 4, "parallel patch requests")
	_ = a.v.BindPFlag("save.dry_run", flags.Lookup("dry-run"))
	_ = a.v.BindPFlag("save.mode", flags.Lookup("save-mode"))
	_ = a.v.BindPFlag("save.concurrency", flags.Lookup("concurrency"))
	return cmd
}

func (a *app) runApply(cmd *cobra.Command, args []string) error {
	cs, err := changeset.Load(args[0])
	if err != nil {
		return err
	}
	opts, err := a.settings.batchOptions(a.log)
	if err != nil {
		return err
	}
	store, err := a.store(cmd)
	if err != nil {
		return err
	}

	b := batch.New(store, opts)
	applied, err := changeset.Apply(cmd.Context(), b, cs)
	if err != nil {
		return err
	}
	res, saveErr := b.Save(cmd.Context())
	if res == nil {
		return saveErr
	}

	if err := a.printResult(cmd, res, aliasesByItem(applied)); err != nil {
		return err
	}
	if saveErr != nil {
		failed := len(res.Items) - res.Count(batch.OutcomeCreated) - res.Count(batch.OutcomeUpdated)
		return fmt.Errorf("%d of %d items not saved: %w", failed, len(res.Items), saveErr)
	}
	return nil
}

func aliasesByItem(applied *changeset.Applied) map[*item.Item]string {
	out := make(map[*item.Item]string, len(applied.Aliases))
	for alias, it := range applied.Aliases {
		out[it] = alias
	}
	return out
}

type resultRow struct {
	Item    string               `json:"item"`
	Alias   string               `json:"alias,omitempty"`
	TempID  string               `json:"tempId,omitempty"`
	Outcome batch.Outcome        `json:"outcome"`
	Rev     int                  `json:"rev,omitempty"`
	Docs    []jsonpatch.Document `json:"docs,omitempty"`
	Error   string               `json:"error,omitempty"`
}

func (a *app) printResult(cmd *cobra.Command, res *batch.Result, aliases map[*item.Item]string) error {
	rows := make([]resultRow, 0, len(res.Items))
	for _, ir := range res.Items {
		row := resultRow{
			Item:    ir.Item.ID().String(),
			Alias:   aliases[ir.Item],
			Outcome: ir.Outcome,
			Rev:     ir.Rev,
			Docs:    ir.Docs,
		}
		if !ir.TempID.IsZero() {
			row.TempID = ir.TempID.String()
		}
		if ir.Err != nil {
			row.Error = ir.Err.Error()
		}
		rows = append(rows, row)
	}

	out := cmd.OutOrStdout()
	if a.settings.Output == "json" {
		return writeJSON(out, map[string]any{"batch": res.BatchID, "dryRun": res.DryRun, "items": rows})
	}

	if res.DryRun {
		for _, row := range rows {
			fmt.Fprintf(out, "# %s %s\n", row.Item, row.Alias)
			for _, doc := range row.Docs {
				if err := writeJSON(out, doc); err != nil {
					return err
				}
			}
		}
	}

	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		rev := ""
		if row.Rev > 0 {
			rev = strconv.Itoa(row.Rev)
		}
		table = append(table, []string{row.Item, row.Alias, row.TempID, string(row.Outcome), rev, row.Error})
	}
	if len(table) == 0 {
		fmt.Fprintln(out, "Nothing to save.")
		return nil
	}
	return renderTable(out, []string{"Item", "Alias", "Was", "Outcome", "Rev", "Error"}, table)
}

var errNoItem = errors.New("item id must be a positive integer")

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errNoItem, s)
	}
	return id, nil
}

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/BobSilent/aggregator-cli/pkg/batch"
	"github.com/BobSilent/aggregator-cli/pkg/field"
	"github.com/BobSilent/aggregator-cli/pkg/item"
)

func (a *app) newShowCmd() *cobra.Command {
	var rev int
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the fields and links of an item",
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

			b := batch.New(store, batch.Options{Logger: a.log})
			var it *item.Item
			if rev > 0 {
				it, err = b.GetRevision(cmd.Context(), id, rev)
			} else {
				it, err = b.Get(cmd.Context(), id)
			}
			if err != nil {
				return err
			}
			return a.printItem(cmd.OutOrStdout(), it)
		},
	}
	cmd.Flags().IntVar(&rev, "rev", 0, "show this revision instead of the latest")
	return cmd
}

type linkView struct {
	Kind    string `json:"rel"`
	URL     string `json:"url"`
	Comment string `json:"comment,omitempty"`
}

type itemView struct {
	ID        string                 `json:"id"`
	Rev       int                    `json:"rev"`
	URL       string                 `json:"url"`
	Deleted   bool                   `json:"deleted"`
	Fields    map[string]field.Value `json:"fields"`
	Relations []linkView             `json:"relations"`
}

func viewOf(it *item.Item) itemView {
	v := itemView{
		ID:        it.ID().String(),
		Rev:       it.Revision(),
		URL:       it.URL(),
		Deleted:   it.IsDeleted(),
		Fields:    it.Fields(),
		Relations: []linkView{},
	}
	for _, l := range it.Relations().Links() {
		v.Relations = append(v.Relations, linkView{Kind: l.Kind, URL: l.URL, Comment: l.Comment})
	}
	return v
}

func (a *app) printItem(out io.Writer, it *item.Item) error {
	if a.settings.Output == "json" {
		return writeJSON(out, viewOf(it))
	}

	state := ""
	if it.IsDeleted() {
		state = " (deleted)"
	}
	fmt.Fprintf(out, "Item %s at revision %d%s\n%s\n\n", it.ID(), it.Revision(), state, it.URL())

	var rows [][]string
	for _, name := range it.Names() {
		rows = append(rows, []string{name, it.Value(name, field.Null()).String()})
	}
	if err := renderTable(out, []string{"Field", "Value"}, rows); err != nil {
		return err
	}

	links := it.Relations().Links()
	if len(links) == 0 {
		return nil
	}
	rows = rows[:0]
	for _, l := range links {
		rows = append(rows, []string{l.Kind, l.URL, l.Comment})
	}
	fmt.Fprintln(out)
	return renderTable(out, []string{"Link", "Target", "Comment"}, rows)
}

// Package cmd implements the itemsync command line: apply YAML changesets
// to an item store and inspect items and their history.
package cmd

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/BobSilent/aggregator-cli/pkg/logger"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
)

// app is the state shared by the commands of one root command.
type app struct {
	v        *viper.Viper
	cfgFile  string
	cfgUsed  string
	settings *Settings
	log      *slog.Logger
	open     StoreFactory
}

// NewRootCommand builds the itemsync command tree talking to the item
// store server.
func NewRootCommand() *cobra.Command {
	return newRootCommand(OpenHTTPStore)
}

func newRootCommand(open StoreFactory) *cobra.Command {
	a := &app{v: newViper(), open: open}

	root := &cobra.Command{
		Use:   "itemsync",
		Short: "Apply changesets to an item store",
		Long: `Command-line client for the item store.

itemsync applies YAML changesets describing new items, field edits, links
and deletions in one batch, and shows items and their revision history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			s, used, err := loadSettings(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.settings, a.cfgUsed = s, used
			a.log = newLogger(cmd.ErrOrStderr(), s.Debug)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.itemsync/config.yaml)")
	flags.String("server", "", "item store server URL")
	flags.String("auth-mode", "", "authentication: none, apikey, apitoken or oauth")
	flags.String("api-key", "", "API key or token")
	flags.String("output", "table", "output format (table, json)")
	flags.Bool("debug", false, "enable debug logging")

	_ = a.v.BindPFlag("server_url", flags.Lookup("server"))
	_ = a.v.BindPFlag("auth.mode", flags.Lookup("auth-mode"))
	_ = a.v.BindPFlag("auth.api_key", flags.Lookup("api-key"))
	_ = a.v.BindPFlag("output", flags.Lookup("output"))
	_ = a.v.BindPFlag("debug", flags.Lookup("debug"))

	root.AddCommand(
		a.newApplyCmd(),
		a.newShowCmd(),
		a.newHistoryCmd(),
		a.newConfigCmd(),
	)
	return root
}

// Execute runs the itemsync command line.
func Execute() error {
	return NewRootCommand().Execute()
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})).With(logger.Scope("itemsync"))
}

func (a *app) store(cmd *cobra.Command) (remote.Store, error) {
	return a.open(cmd.Context(), a.settings, a.log)
}

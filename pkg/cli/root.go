package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// options are the flags shared by every subcommand
type options struct {
	fixturePath string
	logLevel    string
	json        bool

	log *logrus.Logger
}

// NewRootCommand creates the accessctl command tree
func NewRootCommand() *cobra.Command {
	opts := &options{log: logrus.New()}

	root := &cobra.Command{
		Use:          "accessctl",
		Short:        "Evaluate document permissions against a site fixture",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			opts.log.SetLevel(level)
			opts.log.SetOutput(cmd.ErrOrStderr())
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.fixturePath, "fixture", "f", "site.yaml", "Site fixture file")
	flags.StringVar(&opts.logLevel, "log-level", "warning", "Log level (debug, info, warning, error)")
	flags.BoolVar(&opts.json, "json", false, "Print JSON instead of tables")

	root.AddCommand(
		newCheckCmd(opts),
		newExplainCmd(opts),
		newFilterCmd(opts),
		newGrantsCmd(opts),
		newWatchCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func formatID(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}

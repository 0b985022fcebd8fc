package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nainya/pinpoint/pkg/store"
	"github.com/nainya/pinpoint/pkg/wikidata"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Pinpoint v%s\n", version)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Commit %s, built %s\n", GitCommit, BuildDate)
		},
	}
}

// NewSearchCommand creates the search command.
func NewSearchCommand() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search Wikidata entities by name",
		Example: `  # Find the entity id for "city"
  pinpoint search city`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			k := wikidata.SearchKind(kind)
			if k != wikidata.KindItem && k != wikidata.KindProperty {
				return fmt.Errorf("--type must be item or property, got %q", kind)
			}

			refs := a.client.Search(cmd.Context(), strings.Join(args, " "), k)
			renderEntities(cmd.OutOrStdout(), refs)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "type", string(wikidata.KindItem), "Entity kind (item|property)")
	return cmd
}

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved datasets",
		Example: `  pinpoint list
  pinpoint list -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}

			entries, err := st.List()
			if errors.Is(err, store.ErrNoStore) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No datasets saved yet (%s does not exist)\n", st.Path())
				return nil
			}
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return renderJSON(cmd.OutOrStdout(), entries)
			case "yaml":
				return renderYAML(cmd.OutOrStdout(), entries)
			case "table", "":
				renderEntriesTable(cmd.OutOrStdout(), entries)
				return nil
			default:
				return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format (table|json|yaml)")
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved dataset and its data file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			if err := st.Delete(args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted dataset %s\n", args[0])
			return nil
		},
	}
}

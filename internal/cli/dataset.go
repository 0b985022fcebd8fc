// ABOUTME: query, preview and save commands built on shared dataset config flags
// ABOUTME: Constraints are given as P17=Q183; a leading '-' (-P17=Q183) negates them

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nainya/pinpoint/pkg/dataset"
	"github.com/nainya/pinpoint/pkg/sparql"
	"github.com/nainya/pinpoint/pkg/store"
)

// configFlags collects the flags that describe a dataset config
type configFlags struct {
	itemType          string
	constraints       []string
	datasetType       string
	minPop            int64
	includeHistorical bool
	limit             int
}

func (f *configFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.itemType, "item-type", "", "Item type entity id, e.g. Q515 (city)")
	fs.StringArrayVar(&f.constraints, "constraint", nil, "Constraint PROPERTY=VALUE, e.g. P17=Q183; prefix with '-' to exclude (repeatable)")
	fs.StringVar(&f.datasetType, "dataset-type", string(dataset.Point), "Dataset type (point|polygon)")
	fs.Int64Var(&f.minPop, "min-pop", 0, "Minimum population (0 or less disables the filter)")
	fs.BoolVar(&f.includeHistorical, "include-historical", false, "Include items with a dissolved/abolished date")
	fs.IntVar(&f.limit, "limit", dataset.DefaultLimit, "Maximum number of items")
}

// build assembles and validates the config described by the flags
func (f *configFlags) build() (dataset.Config, error) {
	t, err := dataset.ParseType(f.datasetType)
	if err != nil {
		return dataset.Config{}, err
	}

	cfg := dataset.NewConfig(strings.ToUpper(strings.TrimSpace(f.itemType)), t)
	cfg.MinPopulation = f.minPop
	cfg.ExcludeHistorical = !f.includeHistorical
	cfg.Limit = f.limit

	for _, raw := range f.constraints {
		c, err := parseConstraintFlag(raw)
		if err != nil {
			return dataset.Config{}, err
		}
		cfg.Constraints = append(cfg.Constraints, c)
	}

	if err := cfg.Validate(); err != nil {
		return dataset.Config{}, err
	}
	return cfg, nil
}

func parseConstraintFlag(raw string) (dataset.Constraint, error) {
	property, value, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(property) == "" || strings.TrimSpace(value) == "" {
		return dataset.Constraint{}, fmt.Errorf("%w: constraint %q must look like P17=Q183", dataset.ErrInvalidConfig, raw)
	}
	return dataset.ParseConstraint(strings.TrimSpace(property), strings.TrimSpace(value)), nil
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the SPARQL query for a dataset config",
		Example: `  # Cities in Germany with at least 100k inhabitants
  pinpoint query --item-type Q515 --constraint P17=Q183 --min-pop 100000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.build()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), sparql.Compile(cfg))
			return nil
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

// NewPreviewCommand creates the preview command.
func NewPreviewCommand() *cobra.Command {
	var (
		flags  configFlags
		top    int
		format string
		tmpl   string
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Fetch a dataset from Wikidata without saving it",
		Example: `  # Preview German states as polygons
  pinpoint preview --item-type Q1221156 --constraint P17=Q183 --dataset-type polygon`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			cfg, err := flags.build()
			if err != nil {
				return err
			}

			records, err := a.fetcher.Fetch(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return renderJSON(cmd.OutOrStdout(), records)
			case "table", "":
				renderRecords(cmd.OutOrStdout(), cfg.DatasetType, records, top, tmpl)
				return nil
			default:
				return fmt.Errorf("unknown output format %q (want table or json)", format)
			}
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().IntVar(&top, "top", 10, "Number of records to show in table output (0 shows all)")
	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format (table|json)")
	cmd.Flags().StringVar(&tmpl, "prompt-template", "", "Render this prompt template for each record in table output")
	return cmd
}

// NewSaveCommand creates the save command.
func NewSaveCommand() *cobra.Command {
	var (
		flags configFlags
		req   store.SaveRequest
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Fetch a dataset and save it to the store",
		Long: `Fetch current data for the config and persist it.

Without --id a new dataset is created. With --id the existing dataset is
refreshed in place: same position, same data file.`,
		Example: `  # Save French cities
  pinpoint save --item-type Q515 --constraint P17=Q142 --name "French cities" --description "Largest cities in France"

  # Refresh an existing dataset
  pinpoint save --id custom_0f6c... --item-type Q515 --constraint P17=Q142 --name "French cities"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			cfg, err := flags.build()
			if err != nil {
				return err
			}
			if strings.TrimSpace(req.Name) == "" {
				return fmt.Errorf("--name is required")
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}

			req.Config = cfg
			id, err := st.Save(cmd.Context(), req)
			if err != nil {
				return err
			}
			entry, err := st.Get(id)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved dataset %s (%s) to %s\n", id, entry.Filename, st.Path())
			return nil
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&req.ID, "id", "", "Existing dataset id to refresh")
	cmd.Flags().StringVar(&req.Name, "name", "", "Dataset name")
	cmd.Flags().StringVar(&req.Description, "description", "", "Dataset description")
	cmd.Flags().StringVar(&req.PromptTemplate, "prompt-template", "", "Prompt template (default \""+dataset.DefaultPromptTemplate+"\")")
	cmd.Flags().StringVar(&req.SubPromptTemplate, "sub-prompt-template", "", "Secondary prompt template")
	return cmd
}

package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/litscope/internal/search"
	"github.com/sells-group/litscope/internal/table"
	"github.com/sells-group/litscope/pkg/notion"
)

var (
	enrichDomain    string
	enrichLabel     string
	enrichCriterion string
	enrichType      string
	enrichFields    []string
	enrichMin       float64
	enrichMax       float64
	enrichFilter    string
	enrichCSV       string
	enrichXLSX      string
	enrichNotionDB  string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <query>",
	Short: "Search, attach a Claude-computed column, and export",
	Long:  "Runs a search, adds one derived column evaluated against the given criterion, waits for the batch to finish, optionally filters on the verdict, and exports the table.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if enrichCriterion == "" {
			return eris.New("enrich: --criterion is required")
		}

		env, err := newWorkbench()
		if err != nil {
			return err
		}
		defer env.Close()

		ctx := cmd.Context()
		query := strings.Join(args, " ")
		if _, err := env.Session.Search(ctx, enrichDomain, search.Criteria{Query: query}); err != nil {
			return err
		}

		spec := table.DerivedSpec{
			Criterion:   enrichCriterion,
			InputFields: enrichFields,
			OutputType:  table.OutputType(enrichType),
		}
		if cmd.Flags().Changed("min") || cmd.Flags().Changed("max") {
			spec.ScoreRange = &table.ScoreRange{Min: enrichMin, Max: enrichMax}
		}
		label := enrichLabel
		if label == "" {
			label = enrichCriterion
		}

		colID, err := env.Session.AddDerivedColumn(ctx, label, spec)
		if err != nil {
			return err
		}
		env.Session.WaitForColumn(colID)

		if enrichFilter != "" {
			if err := env.Session.SetBooleanFilter(colID, table.TriState(enrichFilter)); err != nil {
				return err
			}
		}

		if enrichNotionDB != "" {
			if cfg.Notion.Token == "" {
				return eris.New("enrich: notion token not configured")
			}
			grid := env.Session.Grid()
			n, err := notion.ExportGrid(ctx, notion.NewClient(cfg.Notion.Token), enrichNotionDB, grid.Header, grid.Rows)
			if err != nil {
				return err
			}
			zap.L().Info("enrich: notion export complete", zap.Int("pages", n))
		}

		return writeOutputs(env, enrichCSV, enrichXLSX)
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichDomain, "domain", "pubmed", "search domain (pubmed or trials)")
	enrichCmd.Flags().StringVar(&enrichLabel, "label", "", "derived column label (defaults to the criterion)")
	enrichCmd.Flags().StringVar(&enrichCriterion, "criterion", "", "natural-language criterion to evaluate")
	enrichCmd.Flags().StringVar(&enrichType, "type", "boolean", "output type: boolean, number or text")
	enrichCmd.Flags().StringSliceVar(&enrichFields, "fields", nil, "row fields fed to inference (default all)")
	enrichCmd.Flags().Float64Var(&enrichMin, "min", 0, "score range minimum (number type)")
	enrichCmd.Flags().Float64Var(&enrichMax, "max", 0, "score range maximum (number type)")
	enrichCmd.Flags().StringVar(&enrichFilter, "filter", "", "apply tri-state filter on the verdict: yes or no")
	enrichCmd.Flags().StringVar(&enrichCSV, "csv", "", "write CSV to file instead of stdout")
	enrichCmd.Flags().StringVar(&enrichXLSX, "xlsx", "", "write XLSX workbook to file")
	enrichCmd.Flags().StringVar(&enrichNotionDB, "notion-db", "", "also push rows to this Notion database")
	rootCmd.AddCommand(enrichCmd)
}

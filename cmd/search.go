package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/litscope/internal/search"
)

var (
	searchDomain   string
	searchFrom     string
	searchTo       string
	searchDateType string
	searchLimit    int
	searchCSV      string
	searchXLSX     string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a search and print or export the result table",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newWorkbench()
		if err != nil {
			return err
		}
		defer env.Close()

		query := strings.Join(args, " ")
		_, err = env.Session.Search(cmd.Context(), searchDomain, search.Criteria{
			Query:    query,
			From:     searchFrom,
			To:       searchTo,
			DateType: searchDateType,
			Limit:    searchLimit,
		})
		if err != nil {
			return err
		}

		return writeOutputs(env, searchCSV, searchXLSX)
	},
}

// writeOutputs exports the current display sequence to the requested
// sinks, defaulting to CSV on stdout.
func writeOutputs(env *workbenchEnv, csvPath, xlsxPath string) error {
	if xlsxPath != "" {
		if err := env.Session.ExportXLSX(xlsxPath); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", xlsxPath)
	}
	if csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck
		if err := env.Session.ExportCSV(f); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", csvPath)
		return nil
	}
	if xlsxPath == "" {
		return env.Session.ExportCSV(os.Stdout)
	}
	return nil
}

func init() {
	searchCmd.Flags().StringVar(&searchDomain, "domain", "pubmed", "search domain (pubmed or trials)")
	searchCmd.Flags().StringVar(&searchFrom, "from", "", "date range start")
	searchCmd.Flags().StringVar(&searchTo, "to", "", "date range end")
	searchCmd.Flags().StringVar(&searchDateType, "date-type", "", "date field the range applies to")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "result page size (default from config)")
	searchCmd.Flags().StringVar(&searchCSV, "csv", "", "write CSV to file instead of stdout")
	searchCmd.Flags().StringVar(&searchXLSX, "xlsx", "", "write XLSX workbook to file")
	rootCmd.AddCommand(searchCmd)
}

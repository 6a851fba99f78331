package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/MeKo-Tech/oryza/internal/disease"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var diseasesCmd = &cobra.Command{
	Use:   "diseases",
	Short: "List, export and validate disease tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadTable(GetConfig())
		if err != nil {
			return err
		}
		asYAML, _ := cmd.Flags().GetBool("yaml")
		if asYAML {
			return table.WriteYAML(cmd.OutOrStdout())
		}

		caser := cases.Title(language.English)
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "INDEX\tDISEASE\tSEVERITY")
		for i, r := range table.Records() {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", i, r.Name, caser.String(string(r.Severity)))
		}
		return tw.Flush()
	},
}

var diseasesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a disease table file against the schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := disease.LoadFile(args[0])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d classes, ok\n", args[0], table.Len())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(diseasesCmd)
	diseasesCmd.AddCommand(diseasesValidateCmd)
	diseasesCmd.Flags().Bool("yaml", false, "print the table in the file format accepted by disease.table_file")
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aegis-advisory/guidance-cli/internal/taxonomy"
)

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Taxonomy vocabulary utilities",
}

var taxonomyCheckCmd = &cobra.Command{
	Use:   "check <workbook.xlsx>",
	Short: "Validate a vocabulary workbook",
	Long:  "Loads an XLSX vocabulary workbook and reports the term count per sheet, so a bad file is caught before it is wired into the pipeline config.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		terms, err := taxonomy.ImportXLSX(args[0])
		if err != nil {
			return err
		}
		for _, vocab := range taxonomy.Vocabularies() {
			fmt.Printf("%s: %d terms\n", vocab, len(terms[vocab]))
		}
		return nil
	},
}

var taxonomyResolveCmd = &cobra.Command{
	Use:   "resolve <vocabulary> <label>",
	Short: "Resolve one label against the configured vocabulary",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		resolver := taxonomy.NewResolver(env.Taxonomy, cfg.Taxonomy)
		match, err := resolver.Resolve(ctx, taxonomy.Vocabulary(args[0]), args[1])
		if err != nil {
			return err
		}
		if match == nil {
			fmt.Println("no match")
			return nil
		}
		fmt.Printf("%s  %s  (score %.3f, exact=%v)\n", match.ID, match.Name, match.Score, match.Exact)
		return nil
	},
}

func init() {
	taxonomyCmd.AddCommand(taxonomyCheckCmd)
	taxonomyCmd.AddCommand(taxonomyResolveCmd)
	rootCmd.AddCommand(taxonomyCmd)
}

package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrwolf/bible-research/internal/models"
	"github.com/mrwolf/bible-research/internal/output"
	"github.com/mrwolf/bible-research/internal/wordstudy"
)

var (
	wordsDataDir string
	wordsSelect  []string
	wordsTop     int
)

var wordsCmd = &cobra.Command{
	Use:   "words",
	Short: "Inspect the original-language word data",
}

var wordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List English headwords with occurrence data",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadWordData()
		if err != nil {
			return err
		}
		resp := models.WordsResponse{
			Available: d.Available(),
			Missing:   d.Missing(),
			Headwords: d.Headwords(),
		}
		if resp.Headwords == nil {
			resp.Headwords = []string{}
		}
		return output.Print(resp)
	},
}

var wordsShowCmd = &cobra.Command{
	Use:   "show <headword>",
	Short: "Show the Hebrew and Greek words behind a headword",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadWordData()
		if err != nil {
			return err
		}
		variants, err := d.Variants(args[0])
		if err != nil {
			return err
		}
		return output.Print(models.VariantsResponse{Headword: args[0], Variants: variants})
	},
}

var wordsDistributionCmd = &cobra.Command{
	Use:   "distribution <headword>",
	Short: "Tally a headword's occurrences across the canonical books",
	Long: `Tally the selected original-language words for a headword across the 66
canonical books, in canonical order, with Old and New Testament totals.

Without --select every Hebrew and Greek word offered for the headword is
included.

Examples:
  bible-research words distribution love
  bible-research words distribution love --select agape,phileo --top 3 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadWordData()
		if err != nil {
			return err
		}

		var selection wordstudy.Selection
		if cmd.Flags().Changed("select") {
			selection = wordstudy.Selection{}
			for _, w := range wordsSelect {
				if w = strings.TrimSpace(w); w != "" {
					selection[w] = true
				}
			}
		}

		study, err := d.Study(args[0], selection, wordsTop)
		if err != nil {
			return err
		}
		return output.Print(models.DistributionResponse{Study: study, WordsAnalyzed: study.WordsAnalyzed()})
	},
}

var wordsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the word data for missing files and negative counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadWordData()
		if err != nil {
			return err
		}
		if missing := d.Missing(); len(missing) > 0 {
			return fmt.Errorf("word data is missing %s", strings.Join(missing, ", "))
		}
		if err := d.Validate(); err != nil {
			return err
		}
		log.Printf("Word data OK: %d headwords", len(d.Headwords()))
		return nil
	},
}

func loadWordData() (*wordstudy.Dataset, error) {
	dir := wordsDataDir
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		dir = cfg.DataDir
	}
	return wordstudy.LoadDataset(dir)
}

func init() {
	wordsCmd.PersistentFlags().StringVar(&wordsDataDir, "data-dir", "", "word data directory (default: data_dir from config)")
	wordsDistributionCmd.Flags().StringSliceVar(&wordsSelect, "select", nil, "original-language words to include, comma separated")
	wordsDistributionCmd.Flags().IntVar(&wordsTop, "top", wordstudy.DefaultTopN, "number of top books to report")

	wordsCmd.AddCommand(wordsListCmd, wordsShowCmd, wordsDistributionCmd, wordsValidateCmd)
}

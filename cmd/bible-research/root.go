package main

import (
	"github.com/spf13/cobra"

	"github.com/mrwolf/bible-research/internal/api"
	"github.com/mrwolf/bible-research/internal/config"
	"github.com/mrwolf/bible-research/internal/output"
)

var (
	cfgFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "bible-research",
	Short: "Bible research service with word distribution studies",
	Long: `bible-research serves a JSON API for model-assisted Bible study and
original-language word distribution analysis.

It provides:
  - Topical, verse, study guide and cross reference research
  - Follow-up refinement and verse enhancement of earlier results
  - Per-session history and token usage
  - Hebrew and Greek word distribution across the 66 canonical books`,
	Version:       api.Version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return output.SetFormat(outputFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./bible-research.yaml or ~/.bible-research/bible-research.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	rootCmd.AddCommand(serveCmd, wordsCmd, pruneCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

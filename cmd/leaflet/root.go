package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/leaflet/internal/api"
	"github.com/jackzampolin/leaflet/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "leaflet",
	Short: "Page-turning flipbook viewer with an AI reading companion",
	Long: `Leaflet turns a folder of page images into a two-page flipbook and
pairs it with an AI companion that reads along.

It includes:
  - Sheet-based page turning driven by clicks, keys and the CLI
  - Responsive single and double page layout
  - Page analysis, summaries and chat grounded in the visible page`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.leaflet/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "leaflet home directory (default: ~/.leaflet)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "text", "output format: text, yaml or json",
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		format, err := api.ParseOutputFormat(outputFormat)
		if err != nil {
			return err
		}
		api.SetOutputFormat(format)
		return nil
	}

	rootCmd.AddCommand(versionCmd)
}

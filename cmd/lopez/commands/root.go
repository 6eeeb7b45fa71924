// Package commands implements the lopez CLI surface (§6).
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lopezcrawl/lopez/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "lopez",
	Short: "A polite, single-machine web crawler driven by Crawl Directives",
	Long: `lopez crawls a site per a Crawl Directives (LCD) program: an
allow/disallow boundary, a seed list, and a set of CSS-selector rules
describing what to extract from each page.

Examples:
  # Run a crawl to completion, persisting to an embedded store
  lopez run -d site.lcd -w my-crawl --backend-path my-crawl.db

  # Check compile diagnostics for a directives program without crawling
  lopez test-directives -d site.lcd

  # Compute PageRank over an already-crawled wave
  lopez page-rank -w my-crawl --backend-path my-crawl.db

  # Dump a wave's extracted results as newline-delimited JSON
  lopez export -w my-crawl --backend-path my-crawl.db -f jsonl

  # Delete a wave and its status/linkage/analysis rows
  lopez remove-wave -w my-crawl --backend-path my-crawl.db`,
	Version: version.String(),
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.lopez.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress progress output")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".lopez")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("LOPEZ")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

func logInfo(format string, args ...any) {
	if !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// gfabase converts GFA1 assembly graphs into indexed .gfab files and
// serves subgraph queries against them.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gfabase/gfabase/internal/config"
	"github.com/gfabase/gfabase/internal/gfab"
	"github.com/gfabase/gfabase/internal/log"
)

var (
	// Version is overridden by ldflags at release build time.
	Version = gfab.Version
	// Build can be set via ldflags at compile time.
	Build = "dev"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "gfabase",
	Short: "gfabase - indexed storage & subgraph queries for GFA assembly graphs",
	Long: `gfabase converts Graphical Fragment Assembly (GFA1) files into compact,
indexed .gfab files, and extracts subgraphs from them by segment, path
name, or reference range without reading the whole file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// flags beat config; config fills in flags the user didn't set
		if !cmd.Flags().Changed("verbose") {
			verbose = config.GetBool("verbose")
		}
		log.Verbose = verbose
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("gfabase version %s (%s)\n", Version, Build)
			return nil
		}
		return cmd.Help()
	},
}

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log more detail to stderr")
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Errorf("%v", err)
		os.Exit(gfab.ExitCode(err))
	}
}

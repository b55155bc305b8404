package main

import (
	"github.com/spf13/cobra"

	"github.com/gfabase/gfabase/internal/gfab"
)

var addMappingsCmd = &cobra.Command{
	Use:   "add-mappings TARGET [PAF|-]",
	Short: "Import PAF alignments into a .gfab's mapping table",
	Long: `Insert reference mappings from PAF records (e.g. minimap2 output) into
TARGET in place, then rebuild the mapping range index. Query names resolve
against segment names; records that miss are counted and skipped. The
import is one transaction: an interrupted run leaves TARGET unchanged.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		paf := "-"
		if len(args) > 1 {
			paf = args[1]
		}
		var opts gfab.MappingOptions
		opts.Quality, _ = cmd.Flags().GetInt64("quality")
		opts.Length, _ = cmd.Flags().GetInt64("length")
		opts.Replace, _ = cmd.Flags().GetBool("replace")

		src, cleanup, err := openInput(cmd, paf)
		if err != nil {
			return err
		}
		defer cleanup()

		db, err := gfab.OpenDB(cmd.Context(), args[0], true, gfab.StoreOptions{
			MemoryGBytes: flagOrConfigInt(cmd, "memory-gbytes"),
		})
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		_, err = gfab.AddMappings(cmd.Context(), db, src, opts)
		return err
	},
}

func init() {
	addMappingsCmd.Flags().Int64("quality", 0, "Ignore mappings with lower mapq")
	addMappingsCmd.Flags().Int64("length", 0, "Ignore mappings with shorter alignment block length")
	addMappingsCmd.Flags().Bool("replace", false, "First delete all existing mappings")
	rootCmd.AddCommand(addMappingsCmd)
}

package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/gfabase/gfabase/internal/gfab"
)

var subCmd = &cobra.Command{
	Use:   "sub INPUT [OUTPUT|-] SELECTOR...",
	Short: "Extract a subgraph into a new .gfab (or GFA with --view)",
	Long: `Select segments by id, name, path name (--path), or reference range
(--range), optionally expand the selection along the graph topology, and
write a self-contained .gfab holding exactly the selected segments, their
induced links, fully covered paths, and contained walks.

Expansion policies (mutually exclusive):
  --connected      whole connected component(s)
  --cutpoints N    BFS bounded by an N-1 budget of long cutpoint crossings
  --biconnected K  adjacent biconnected components, K iterations`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		view, _ := cmd.Flags().GetBool("view")

		input := args[0]
		rest := args[1:]
		output := ""
		if !view {
			if len(rest) == 0 {
				return gfab.Usagef("missing required OUTPUT argument")
			}
			output = rest[0]
			rest = rest[1:]
		}
		if len(rest) == 0 {
			return gfab.Usagef("specify one or more segments, paths, or ranges to select")
		}

		opts, err := subOptions(cmd)
		if err != nil {
			return err
		}

		local, cleanup, err := localGfab(cmd, input)
		if err != nil {
			return err
		}
		defer cleanup()

		if view || output == "-" {
			w, finish, err := openOutput(output)
			if err != nil {
				return err
			}
			if err := gfab.SubToGFA(cmd.Context(), local, w, rest, opts); err != nil {
				_ = finish()
				return err
			}
			return finish()
		}
		return gfab.SubToGfab(cmd.Context(), local, output, rest, opts)
	},
}

func subOptions(cmd *cobra.Command) (gfab.SubOptions, error) {
	var opts gfab.SubOptions
	opts.Selector.Path, _ = cmd.Flags().GetBool("path")
	opts.Selector.Range, _ = cmd.Flags().GetBool("range")
	opts.Selector.GuessRanges, _ = cmd.Flags().GetBool("guess-ranges")
	opts.Connected, _ = cmd.Flags().GetBool("connected")
	opts.Cutpoints, _ = cmd.Flags().GetInt("cutpoints")
	opts.CutpointsNt, _ = cmd.Flags().GetInt64("cutpoints-nt")
	opts.Biconnected, _ = cmd.Flags().GetInt("biconnected")
	opts.NoSequences, _ = cmd.Flags().GetBool("no-sequences")
	opts.NoConnectivity, _ = cmd.Flags().GetBool("no-connectivity")
	opts.Compress = flagOrConfigInt(cmd, "compress")
	opts.MemoryGBytes = flagOrConfigInt(cmd, "memory-gbytes")
	if samples, _ := cmd.Flags().GetString("walk-samples"); samples != "" {
		for _, s := range strings.Split(samples, ",") {
			if s = strings.TrimSpace(s); s != "" {
				opts.WalkSamples = append(opts.WalkSamples, s)
			}
		}
	}

	policies := 0
	if opts.Connected {
		policies++
	}
	if opts.Cutpoints > 0 {
		policies++
	}
	if opts.Biconnected > 0 {
		policies++
	}
	if policies > 1 {
		return opts, gfab.Usagef("--connected, --cutpoints, and --biconnected are mutually exclusive")
	}
	if cmd.Flags().Changed("cutpoints") && opts.Cutpoints < 1 {
		return opts, gfab.Usagef("--cutpoints budget must be >= 1")
	}
	if cmd.Flags().Changed("biconnected") && opts.Biconnected < 1 {
		return opts, gfab.Usagef("--biconnected iterations must be >= 1")
	}
	if opts.Selector.Path && (opts.Selector.Range || opts.Selector.GuessRanges) {
		return opts, gfab.Usagef("--path and --range/--guess-ranges are mutually exclusive")
	}
	return opts, nil
}

func init() {
	subCmd.Flags().Bool("view", false, "Emit GFA text instead of writing a .gfab")
	subCmd.Flags().Bool("path", false, "Treat selectors as path names")
	subCmd.Flags().Bool("range", false, "Treat selectors as reference ranges like chr7:1,234-5,678")
	subCmd.Flags().Bool("guess-ranges", false, "Treat selectors shaped like CHR[:BEG-END] as ranges")
	subCmd.Flags().Bool("connected", false, "Expand to full connected component(s)")
	subCmd.Flags().Int("cutpoints", 0, "Expand across up to N-1 long cutpoint crossings")
	subCmd.Flags().Int64("cutpoints-nt", 0, "Minimum cutpoint sequence length (nt) to consume budget")
	subCmd.Flags().Int("biconnected", 0, "Expand adjacent biconnected components, K iterations")
	subCmd.Flags().String("walk-samples", "", "Restrict copied walks to these samples (comma-separated)")
	subCmd.Flags().Bool("no-sequences", false, "Omit sequences from the output")
	subCmd.Flags().Bool("no-connectivity", false, "Skip the derived connectivity pass on the output")
	subCmd.Flags().Int("compress", 6, "Storage compression level for the output (0..22)")
	subCmd.Flags().Int("memory-gbytes", 1, "Memory budget for the storage engine (GiB)")
	rootCmd.AddCommand(subCmd)
}

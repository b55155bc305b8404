package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gfabase/gfabase/internal/config"
	"github.com/gfabase/gfabase/internal/gfab"
	"github.com/gfabase/gfabase/internal/httpfile"
	"github.com/gfabase/gfabase/internal/log"
)

var loadCmd = &cobra.Command{
	Use:   "load [INPUT|-] [-o OUTPUT | OUTPUT]",
	Short: "Convert GFA1 text into an indexed .gfab file",
	Long: `Stream a GFA1 file (plain, gzip, or BGZF; use - for stdin) into a new
.gfab. All records load in one transaction; secondary indexes and the
connectivity tables are built afterwards.

With OUTPUT set to -, the loader writes a temporary .gfab and streams its
GFA rendition to stdout.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if len(args) > 1 {
			if output != "" {
				return gfab.Usagef("OUTPUT given both positionally and with -o")
			}
			output = args[1]
		}
		if output == "" {
			return gfab.Usagef("missing required OUTPUT argument")
		}

		opts := gfab.LoadOptions{
			Compress:     flagOrConfigInt(cmd, "compress"),
			MemoryGBytes: flagOrConfigInt(cmd, "memory-gbytes"),
		}
		opts.NoConnectivity, _ = cmd.Flags().GetBool("no-connectivity")

		src, cleanup, err := openInput(cmd, args[0])
		if err != nil {
			return err
		}
		defer cleanup()

		if output != "-" {
			return gfab.Load(cmd.Context(), src, output, opts)
		}

		// stdout wanted: load into a scratch .gfab, then render it
		tmp, err := os.CreateTemp("", "gfabase-*.gfab")
		if err != nil {
			return gfab.IOf(err, "creating temporary file")
		}
		tmpPath := tmp.Name()
		_ = tmp.Close()
		defer func() { _ = os.Remove(tmpPath) }()
		if err := gfab.Load(cmd.Context(), src, tmpPath, opts); err != nil {
			return err
		}
		return viewGfab(cmd, tmpPath, "")
	},
}

func init() {
	loadCmd.Flags().StringP("output", "o", "", "Destination .gfab filename (- for GFA on stdout)")
	loadCmd.Flags().Int("compress", 6, "Storage compression level (0..22)")
	loadCmd.Flags().Int("memory-gbytes", 1, "Memory budget for the storage engine (GiB)")
	loadCmd.Flags().Bool("no-connectivity", false, "Skip the derived connectivity pass")
	rootCmd.AddCommand(loadCmd)
}

// flagOrConfigInt reads an int flag, falling back to viper config when the
// user didn't set it.
func flagOrConfigInt(cmd *cobra.Command, name string) int {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetInt(name)
		return v
	}
	return config.GetInt(name)
}

// openInput opens a local file, stdin (-), or an http(s) URL snapshot.
func openInput(cmd *cobra.Command, input string) (io.Reader, func(), error) {
	if input == "-" || input == "" {
		return os.Stdin, func() {}, nil
	}
	if httpfile.IsURL(input) {
		path, cleanupDl, err := httpfile.Fetch(cmd.Context(), input)
		if err != nil {
			return nil, nil, gfab.IOf(err, "fetching %s", input)
		}
		f, err := os.Open(path) // #nosec G304 - temp path we just created
		if err != nil {
			cleanupDl()
			return nil, nil, gfab.IOf(err, "opening %s", input)
		}
		return f, func() { _ = f.Close(); cleanupDl() }, nil
	}
	f, err := os.Open(input) // #nosec G304 - user-provided input path is intentional
	if err != nil {
		return nil, nil, gfab.IOf(err, "opening %s", input)
	}
	log.Debugf("reading %s", filepath.Clean(input))
	return f, func() { _ = f.Close() }, nil
}

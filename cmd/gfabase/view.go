package main

import (
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/gfabase/gfabase/internal/config"
	"github.com/gfabase/gfabase/internal/gfab"
	"github.com/gfabase/gfabase/internal/httpfile"
)

var viewCmd = &cobra.Command{
	Use:   "view INPUT [OUTPUT]",
	Short: "Render a .gfab back to GFA1 text",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		output := ""
		if len(args) > 1 {
			output = args[1]
		}
		input, cleanup, err := localGfab(cmd, args[0])
		if err != nil {
			return err
		}
		defer cleanup()
		return viewGfab(cmd, input, output)
	},
}

func init() {
	viewCmd.Flags().Bool("no-sequences", false, "Write * instead of sequences (with LN:i tags)")
	rootCmd.AddCommand(viewCmd)
}

func viewGfab(cmd *cobra.Command, gfabPath, output string) error {
	noSeq, _ := cmd.Flags().GetBool("no-sequences")

	ctx := cmd.Context()
	db, err := gfab.OpenDB(ctx, gfabPath, false, gfab.StoreOptions{
		MemoryGBytes: flagOrConfigInt(cmd, "memory-gbytes"),
	})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	w, finish, err := openOutput(output)
	if err != nil {
		return err
	}
	if err := gfab.Emit(ctx, db, w, gfab.EmitOptions{NoSequences: noSeq}); err != nil {
		_ = finish()
		return err
	}
	return finish()
}

// openOutput returns the destination writer: the named file, stdout, or a
// pager when stdout is a terminal and no file was given.
func openOutput(output string) (io.Writer, func() error, error) {
	if output != "" && output != "-" {
		f, err := os.Create(output) // #nosec G304 - user-provided output path is intentional
		if err != nil {
			return nil, nil, gfab.IOf(err, "creating %s", output)
		}
		return f, f.Close, nil
	}
	if output == "" && isatty.IsTerminal(os.Stdout.Fd()) {
		if w, finish, ok := startPager(); ok {
			return w, finish, nil
		}
	}
	return os.Stdout, func() error { return nil }, nil
}

func startPager() (io.Writer, func() error, bool) {
	pager := config.GetString("pager")
	if pager == "" {
		pager = os.Getenv("PAGER")
	}
	if pager == "" {
		pager = "less -S"
	}
	parts := strings.Fields(pager)
	if _, err := exec.LookPath(parts[0]); err != nil {
		return nil, nil, false
	}
	c := exec.Command(parts[0], parts[1:]...) // #nosec G204 - pager comes from user config
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	pipe, err := c.StdinPipe()
	if err != nil {
		return nil, nil, false
	}
	if err := c.Start(); err != nil {
		return nil, nil, false
	}
	finish := func() error {
		_ = pipe.Close()
		return c.Wait()
	}
	return pipe, finish, true
}

// localGfab maps an INPUT argument to a local .gfab path, fetching http(s)
// URLs to $TMPDIR first.
func localGfab(cmd *cobra.Command, input string) (string, func(), error) {
	if !httpfile.IsURL(input) {
		return input, func() {}, nil
	}
	path, cleanup, err := httpfile.Fetch(cmd.Context(), input)
	if err != nil {
		return "", nil, gfab.IOf(err, "fetching %s", input)
	}
	return path, cleanup, nil
}

// cmd/driftcheck verifies that the exported UI schema JSON is in sync with
// the CUE schemas it was generated from.
//
// Phase 1 loads and validates the schemas, which runs every one through the
// CUE #Schema definition. Phase 2 renders the export in memory and compares
// it with the files in --dir: files that are missing, differ, or no longer
// correspond to a schema are reported and the command exits non-zero.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matthewbaird/erpui/internal/meta"
)

// Drift lists the differences between the rendered export and a directory.
type Drift struct {
	Missing []string
	Stale   []string
	Extra   []string
}

// Clean reports whether the directory matches the export.
func (d Drift) Clean() bool {
	return len(d.Missing) == 0 && len(d.Stale) == 0 && len(d.Extra) == 0
}

var errDrift = errors.New("exported schemas are out of date; run uigen")

func main() {
	var schemaDir, genDir string
	cmd := &cobra.Command{
		Use:          "driftcheck",
		Short:        "Check exported UI schemas against their CUE sources",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), schemaDir, genDir)
		},
	}
	cmd.Flags().StringVar(&schemaDir, "schemas", "", "directory of extra *.cue schemas")
	cmd.Flags().StringVar(&genDir, "dir", "gen/ui/schema", "directory written by uigen")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(out io.Writer, schemaDir, genDir string) error {
	fmt.Fprintln(out, "Phase 1: Validating CUE schemas...")
	loader, err := meta.NewLoader()
	if err != nil {
		return err
	}
	schemas, err := loader.LoadAll(schemaDir)
	if err != nil {
		return fmt.Errorf("CUE validation failed: %w", err)
	}
	files, err := meta.Export(schemas)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  %d schemas validate.\n", len(schemas))

	fmt.Fprintf(out, "Phase 2: Checking %s freshness...\n", genDir)
	d, err := check(files, genDir)
	if err != nil {
		return err
	}
	if d.Clean() {
		fmt.Fprintln(out, "  Exported schemas are up to date.")
		return nil
	}
	report(out, "missing", d.Missing)
	report(out, "stale", d.Stale)
	report(out, "extra", d.Extra)
	return errDrift
}

func report(out io.Writer, kind string, names []string) {
	if len(names) > 0 {
		fmt.Fprintf(out, "  %s: %s\n", kind, strings.Join(names, ", "))
	}
}

// check compares the rendered files with the *.json files in dir. A missing
// directory counts every file as missing.
func check(files map[string][]byte, dir string) (Drift, error) {
	var d Drift
	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(dir, name))
		switch {
		case errors.Is(err, os.ErrNotExist):
			d.Missing = append(d.Missing, name)
		case err != nil:
			return Drift{}, fmt.Errorf("reading %s: %w", name, err)
		case !bytes.Equal(got, want):
			d.Stale = append(d.Stale, name)
		}
	}

	onDisk, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return Drift{}, err
	}
	for _, p := range onDisk {
		if name := filepath.Base(p); files[name] == nil {
			d.Extra = append(d.Extra, name)
		}
	}
	sort.Strings(d.Missing)
	sort.Strings(d.Stale)
	sort.Strings(d.Extra)
	return d, nil
}

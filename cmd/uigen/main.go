// cmd/uigen exports the UI schemas as JSON for front-end builds.
//
// It loads the builtin CUE schemas plus any in --schemas, validates them and
// writes one <name>.json per schema to --out, together with an index.json
// listing every schema with its endpoint. The JSON shape is the one served by
// GET /ui/schemas/{name}, so a front end can be built against either.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/matthewbaird/erpui/internal/meta"
)

func main() {
	var schemaDir, outDir string
	cmd := &cobra.Command{
		Use:          "uigen",
		Short:        "Export CUE UI schemas as JSON",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := meta.NewLoader()
			if err != nil {
				return err
			}
			schemas, err := loader.LoadAll(schemaDir)
			if err != nil {
				return err
			}
			written, err := export(schemas, outDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d UI schemas in %s\n", written, outDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaDir, "schemas", "", "directory of extra *.cue schemas")
	cmd.Flags().StringVar(&outDir, "out", "gen/ui/schema", "output directory")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// export validates schemas and writes them to dir. It returns the number of
// schema files written.
func export(schemas []*meta.SchemaMeta, dir string) (int, error) {
	files, err := meta.Export(schemas)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating output dir: %w", err)
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, files[name], 0o644); err != nil {
			return 0, fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return len(files) - 1, nil
}

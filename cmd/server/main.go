package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matthewbaird/erpui/internal/config"
	"github.com/matthewbaird/erpui/internal/logging"
	"github.com/matthewbaird/erpui/internal/meta"
	"github.com/matthewbaird/erpui/internal/server"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "erpui",
	Short: "Schema-driven forms, tables and dashboards for the ERP",
	Long: `erpui renders forms, tables and dashboards from schema metadata.

The serve command starts the UI server together with a development REST API
backed by SQLite, seeded with HR and payroll demo data.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the UI server and development API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
		if err != nil {
			return err
		}
		defer log.Sync()
		defer zap.ReplaceGlobals(log)()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return server.Run(ctx, cfg, log)
	},
}

var schemasJSON bool

var schemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "List the schemas the server would load",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		loader, err := meta.NewLoader()
		if err != nil {
			return err
		}
		schemas, err := loader.LoadAll(cfg.SchemaDir)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if schemasJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(schemas)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tENDPOINT\tFIELDS\tMODE")
		for _, s := range schemas {
			mode := "client"
			if s.ServerSide {
				mode = "server"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.Name, s.APIEndpoint, len(s.Fields), mode)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("ERPUI_CONFIG"), "path to the YAML config file")
	schemasCmd.Flags().BoolVar(&schemasJSON, "json", false, "print full schema metadata as JSON")
	rootCmd.AddCommand(serveCmd, schemasCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

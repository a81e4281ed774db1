// Command dbspec keeps a PostgreSQL schema as YAML: it dumps the live
// catalog into specification files and plans or applies the DDL that turns
// the database into what the files describe.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/dbspec/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "dbspec",
	Short:         "PostgreSQL schema as code",
	Long:          `dbspec dumps a PostgreSQL database into YAML specification files, and plans or applies the DDL that brings a database in line with them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	registerGlobalFlags(rootCmd)
	rootCmd.AddCommand(dumpCmd(), planCmd(), applyCmd(), serveCmd())
}

// registerGlobalFlags declares the connection, selection and logging flags
// every subcommand inherits.
func registerGlobalFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringP("config", "c", config.FileName, "Configuration file")
	f.String("dsn", "", "PostgreSQL connection string (overrides database settings)")
	f.StringP("host", "H", "", "Database host")
	f.IntP("port", "p", 0, "Database port")
	f.StringP("user", "U", "", "Database user")
	f.StringP("dbname", "d", "", "Database name")
	f.StringSliceP("schema", "n", nil, "Only these schemas (repeatable)")
	f.StringSliceP("exclude-schema", "N", nil, "Skip these schemas (repeatable)")
	f.String("log-level", "", "Log level: debug, info, warn, error")
	f.String("log-format", "", "Log format: json or console")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// Command vecserve serves exact k-nearest-neighbor search over binary
// vector snapshots.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// version is overridden at build time with
// -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	so := &serveOptions{}

	root := &cobra.Command{
		Use:   "vecserve",
		Short: "Vector similarity search service",
		Long: `vecserve loads binary vector snapshots from local disk, S3 or MinIO
and answers cosine k-nearest-neighbor queries over HTTP/JSON.

Running vecserve without a subcommand starts the server.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&so.configPath, "config", "c", "", "YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, so)
		},
	}
	addServeFlags(serveCmd, so)

	// No subcommand means serve, so the root accepts the same flags.
	addServeFlags(root, so)
	root.Args = cobra.NoArgs
	root.RunE = serveCmd.RunE

	root.AddCommand(serveCmd, newGenCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "vecserve %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			return nil
		},
	}
}

package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dTab/cmd/build"
	"github.com/ValentinKolb/dTab/cmd/l2f"
	"github.com/ValentinKolb/dTab/cmd/scan"
	"github.com/ValentinKolb/dTab/cmd/serve"
	"github.com/ValentinKolb/dTab/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dtab",
		Short: "replicated read-optimized tables",
		Long: fmt.Sprintf(`dTab (v%s)

Read-optimized B-tree tables in block stores, served over RPC.
Table leaders compute the replica placement (L2F) of every table
and keep it in a register that can be replicated with RAFT.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dTab",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dTab v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(build.BuildCmd)
	RootCmd.AddCommand(scan.ScanCmd)
	RootCmd.AddCommand(l2f.L2FCommands)
	RootCmd.AddCommand(versionCmd)

	key := "serializer"
	RootCmd.PersistentFlags().String(key, "msgpack", util.WrapString("serializer to use (json, msgpack)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http, tcp)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package scan

import (
	"fmt"
	"io"

	"github.com/ValentinKolb/dTab/cmd/util"
	"github.com/ValentinKolb/dTab/lib/btree"
	"github.com/ValentinKolb/dTab/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcTable *client.RPCTable

	// ScanCmd runs a range get against a btree shard
	ScanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Read a key range of a btree shard",
		Long: `Read a key range of a btree shard.
Both bounds are unbounded by default. A bound with a key but without a mode is closed.`,
		Example: `  dtab scan --shard 100 --left user- --right user-~ --right-mode open --limit 10`,
		Args:              cobra.NoArgs,
		PersistentPreRunE: setupTableClient,
		RunE:              run,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)
	util.SetupRPCClientFlags(ScanCmd, 100)

	key := "left"
	ScanCmd.Flags().String(key, "", util.WrapString("Key of the left bound"))

	key = "left-mode"
	ScanCmd.Flags().String(key, "", util.WrapString("Mode of the left bound (none, open, closed)"))

	key = "right"
	ScanCmd.Flags().String(key, "", util.WrapString("Key of the right bound"))

	key = "right-mode"
	ScanCmd.Flags().String(key, "", util.WrapString("Mode of the right bound (none, open, closed)"))

	key = "limit"
	ScanCmd.Flags().Int(key, 0, util.WrapString("Maximum number of pairs to return (0 = no limit)"))

	key = "count"
	ScanCmd.Flags().Bool(key, false, util.WrapString("Only print the number of pairs in the range"))
}

func setupTableClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}
	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}
	rpcTable, err = client.NewRPCTable(util.GetShardID(), util.GetClientConfig(), t, s)
	return err
}

func run(cmd *cobra.Command, _ []string) error {
	defer rpcTable.Close()

	left, err := util.ParseBound(viper.GetString("left"), viper.GetString("left-mode"))
	if err != nil {
		return fmt.Errorf("left bound: %w", err)
	}
	right, err := util.ParseBound(viper.GetString("right"), viper.GetString("right-mode"))
	if err != nil {
		return fmt.Errorf("right bound: %w", err)
	}

	if viper.GetBool("count") {
		n, err := rpcTable.Count(left, right)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "count=%d\n", n)
		return nil
	}

	pairs, err := rpcTable.RangeGet(left, right, viper.GetInt("limit"))
	if err != nil {
		return err
	}
	printPairs(cmd.OutOrStdout(), pairs)
	return nil
}

func printPairs(w io.Writer, pairs []btree.Pair) {
	for _, p := range pairs {
		if p.Flags != 0 {
			fmt.Fprintf(w, "key=%s, flags=%d, value=%s\n", p.Key, p.Flags, p.Value)
		} else {
			fmt.Fprintf(w, "key=%s, value=%s\n", p.Key, p.Value)
		}
	}
	fmt.Fprintf(w, "(%d pairs)\n", len(pairs))
}

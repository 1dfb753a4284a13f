package l2f

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ValentinKolb/dTab/cmd/util"
	"github.com/ValentinKolb/dTab/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcLeader *client.RPCLeader

	// L2FCommands groups the commands that compute or manage the L2F of tables
	L2FCommands = &cobra.Command{
		Use:   "l2f",
		Short: "Compute L2F messages and talk to table leaders",
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)
	util.SetupRPCClientFlags(L2FCommands, 200)

	for _, c := range []*cobra.Command{getCmd, reportCmd, configCmd, reconcileCmd, tablesCmd} {
		c.PreRunE = setupLeaderClient
		L2FCommands.AddCommand(c)
	}
	L2FCommands.AddCommand(calcCmd)
}

// setupLeaderClient initializes the RPC leader client
func setupLeaderClient(cmd *cobra.Command, _ []string) error {
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
	rpcLeader, err = client.NewRPCLeader(util.GetShardID(), util.GetClientConfig(), t, s)
	return err
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

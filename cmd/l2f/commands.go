package l2f

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dTab/lib/leader"
	"github.com/ValentinKolb/dTab/lib/table"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [table]",
		Short: "Prints the current L2F record of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer rpcLeader.Close()
			rec, ok, err := rpcLeader.GetL2F(args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "table=%s, found=false\n", args[0])
				return nil
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	reportCmd = &cobra.Command{
		Use:   "report [table] [server] [state] [branch@timestamp]",
		Short: "Sends the state of a replica to the leader",
		Long: `Sends the state of a replica to the leader. state is one of
secondary_need_primary, secondary_backfilling, secondary_streaming,
primary_need_branch, primary_running, primary_did_warm_shutdown.
The version is optional and defaults to the empty history.`,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer rpcLeader.Close()
			r, err := parseReport(args)
			if err != nil {
				return err
			}
			if err := rpcLeader.Report(r); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "report sent successfully")
			return nil
		},
	}
	configCmd = &cobra.Command{
		Use:   "config [table] [replicas] [primary]",
		Short: "Sets the desired replicas of a table",
		Long:  `Sets the desired replicas of a table. replicas is a comma-separated list of servers, primary is optional.`,
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer rpcLeader.Close()
			config := parseConfig(args[1:])
			if err := rpcLeader.SetConfig(args[0], config); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config set successfully: replicas=%s\n", config.Replicas)
			return nil
		},
	}
	reconcileCmd = &cobra.Command{
		Use:   "reconcile [table]",
		Short: "Runs one reconcile round for a table and prints the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer rpcLeader.Close()
			rec, changed, err := rpcLeader.Reconcile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "changed=%t\n", changed)
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	tablesCmd = &cobra.Command{
		Use:   "tables",
		Short: "Lists the tables with a stored L2F",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer rpcLeader.Close()
			tables, err := rpcLeader.Tables()
			if err != nil {
				return err
			}
			for _, t := range tables {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
)

func parseReport(args []string) (leader.Report, error) {
	state, err := table.ParseF2LState(args[2])
	if err != nil {
		return leader.Report{}, err
	}
	r := leader.Report{Table: args[0], Server: table.ServerID(args[1]), State: state}
	if len(args) == 4 {
		if r.Version, err = parseVersion(args[3]); err != nil {
			return leader.Report{}, err
		}
	}
	return r, nil
}

// parseVersion parses the branch@timestamp form printed by table.Version.
func parseVersion(s string) (table.Version, error) {
	branch, ts, ok := strings.Cut(s, "@")
	if !ok {
		return table.Version{}, fmt.Errorf("invalid version %q (expected branch@timestamp)", s)
	}
	id, err := table.ParseBranchID(branch)
	if err != nil {
		return table.Version{}, err
	}
	timestamp, err := strconv.ParseUint(ts, 10, 64)
	if err != nil {
		return table.Version{}, fmt.Errorf("invalid timestamp %q: %w", ts, err)
	}
	return table.Version{Branch: id, Timestamp: timestamp}, nil
}

func parseConfig(args []string) table.ShardConfig {
	var ids []table.ServerID
	for _, s := range strings.Split(args[0], ",") {
		if s = strings.TrimSpace(s); s != "" {
			ids = append(ids, table.ServerID(s))
		}
	}
	config := table.ShardConfig{Replicas: table.NewServerSet(ids...)}
	if len(args) > 1 {
		config.PrimaryReplica = table.ServerID(args[1])
	}
	return config
}

package l2f

import (
	"encoding/json"
	"io"
	"os"

	"github.com/ValentinKolb/dTab/lib/leader"
	"github.com/ValentinKolb/dTab/lib/table"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// Scenario is the input of the calc command.
type Scenario struct {
	Region   table.Region                      `json:"region"`
	Old      table.L2F                         `json:"old"`
	Config   table.ShardConfig                 `json:"config"`
	States   map[table.ServerID]table.F2LState `json:"states"`
	Versions map[table.ServerID]table.Version  `json:"versions"`
	History  table.BranchHistory               `json:"history"`
}

// CalcResult is the output of the calc command.
type CalcResult struct {
	L2F     table.L2F           `json:"l2f"`
	Changed bool                `json:"changed"`
	Minted  table.BranchHistory `json:"minted,omitempty"`
}

var calcCmd = &cobra.Command{
	Use:   "calc [scenario.json]",
	Short: "Computes the next L2F of a scenario offline",
	Long: `Computes the next L2F of a scenario without contacting a leader. The scenario
is a JSON object with the fields region, old, config, states, versions and history.
Use - to read from stdin. Branches of newly elected primaries are derived
deterministically from region, server and origin version.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrapf(err, "open %s", args[0])
			}
			defer f.Close()
			in = f
		}
		res, err := Calc(in)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

// Calc reads a scenario and computes its next L2F.
func Calc(r io.Reader) (CalcResult, error) {
	var sc Scenario
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sc); err != nil {
		return CalcResult{}, errors.Wrap(err, "decode scenario")
	}
	if sc.Old.Voters == nil && sc.Old.Replicas == nil {
		sc.Old = table.InitialL2F(sc.Config)
	}

	in := table.Input{
		Region:   sc.Region,
		Old:      sc.Old,
		Config:   sc.Config,
		States:   sc.States,
		Versions: sc.Versions,
		History:  sc.History,
	}
	next := table.CalculateL2F(in)
	return CalcResult{
		L2F:     next,
		Changed: !next.Equal(sc.Old.Normalize()),
		Minted:  leader.MintedBranches(in, next),
	}, nil
}

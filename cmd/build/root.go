package build

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	cmdUtil "github.com/ValentinKolb/dTab/cmd/util"
	"github.com/ValentinKolb/dTab/lib/blockstore"
	"github.com/ValentinKolb/dTab/lib/blockstore/engines"
	"github.com/ValentinKolb/dTab/lib/btree/builder"
	"github.com/ValentinKolb/dTab/rpc/common"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var BuildCmd = &cobra.Command{
	Use:   "build [csv file]",
	Short: "Bulk-load a CSV file into a block store",
	Long: `Bulk-load a CSV file into a block store that can be served as a btree shard.
Every record has the form key,value[,flags[,exptime]] where exptime is a unix timestamp in seconds (0 = never expires).
Use - to read from stdin.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error { return cmdUtil.BindCommandFlags(cmd) },
	RunE:    run,
}

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	key := "engine"
	BuildCmd.Flags().String(key, "pebble", cmdUtil.WrapString("Block store to write (pebble or bolt)"))

	key = "path"
	BuildCmd.Flags().String(key, "", cmdUtil.WrapString("Directory (pebble) or file (bolt) of the block store"))

	key = "block-size"
	BuildCmd.Flags().Int(key, 0, cmdUtil.WrapString("Size of every block in bytes (0 = default)"))

	key = "inline-threshold"
	BuildCmd.Flags().Int(key, 0, cmdUtil.WrapString("Largest value stored inside a leaf in bytes (0 = a quarter of the block size)"))

	key = "max-pairs-per-node"
	BuildCmd.Flags().Int(key, 0, cmdUtil.WrapString("Upper bound of pairs per node (0 = as many as fit)"))

	key = "header"
	BuildCmd.Flags().Bool(key, false, cmdUtil.WrapString("Skip the first record of the CSV file"))

	key = "log-level"
	BuildCmd.Flags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

func run(cmd *cobra.Command, args []string) error {
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	impl, err := blockstore.ParseImplementation(viper.GetString("engine"))
	if err != nil {
		return err
	}
	if impl == blockstore.ImplMem {
		return errors.New("an in-memory block store does not outlive the build")
	}

	b, err := builder.New(builder.Options{
		BlockSize:       viper.GetInt("block-size"),
		InlineThreshold: viper.GetInt("inline-threshold"),
		MaxPairsPerNode: viper.GetInt("max-pairs-per-node"),
	})
	if err != nil {
		return err
	}

	in := cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return errors.Wrapf(err, "open %s", args[0])
		}
		defer f.Close()
		in = f
	}
	if _, err := LoadCSV(in, b, viper.GetBool("header")); err != nil {
		return err
	}

	bs, err := engines.Open(impl, viper.GetString("path"))
	if err != nil {
		return err
	}
	res, err := b.Build(bs)
	if err != nil {
		_ = bs.Close()
		return err
	}
	if err := bs.Close(); err != nil {
		return errors.Wrap(err, "close block store")
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// LoadCSV stages every record of r in b and returns the number of records read.
func LoadCSV(r io.Reader, b *builder.Builder, header bool) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	n := 0
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, errors.Wrap(err, "read csv")
		}
		if header && line == 1 {
			continue
		}
		if len(rec) < 2 || len(rec) > 4 {
			return n, errors.Newf("line %d: expected key,value[,flags[,exptime]], got %d fields", line, len(rec))
		}

		var flags, exptime uint64
		if len(rec) > 2 {
			if flags, err = strconv.ParseUint(rec[2], 10, 32); err != nil {
				return n, errors.Wrapf(err, "line %d: flags", line)
			}
		}
		if len(rec) > 3 {
			if exptime, err = strconv.ParseUint(rec[3], 10, 32); err != nil {
				return n, errors.Wrapf(err, "line %d: exptime", line)
			}
		}
		if err := b.Add([]byte(rec[0]), []byte(rec[1]), uint32(flags), uint32(exptime)); err != nil {
			return n, errors.Wrapf(err, "line %d", line)
		}
		n++
	}
}

package kv

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ValentinKolb/planb/cmd/util"
	"github.com/ValentinKolb/planb/lib/db"
	"github.com/ValentinKolb/planb/lib/planb"
	"github.com/ValentinKolb/planb/lib/serde"
	"github.com/ValentinKolb/planb/lib/store"
)

var (
	pb      *planb.PlanB
	kvStore *store.Store[string, []byte]

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Read and write string keys of one table",
		PersistentPreRunE:  openStore,
		PersistentPostRunE: closeStore,
	}
)

func init() {
	util.SetupStoreFlags(KeyValueCommands)
	KeyValueCommands.PersistentFlags().String("table", "kv", util.WrapString("Name of the table to work on"))
	KeyValueCommands.PersistentFlags().Bool("compress", false, util.WrapString("Compress values with snappy (must match how the table was written)"))

	KeyValueCommands.AddCommand(putCmd)
	KeyValueCommands.AddCommand(putIfAbsentCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(scanCmd)
	KeyValueCommands.AddCommand(countCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// openStore opens the environment and binds the string store to the selected table
func openStore(cmd *cobra.Command, _ []string) error {
	var err error
	if pb, err = util.OpenPlanB(cmd); err != nil {
		return err
	}

	var values serde.Serde[[]byte] = serde.Bytes{}
	if viper.GetBool("compress") {
		values = serde.Snappy[[]byte](values, pb.Pool())
	}
	kvStore = store.New[string, []byte](pb, db.Table(viper.GetString("table")), serde.String{}, values)
	return nil
}

func closeStore(_ *cobra.Command, _ []string) error {
	if pb == nil {
		return nil
	}
	return pb.Close()
}

// writeContext bounds a synchronous write by the configured put timeout
func writeContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout := pb.Config().PutTimeout; timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

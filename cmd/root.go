package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ValentinKolb/planb/cmd/kv"
	"github.com/ValentinKolb/planb/cmd/stats"
	"github.com/ValentinKolb/planb/cmd/uid"
	"github.com/ValentinKolb/planb/cmd/util"
	"github.com/ValentinKolb/planb/lib/db"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "planb",
		Short: "embedded transactional key-value storage",
		Long: fmt.Sprintf(`planb (v%s)

An embedded, ordered, transactional key-value storage core with pooled
buffers, surrogate keys and a single-writer commit scheduler.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number and the compiled in engines",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("planb v%s (engines: %v)\n", Version, db.Registered())
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(uid.UIDCommands)
	RootCmd.AddCommand(stats.StatsCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

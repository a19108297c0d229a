package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	cmdutil "github.com/ValentinKolb/planb/cmd/util"
	"github.com/ValentinKolb/planb/lib/db"
	"github.com/ValentinKolb/planb/lib/db/util"
)

// StatsCmd prints the configuration and the counters of an environment
var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print configuration, engine info and metrics of a data directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		pb, err := cmdutil.OpenPlanB(cmd)
		if err != nil {
			return err
		}
		defer pb.Close()

		cfg := pb.Config()
		fmt.Println(cfg.String())

		out, err := json.MarshalIndent(pb.Stats(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		tables, _ := cmd.Flags().GetStringSlice("profile")
		for _, table := range tables {
			err := pb.Read(func(r db.Reader) error {
				p, err := util.ProfileTable(r, db.Table(table))
				if err != nil {
					return err
				}
				printProfile(p)
				return nil
			})
			if err != nil {
				return err
			}
		}

		if withMetrics, _ := cmd.Flags().GetBool("metrics"); withMetrics {
			fmt.Println()
			pb.Metrics(os.Stdout)
		}
		return nil
	},
}

func init() {
	cmdutil.SetupStoreFlags(StatsCmd)
	StatsCmd.Flags().StringSlice("profile", nil, cmdutil.WrapString("Tables to scan for a key and value size profile (comma separated)"))
	StatsCmd.Flags().Bool("metrics", false, cmdutil.WrapString("Also print all metrics in Prometheus text format"))
}

func printProfile(p util.TableProfile) {
	fmt.Printf("\nPROFILE %s\n", strings.ToUpper(string(p.Table)))
	fmt.Printf("  %-22s: %d\n", "Entries", p.Keys.Count())
	for _, h := range []struct {
		name string
		hist *util.SizeHistogram
	}{{"Keys", p.Keys}, {"Values", p.Values}} {
		fmt.Printf("  %-22s: avg=%d p50=%d p99=%d max=%d total=%d\n", h.name,
			h.hist.Average(), h.hist.Percentile(50), h.hist.Percentile(99), h.hist.Max(), h.hist.Total())
	}
}

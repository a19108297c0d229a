package util

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ValentinKolb/planb/lib/common"
	"github.com/ValentinKolb/planb/lib/db"
	"github.com/ValentinKolb/planb/lib/planb"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the flags describing the environment to a command
func SetupStoreFlags(cmd *cobra.Command) {
	def := common.DefaultConfig("./data")
	flags := cmd.PersistentFlags()

	flags.String("dir", def.Dir, WrapString("Directory holding the data files"))
	flags.String("engine", string(def.Engine), WrapString("Storage engine (bolt, mdbx, rocksdb - mdbx and rocksdb need the matching build tag)"))
	flags.Int64("max-size-mb", def.MaxSizeBytes>>20, WrapString("Size ceiling of the data file in MiB (0 = engine default)"))
	flags.Int("max-tables", def.MaxTables, WrapString("Maximum number of sub-tables"))
	flags.Bool("no-sync", def.NoSync, WrapString("Skip fsync on commit (faster, loses the last commits on power failure)"))
	flags.Int("hash-width", def.HashWidth, WrapString("Width of surrogate keys in bytes (4 or 8)"))
	flags.String("lookup", string(def.LookupStrategy), WrapString("Surrogate key strategy (hash, sequence)"))
	flags.Int("uid-max-probes", def.UIDMaxProbes, WrapString("Slots probed on hash collisions before giving up"))
	flags.Int("writer-max-batch", def.WriterMaxBatch, WrapString("Maximum number of operations per write transaction"))
	flags.Duration("writer-flush-interval", def.WriterFlushInterval, WrapString("Commit queued async operations after this delay (0 = only on demand)"))
	flags.Duration("put-timeout", def.PutTimeout, WrapString("How long a synchronous write waits for its commit"))
	flags.Int("pool-max-idle", def.PoolMaxIdle, WrapString("Idle buffers kept per size class"))
	flags.String("log-level", def.LogLevel, WrapString("Log level (debug, info, warn, error)"))
}

// InitConfig loads .env files and environment variables (prefix PLANB_)
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("planb")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// GetConfig reads the environment configuration from viper
func GetConfig() common.Config {
	return common.Config{
		Dir:                 viper.GetString("dir"),
		Engine:              db.Implementation(viper.GetString("engine")),
		MaxSizeBytes:        viper.GetInt64("max-size-mb") << 20,
		MaxTables:           viper.GetInt("max-tables"),
		NoSync:              viper.GetBool("no-sync"),
		HashWidth:           viper.GetInt("hash-width"),
		LookupStrategy:      common.LookupStrategy(viper.GetString("lookup")),
		UIDMaxProbes:        viper.GetInt("uid-max-probes"),
		WriterMaxBatch:      viper.GetInt("writer-max-batch"),
		WriterFlushInterval: viper.GetDuration("writer-flush-interval"),
		PutTimeout:          viper.GetDuration("put-timeout"),
		PoolMaxIdle:         viper.GetInt("pool-max-idle"),
		LogLevel:            viper.GetString("log-level"),
	}
}

// BindCommandFlags binds a command's flags (including inherited ones) to viper
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.InheritedFlags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.Flags())
}

// OpenPlanB binds the flags of cmd, initializes the loggers and opens the environment
func OpenPlanB(cmd *cobra.Command) (*planb.PlanB, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}
	cfg := GetConfig()
	if err := common.InitLoggers(cfg.LogLevel); err != nil {
		return nil, err
	}
	return planb.Open(cfg)
}

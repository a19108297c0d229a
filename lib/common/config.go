package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/planb/lib/db"
)

// --------------------------------------------------------------------------
// Lookup strategies
// --------------------------------------------------------------------------

type LookupStrategy string

const (
	LookupHash     LookupStrategy = "hash"     // Surrogate is the (probed) hash of the value
	LookupSequence LookupStrategy = "sequence" // Surrogate is the next free sequence number
)

// --------------------------------------------------------------------------
// Configuration struct
// --------------------------------------------------------------------------

// Config holds all parameters needed to open a PlanB environment
type Config struct {
	// Storage
	Dir          string
	Engine       db.Implementation
	MaxSizeBytes int64
	MaxTables    int
	NoSync       bool

	// Surrogate keys
	HashWidth      int // 4 or 8 bytes
	LookupStrategy LookupStrategy
	UIDMaxProbes   int

	// Writer
	WriterMaxBatch      int
	WriterFlushInterval time.Duration
	PutTimeout          time.Duration

	// Buffer pool
	PoolMaxIdle int

	// Logging
	LogLevel string
}

// DefaultConfig returns a configuration for the bolt engine in dir
func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		Engine:         db.ImplBolt,
		MaxSizeBytes:   1 << 30,
		MaxTables:      64,
		HashWidth:      8,
		LookupStrategy: LookupHash,
		UIDMaxProbes:   16,
		WriterMaxBatch: 10_000,
		PutTimeout:     30 * time.Second,
		PoolMaxIdle:    64,
		LogLevel:       "info",
	}
}

// Validate checks the configuration, errors match db.ErrConfig
func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Dir != "", "data directory must be set")
	check(c.Engine != "", "engine must be set")
	check(c.MaxSizeBytes >= 0, "max size must not be negative (got %d)", c.MaxSizeBytes)
	check(c.MaxTables >= 0, "max tables must not be negative (got %d)", c.MaxTables)
	check(c.HashWidth == 4 || c.HashWidth == 8, "hash width must be 4 or 8 (got %d)", c.HashWidth)
	check(c.LookupStrategy == LookupHash || c.LookupStrategy == LookupSequence,
		"lookup strategy must be %q or %q (got %q)", LookupHash, LookupSequence, c.LookupStrategy)
	check(c.UIDMaxProbes >= 0, "uid max probes must not be negative (got %d)", c.UIDMaxProbes)
	check(c.WriterMaxBatch >= 0, "writer max batch must not be negative (got %d)", c.WriterMaxBatch)
	check(c.WriterFlushInterval >= 0, "writer flush interval must not be negative (got %s)", c.WriterFlushInterval)
	check(c.PutTimeout >= 0, "put timeout must not be negative (got %s)", c.PutTimeout)
	check(c.PoolMaxIdle >= 0, "pool max idle must not be negative (got %d)", c.PoolMaxIdle)
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return db.NewError(db.ErrCodeConfig, "invalid config: "+strings.Join(problems, "; "))
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	orDefault := func(v int) string {
		if v == 0 {
			return "default"
		}
		return strconv.Itoa(v)
	}

	addSection("Storage")
	addField("Data Directory", c.Dir)
	addField("Engine", string(c.Engine))
	if c.MaxSizeBytes > 0 {
		addField("Max Size", fmt.Sprintf("%d MiB", c.MaxSizeBytes>>20))
	} else {
		addField("Max Size", "engine default")
	}
	addField("Max Tables", orDefault(c.MaxTables))
	addField("No Sync", strconv.FormatBool(c.NoSync))

	addSection("Surrogate Keys")
	addField("Strategy", string(c.LookupStrategy))
	addField("Hash Width", fmt.Sprintf("%d bytes", c.HashWidth))
	addField("Max Probes", orDefault(c.UIDMaxProbes))

	addSection("Writer")
	addField("Max Batch", orDefault(c.WriterMaxBatch))
	if c.WriterFlushInterval > 0 {
		addField("Flush Interval", c.WriterFlushInterval.String())
	} else {
		addField("Flush Interval", "disabled")
	}
	addField("Put Timeout", c.PutTimeout.String())

	addSection("Buffer Pool")
	addField("Max Idle Per Class", orDefault(c.PoolMaxIdle))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

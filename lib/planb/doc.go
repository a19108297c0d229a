// Package planb wires the storage core into one handle.
//
// Open takes a common.Config, opens the configured engine and creates the buffer
// pool, the hash factory and the writer. All metrics (writer, pool, lookups) are
// registered in one VictoriaMetrics set that Metrics prints in Prometheus format.
//
// A PlanB satisfies store.Backend, so typed stores can be created directly on it:
//
//	pb, err := planb.Open(common.DefaultConfig("/var/lib/planb"))
//	if err != nil {
//		return err
//	}
//	defer pb.Close()
//
//	names := store.New[uint64, string](pb, "names", serde.Uint64{}, serde.String{})
package planb

//go:build rocksdb

package cmd

import (
	_ "github.com/ValentinKolb/planb/lib/db/engines/rocks"
)

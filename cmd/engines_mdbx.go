//go:build mdbx

package cmd

import (
	_ "github.com/ValentinKolb/planb/lib/db/engines/mdbx"
)

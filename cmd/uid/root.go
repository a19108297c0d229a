package uid

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ValentinKolb/planb/cmd/util"
	"github.com/ValentinKolb/planb/lib/db"
	"github.com/ValentinKolb/planb/lib/planb"
	lookup "github.com/ValentinKolb/planb/lib/uid"
)

var (
	pb *planb.PlanB

	// UIDCommands represents the surrogate key command group
	UIDCommands = &cobra.Command{
		Use:   "uid",
		Short: "Map values to surrogate keys and back",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) (err error) {
			pb, err = util.OpenPlanB(cmd)
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if pb == nil {
				return nil
			}
			return pb.Close()
		},
	}

	putCmd = &cobra.Command{
		Use:   "put [table] [value]",
		Short: "Returns the surrogate of a value, assigning a new one if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := pb.Lookup(db.Table(args[0]))
			if err != nil {
				return err
			}
			var id string
			err = pb.Update(cmd.Context(), func(txn db.Writer) error {
				return l.Put(txn, []byte(args[1]), func(b []byte) error {
					id = hex.EncodeToString(b)
					return nil
				})
			})
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	idCmd = &cobra.Command{
		Use:   "id [table] [value]",
		Short: "Looks up the surrogate of a value without assigning one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return read(args[0], func(r db.Reader, l lookup.Lookup) error {
				id, found, err := l.GetID(r, []byte(args[1]))
				if err != nil {
					return err
				}
				fmt.Printf("value=%s, found=%v, id=%x\n", args[1], found, id)
				return nil
			})
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [table] [id]",
		Short: "Resolves a hex encoded surrogate to its value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := hex.DecodeString(args[1])
			if err != nil {
				return fmt.Errorf("id must be hex encoded: %w", err)
			}
			return read(args[0], func(r db.Reader, l lookup.Lookup) error {
				value, found, err := l.GetValue(r, id)
				if err != nil {
					return err
				}
				fmt.Printf("id=%s, found=%v, value=%s\n", args[1], found, value)
				return nil
			})
		},
	}
)

func init() {
	util.SetupStoreFlags(UIDCommands)

	UIDCommands.AddCommand(putCmd)
	UIDCommands.AddCommand(idCmd)
	UIDCommands.AddCommand(getCmd)
}

func read(table string, fn func(r db.Reader, l lookup.Lookup) error) error {
	l, err := pb.Lookup(db.Table(table))
	if err != nil {
		return err
	}
	return pb.Read(func(r db.Reader) error {
		return fn(r, l)
	})
}

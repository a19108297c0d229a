package kv

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := writeContext(cmd)
			defer cancel()
			if err := kvStore.Put(ctx, args[0], []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("put successfully")
			return nil
		},
	}
	putIfAbsentCmd = &cobra.Command{
		Use:   "putIfAbsent [key] [value]",
		Short: "Sets the value for a key if the key is not already set",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := writeContext(cmd)
			defer cancel()
			if err := kvStore.PutIfAbsent(ctx, args[0], []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("putIfAbsent successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			resp, ok, err := kvStore.Get(key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%v, resp=%s\n", key, ok, resp)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := writeContext(cmd)
			defer cancel()
			if err := kvStore.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			ok, err := kvStore.Has(key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%v\n", key, ok)
			return nil
		},
	}
	scanCmd = &cobra.Command{
		Use:   "scan [from]",
		Short: "Lists entries in key order, starting at from (default: first key)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from := ""
			if len(args) == 1 {
				from = args[0]
			}
			limit, _ := cmd.Flags().GetInt("limit")
			n := 0
			err := kvStore.Scan(from, func(k string, v []byte) bool {
				fmt.Printf("%s=%s\n", k, v)
				n++
				return limit <= 0 || n < limit
			})
			if err != nil {
				return err
			}
			fmt.Printf("(%d entries)\n", n)
			return nil
		},
	}
	countCmd = &cobra.Command{
		Use:   "count",
		Short: "Counts the entries of the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := kvStore.Count()
			if err != nil {
				return err
			}
			fmt.Println(strconv.Itoa(n))
			return nil
		},
	}
)

func init() {
	scanCmd.Flags().Int("limit", 100, "Maximum number of entries to print (0 = all)")
}

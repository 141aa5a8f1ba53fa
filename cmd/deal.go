package main

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var dealCmd = &cobra.Command{
	Use:   "deal",
	Short: "Operate on individual deals",
}

var dealResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve a single deal inline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dealID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "parse deal id %q", args[0])
		}

		pool, err := openPool(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		res, err := newRunner(pool).ResolveOne(cmd.Context(), dealID)
		if err != nil {
			return err
		}
		if !res.OK() {
			fmt.Printf("Deal %d flagged for review: %s\n", dealID, res.Failure)
			if res.Err != nil {
				fmt.Printf("  cause: %v\n", res.Err)
			}
			return nil
		}

		fmt.Printf("Deal %d resolved: company=%d contact=%d\n", dealID, res.CompanyID, res.ContactID)
		return nil
	},
}

func init() {
	dealCmd.AddCommand(dealResolveCmd)
	rootCmd.AddCommand(dealCmd)
}

package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crm-resolver/internal/crm"
	"github.com/sells-group/crm-resolver/internal/review"
)

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "Work the manual review queue",
}

var reviewsListLimit int

var reviewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := openPool(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		q := review.NewQueue(crm.NewPostgresStore(pool))
		pending, err := q.Pending(cmd.Context(), reviewsListLimit)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("No pending reviews.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDEAL\tREASON\tCOMPANY\tCONTACT\tEMAIL\tCREATED")
		for _, r := range pending {
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.DealID, r.Reason,
				r.CompanyText, r.ContactNameText, r.ContactEmailText,
				r.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var (
	reviewCompanyID int64
	reviewContactID int64
	reviewResolver  string
	reviewNotes     string
)

var reviewsResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve a pending review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reviewID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "parse review id %q", args[0])
		}

		pool, err := openPool(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		q := review.NewQueue(crm.NewPostgresStore(pool))
		if err := q.Resolve(cmd.Context(), reviewID, reviewCompanyID, reviewContactID, reviewResolver, reviewNotes); err != nil {
			return err
		}

		fmt.Printf("Review %d resolved.\n", reviewID)
		return nil
	},
}

func init() {
	reviewsListCmd.Flags().IntVar(&reviewsListLimit, "limit", 50, "max reviews to show (0 = all)")

	reviewsResolveCmd.Flags().Int64Var(&reviewCompanyID, "company", 0, "company id to assign")
	reviewsResolveCmd.Flags().Int64Var(&reviewContactID, "contact", 0, "contact id to assign")
	reviewsResolveCmd.Flags().StringVar(&reviewResolver, "resolver", "", "who resolved it")
	reviewsResolveCmd.Flags().StringVar(&reviewNotes, "notes", "", "resolution notes")
	_ = reviewsResolveCmd.MarkFlagRequired("company")
	_ = reviewsResolveCmd.MarkFlagRequired("contact")
	_ = reviewsResolveCmd.MarkFlagRequired("resolver")

	reviewsCmd.AddCommand(reviewsListCmd)
	reviewsCmd.AddCommand(reviewsResolveCmd)
	rootCmd.AddCommand(reviewsCmd)
}

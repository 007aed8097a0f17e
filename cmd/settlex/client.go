package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mmynk/settlex/pkg/api"
)

func (a *app) client() *api.PaymentServiceClient {
	var opts []connect.ClientOption
	if a.cfg.Token != "" {
		opts = append(opts, api.WithBearerToken(a.cfg.Token))
	}
	return api.NewPaymentServiceClient(http.DefaultClient, a.cfg.ServerURL, opts...)
}

// describeError adds the ledger error kind, when present, to a client error.
func describeError(op string, err error) error {
	if kind := api.ErrorKind(err); kind != "" {
		return fmt.Errorf("%s failed (%s): %w", op, kind, err)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

func recordCmd(a *app) *cobra.Command {
	var req api.RecordPaymentRequest
	var amount string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a payment toward an expense",
		Long: `Record that --member paid their share of --expense in --trip.

The bearer token (--token or SETTLEX_TOKEN) must belong to the member.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", amount, err)
			}
			req.Amount = amt

			if _, err := a.client().RecordPayment(cmd.Context(), connect.NewRequest(&req)); err != nil {
				return describeError("record", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded payment of %s by %s for expense %s\n", amt, req.Member, req.ExpenseID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.TripID, "trip", "", "trip ID")
	cmd.Flags().StringVar(&req.ExpenseID, "expense", "", "expense ID")
	cmd.Flags().StringVar(&req.Payer, "payer", "", "who fronted the expense")
	cmd.Flags().StringVar(&req.Member, "member", "", "who is paying their share")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in base units")
	cmd.Flags().StringVar(&req.TxHash, "tx-hash", "", "settlement transaction reference")
	for _, name := range []string{"trip", "expense", "member", "amount"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func paymentsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "payments [trip-id]",
		Short: "List the payment history of a trip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client().GetPayments(cmd.Context(), connect.NewRequest(&api.GetPaymentsRequest{TripID: args[0]}))
			if err != nil {
				return describeError("payments", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp.Msg.Payments)
			}
			return writePayments(cmd.OutOrStdout(), resp.Msg.Payments)
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")

	return cmd
}

func isPaidCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "is-paid [expense-id] [member]",
		Short: "Check whether a member has paid an expense",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client().IsPaid(cmd.Context(), connect.NewRequest(&api.IsPaidRequest{
				ExpenseID: args[0],
				Member:    args[1],
			}))
			if err != nil {
				return describeError("is-paid", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Msg.Paid)
			return nil
		},
	}
}

func watchCmd(a *app) *cobra.Command {
	var since uint64

	cmd := &cobra.Command{
		Use:   "watch [trip-id]",
		Short: "Stream payment events for a trip as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stream, err := a.client().WatchPayments(cmd.Context(), connect.NewRequest(&api.WatchPaymentsRequest{
				TripID: args[0],
				Since:  since,
			}))
			if err != nil {
				return describeError("watch", err)
			}
			defer stream.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for stream.Receive() {
				if err := enc.Encode(stream.Msg()); err != nil {
					return err
				}
			}
			if err := stream.Err(); err != nil && cmd.Context().Err() == nil {
				return describeError("watch", err)
			}
			return nil
		},
	}

	cmd.Flags().Uint64Var(&since, "since", 0, "replay payments recorded at or after this Unix time first")

	return cmd
}

func writePayments(w io.Writer, payments []api.Payment) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EXPENSE\tMEMBER\tPAYER\tAMOUNT\tTX HASH\tTIME")
	for _, p := range payments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ExpenseID, p.Member, p.Payer, p.Amount, p.TxHash,
			time.Unix(int64(p.Timestamp), 0).UTC().Format(time.RFC3339),
		)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

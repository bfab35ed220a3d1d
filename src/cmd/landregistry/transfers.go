package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/casapps/landregistry/src/pkg/client"
)

func newTransfersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfers",
		Short: "Initiate, execute and track ownership transfers",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List your transfers",
		RunE: authed("/transfers", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("type")
			transfers, err := r.api.Transfers(ctx, kind)
			if err != nil {
				return err
			}
			printTransfers(cmd, transfers)
			return nil
		}),
	}
	list.Flags().String("type", "all", "sent, received or all")

	initiate := &cobra.Command{
		Use:   "initiate <land-id> <recipient>",
		Short: "Propose transferring a land to a username, email or wallet",
		Args:  cobra.ExactArgs(2),
		RunE: authed("/transfers", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			w, err := workflow(ctx, r, args[0])
			if err != nil {
				return err
			}

			req := client.InitiateRequest{ToUser: args[1]}
			req.TransferType, _ = cmd.Flags().GetString("type")
			if raw, _ := cmd.Flags().GetString("price"); raw != "" {
				if req.Price, err = decimal.NewFromString(raw); err != nil {
					return fmt.Errorf("invalid price %q", raw)
				}
			}

			t, err := w.Initiate(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Transfer %s to %s is %s\n", t.ID, args[1], t.Status)
			return nil
		}),
	}
	initiate.Flags().String("price", "", "agreed price")
	initiate.Flags().String("type", "sale", "sale, gift or inheritance")

	execute := &cobra.Command{
		Use:   "execute <land-id> <transfer-id>",
		Short: "Record a pending transfer on the blockchain",
		Args:  cobra.ExactArgs(2),
		RunE: authed("/transfers", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			w, err := workflow(ctx, r, args[0])
			if err != nil {
				return err
			}
			t, err := w.Execute(ctx, args[1])
			if err != nil {
				return err
			}
			if t.Status == client.TransferFailed {
				return fmt.Errorf("transfer failed: %s", deref(t.FailureReason))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Transfer %s %s, tx %s\n", t.ID, t.Status, deref(t.BlockchainTxHash))
			return nil
		}),
	}

	cancel := &cobra.Command{
		Use:   "cancel <land-id> <transfer-id>",
		Short: "Withdraw a pending transfer",
		Args:  cobra.ExactArgs(2),
		RunE: authed("/transfers", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			w, err := workflow(ctx, r, args[0])
			if err != nil {
				return err
			}
			t, err := w.Cancel(ctx, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Transfer %s %s\n", t.ID, t.Status)
			return nil
		}),
	}

	history := &cobra.Command{
		Use:   "history <land-id>",
		Short: "Show a land's transfers, stored and on chain",
		Args:  cobra.ExactArgs(1),
		RunE: authed("/transfers", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			w, err := workflow(ctx, r, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s), owner %s\n", w.Land.Title, w.Land.PropertyID, w.Land.OwnerUsername)
			if reason := w.CanInitiate(); reason != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "New transfers: %s\n", reason)
			}
			printTransfers(cmd, w.Transfers)
			for _, t := range w.Transfers {
				if actions := w.Actions(t); len(actions) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Transfer %s awaits you: %v\n", t.ID, actions)
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "\nOn chain:")
			if w.ChainError != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  unavailable: %s\n", w.ChainError)
				return nil
			}
			tw := table(cmd)
			fmt.Fprintln(tw, "BLOCK\tFROM\tTO\tTX")
			for _, c := range w.ChainTransfers {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.BlockNumber, c.From, c.To, c.TxHash)
			}
			return tw.Flush()
		}),
	}

	cmd.AddCommand(list, initiate, execute, cancel, history)
	return cmd
}

func workflow(ctx context.Context, r *remote, landID string) (*client.TransferWorkflow, error) {
	w := client.NewTransferWorkflow(r.api, landID, r.session.User())
	if err := w.Refresh(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func printTransfers(cmd *cobra.Command, transfers []client.Transfer) {
	w := table(cmd)
	fmt.Fprintln(w, "ID\tPROPERTY\tFROM\tTO\tPRICE\tTYPE\tSTATUS\tINITIATED")
	for _, t := range transfers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.PropertyID, t.FromUsername, t.ToUsername, t.Price.StringFixed(2),
			t.TransferType, t.Status, t.InitiatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

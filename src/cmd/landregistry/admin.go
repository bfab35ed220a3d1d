package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/casapps/landregistry/src/pkg/client"
)

func newAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administration: review lands, manage users, reports",
	}

	dashboard := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the admin overview",
		RunE: authed("/admin", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			d, err := r.api.Dashboard(ctx)
			if err != nil {
				return err
			}
			w := table(cmd)
			if d.Lands != nil {
				fmt.Fprintf(w, "Lands:\t%d total, %d pending, %d verified, %d on chain\n",
					d.Lands.TotalLands, d.Lands.PendingLands, d.Lands.VerifiedLands, d.Lands.BlockchainLands)
			}
			fmt.Fprintf(w, "Users:\t%d total, %d active, %d admins\n", d.Users.Total, d.Users.Active, d.Users.Admins)
			for status, n := range d.Transfers {
				fmt.Fprintf(w, "Transfers %s:\t%d\n", status, n)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if len(d.PendingLands) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "\nAwaiting review:")
				printLands(cmd, d.PendingLands)
			}
			return nil
		}),
	}

	users := &cobra.Command{
		Use:   "users",
		Short: "List users",
		RunE: authed("/admin/users", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			var q client.UserQuery
			q.Search, _ = cmd.Flags().GetString("search")
			q.Role, _ = cmd.Flags().GetString("role")
			q.Status, _ = cmd.Flags().GetString("status")
			q.Page, _ = cmd.Flags().GetInt("page")
			page, err := r.api.Users(ctx, q)
			if err != nil {
				return err
			}
			w := table(cmd)
			fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tROLE\tACTIVE\tLANDS")
			for _, u := range page.Users {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\n", u.ID, u.Username, u.Email, u.Role, u.IsActive, u.LandCount)
			}
			return w.Flush()
		}),
	}
	users.Flags().String("search", "", "search username, email and name")
	users.Flags().String("role", "", "user or admin")
	users.Flags().String("status", "", "active or inactive")
	users.Flags().Int("page", 1, "page")

	setStatus := func(active bool) func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
		return func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			u, err := r.api.SetUserStatus(ctx, args[0], active)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s active: %t\n", u.Username, u.IsActive)
			return nil
		}
	}
	activate := &cobra.Command{
		Use:   "activate <user-id>",
		Short: "Re-enable an account",
		Args:  cobra.ExactArgs(1),
		RunE:  authed("/admin/users", setStatus(true)),
	}
	deactivate := &cobra.Command{
		Use:   "deactivate <user-id>",
		Short: "Disable an account and end its sessions",
		Args:  cobra.ExactArgs(1),
		RunE:  authed("/admin/users", setStatus(false)),
	}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List lands awaiting review",
		RunE: authed("/admin/lands", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			page, err := r.api.PendingLands(ctx, 1, 100)
			if err != nil {
				return err
			}
			printLands(cmd, page.Lands)
			return nil
		}),
	}

	allLands := &cobra.Command{
		Use:   "lands",
		Short: "List every land",
		RunE: authed("/admin/lands", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			page, err := r.api.AllLands(ctx, landQuery(cmd))
			if err != nil {
				return err
			}
			printLands(cmd, page.Lands)
			return nil
		}),
	}
	addLandQueryFlags(allLands)

	review := &cobra.Command{
		Use:   "review <land-id> <approve|reject>",
		Short: "Verify or reject a land",
		Args:  cobra.ExactArgs(2),
		RunE: authed("/admin/lands", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			comments, _ := cmd.Flags().GetString("comments")
			land, err := r.api.ReviewLand(ctx, args[0], args[1], comments)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", land.PropertyID, land.Status)
			return nil
		}),
	}
	review.Flags().String("comments", "", "review comments")

	register := &cobra.Command{
		Use:   "register <land-id>",
		Short: "Register a verified land on the blockchain",
		Args:  cobra.ExactArgs(1),
		RunE: authed("/admin/lands", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			reg, err := r.api.RegisterOnBlockchain(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s registered as token %s, tx %s\n",
				reg.Land.PropertyID, reg.Receipt.TokenID, reg.Receipt.TxHash)
			return nil
		}),
	}

	transfers := &cobra.Command{
		Use:   "transfers",
		Short: "List every transfer",
		RunE: authed("/admin/transfers", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			var q client.TransferQuery
			q.Status, _ = cmd.Flags().GetString("status")
			q.LandID, _ = cmd.Flags().GetString("land")
			q.Page, _ = cmd.Flags().GetInt("page")
			page, err := r.api.AllTransfers(ctx, q)
			if err != nil {
				return err
			}
			printTransfers(cmd, page.Transfers)
			return nil
		}),
	}
	transfers.Flags().String("status", "", "transfer status")
	transfers.Flags().String("land", "", "land id")
	transfers.Flags().Int("page", 1, "page")

	chain := &cobra.Command{
		Use:   "chain",
		Short: "Show the blockchain connection",
		RunE: authed("/admin/blockchain", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			s, err := r.api.BlockchainStatus(ctx)
			if err != nil {
				return err
			}
			w := table(cmd)
			fmt.Fprintf(w, "Connected:\t%t\nNetwork:\t%s\nChain ID:\t%d\nBlock:\t%d\n", s.Connected, s.Network, s.ChainID, s.BlockNumber)
			fmt.Fprintf(w, "Account:\t%s\nBalance:\t%s\nContract:\t%s\n", s.Account, s.Balance, s.ContractAddress)
			if s.Error != "" {
				fmt.Fprintf(w, "Error:\t%s\n", s.Error)
			}
			return w.Flush()
		}),
	}

	report := &cobra.Command{
		Use:       "report <type>",
		Short:     "Download a CSV report",
		Args:      cobra.ExactArgs(1),
		ValidArgs: client.ReportTypes,
		RunE: authed("/admin/reports", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			data, name, err := r.api.Report(ctx, args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = args[0] + "-report.csv"
			}
			dir, _ := cmd.Flags().GetString("dir")
			path := filepath.Join(dir, filepath.Base(name))
			if err := os.WriteFile(path, data, 0644); err != nil {
				return fmt.Errorf("save report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes)\n", path, len(data))
			return nil
		}),
	}
	report.Flags().String("dir", ".", "directory to save the report in")

	audit := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail",
		RunE: authed("/admin/audit", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			var q client.AuditQuery
			q.Action, _ = cmd.Flags().GetString("action")
			q.UserID, _ = cmd.Flags().GetString("user")
			q.ResourceID, _ = cmd.Flags().GetString("resource")
			q.Page, _ = cmd.Flags().GetInt("page")
			if cmd.Flags().Changed("failed") {
				failed, _ := cmd.Flags().GetBool("failed")
				success := !failed
				q.Success = &success
			}
			page, err := r.api.AuditLog(ctx, q)
			if err != nil {
				return err
			}
			w := table(cmd)
			fmt.Fprintln(w, "TIME\tUSER\tACTION\tRESOURCE\tRESULT")
			for _, e := range page.Entries {
				result := "ok"
				if !e.Success {
					result = "failed: " + e.ErrorMessage
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\t%s\n",
					e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Username, e.Action, e.ResourceType, e.ResourceID, result)
			}
			return w.Flush()
		}),
	}
	audit.Flags().String("action", "", "action, e.g. land.review")
	audit.Flags().String("user", "", "user id")
	audit.Flags().String("resource", "", "resource id")
	audit.Flags().Bool("failed", false, "only failed requests")
	audit.Flags().Int("page", 1, "page")

	cmd.AddCommand(dashboard, users, activate, deactivate, pending, allLands, review, register, transfers, chain, report, audit)
	return cmd
}

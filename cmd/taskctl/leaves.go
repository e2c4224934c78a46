package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/yukikurage/task-management-client/internal/app"
	"github.com/yukikurage/task-management-client/internal/leaves"
	"github.com/yukikurage/task-management-client/internal/models"
)

const dateLayout = "2006-01-02"

func leavesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaves",
		Short: "Request and decide leave",
	}

	cmd.AddCommand(leavesListCmd())
	cmd.AddCommand(leavesRequestCmd())
	cmd.AddCommand(leavesDecideCmd("approve", "Approve a pending leave request", models.LeaveStatusApproved))
	cmd.AddCommand(leavesDecideCmd("reject", "Reject a pending leave request", models.LeaveStatusRejected))

	return cmd
}

func leavesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List leave requests, pending first",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			return withSession(cmd, func(ctx context.Context, a *app.App) error {
				list, err := a.Leaves.List(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), list)
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No leave requests")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSTATUS\tFROM\tTO\tREQUESTER\tREASON")
				for _, l := range list {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", l.ID, l.Status,
						l.StartDate.Format(dateLayout), l.EndDate.Format(dateLayout), l.RequesterID, l.Reason)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	return cmd
}

func leavesRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request leave",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			reason, _ := cmd.Flags().GetString("reason")

			start, err := time.Parse(dateLayout, from)
			if err != nil {
				return fmt.Errorf("invalid --from (want YYYY-MM-DD): %w", err)
			}
			end, err := time.Parse(dateLayout, to)
			if err != nil {
				return fmt.Errorf("invalid --to (want YYYY-MM-DD): %w", err)
			}

			return withSession(cmd, func(ctx context.Context, a *app.App) error {
				leave, err := a.Leaves.Submit(ctx, leaves.Draft{StartDate: start, EndDate: end, Reason: reason})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requested %s (%s)\n", leave.ID, leave.Status)
				return nil
			})
		},
	}

	cmd.Flags().String("from", "", "First day (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last day (YYYY-MM-DD)")
	cmd.Flags().StringP("reason", "r", "", "Reason for the leave")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func leavesDecideCmd(use, short string, decision models.LeaveStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [leave-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App) error {
				// Decisions are checked against the cached list.
				if _, err := a.Leaves.List(ctx); err != nil {
					return err
				}

				var (
					leave models.LeaveRequest
					err   error
				)
				if decision == models.LeaveStatusApproved {
					leave, err = a.Leaves.Approve(ctx, args[0])
				} else {
					leave, err = a.Leaves.Reject(ctx, args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Leave %s is now %s\n", leave.ID, leave.Status)
				return nil
			})
		},
	}
}

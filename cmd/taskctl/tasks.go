package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/yukikurage/task-management-client/internal/app"
	"github.com/yukikurage/task-management-client/internal/models"
	"github.com/yukikurage/task-management-client/internal/tasksync"
)

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List and change tasks",
	}

	cmd.AddCommand(tasksListCmd())
	cmd.AddCommand(tasksBoardCmd())
	cmd.AddCommand(tasksCreateCmd())
	cmd.AddCommand(tasksMoveCmd())
	cmd.AddCommand(tasksDeleteCmd())

	return cmd
}

func tasksListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tasks visible to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			assignee, _ := cmd.Flags().GetString("assignee")
			asJSON, _ := cmd.Flags().GetBool("json")

			return withSession(cmd, func(ctx context.Context, a *app.App) error {
				if _, err := a.Tasks.FetchAll(ctx); err != nil {
					return err
				}

				var tasks []models.Task
				switch {
				case status != "":
					s, err := models.ParseTaskStatus(status)
					if err != nil {
						return err
					}
					tasks = a.Tasks.ByStatus(s)
				case assignee != "":
					tasks = a.Tasks.ByAssignee(assignee)
				default:
					tasks = a.Tasks.Tasks()
				}

				if asJSON {
					return printJSON(cmd.OutOrStdout(), tasks)
				}
				printTasks(cmd, tasks)
				return nil
			})
		},
	}

	cmd.Flags().StringP("status", "s", "", "Only tasks in this status")
	cmd.Flags().StringP("assignee", "a", "", "Only tasks assigned to this user id")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")

	return cmd
}

func tasksBoardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Show tasks grouped by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App) error {
				if _, err := a.Tasks.FetchAll(ctx); err != nil {
					return err
				}
				for _, col := range a.Tasks.Board() {
					fmt.Fprintf(cmd.OutOrStdout(), "\n%s (%d)\n", strings.ToUpper(string(col.Status)), len(col.Tasks))
					fmt.Fprintln(cmd.OutOrStdout(), strings.Repeat("-", 40))
					for _, t := range col.Tasks {
						fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s  %s\n", t.Priority, t.Title, t.ID)
					}
				}
				return nil
			})
		},
	}
}

func tasksCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [title]",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description, _ := cmd.Flags().GetString("description")
			status, _ := cmd.Flags().GetString("status")
			priority, _ := cmd.Flags().GetString("priority")
			assignees, _ := cmd.Flags().GetStringSlice("assign")
			due, _ := cmd.Flags().GetString("due")

			draft := tasksync.Draft{
				Title:       args[0],
				Description: description,
				Status:      models.TaskStatus(status),
				Priority:    models.TaskPriority(priority),
				Assignees:   assignees,
			}
			if due != "" {
				d, err := time.Parse("2006-01-02", due)
				if err != nil {
					return fmt.Errorf("invalid --due (want YYYY-MM-DD): %w", err)
				}
				draft.DueDate = &d
			}

			return withSession(cmd, func(ctx context.Context, a *app.App) error {
				if _, err := a.Tasks.FetchUsers(ctx); err != nil {
					return err
				}
				task, err := a.Tasks.Create(ctx, draft)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s: %s\n", task.ID, task.Title)
				return nil
			})
		},
	}

	cmd.Flags().StringP("description", "d", "", "Task description")
	cmd.Flags().StringP("status", "s", "", "Initial status (default todo)")
	cmd.Flags().StringP("priority", "p", "", "Priority: low, medium, high, urgent")
	cmd.Flags().StringSliceP("assign", "a", nil, "Assignee user ids")
	cmd.Flags().String("due", "", "Due date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("assign")

	return cmd
}

func tasksMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move [task-id] [status]",
		Short: "Move a task to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := models.ParseTaskStatus(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, a *app.App) error {
				task, err := a.Tasks.SetStatus(ctx, args[0], status)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to %s\n", task.ID, task.Status)
				return nil
			})
		},
	}
}

func tasksDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [task-id]",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Tasks.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func printTasks(cmd *cobra.Command, tasks []models.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tTITLE\tASSIGNEES\tDUE")
	for _, t := range tasks {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, t.Title, strings.Join(t.Assignees, ","), due)
	}
	_ = w.Flush()
}

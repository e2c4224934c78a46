package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yukikurage/task-management-client/internal/app"
	"github.com/yukikurage/task-management-client/internal/models"
	"github.com/yukikurage/task-management-client/internal/session"
	"github.com/yukikurage/task-management-client/internal/tasksync"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream task changes and notifications until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			onNotify := app.WithNotificationListener(func(n models.Notification) {
				fmt.Fprintf(out, "%s  notification  %s\n", n.ReceivedAt.Format("15:04:05"), n.Message)
			})

			return withSession(cmd, func(ctx context.Context, a *app.App) error {
				tasks, err := a.Tasks.FetchAll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Watching %d task(s) as %s (channel %s). Ctrl-C to stop.\n",
					len(tasks), a.Session.Current().User.Name, a.Channel.State())

				cancelTasks := a.Tasks.OnChange(func(c tasksync.Change) {
					switch c.Kind {
					case tasksync.ChangeRemoved:
						fmt.Fprintf(out, "removed   %s\n", c.TaskID)
					case tasksync.ChangeUpserted:
						if t, ok := a.Tasks.Get(c.TaskID); ok {
							fmt.Fprintf(out, "upserted  %s  [%s] %s\n", t.ID, t.Status, t.Title)
						}
					}
				})
				defer cancelTasks()

				ended := make(chan struct{})
				cancelSession := a.Session.OnChange(func(s session.Session) {
					if !s.Active() {
						select {
						case <-ended:
						default:
							close(ended)
						}
					}
				})
				defer cancelSession()

				select {
				case <-ctx.Done():
					return nil
				case <-ended:
					return fmt.Errorf("session ended by the server")
				}
			}, onNotify)
		},
	}
}

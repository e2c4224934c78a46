package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yukikurage/task-management-client/internal/app"
)

func teamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teams",
		Short: "List and manage teams",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List teams and their members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App) error {
				teams, err := a.API.ListTeams(ctx)
				if err != nil {
					return err
				}
				if len(teams) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No teams")
					return nil
				}
				for _, t := range teams {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  [%s]\n", t.ID, t.Name, strings.Join(t.Members, ", "))
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create [name]",
		Short: "Create a team (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App) error {
				team, err := a.API.CreateTeam(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created team %s (%s)\n", team.Name, team.ID)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add-member [team-id] [user-id]",
		Short: "Add a user to a team (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App) error {
				team, err := a.API.AddTeamMember(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s now has %d member(s)\n", team.Name, len(team.Members))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove-member [team-id] [user-id]",
		Short: "Remove a user from a team (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App) error {
				team, err := a.API.RemoveTeamMember(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s now has %d member(s)\n", team.Name, len(team.Members))
				return nil
			})
		},
	})

	return cmd
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/yukikurage/task-management-client/internal/app"
	"github.com/yukikurage/task-management-client/internal/config"
)

var Version = "dev"

var errNotLoggedIn = errors.New("not logged in; run `taskctl login` first")

func main() {
	rootCmd := &cobra.Command{
		Use:           "taskctl",
		Short:         "Command-line client for the task board",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log client internals to stderr")

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(leavesCmd())
	rootCmd.AddCommand(teamsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openApp loads configuration and builds the client. Extra options are
// passed through to app.New.
func openApp(cmd *cobra.Command, opts ...app.Option) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	var out io.Writer = io.Discard
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose || cfg.Debug {
		out = os.Stderr
	}
	opts = append([]app.Option{app.WithLogger(log.New(out, "", log.LstdFlags))}, opts...)

	return app.New(cfg, opts...)
}

// withSession runs fn with a restored session, failing when there is none.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error, opts ...app.Option) error {
	a, err := openApp(cmd, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if _, ok := a.Session.Restore(ctx); !ok {
		return errNotLoggedIn
	}
	return fn(ctx, a)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

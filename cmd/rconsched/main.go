package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rconsched/internal/app"
	"rconsched/internal/secret"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "rconsched",
		Short:         "Recurring admin commands for remote game server consoles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.json", "path to config file (json or yaml)")

	root.AddCommand(
		newRunCmd(&cfgPath),
		newKeygenCmd(),
		newEncryptCmd(),
		newUpcomingCmd(&cfgPath),
		newHistoryCmd(&cfgPath),
	)
	return root
}

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(*cfgPath)
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer stopCancel()
			a.Stop(stopCtx)
			return nil
		},
	}
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a fresh master key",
		Long: "Generates a master key and prints it as " + secret.EnvKey + "=<key>.\n" +
			"Append the line to your .env file, or let `run` bootstrap one automatically.",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := secret.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", secret.EnvKey, secret.EncodeKey(k))
			return nil
		},
	}
}

func newEncryptCmd() *cobra.Command {
	var envPath string
	cmd := &cobra.Command{
		Use:   "encrypt [password]",
		Short: "Encrypt a server password with the master key",
		Long: "Encrypts a password into the token stored in the state file.\n" +
			"Reads the password from the argument, or from stdin when omitted.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, _, err := secret.LoadOrCreateKey(envPath)
			if err != nil {
				return err
			}

			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				fmt.Fprint(cmd.ErrOrStderr(), "password: ")
				sc := bufio.NewScanner(cmd.InOrStdin())
				if !sc.Scan() {
					return fmt.Errorf("no password on stdin")
				}
				password = strings.TrimSpace(sc.Text())
			}
			if password == "" {
				return fmt.Errorf("password is empty")
			}

			token, err := secret.Encrypt(password, key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&envPath, "env", ".env", "path to the .env file holding the master key")
	return cmd
}

func newUpcomingCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upcoming",
		Short: "List jobs with their next occurrence",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(*cfgPath)
			if err != nil {
				return err
			}
			up := a.Scheduler().Upcoming()
			if len(up) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no enabled jobs")
				return nil
			}
			w := cmd.OutOrStdout()
			for _, u := range up {
				server := u.Job.ServerID
				if p, ok := a.Registry().Lookup(u.Job.ServerID); ok {
					server = p.Name
				}
				fmt.Fprintf(w, "%s  %-20s %-15s %s (%s)\n",
					u.Next.Format("2006-01-02 15:04"), u.Job.Name, server, u.Job.Command, u.Job.Rule.String())
			}
			return nil
		},
	}
}

func newHistoryCmd(cfgPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent dispatch outcomes from durable history",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(*cfgPath)
			if err != nil {
				return err
			}
			h := a.History()
			if h == nil {
				return fmt.Errorf("durable history is disabled; configure the storage section")
			}
			defer h.Close()

			runs, err := h.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, r := range runs {
				status := "ok"
				switch {
				case r.Skipped:
					status = "skipped"
				case r.Error != "":
					status = "failed: " + r.Error
				}
				fmt.Fprintf(w, "%s  %-20s %-15s %-30s %s\n",
					r.At.Local().Format("2006-01-02 15:04:05"), r.JobName, r.ServerName, r.Command, status)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

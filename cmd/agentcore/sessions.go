package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nstogner/agentcore/pkg/logging"
	"github.com/nstogner/agentcore/pkg/store"
)

func newSessionsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect recorded sessions",
	}
	cmd.AddCommand(newSessionsListCmd(flags))
	cmd.AddCommand(newSessionsEventsCmd(flags))
	cmd.AddCommand(newSessionsHistoryCmd(flags))
	cmd.AddCommand(newSessionsCloseCmd(flags))
	cmd.AddCommand(newSessionsForkCmd(flags))
	return cmd
}

// withStore runs fn against the configured store without a model client.
func withStore(cmd *cobra.Command, flags *rootFlags, fn func(a *app) error) error {
	a, err := newApp(cmd.Context(), flags, logging.Options{Stderr: cmd.ErrOrStderr()}, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newSessionsListCmd(flags *rootFlags) *cobra.Command {
	var (
		jsonOut bool
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, flags, func(a *app) error {
				sessions, err := a.store.ListSessions(cmd.Context())
				if err != nil {
					return err
				}
				if limit > 0 && len(sessions) > limit {
					sessions = sessions[:limit]
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), sessions)
				}
				return writeSessions(cmd.OutOrStdout(), sessions)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print JSON")
	cmd.Flags().IntVar(&limit, "limit", 0, "limit number of sessions (0 means no limit)")
	return cmd
}

func writeSessions(w io.Writer, sessions []store.Session) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tMODEL\tUPDATED\tTITLE")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Status, s.Model, s.UpdatedAt.Local().Format(time.DateTime), s.Title)
	}
	return tw.Flush()
}

func newSessionsEventsCmd(flags *rootFlags) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "events <session-id>",
		Short: "Print a session's recorded events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, flags, func(a *app) error {
				evs, err := a.store.SessionEvents(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				p := &printer{w: cmd.OutOrStdout(), json: jsonOut}
				for _, e := range evs {
					p.Record(cmd.Context(), e)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print events as JSON lines")
	return cmd
}

func newSessionsHistoryCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print a session's checkpointed history as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, flags, func(a *app) error {
				h, err := a.store.LoadHistory(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), h.Turns())
			})
		},
	}
	return cmd
}

func newSessionsCloseCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <session-id>...",
		Short: "Mark sessions closed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, flags, func(a *app) error {
				var failed []string
				for _, id := range args {
					if err := a.store.SetSessionStatus(cmd.Context(), id, store.SessionStatusClosed); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
						failed = append(failed, id)
					}
				}
				if len(failed) > 0 {
					return fmt.Errorf("could not close %s", strings.Join(failed, ", "))
				}
				return nil
			})
		},
	}
	return cmd
}

func newSessionsForkCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "fork <session-id>",
		Short: "Start a new session from a copy of another session's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, flags, func(a *app) error {
				id, err := forkSession(cmd.Context(), a.store, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
}

// forkSession copies the source checkpoint into a new active session. The
// event stream is not copied.
func forkSession(ctx context.Context, st store.Store, srcID string) (string, error) {
	src, err := st.GetSession(ctx, srcID)
	if err != nil {
		return "", err
	}
	h, err := st.LoadHistory(ctx, srcID)
	if err != nil {
		return "", fmt.Errorf("loading history: %w", err)
	}
	title := src.Title
	if title == "" {
		title = src.ID
	}
	dst := &store.Session{Title: "fork of " + title, Model: src.Model}
	if err := st.CreateSession(ctx, dst); err != nil {
		return "", err
	}
	if err := st.SaveHistory(ctx, dst.ID, h); err != nil {
		return "", fmt.Errorf("saving history: %w", err)
	}
	return dst.ID, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

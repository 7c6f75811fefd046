package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/nstogner/agentcore/pkg/events"
	"github.com/nstogner/agentcore/pkg/logging"
	"github.com/nstogner/agentcore/pkg/store"
	"github.com/nstogner/agentcore/pkg/tools"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	var (
		sessionID string
		files     []string
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "run [instruction]",
		Short: "Run the agent once and print its events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instruction, err := readInstruction(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, flags, logging.Options{Stderr: cmd.ErrOrStderr()}, true)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if !jsonOut && !isTerminal(out) {
				jsonOut = true
			}

			resume := sessionID != ""
			if resume {
				if _, err := a.store.GetSession(ctx, sessionID); err != nil {
					return fmt.Errorf("session %s: %w", sessionID, err)
				}
			} else {
				sess := &store.Session{Title: title(instruction), Model: a.cfg.Model.Name}
				if err := a.store.CreateSession(ctx, sess); err != nil {
					return err
				}
				sessionID = sess.ID
			}

			p := &printer{w: out, json: jsonOut}
			rec := &events.Recorder{Saver: a.store, SessionID: sessionID, Logger: a.logger}
			sink := events.NewFanout(a.logger, p, rec)

			var approver tools.Approver
			if isatty.IsTerminal(os.Stdin.Fd()) {
				approver = promptApprover(os.Stdin, cmd.ErrOrStderr())
			}
			ag, err := a.newAgent(sessionID, sink, approver)
			if err != nil {
				return err
			}
			if resume {
				h, err := a.store.LoadHistory(ctx, sessionID)
				if err != nil {
					return fmt.Errorf("loading history: %w", err)
				}
				ag.SetHistory(h)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				if _, ok := <-sigCh; ok {
					ag.Cancel()
				}
			}()

			rec.Record(ctx, events.New(events.TypeUserMessage, map[string]any{events.KeyText: instruction}))
			answer, runErr := ag.RunAgent(ctx, instruction, files, resume)

			if err := a.store.SaveHistory(context.WithoutCancel(ctx), sessionID, ag.History()); err != nil {
				a.logger.Error("Failed to save history", "error", err)
			}
			if runErr != nil {
				return runErr
			}
			if !jsonOut {
				fmt.Fprintf(cmd.ErrOrStderr(), "\nsession %s\n", sessionID)
			}
			a.logger.Debug("Run finished", "session", sessionID, "answerLen", len(answer))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&sessionID, "session", "s", "", "continue an existing session")
	f.StringSliceVarP(&files, "file", "f", nil, "attach a file (repeatable)")
	f.BoolVar(&jsonOut, "json", false, "print events as JSON lines")
	return cmd
}

// readInstruction takes the argument, or stdin when it is "-" or absent.
func readInstruction(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading instruction: %w", err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return "", fmt.Errorf("empty instruction")
	}
	return s, nil
}

func title(instruction string) string {
	line, _, _ := strings.Cut(instruction, "\n")
	if r := []rune(line); len(r) > 60 {
		return string(r[:60]) + "..."
	}
	return line
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// printer writes events either as JSON lines or as styled text.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
}

func (p *printer) Record(_ context.Context, e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.json {
		data, err := json.Marshal(e)
		if err != nil {
			return
		}
		fmt.Fprintf(p.w, "%s\n", data)
		return
	}
	if line := formatEvent(e); line != "" {
		fmt.Fprintln(p.w, line)
	}
}

// promptApprover asks on out and reads y/n from in.
func promptApprover(in io.Reader, out io.Writer) tools.Approver {
	r := bufio.NewReader(in)
	var mu sync.Mutex
	return tools.ApproverFunc(func(ctx context.Context, toolName string, input map[string]any) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		args, _ := json.Marshal(input)
		fmt.Fprintf(out, "%s %s\nAllow? [y/N] ", toolStyle.Render("approve "+toolName), args)
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	})
}

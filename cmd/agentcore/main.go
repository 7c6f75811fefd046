// Command agentcore runs the agent from the terminal, serves it over a
// websocket, and inspects recorded sessions.
//
// Usage:
//
//	export GEMINI_API_KEY="your-api-key"
//	agentcore run "summarize the README"
//	agentcore tui
//	agentcore serve --addr :8080
//	agentcore sessions list
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// rootFlags are shared by every subcommand and override the config file.
type rootFlags struct {
	configPath string
	logLevel   string
	provider   string
	model      string
	workspace  string
	store      string
	sandbox    bool
}

func (f *rootFlags) register(pf *pflag.FlagSet) {
	pf.StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
	pf.StringVar(&f.logLevel, "log-level", "", "trace, debug, info, warn or error")
	pf.StringVar(&f.provider, "provider", "", "model provider: gemini, vertex, anthropic or openai")
	pf.StringVarP(&f.model, "model", "m", "", "model name")
	pf.StringVarP(&f.workspace, "workspace", "w", "", "directory the file tools operate on")
	pf.StringVar(&f.store, "store", "", "session store backend: jsonl or sqlite")
	pf.BoolVar(&f.sandbox, "sandbox", false, "enable the docker bash tool")
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:           "agentcore",
		Short:         "Run a tool-using LLM agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags.register(cmd.PersistentFlags())

	cmd.AddCommand(newRunCmd(&flags))
	cmd.AddCommand(newTUICmd(&flags))
	cmd.AddCommand(newServeCmd(&flags))
	cmd.AddCommand(newSessionsCmd(&flags))
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "agentcore: %v\n", err)
		os.Exit(1)
	}
}

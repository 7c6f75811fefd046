package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nstogner/agentcore/pkg/agent"
	"github.com/nstogner/agentcore/pkg/compress"
	"github.com/nstogner/agentcore/pkg/config"
	"github.com/nstogner/agentcore/pkg/events"
	"github.com/nstogner/agentcore/pkg/logging"
	"github.com/nstogner/agentcore/pkg/models"
	"github.com/nstogner/agentcore/pkg/models/provider"
	"github.com/nstogner/agentcore/pkg/sandbox"
	"github.com/nstogner/agentcore/pkg/sandbox/docker"
	"github.com/nstogner/agentcore/pkg/store"
	"github.com/nstogner/agentcore/pkg/store/jsonl"
	"github.com/nstogner/agentcore/pkg/store/sqlite"
	"github.com/nstogner/agentcore/pkg/tokens"
	"github.com/nstogner/agentcore/pkg/tools"
)

// loadConfig reads the config file and environment, then applies flags.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Log.Level, flags.logLevel)
	set(&cfg.Model.Provider, flags.provider)
	set(&cfg.Model.Name, flags.model)
	set(&cfg.Tools.Workspace, flags.workspace)
	set(&cfg.Store.Backend, flags.store)
	if flags.sandbox {
		cfg.Sandbox.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app holds the process-wide dependencies shared by every agent.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *provider.Client
	sandbox *docker.DockerManager
	store   store.Store

	closers []func() error
}

// newApp wires logging, the model client, the sandbox and the session store.
// The model client is skipped when withModel is false.
func newApp(ctx context.Context, flags *rootFlags, logOpts logging.Options, withModel bool) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	logOpts.Level = cfg.Log.Level
	if cfg.Log.File != "" {
		logOpts.File = cfg.Log.File
	}
	logOpts.Journal = cfg.Log.Journal
	logger, closeLog, err := logging.New(logOpts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, closers: []func() error{closeLog}}

	st, err := openStore(cfg.Store, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	if !withModel {
		return a, nil
	}

	retry := models.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Model.MaxAttempts
	retry.RequestsPerMinute = cfg.Model.RequestsPerMinute
	client, err := provider.New(ctx, provider.Config{
		Provider: cfg.Model.Provider,
		Model:    cfg.Model.Name,
		APIKey:   cfg.Model.APIKey,
		BaseURL:  cfg.Model.BaseURL,
		Project:  cfg.Model.Project,
		Location: cfg.Model.Location,
		Retry:    retry,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initializing model provider: %w", err)
	}
	a.client = client
	a.closers = append(a.closers, client.Close)

	if cfg.Sandbox.Enabled {
		workspace, err := filepath.Abs(cfg.Tools.Workspace)
		if err != nil {
			a.Close()
			return nil, err
		}
		mgr, err := docker.New(docker.Config{
			Image:     cfg.Sandbox.Image,
			Workspace: workspace,
			Ports:     cfg.Sandbox.Ports,
			Logger:    logger,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initializing sandbox: %w", err)
		}
		a.sandbox = mgr
		a.closers = append(a.closers, mgr.Close)
	}
	return a, nil
}

func openStore(cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		path := cfg.Path
		if filepath.Ext(path) == "" {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return nil, err
			}
			path = filepath.Join(path, "agentcore.db")
		}
		return sqlite.New(path)
	case "jsonl", "":
		return jsonl.New(cfg.Path, logger)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// newCompressor returns nil when compression is disabled.
func (a *app) newCompressor() compress.Compressor {
	c := a.cfg.Compression
	budget := compress.Budget{
		TokenBudget:  c.TokenBudget,
		MaxTurnCount: c.MaxTurnCount,
		KeepFirst:    c.KeepFirst,
		TailSize:     c.TailSize,
	}
	acct := tokens.New(tokens.NewEstimator(c.Estimator, a.cfg.Model.Name, a.logger))
	switch c.Strategy {
	case "summarize":
		return compress.NewSummarizing(a.client, budget, acct, a.logger)
	case "truncate":
		return compress.NewTruncating(budget, acct, a.logger)
	}
	return nil
}

// newAgent builds an agent for one session. approver may be nil.
func (a *app) newAgent(sessionID string, sink events.Sink, approver tools.Approver) (*agent.Agent, error) {
	logger := a.logger.With("session", sessionID)
	compressor := a.newCompressor()

	var extra []tools.Tool
	if a.sandbox != nil {
		extra = append(extra, sandbox.NewBashTool(a.sandbox, sessionID, a.cfg.Tools.RequireApproval))
	}
	ts := tools.BuildTools(tools.Options{
		Workspace:   a.cfg.Tools.Workspace,
		Compressor:  compressor,
		Memory:      true,
		MessageUser: true,
		Extra:       extra,
		Logger:      logger,
	})
	tm, err := tools.NewManager(ts, tools.ManagerOptions{
		Interactive: a.cfg.Tools.Interactive,
		Approver:    approver,
		Events:      sink,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	return agent.New(agent.Config{
		SystemPrompt:    a.cfg.Agent.SystemPrompt,
		MaxTurns:        a.cfg.Agent.MaxTurns,
		MaxOutputTokens: a.cfg.Agent.MaxOutputTokens,
		ThinkingBudget:  a.cfg.Model.ThinkingBudget,
		Workspace:       a.cfg.Tools.Workspace,
	}, a.client, tm, compressor, sink, logger), nil
}

// endSession marks the session closed and removes its sandbox container.
func (a *app) endSession(ctx context.Context, sessionID string) {
	if err := a.store.SetSessionStatus(ctx, sessionID, store.SessionStatusClosed); err != nil {
		a.logger.Error("Failed to set session status", "error", err)
	}
	if a.sandbox != nil {
		if err := a.sandbox.Stop(ctx, sessionID); err != nil {
			a.logger.Error("Failed to stop sandbox", "error", err)
		}
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

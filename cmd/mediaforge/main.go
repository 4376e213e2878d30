// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command mediaforge is the CLI for the mediaforge service.
//
// Usage:
//
//	mediaforge serve --config config.yaml
//	mediaforge run content_pipeline --topic "slow productivity" --config config.yaml
//	mediaforge validate --config config.yaml
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/mediaforge/pkg/agent"
	"github.com/kadirpekel/mediaforge/pkg/backend"
	"github.com/kadirpekel/mediaforge/pkg/config"
	"github.com/kadirpekel/mediaforge/pkg/job"
	"github.com/kadirpekel/mediaforge/pkg/llms"
	"github.com/kadirpekel/mediaforge/pkg/logger"
	"github.com/kadirpekel/mediaforge/pkg/observability"
	"github.com/kadirpekel/mediaforge/pkg/publish"
	"github.com/kadirpekel/mediaforge/pkg/server"
	"github.com/kadirpekel/mediaforge/pkg/workflow"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the mediaforge server."`
	Run      RunCmd      `cmd:"" help:"Run a workflow once and print the result."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("mediaforge version %s\n", version)
	return nil
}

// ServeCmd starts the HTTP server and the background poller.
type ServeCmd struct {
	Port int `help:"Port to listen on (overrides config)." default:"0"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.GetLogger().Info("shutting down")
		cancel()
	}()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	metrics, err := observability.InitMetrics(cfg.Metrics.Enabled)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	backendClient, err := backend.NewClient(&cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	scheduler := publish.NewScheduler(cfg.Publish)

	reconciler, err := job.NewReconciler(store, backendClient, scheduler, metrics)
	if err != nil {
		return fmt.Errorf("failed to create reconciler: %w", err)
	}

	orchestrators, providers, err := buildOrchestrators(cfg, metrics)
	if err != nil {
		return err
	}
	defer func() {
		for _, p := range providers {
			_ = p.Close()
		}
	}()

	srv := server.New(cfg.Server, reconciler, orchestrators, metrics)
	poller := server.NewPoller(reconciler, time.Duration(cfg.Backend.PollInterval)*time.Second)

	fmt.Printf("mediaforge ready on %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("   Health:    http://%s:%d/health\n", cfg.Server.Host, cfg.Server.Port)
	if cfg.Metrics.Enabled {
		fmt.Printf("   Metrics:   http://%s:%d/metrics\n", cfg.Server.Host, cfg.Server.Port)
	}
	fmt.Printf("   Store:     %s\n", cfg.Store.Dialect)
	for name := range orchestrators {
		fmt.Printf("   Workflow:  %s\n", name)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return poller.Run(gctx) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// RunCmd executes one workflow locally, without starting the server.
type RunCmd struct {
	Workflow string `arg:"" help:"Workflow name from the config."`
	Topic    string `help:"Topic the pipeline works on." required:""`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	orchestrators, providers, err := buildOrchestrators(cfg, observability.NoopMetrics{})
	if err != nil {
		return err
	}
	defer func() {
		for _, p := range providers {
			_ = p.Close()
		}
	}()

	orchestrator, ok := orchestrators[c.Workflow]
	if !ok {
		return fmt.Errorf("workflow %q not found in config", c.Workflow)
	}

	result, err := orchestrator.Execute(ctx, c.Topic)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ValidateCmd validates the configuration file.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required for validate")
	}
	cfg, err := config.LoadFile(cli.Config)
	if err != nil {
		return err
	}

	fmt.Printf("Configuration valid: %d llm(s), %d agent(s), %d workflow(s)\n",
		len(cfg.LLMs), len(cfg.Agents), len(cfg.Workflows))
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default()
	}
	return config.LoadFile(path)
}

func openStore(cfg *config.Config) (job.Store, error) {
	if cfg.Store.Dialect == "memory" {
		return job.NewMemoryStore(), nil
	}
	store, err := job.OpenSQLStore(cfg.Store.Dialect, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Dialect, err)
	}
	return store, nil
}

// buildOrchestrators constructs LLM providers, agents and one orchestrator
// per configured workflow. Providers are shared across agents referencing
// the same LLM entry; the caller owns closing them.
func buildOrchestrators(cfg *config.Config, metrics observability.Recorder) (map[string]*workflow.Orchestrator, map[string]llms.Provider, error) {
	providers := make(map[string]llms.Provider, len(cfg.LLMs))
	for name, llmCfg := range cfg.LLMs {
		p, err := llms.NewProvider(llmCfg)
		if err != nil {
			closeProviders(providers)
			return nil, nil, fmt.Errorf("llm %s: %w", name, err)
		}
		providers[name] = p
	}

	registry := agent.NewRegistry()
	for name, agentCfg := range cfg.Agents {
		provider, ok := providers[agentCfg.LLM]
		if !ok {
			closeProviders(providers)
			return nil, nil, fmt.Errorf("agent %s: llm %q not defined", name, agentCfg.LLM)
		}
		a, err := agent.New(agentCfg, provider)
		if err != nil {
			closeProviders(providers)
			return nil, nil, fmt.Errorf("agent %s: %w", name, err)
		}
		if err := registry.Register(name, a); err != nil {
			closeProviders(providers)
			return nil, nil, err
		}
	}

	orchestrators := make(map[string]*workflow.Orchestrator, len(cfg.Workflows))
	for name, wfCfg := range cfg.Workflows {
		o, err := workflow.NewOrchestrator(wfCfg, cfg.Agents, registry, metrics)
		if err != nil {
			closeProviders(providers)
			return nil, nil, fmt.Errorf("workflow %s: %w", name, err)
		}
		orchestrators[name] = o
	}

	return orchestrators, providers, nil
}

func closeProviders(providers map[string]llms.Provider) {
	for _, p := range providers {
		_ = p.Close()
	}
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("mediaforge"),
		kong.Description("AI media generation jobs and content workflows."),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	output := os.Stderr
	if cli.LogFile != "" {
		f, closeFn, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer closeFn()
		output = f
	}
	logger.Init(level, output, cli.LogFormat)

	if err := kctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

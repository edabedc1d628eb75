package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"finch/internal/agentloop"
	"finch/internal/backlog"
	"finch/internal/brain"
	"finch/internal/config"
	"finch/internal/daemonhttp"
	"finch/internal/embedding"
	"finch/internal/memstore"
	"finch/internal/node"
	"finch/internal/observability"
	"finch/internal/permission"
	"finch/internal/provider"
	"finch/internal/query"
	"finch/internal/tool"
	"finch/internal/window"
)

// components holds everything the daemon command and the one-shot CLI
// commands (query, worker, agent) both need. Building it is the CLI's
// equivalent of the teacher's runServe component wiring, generalized to
// spec §4's provider chain, memory store, and tool registry instead of
// the teacher's channel adapters.
type components struct {
	cfg      *config.Config
	logger   *observability.Logger
	store    *memstore.Store
	perm     *permission.Manager
	permFile *permission.Store
	registry *tool.Registry
	executor *tool.Executor
	chain    *provider.Chain
	router   *provider.Router
	identity node.Identity
	brains   *brain.Registry
	queries  *query.Manager
	backlog  *backlog.Store
	metrics  *observability.Metrics
}

func (c *components) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// buildComponents loads configuration and constructs every long-lived
// dependency a daemon or a one-shot CLI command needs to run the agent
// loop. toolWorkDir scopes filesystem tools (read/write/edit/patch/glob/
// grep/bash) to a single root, per spec §4.6.
func buildComponents(ctx context.Context, configPath, toolWorkDir string) (*components, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	eng := embedding.Select(cfg.Memory.UseNeural)
	store, err := memstore.Open(memstore.Config{
		Path:      cfg.Memory.Path,
		Dimension: cfg.Memory.Dimension,
		Branching: cfg.Memory.Branching,
		MaxDepth:  cfg.Memory.MaxDepth,
		Engine:    eng,
	})
	if err != nil {
		return nil, fmt.Errorf("opening memory store: %w", err)
	}

	permStore, err := permission.Open(cfg.Permission.Path)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening permission store: %w", err)
	}
	perm := permission.NewManager(permStore, permission.Rule(cfg.Permission.DefaultRule))

	registry := tool.NewRegistry()
	registry.Register(tool.NewBashTool(toolWorkDir))
	registry.Register(tool.NewReadTool(toolWorkDir))
	registry.Register(tool.NewWriteTool(toolWorkDir))
	registry.Register(tool.NewEditTool(toolWorkDir))
	registry.Register(tool.NewPatchTool(toolWorkDir))
	registry.Register(tool.NewGlobTool(toolWorkDir))
	registry.Register(tool.NewGrepTool(toolWorkDir))
	registry.Register(tool.NewWebFetchTool())

	var ask tool.AskFunc
	if cfg.Permission.Interactive {
		ask = interactiveAsk
	}
	executor := tool.NewExecutor(registry, perm, permStore, cfg.Permission.Interactive, ask)

	chain, router, err := buildProviderChain(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	metrics := observability.NewMetrics()
	chain.SetMetrics(metrics)
	executor.SetMetrics(metrics)

	identity, err := node.LoadOrCreate(cfg.Node.IdentityPath, cfg.Node.Name)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("loading node identity: %w", err)
	}

	bl, err := backlog.Open(cfg.Backlog.Path)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening backlog store: %w", err)
	}

	return &components{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		perm:     perm,
		permFile: permStore,
		registry: registry,
		executor: executor,
		chain:    chain,
		router:   router,
		identity: identity,
		brains:   brain.NewRegistry(),
		queries:  query.NewManager(),
		backlog:  bl,
		metrics:  metrics,
	}, nil
}

// buildProviderChain constructs a fallback Chain from cfg.Providers:
// a local-preferred OpenAI-compatible backend (if enabled) tried before
// the configured cloud providers in fallback_chain order (spec §4.4).
func buildProviderChain(ctx context.Context, cfg *config.Config) (*provider.Chain, *provider.Router, error) {
	var local provider.Provider
	if cfg.Providers.Local != nil && cfg.Providers.Local.Enabled {
		local = provider.NewLocalProvider(cfg.Providers.Local.BaseURL, cfg.Providers.Local.DefaultModel)
	}

	order := cfg.Providers.FallbackChain
	if len(order) == 0 && cfg.Providers.DefaultProvider != "" {
		order = []string{cfg.Providers.DefaultProvider}
	}

	var cloud []provider.Provider
	for _, name := range order {
		entry, ok := cfg.Providers.Entries[name]
		if !ok {
			continue
		}
		p, err := newCloudProvider(ctx, name, entry)
		if err != nil {
			return nil, nil, fmt.Errorf("constructing provider %q: %w", name, err)
		}
		if p != nil {
			cloud = append(cloud, p)
		}
	}

	if local == nil && len(cloud) == 0 {
		return nil, nil, fmt.Errorf("no providers configured: set providers.local.enabled or providers.entries")
	}

	fbCfg := provider.DefaultFallbackConfig()
	if cfg.Providers.MaxRetries > 0 {
		fbCfg.MaxRetries = cfg.Providers.MaxRetries
	}

	chain := provider.NewChain(local, cloud, fbCfg)
	router := provider.NewRouter(chain, cfg.Providers.CheapModel, cfg.Providers.ComplexModel)
	return chain, router, nil
}

func newCloudProvider(ctx context.Context, name string, entry config.ProviderEntry) (provider.Provider, error) {
	switch name {
	case "anthropic":
		return provider.NewAnthropicProvider(entry.APIKey, entry.DefaultModel), nil
	case "openai":
		return provider.NewOpenAIProvider(entry.APIKey, entry.DefaultModel), nil
	case "gemini":
		return provider.NewGeminiProvider(ctx, entry.APIKey, entry.DefaultModel)
	case "bedrock":
		return provider.NewBedrockProvider(ctx, entry.Region, entry.DefaultModel)
	case "grok", "xai":
		return provider.NewNamedOpenAICompatibleProvider(name, entry.APIKey, "https://api.x.ai/v1", entry.DefaultModel), nil
	case "mistral":
		return provider.NewNamedOpenAICompatibleProvider(name, entry.APIKey, "https://api.mistral.ai/v1", entry.DefaultModel), nil
	case "groq":
		return provider.NewNamedOpenAICompatibleProvider(name, entry.APIKey, "https://api.groq.com/openai/v1", entry.DefaultModel), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func interactiveAsk(ctx context.Context, toolName, reason string, sig permission.Signature) (bool, tool.RememberChoice) {
	fmt.Fprintf(os.Stderr, "finch: %s wants to run %q (%s) — allow? [y/N/always] ", sig.ContextKey, toolName, reason)
	var line string
	fmt.Fscanln(os.Stdin, &line)
	switch line {
	case "y", "Y", "yes":
		return true, tool.RememberNone
	case "always", "a":
		return true, tool.RememberExact
	default:
		return false, tool.RememberNone
	}
}

// routedSender assigns a model via the cheap/complex Router before
// delegating to the underlying fallback Chain, so the agent loop never
// has to pick a model itself (spec §4.4's routing sits between the loop
// and the chain, not inside either).
type routedSender struct {
	router *provider.Router
}

func (s routedSender) Send(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	req.Model = s.router.ModelFor(req)
	return s.router.Chain.Send(ctx, req)
}

// loopConfig builds the shared agentloop.Config a daemon HTTP request,
// a one-shot `finch query`, or `finch agent` all assemble their Sender
// and turn limit from the same components.
func (c *components) loopConfig() agentloop.Config {
	return agentloop.Config{
		Sender:       routedSender{router: c.router},
		Registry:     c.registry,
		Executor:     c.executor,
		SystemPrompt: defaultSystemPrompt,
		MaxTokens:    4096,
		MaxTurns:     agentloop.DefaultMaxTurns,
		Window: window.Config{
			MaxMessages: c.cfg.Window.MaxMessages,
			MaxTokens:   c.cfg.Window.MaxTokens,
		},
		Logger: c.logger,
	}
}

const defaultSystemPrompt = "You are finch, a local-first agentic assistant with access to file, search, and shell tools."

func buildDaemonCmd() *cobra.Command {
	var httpPort int
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the finch daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), configPathFlag, httpPort)
		},
	}
	cmd.Flags().IntVar(&httpPort, "port", 0, "Override the configured HTTP port (0 keeps the config value)")
	return cmd
}

func runDaemon(ctx context.Context, configPath string, portOverride int) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	comps, err := buildComponents(ctx, configPath, workDir)
	if err != nil {
		return err
	}
	defer comps.Close()

	port := comps.cfg.Server.Port
	if portOverride != 0 {
		port = portOverride
	}

	srv := daemonhttp.NewServer(&daemonhttp.Server{
		Host:       comps.cfg.Server.Host,
		Port:       port,
		Brains:     comps.brains,
		Queries:    comps.queries,
		NewLoop:    comps.loopConfig,
		ToolCtx:    tool.Context{WorkDir: workDir, Output: io.Discard},
		NodeID:     comps.identity,
		Logger:     comps.logger,
		Metrics:    comps.metrics,
		HasLocal:   comps.cfg.Providers.Local != nil && comps.cfg.Providers.Local.Enabled,
		HasTeacher: len(comps.cfg.Providers.Entries) > 0,
	})

	sched := backlog.NewScheduler(comps.brains, comps.cfg.Backlog.ReapMaxAge, comps.logger)

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := srv.Start(runCtx); err != nil {
		return err
	}
	if err := sched.Start(runCtx); err != nil {
		return err
	}

	comps.logger.Info(runCtx, "daemon started", "addr", fmt.Sprintf("%s:%d", comps.cfg.Server.Host, port), "node_id", comps.identity.ID)
	<-runCtx.Done()
	comps.logger.Info(context.Background(), "shutdown signal received")

	sched.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

func buildDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon-start",
		Short: "Start the daemon as a background process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startBackgroundDaemon(configPathFlag)
		},
	}
}

func buildDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon-stop",
		Short: "Stop a running background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return stopBackgroundDaemon()
		},
	}
}

func buildDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon-status",
		Short: "Report whether the daemon is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPathFlag)
			if err != nil {
				return err
			}
			return reportDaemonStatus(cmd.OutOrStdout(), cfg)
		},
	}
}

func reportDaemonStatus(out io.Writer, cfg *config.Config) error {
	addr := fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)
	resp, err := http.Get(addr)
	if err != nil {
		fmt.Fprintf(out, "daemon unreachable at %s: %v\n", addr, err)
		return nil
	}
	defer resp.Body.Close()
	fmt.Fprintf(out, "daemon responded %s at %s\n", resp.Status, addr)
	return nil
}

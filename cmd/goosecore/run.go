package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/goosecore/agentcore/agent"
	"github.com/goosecore/agentcore/config"
	"github.com/goosecore/agentcore/extmgr"
	"github.com/goosecore/agentcore/goose"
	"github.com/goosecore/agentcore/internal/logging"
	"github.com/goosecore/agentcore/internal/metrics"
	"github.com/goosecore/agentcore/internal/tracing"
	"github.com/goosecore/agentcore/loop"
	"github.com/goosecore/agentcore/permission"
	"github.com/goosecore/agentcore/plugins"
	"github.com/goosecore/agentcore/provider"
	"github.com/goosecore/agentcore/provider/anthropic"
	"github.com/goosecore/agentcore/provider/openai"
	"github.com/goosecore/agentcore/session"
	"github.com/goosecore/agentcore/truncate"
	"github.com/goosecore/agentcore/vertex"
)

// RunCmd starts an interactive, line-at-a-time reply loop: each stdin line
// becomes a User turn, and every assistant/tool message the loop emits is
// printed as it streams. Tool confirmation and enable_extension requests
// are answered by prompting on stdin, closing the gap the maintainer review
// flagged (smart_approve and enable_extension were previously unreachable
// because nothing implemented ExtensionInstaller).
type RunCmd struct {
	Config        string `short:"c" help:"Path to YAML config file." type:"path"`
	SessionID     string `help:"Session id for history persistence (random if empty)."`
	WorkingDir    string `name:"working-dir" help:"Working directory for builtin tools and the session." default:"."`
	Watch         bool   `help:"Reload config automatically when the file changes."`
	MetricsAddr   string `name:"metrics-addr" help:"If set, serve Prometheus metrics on this address (e.g. :9090)."`
	TraceExporter string `name:"trace-exporter" help:"Span exporter: stdout, otlpgrpc, or empty to disable." enum:",stdout,otlpgrpc" default:""`
	TraceEndpoint string `name:"trace-endpoint" help:"Collector endpoint for the otlpgrpc exporter."`
}

func (c *RunCmd) Run(cli *CLI) error {
	level, err := logging.ParseLevel(cli.LogLevel)
	if err != nil {
		return err
	}
	log := logging.New(level, cli.LogFormat, os.Stderr)

	_ = config.LoadEnvFiles()
	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	prov, err := buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}

	tokenCount, err := truncate.NewTiktokenCounter(cfg.Model)
	if err != nil {
		return fmt.Errorf("build token counter: %w", err)
	}

	shutdownTracing, err := tracing.Init(context.Background(), tracing.Config{
		Exporter:     c.TraceExporter,
		Endpoint:     c.TraceEndpoint,
		SamplingRate: 1.0,
		ServiceName:  "goosecore",
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	budget := 200000
	if limit := prov.GetModelConfig().ContextLimit; limit != nil && *limit > 0 {
		budget = *limit
	}

	promMetrics := metrics.New("goosecore")
	if c.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promMetrics.Handler())
		srv := &http.Server{Addr: c.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics server exited", "error", err)
			}
		}()
		defer srv.Close()
	}

	manager := extmgr.New(log)
	l := &loop.Loop{
		Provider:     prov,
		Gate:         permission.New(permission.NewStore(nil)),
		Mode:         agent.Mode(cfg.Mode),
		TokenCount:   tokenCount,
		Budget:       budget,
		SystemPrompt: cfg.SystemPrompt,
		Log:          log,
		Metrics:      promMetrics,
	}

	workingDir := c.WorkingDir
	if workingDir == "" {
		workingDir = cfg.WorkingDir
	}
	a := goose.New(l, manager, workingDir)
	l.Recorder = session.New(cfg.SessionDir, log)

	for name, ext := range cfg.Extensions {
		a.RegisterKnownExtension(toAgentExtension(name, ext))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if c.Watch && c.Config != "" {
		stop, err := config.Watch(c.Config, func(reloaded *config.Config) {
			l.SystemPrompt = reloaded.SystemPrompt
			log.Info("config reloaded", "path", c.Config)
		}, log)
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		defer stop()
	}

	for name, ext := range cfg.Extensions {
		if _, err := a.AddExtension(ctx, toAgentExtension(name, ext)); err != nil {
			log.Warn("failed to start configured extension", "error", err)
		}
	}

	sessionID := c.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	sessCfg := &agent.SessionConfig{ID: sessionID, WorkingDir: workingDir}

	fmt.Printf("goosecore ready (provider=%s model=%s mode=%s session=%s)\n", cfg.Provider, cfg.Model, cfg.Mode, sessionID)
	return replLoop(ctx, a, sessCfg)
}

func buildProvider(cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider {
	case "plugin":
		prov, _, err := plugins.Load(cfg.Plugin.Path, cfg.Plugin.Args, hclog.Info)
		if err != nil {
			return nil, fmt.Errorf("load provider plugin: %w", err)
		}
		return prov, nil
	case "", "anthropic":
		if cfg.GCP.ProjectID != "" {
			creds, err := vertex.LoadCredentials()
			if err != nil {
				return nil, fmt.Errorf("load GCP credentials: %w", err)
			}
			tokens := vertex.NewTokenCache(creds, nil)
			retryCfg := vertex.RetryConfig{
				InitialInterval: time.Duration(cfg.GCP.InitialRetryIntervalMS) * time.Millisecond,
				Multiplier:      cfg.GCP.BackoffMultiplier,
				MaxInterval:     time.Duration(cfg.GCP.MaxRetryIntervalMS) * time.Millisecond,
				MaxRetries:      cfg.GCP.MaxRetries,
			}
			client := vertex.NewClient(cfg.GCP.ProjectID, cfg.GCP.Location, cfg.Model, tokens, nil, retryCfg)
			return anthropic.NewOnVertex(client, anthropic.Config{
				Model:           cfg.Model,
				ThinkingEnabled: cfg.Claude.ThinkingEnabled,
				ThinkingBudget:  cfg.Claude.ThinkingBudget,
			}), nil
		}
		return anthropic.New(anthropic.Config{
			APIKey:          os.Getenv("ANTHROPIC_API_KEY"),
			Model:           cfg.Model,
			ThinkingEnabled: cfg.Claude.ThinkingEnabled,
			ThinkingBudget:  cfg.Claude.ThinkingBudget,
		})
	case "openai":
		return openai.New(openai.Config{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

func toAgentExtension(name string, ext config.ExtensionConfig) agent.ExtensionConfig {
	return agent.ExtensionConfig{
		Kind:    agent.ExtensionKind(ext.Kind),
		Name:    name,
		Cmd:     ext.Cmd,
		Args:    ext.Args,
		Envs:    ext.Envs,
		Timeout: ext.Timeout,
		URI:     ext.URI,
	}
}

// replLoop reads one line of stdin at a time, feeds it to the agent as a
// User turn, and renders the streamed response, pausing to read a decision
// from stdin whenever a confirmation or enable_extension request appears.
func replLoop(ctx context.Context, a *goose.Agent, sessCfg *agent.SessionConfig) error {
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		turnCtx, span := tracing.Tracer("goosecore/cmd").Start(ctx, "reply")
		for msg := range a.Reply(turnCtx, []agent.Message{agent.NewUserText(line)}, sessCfg) {
			renderMessage(a, in, msg)
		}
		span.End()
	}
}

func renderMessage(a *goose.Agent, in *bufio.Scanner, msg agent.Message) {
	for _, c := range msg.Content {
		switch c.Type {
		case agent.ContentText:
			fmt.Println(c.Text)
		case agent.ContentToolConfirmation:
			decision := promptDecision(in, fmt.Sprintf("run %s(%v)", c.ConfirmName, c.ConfirmArguments))
			a.HandleConfirmation(c.ID, decision)
		case agent.ContentEnableExtensionReq:
			decision := promptDecision(in, fmt.Sprintf("enable extension %q", c.ExtensionName))
			a.HandleConfirmation(c.ID, decision)
		case agent.ContentToolRequest:
			if c.ToolCall != nil {
				fmt.Printf("[tool] %s\n", c.ToolCall.Name)
			}
		}
	}
}

func promptDecision(in *bufio.Scanner, prompt string) agent.PermissionDecision {
	fmt.Printf("%s — allow? [y/N/always] ", prompt)
	if !in.Scan() {
		return agent.DecisionDenyOnce
	}
	switch strings.ToLower(strings.TrimSpace(in.Text())) {
	case "y", "yes":
		return agent.DecisionAllowOnce
	case "always", "a":
		return agent.DecisionAlwaysAllow
	default:
		return agent.DecisionDenyOnce
	}
}

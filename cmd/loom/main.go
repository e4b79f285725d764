package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rahul/loom/internal/agent"
	"github.com/rahul/loom/internal/engine"
	"github.com/rahul/loom/internal/governance"
	"github.com/rahul/loom/internal/observability"
	"github.com/rahul/loom/internal/store"
	"github.com/rahul/loom/internal/tools"
	"github.com/rahul/loom/pkg/config"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  loom run "<task>"                run a task end to end
  loom replay <function> [k=v...]  replay a saved function with inputs
  loom list                        list saved functions
`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg := config.LoadConfig("config.yaml")

	logger := observability.NewLogger(cfg.Logs.Dir)

	// Hosted model: planning, judging, and the llm tool.
	remoteCfg, ok := cfg.Provider("openai")
	if !ok {
		log.Fatal("No enabled 'openai' provider found in config")
	}
	opts := []openai.Option{
		openai.WithToken(remoteCfg.APIKey),
		openai.WithModel(remoteCfg.Model),
	}
	if remoteCfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(remoteCfg.BaseURL))
	}
	remote, err := openai.New(opts...)
	if err != nil {
		log.Fatal(err)
	}

	// Local model: the infer tool and the rank tool's embedder. Optional;
	// the engine substitutes the hosted model when it is down.
	var local llms.Model
	var embedder embeddings.Embedder
	if localCfg, ok := cfg.Provider("local"); ok {
		localOpts := []ollama.Option{ollama.WithModel(localCfg.Model)}
		if localCfg.BaseURL != "" {
			localOpts = append(localOpts, ollama.WithServerURL(localCfg.BaseURL))
		}
		localLLM, err := ollama.New(localOpts...)
		if err != nil {
			log.Printf("Warning: local provider unavailable: %v", err)
		} else {
			local = localLLM
			embedModel := localCfg.EmbeddingModel
			if embedModel == "" {
				embedModel = "nomic-embed-text"
			}
			embedOpts := []ollama.Option{ollama.WithModel(embedModel)}
			if localCfg.BaseURL != "" {
				embedOpts = append(embedOpts, ollama.WithServerURL(localCfg.BaseURL))
			}
			if embedLLM, err := ollama.New(embedOpts...); err == nil {
				embedder, err = embeddings.NewEmbedder(embedLLM)
				if err != nil {
					log.Printf("Warning: embedder unavailable: %v", err)
				}
			}
		}
	}

	registry := tools.NewRegistry()

	browserTool := tools.NewBrowserTool(cfg.Browser.Headless, cfg.Browser.ActionLimit)
	registry.Register(browserTool)
	registry.Register(tools.NewMutateTool(browserTool))
	registry.Register(tools.NewScrapeTool())
	registry.Register(tools.NewInferTool(local, local != nil))
	registry.Register(tools.NewLLMTool(remote))
	registry.Register(tools.NewRankTool(embedder))
	registry.Register(tools.NewExportTool(cfg.App.Workspace))
	registry.Register(tools.NewReportTool(cfg.App.Workspace))

	searchTool, err := tools.NewSearchTool()
	if err != nil {
		log.Printf("Warning: Failed to initialize search tool: %v", err)
	} else {
		registry.Register(searchTool)
	}

	library, err := store.NewLibrary(cfg.Library.Path)
	if err != nil {
		log.Fatal(err)
	}
	defer library.Close()

	gov := governance.NewDefaultPolicyEngine()
	// Default safety rules: keep plans away from destructive page scripting
	// and credential exfiltration.
	_ = gov.DenyArguments(`document\.cookie`)
	_ = gov.DenyArguments(`localStorage`)
	_ = gov.DenyArguments(`(?i)password=`)

	eng := &engine.Engine{
		Registry: registry,
		Policy:   gov,
		Snapshot: browserTool,
		Logger:   logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "run":
		if len(os.Args) < 3 {
			usage()
		}
		prompts := agent.NewPromptManager(cfg.Prompts.Dir)
		pipeline := &engine.Pipeline{
			Planner:   agent.NewPlannerOracle(remote, prompts, logger),
			Engine:    eng,
			Verifier:  &engine.Verifier{Judge: agent.NewJudgeOracle(remote, prompts, logger), Logger: logger},
			Compiler:  &engine.Compiler{Library: library},
			Logger:    logger,
			Workspace: cfg.App.Workspace,
		}
		runTask(ctx, pipeline, browserTool, strings.Join(os.Args[2:], " "))

	case "replay":
		if len(os.Args) < 3 {
			usage()
		}
		replayFunction(ctx, eng, library, browserTool, cfg.App.Workspace, os.Args[2], os.Args[3:])

	case "list":
		listFunctions(library)

	default:
		usage()
	}
}

func runTask(ctx context.Context, pipeline *engine.Pipeline, browser *tools.BrowserTool, task string) {
	observability.PrintBanner()
	observability.InitializeTerminal()
	defer observability.CleanupTerminal()
	log.SetOutput(observability.NewTermWriter())
	startStatusLoop(ctx)

	observability.SetPhase(observability.PhasePlanning, task, 1)
	browser.ResetBudget()

	result, err := pipeline.Run(ctx, task, os.Getenv("LOOM_CREDENTIAL"), engine.PipelineOptions{})
	observability.SetPhase(observability.PhaseIdle, "", 0)
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}

	printJSON(result)
	if !result.Success {
		os.Exit(1)
	}
}

func replayFunction(ctx context.Context, eng *engine.Engine, library *store.Library, browser *tools.BrowserTool, workspace, name string, kvArgs []string) {
	fn, err := library.Get(name)
	if err != nil {
		log.Fatal(err)
	}

	inputs := map[string]any{}
	for _, kv := range kvArgs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			log.Fatalf("invalid input %q, expected key=value", kv)
		}
		inputs[k] = v
	}

	observability.SetPhase(observability.PhaseReplaying, name, 1)
	browser.ResetBudget()

	run := &tools.RunContext{
		RunID:      fmt.Sprintf("replay-%d", time.Now().Unix()),
		Credential: os.Getenv("LOOM_CREDENTIAL"),
		Workspace:  workspace,
	}
	report, err := eng.RunFunction(ctx, fn, inputs, run)
	observability.SetPhase(observability.PhaseIdle, "", 0)
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	printJSON(report)
	if !report.Success {
		os.Exit(1)
	}
}

func listFunctions(library *store.Library) {
	fns, err := library.GetAll()
	if err != nil {
		log.Fatal(err)
	}
	if len(fns) == 0 {
		fmt.Println("No saved functions.")
		return
	}
	for name, fn := range fns {
		inputs := make([]string, len(fn.Inputs))
		for i, in := range fn.Inputs {
			inputs[i] = in.Name
		}
		fmt.Printf("%-30s %d steps  inputs: %s\n", name, len(fn.Plan.Steps), strings.Join(inputs, ", "))
	}
}

func startStatusLoop(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.PrintLiveStatus()
			}
		}
	}()
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
			}
		}
	}()
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode result: %v", err)
	}
	fmt.Println(string(data))
}

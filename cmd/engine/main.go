package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	engconfig "github.com/taskcouncil/engine/internal/config"
	"github.com/taskcouncil/engine/internal/council"
	"github.com/taskcouncil/engine/internal/gates"
	"github.com/taskcouncil/engine/internal/ids"
	"github.com/taskcouncil/engine/internal/inference"
	"github.com/taskcouncil/engine/internal/inference/backend/localhttp"
	"github.com/taskcouncil/engine/internal/inference/backend/ondevice"
	"github.com/taskcouncil/engine/internal/inference/backend/remoteapi"
	"github.com/taskcouncil/engine/internal/logging"
	"github.com/taskcouncil/engine/internal/model"
	"github.com/taskcouncil/engine/internal/pipeline"
	"github.com/taskcouncil/engine/internal/planner"
	"github.com/taskcouncil/engine/internal/storage"
	"github.com/taskcouncil/engine/internal/storage/memory"
	"github.com/taskcouncil/engine/internal/storage/sqlite"
	"github.com/taskcouncil/engine/internal/tool"
	"github.com/taskcouncil/engine/internal/tool/builtin"
	"github.com/taskcouncil/engine/internal/toolregistry"
	"github.com/taskcouncil/engine/internal/worker"
	"github.com/taskcouncil/engine/pkg/config"
	"github.com/taskcouncil/engine/pkg/engineapi"
)

// generalTaskType is the TaskType every undecomposed plan's lone step
// carries (see internal/planner.singleStep); cmd/engine registers a
// model and a worker for it so a fresh deployment can run the happy path
// out of the box. toolTaskTypes name the capabilities a council-decomposed
// plan can route to a real tool instead of a raw model completion.
const generalTaskType = model.TaskType("general")

var toolTaskTypes = map[model.TaskType]string{
	"file_read":   "file_read",
	"file_write":  "file_write",
	"file_list":   "file_list",
	"file_grep":   "file_grep",
	"file_find":   "find",
	"file_move":   "file_move",
	"file_open":   "file_open",
	"file_delete": "file_delete",
	"file_patch":  "file_patch",
	"git_info":    "git_info",
	"http":        "http_request",
	"web_read":    "web_reader",
	"web_search":  "web_search",
	"brave_search": "brave_search",
	"mcp_list":    "mcp_server_list",
	"mcp_add":     "mcp_server_add",
	"mcp_remove":  "mcp_server_remove",
	"mcp_call":    "mcp_call_tool",
	"shell":       "shell_exec",
	"timestamp":   "get_time",
	"config":      "config_edit",
}

func main() {
	config.LoadEnv()

	logger, err := logging.New(os.Getenv("ENGINE_DEV_LOG") == "true")
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := engconfig.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	store, err := openStore(logging.Component(logger, "storage"))
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}

	rt := inference.NewRuntime(inference.Config{
		BackendInboxCapacity: cfg.BackendInboxCapacity,
		InferenceTimeout:     cfg.InferenceTimeout,
	}, logging.Component(logger, "inference"))
	rt.RegisterBackend(remoteapi.New(logging.Component(logger, "remoteapi")))
	rt.RegisterBackend(localhttp.New(logging.Component(logger, "localhttp"), 3))
	rt.RegisterBackend(ondevice.New(logging.Component(logger, "ondevice")))
	defer rt.Close()
	client := inference.NewClient(rt)

	modelRef, err := loadDefaultModel(context.Background(), rt)
	if err != nil {
		logger.Warn("default model unavailable; council/workers will escalate every deliberation until one loads", zap.Error(err))
	}
	if endpoint := os.Getenv("LOCAL_HTTP_ENDPOINT"); endpoint != "" {
		if _, err := rt.LoadModel(context.Background(), inference.ModelDescriptor{
			Backend:  inference.BackendLocalHTTP,
			Location: endpoint,
			Config: map[string]string{
				"api_key": os.Getenv("LOCAL_HTTP_API_KEY"),
				"model":   os.Getenv("LOCAL_HTTP_MODEL"),
			},
		}); err != nil {
			logger.Warn("local_http model unavailable", zap.Error(err))
		}
	}

	judgeCfg := council.JudgeConfig{Model: modelRef, EvidenceRequired: false}
	judges := make([]council.Judge, len(council.StandingRoles))
	for i, role := range council.StandingRoles {
		judges[i] = council.NewLLMJudge(role, client, judgeCfg, logging.Component(logger, "council"))
	}
	consensus := council.New(judges, council.Config{
		JudgeTimeout:     cfg.JudgeTimeout,
		EvidenceRequired: false,
		Algorithm:        algorithmFor(cfg.ConsensusAlgorithm),
		Thresholds:       council.Thresholds{Approval: cfg.ApprovalThreshold, Rejection: cfg.RejectionThreshold},
	}, logging.Component(logger, "council"))
	monitor := council.NewMonitor(consensus, logging.Component(logger, "monitor"))

	models := planner.NewModelTable()
	if !modelRef.Zero() {
		models.Register(generalTaskType, "", "default", modelRef)
		for taskType := range toolTaskTypes {
			models.Register(taskType, "", "default", modelRef)
		}
	}
	decomposer := planner.NewLLMDecomposer(client, modelRef, logging.Component(logger, "planner"))
	plan := planner.New(models, planner.DefaultResourceTable(), decomposer, logging.Component(logger, "planner"))

	gateRegistry := gates.NewRegistry()

	toolReg := tool.NewRegistry()
	registerWorkspaceTools(toolReg)
	if err := toolReg.InitAll(context.Background()); err != nil {
		logger.Fatal("tool init failed", zap.Error(err))
	}
	defer toolReg.CloseAll()
	tools := toolregistry.New(toolReg)

	pool := worker.NewPool(logging.Component(logger, "workers"))
	pool.Register(worker.NewInferenceWorker("inference-general", generalTaskType, client, logging.Component(logger, "workers")), 8)
	for taskType, toolName := range toolTaskTypes {
		pool.Register(worker.NewToolWorker("tool-"+toolName, taskType, toolName, tools, logging.Component(logger, "workers")), 4)
	}

	p := pipeline.New(pipeline.Config{
		StepConcurrencyPerTask:   cfg.StepConcurrencyPerTask,
		EscalationTimeout:        cfg.EscalationTimeout,
		MaxInterventionInboxSize: cfg.MaxInterventionInboxSize,
		ObservationLagThreshold:  cfg.ObservationLagThreshold,
	}, pipeline.Collaborators{
		Store:   store,
		Council: consensus,
		Monitor: monitor,
		Planner: plan,
		Gates:   gateRegistry,
		Workers: pool,
		Tools:   tools,
	}, logging.Component(logger, "pipeline"))

	if err := engineapi.Recover(context.Background(), p, store); err != nil {
		logger.Error("task recovery failed", zap.Error(err))
	}

	server := engineapi.NewServer(p, logging.Component(logger, "engineapi"))
	addr := listenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("engine listening", zap.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}

// openStore chooses sqlite when ENGINE_SQLITE_PATH is set (durable
// restart survival across process restarts), falling back to the
// in-memory store for local development — mirroring the teacher's own
// "env var present selects the richer backend" convention in cmd/omega
// (TAVILY_API_KEY/BRAVE_API_KEY enabling optional tools).
func openStore(logger *zap.Logger) (storage.Store, error) {
	if path := os.Getenv("ENGINE_SQLITE_PATH"); path != "" {
		st, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		logger.Info("storage: sqlite", zap.String("path", path))
		return st, nil
	}
	logger.Info("storage: in-memory (set ENGINE_SQLITE_PATH for durable storage)")
	return memory.New(), nil
}

// loadDefaultModel loads the remote_api model named by LLM_MODEL (falling
// back to a reasonable default), using ANTHROPIC_API_KEY the way the
// teacher's openai.NewClientFromEnv reads its own provider key from the
// environment.
func loadDefaultModel(ctx context.Context, rt *inference.Runtime) (ids.ModelRef, error) {
	modelID := os.Getenv("LLM_MODEL")
	if modelID == "" {
		modelID = "claude-sonnet-4-5"
	}
	return rt.LoadModel(ctx, inference.ModelDescriptor{
		Backend:  inference.BackendRemoteAPI,
		Location: modelID,
		Config:   map[string]string{"api_key_env": "ANTHROPIC_API_KEY"},
	})
}

// registerWorkspaceTools wires the same builtin tool set cmd/omega
// registered for its agent loop (unconditional file/git/http/web tools,
// search tools conditional on an API key env var) — cmd/engine's
// toolTaskTypes routes a decomposed plan's steps to them via
// worker.ToolWorker instead of the agent's think/tool/answer loop.
// mcp_call_tool makes one-shot MCP server calls (connect, invoke, close)
// rather than caching live connections across steps; skill_reload and
// mcp_reload are not carried over, since they hot-reload state scoped to
// one long-lived agent conversation with no equivalent in a stateless
// pipeline step. config_edit's allowlist is seeded with the workspace's
// own .env, the one file outside the sandbox a plan step legitimately
// needs to touch (rotating a key, adding a flag) without a whole
// redeploy.
func registerWorkspaceTools(registry *tool.Registry) {
	workspaceDir, err := os.Getwd()
	if err != nil {
		workspaceDir = "."
	}
	registry.Register(builtin.NewFileReadTool(workspaceDir))
	registry.Register(builtin.NewFileWriteTool(workspaceDir))
	registry.Register(builtin.NewFileListTool(workspaceDir))
	registry.Register(builtin.NewFileFindTool(workspaceDir))
	registry.Register(builtin.NewFileGrepTool(workspaceDir))
	registry.Register(builtin.NewFileMoveTool(workspaceDir))
	registry.Register(builtin.NewFileOpenTool(workspaceDir))
	registry.Register(builtin.NewFileDeleteTool(workspaceDir))
	registry.Register(builtin.NewFilePatchTool(workspaceDir))
	registry.Register(builtin.NewGitInfoTool(workspaceDir))
	registry.Register(builtin.NewTimeTool())
	if envPath, err := filepath.Abs(filepath.Join(workspaceDir, ".env")); err == nil {
		registry.Register(builtin.NewConfigEditTool(map[string]string{".env": envPath}))
	}
	registry.Register(builtin.NewWebReaderTool())
	registry.Register(builtin.NewShellTool(workspaceDir, os.Getenv("TOOL_SHELL_ENABLED") != "false"))

	if os.Getenv("TOOL_HTTP_ENABLED") != "false" {
		registry.Register(builtin.NewHTTPRequestTool(os.Getenv("TOOL_HTTP_ALLOW_INTERNAL") == "true"))
	}
	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		registry.Register(builtin.NewTavilySearchTool(key))
	}
	if key := os.Getenv("BRAVE_API_KEY"); key != "" {
		registry.Register(builtin.NewBraveSearchTool(key))
	}

	mcpConfigPath := os.Getenv("MCP_CONFIG")
	if mcpConfigPath == "" {
		mcpConfigPath = "mcp.json"
	}
	registry.Register(builtin.NewMCPServerListTool(mcpConfigPath))
	registry.Register(builtin.NewMCPServerAddTool(mcpConfigPath))
	registry.Register(builtin.NewMCPServerRemoveTool(mcpConfigPath))
	registry.Register(builtin.NewMCPCallTool(mcpConfigPath))
}

// algorithmFor maps the config package's wire-friendly algorithm name
// ("majority" | "weighted") to the council package's own Algorithm
// constants, whose "confidence_weighted" value predates the config
// package's shorter spelling.
func algorithmFor(name string) council.Algorithm {
	if name == "weighted" {
		return council.AlgorithmConfidenceWeighted
	}
	return council.AlgorithmMajority
}

func listenAddr() string {
	host := os.Getenv("ENGINE_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := os.Getenv("ENGINE_PORT")
	if port == "" {
		port = "8090"
	}
	return host + ":" + port
}

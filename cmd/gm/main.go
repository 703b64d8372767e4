package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gm-agent-org/gm-genai/pkg/annotation"
	"github.com/gm-agent-org/gm-genai/pkg/api"
	"github.com/gm-agent-org/gm-genai/pkg/api/service"
	"github.com/gm-agent-org/gm-genai/pkg/config"
	"github.com/gm-agent-org/gm-genai/pkg/jsonx"
	"github.com/gm-agent-org/gm-genai/pkg/llm"
	"github.com/gm-agent-org/gm-genai/pkg/llm/factory"
	"github.com/gm-agent-org/gm-genai/pkg/patch"
	"github.com/gm-agent-org/gm-genai/pkg/runtime"
	"github.com/gm-agent-org/gm-genai/pkg/runtime/permission"
	"github.com/gm-agent-org/gm-genai/pkg/security"
	"github.com/gm-agent-org/gm-genai/pkg/store"
	"github.com/gm-agent-org/gm-genai/pkg/tool"
	"github.com/gm-agent-org/gm-genai/pkg/tools"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

const usage = `usage: gm [-config file] <command> [flags]

commands:
  run       run one session (-prompt file|-, -apply, -schema file)
  serve     start the HTTP API (default)
  show      print the transcript of a stored session
  clean     delete stored sessions (all, or the given IDs)
  backups   list file backups written by -apply
  rollback  restore a file from a backup by patch ID
`

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		slog.Error("gm exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	flagSet := flag.NewFlagSet("gm", flag.ContinueOnError)
	flagSet.Usage = func() { fmt.Fprint(flagSet.Output(), usage) }
	configPath := flagSet.String("config", "", "Path to configuration file")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	remaining := flagSet.Args()
	mode := "serve"
	if len(remaining) > 0 {
		mode, remaining = remaining[0], remaining[1:]
	}

	cfg, logger := loadConfig(*configPath)

	switch mode {
	case "run":
		return cmdRun(ctx, cfg, logger, remaining, stdin, stdout)
	case "serve":
		return cmdServe(ctx, cfg, logger)
	case "show":
		return cmdShow(ctx, cfg, remaining, stdout)
	case "clean":
		return cmdClean(ctx, cfg, logger, remaining)
	case "backups":
		return cmdBackups(cfg, logger, stdout)
	case "rollback":
		return cmdRollback(ctx, cfg, logger, remaining)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", mode)
	}
}

func loadConfig(path string) (*config.Config, *slog.Logger) {
	cfg, err := config.Load(path)
	if err != nil {
		slog.Warn("failed to load config", "error", err)
	}
	if cfg == nil {
		cfg = &config.Config{}
		cfg.ApplyDefaults()
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	return cfg, logger
}

func openStore(ctx context.Context, cfg *config.Config) (*store.FSStore, error) {
	st := store.NewFSStore(cfg.Workspace.StoreDir)
	if err := st.Open(ctx); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func newPatchEngine(cfg *config.Config, logger *slog.Logger) (patch.Engine, error) {
	engine, err := patch.NewEngine(patch.Config{
		WorkDir:         cfg.Workspace.Root,
		BackupDir:       cfg.Workspace.BackupDir,
		MaxContextLines: 3,
		AllowedPaths:    cfg.Workspace.AllowedPaths,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create patch engine: %w", err)
	}
	return engine, nil
}

// engine bundles everything one process needs to run sessions.
type engine struct {
	runtime  *runtime.Runtime
	executor *tool.Executor
	provider string
	model    string
}

func newEngine(ctx context.Context, cfg *config.Config, st store.Store, reg prometheus.Registerer, logger *slog.Logger) (*engine, error) {
	provider, opts, providerID, err := factory.NewProviderWithOptions(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create llm provider: %w", err)
	}
	gateway := llm.NewGateway(provider, opts)

	validator := security.NewPathValidator(cfg.Workspace.Root, cfg.Workspace.AllowedPaths)
	registry := tool.NewRegistry()
	if err := tools.Register(registry, &tools.Workspace{
		Paths:    validator,
		Commands: security.NewCommandValidator(),
		Limits:   security.DefaultResourceLimits(),
	}); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	executor := tool.NewExecutor(registry, tool.NewPolicy(cfg.Security, registry),
		tool.WithMaxTokens(cfg.Session.MaxToolContentTokens),
		tool.WithWorkspaceRoot(validator.Root()),
		tool.WithLogger(logger))

	rtCfg := runtime.ConfigFromSession(cfg.Session)
	if rtCfg.Model == "" {
		rtCfg.Model = opts.Model
	}
	rt := runtime.New(rtCfg, st, gateway, tool.NewDispatcher(executor, cfg.Session.ParallelTools), logger,
		runtime.WithWorkspace(validator),
		runtime.WithRecorder(runtime.NewPrometheusRecorder(reg)))

	return &engine{runtime: rt, executor: executor, provider: providerID, model: rtCfg.Model}, nil
}

func cmdRun(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	promptPath := fs.String("prompt", "-", "Prompt file, or - for stdin")
	system := fs.String("system", "", "System message")
	schemaPath := fs.String("schema", "", "JSON schema file the answer must satisfy")
	model := fs.String("model", "", "Model override")
	apply := fs.Bool("apply", false, "Write the resulting file edits to the workspace")
	asJSON := fs.Bool("json", false, "Print the full result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	prompt, err := readInput(*promptPath, stdin)
	if err != nil {
		return fmt.Errorf("read prompt: %w", err)
	}
	if strings.TrimSpace(prompt) == "" {
		return errors.New("empty prompt")
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	eng, err := newEngine(ctx, cfg, st, prometheus.NewRegistry(), logger)
	if err != nil {
		return err
	}
	// nobody can answer a permission prompt here
	eng.executor.SetPermissionCallback(func(_ context.Context, req tool.PermissionRequest) (bool, error) {
		logger.Warn("tool call needs approval; set security.auto_approve to allow it", "tool", req.ToolName)
		return false, nil
	})

	sess := &runtime.Session{
		Model:    *model,
		Messages: []types.Message{{Role: types.RoleUser, Content: prompt}},
	}
	if *system != "" {
		sess.Messages = append([]types.Message{{Role: types.RoleSystem, Content: *system}}, sess.Messages...)
	}
	if *schemaPath != "" {
		data, err := os.ReadFile(*schemaPath)
		if err != nil {
			return fmt.Errorf("read schema: %w", err)
		}
		schema, err := jsonx.ParseObject(string(data))
		if err != nil {
			return fmt.Errorf("parse schema %s: %w", *schemaPath, err)
		}
		sess.ResponseType = types.ResponseJSONSchema
		sess.ResponseSchema = schema
	}

	logger.Info("running session", "provider", eng.provider, "model", eng.model)
	res, runErr := eng.runtime.Run(ctx, sess)
	if res == nil {
		return runErr
	}

	var applied []*patch.ApplyResult
	if *apply && res.Status == types.StatusSuccess {
		pe, err := newPatchEngine(cfg, logger)
		if err != nil {
			return err
		}
		applied, err = pe.ApplyAll(ctx, res.FileEdits)
		if err != nil {
			return fmt.Errorf("apply edits: %w", err)
		}
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			*types.RunResult
			Applied []*patch.ApplyResult `json:"applied,omitempty"`
		}{res, applied}); err != nil {
			return err
		}
	} else {
		text := res.Text
		commands := workflowCommands(res.Annotations, os.Getenv)
		if len(commands) > 0 {
			// the CI runner gets the diagnostics as commands instead
			text = annotation.Erase(text)
		}
		fmt.Fprintln(stdout, text)
		for _, c := range commands {
			fmt.Fprintln(stdout, c)
		}
		for _, a := range applied {
			fmt.Fprintf(os.Stderr, "wrote %s (+%d -%d) patch %s\n", a.FilePath, a.LinesAdded, a.LinesRemoved, a.PatchID)
		}
	}
	return runErr
}

// workflowCommands renders diagnostics as logging commands of the CI system
// the process runs under, or nil outside CI.
func workflowCommands(diags []types.Diagnostic, getenv func(string) string) []string {
	var format func(types.Diagnostic) string
	switch {
	case getenv("GITHUB_ACTIONS") == "true":
		format = annotation.GitHubCommand
	case strings.EqualFold(getenv("TF_BUILD"), "true"):
		format = annotation.AzureCommand
	default:
		return nil
	}
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, format(d))
	}
	return out
}

func readInput(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func cmdServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	eng, err := newEngine(ctx, cfg, st, reg, logger)
	if err != nil {
		return err
	}
	perms := permission.NewManager(logger)
	eng.executor.SetPermissionCallback(perms.Callback(5 * time.Minute))

	pe, err := newPatchEngine(cfg, logger)
	if err != nil {
		return err
	}

	svc := service.NewRunService(eng.runtime, st, pe, perms, logger)
	server := api.NewServer(api.Config{
		Addr:    cfg.HTTP.Addr,
		APIKey:  cfg.HTTP.APIKey,
		DevMode: cfg.DevMode,
		Metrics: reg,
	}, svc, logger)
	httpSrv := server.HTTPServer()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("http api listening", "addr", server.Addr(), "provider", eng.provider, "model", eng.model)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server error", "error", err)
		return fmt.Errorf("http server: %w", err)
	}
	svc.Wait()
	logger.Info("http api stopped")
	return nil
}

func cmdShow(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: gm show <session-id>")
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	msgs, err := runtime.Replay(ctx, st, args[0])
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return fmt.Errorf("session %s: %w", args[0], store.ErrNotFound)
	}
	for _, m := range msgs {
		header := string(m.Role)
		if m.ToolName != "" {
			header += " " + m.ToolName
		}
		fmt.Fprintf(stdout, "## %s\n", header)
		if text := m.Text(); text != "" {
			fmt.Fprintln(stdout, text)
		}
		for _, c := range m.ToolCalls {
			fmt.Fprintf(stdout, "-> %s(%s)\n", c.Name, c.Arguments)
		}
		fmt.Fprintln(stdout)
	}
	return nil
}

func cmdClean(ctx context.Context, cfg *config.Config, logger *slog.Logger, ids []string) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(ids) == 0 {
		if ids, err = st.ListSessions(ctx); err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
	}
	logger.Info("cleaning sessions", "path", cfg.Workspace.StoreDir, "count", len(ids))
	for _, id := range ids {
		if err := st.DeleteSession(ctx, id); err != nil {
			logger.Error("failed to delete session", "session_id", id, "error", err)
			return fmt.Errorf("delete session %s: %w", id, err)
		}
	}
	logger.Info("cleanup complete")
	return nil
}

func cmdBackups(cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	pe, err := newPatchEngine(cfg, logger)
	if err != nil {
		return err
	}
	backups, err := pe.ListBackups()
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}
	for _, b := range backups {
		state := "modified"
		if b.Created {
			state = "created"
		}
		fmt.Fprintf(stdout, "%s\t%s\t%s\t%s\n", b.PatchID, b.Timestamp, state, b.FilePath)
	}
	return nil
}

func cmdRollback(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: gm rollback <patch-id>...")
	}
	pe, err := newPatchEngine(cfg, logger)
	if err != nil {
		return err
	}
	for _, id := range args {
		if err := pe.Rollback(ctx, id); err != nil {
			return fmt.Errorf("rollback %s: %w", id, err)
		}
		logger.Info("rolled back", "patch_id", id)
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	normalized := strings.ToUpper(strings.TrimSpace(level))
	switch normalized {
	case "DEBUG", "VERBOSE":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/banphlet/trigger.dev-rails/internal/api"
	"github.com/banphlet/trigger.dev-rails/internal/config"
	"github.com/banphlet/trigger.dev-rails/internal/events"
	"github.com/banphlet/trigger.dev-rails/internal/lock"
	"github.com/banphlet/trigger.dev-rails/internal/log"
	"github.com/banphlet/trigger.dev-rails/internal/runs"
	"github.com/banphlet/trigger.dev-rails/internal/scripts"
	"github.com/banphlet/trigger.dev-rails/internal/state"
	"github.com/banphlet/trigger.dev-rails/internal/storage"
	"github.com/banphlet/trigger.dev-rails/internal/trigger"
	"github.com/banphlet/trigger.dev-rails/internal/tui/watch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "run":
		return runRun(args)
	case "serve":
		return runServe(args)
	case "watch":
		return runWatch(args)
	case "trigger":
		return runTrigger(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

// envFlags collects repeatable --env K=V flags.
type envFlags []string

func (e *envFlags) String() string { return strings.Join(*e, ",") }

func (e *envFlags) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("expected KEY=VALUE, got %q", v)
	}
	*e = append(*e, v)
	return nil
}

func (e envFlags) toMap() map[string]string {
	m := make(map[string]string, len(e))
	for _, kv := range e {
		parts := strings.SplitN(kv, "=", 2)
		m[parts[0]] = parts[1]
	}
	return m
}

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	taskName := fs.String("task", "", "Run a task defined in the configuration instead of a script path")
	rails := fs.Bool("rails", false, "Execute the script through the Rails runner")
	workingDir := fs.String("working-dir", "", "Working directory for the script")
	payload := fs.String("payload", "", "JSON payload exported to the script")
	var env envFlags
	fs.Var(&env, "env", "Extra environment variable KEY=VALUE (repeatable)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, code := loadConfigOrDefaults(*configPath)
	if code != 0 {
		return code
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")

	var (
		taskLabel  string
		scriptPath string
		opts       scripts.Options
	)

	if *taskName != "" {
		task, ok := cfg.Tasks[*taskName]
		if !ok {
			fmt.Fprintf(os.Stderr, "Task %q is not defined in the configuration\n", *taskName)
			return 1
		}
		taskLabel = *taskName
		scriptPath = task.Script
		opts = scripts.Options{
			Args:           task.Args,
			WorkingDir:     task.WorkingDir,
			Env:            task.Env,
			Rails:          task.Rails,
			TaskAttributes: task.Attributes,
		}
	} else {
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "Usage: triggerhost run [flags] <script> [args...]")
			return 1
		}
		scriptPath = fs.Arg(0)
		taskLabel = filepath.Base(scriptPath)
		opts = scripts.Options{
			Args:       fs.Args()[1:],
			WorkingDir: *workingDir,
			Env:        env.toMap(),
			Rails:      *rails,
		}
	}

	opts.PythonBin = cfg.Scripts.PythonBin
	opts.RailsBin = cfg.Scripts.RailsBin

	if opts.TaskAttributes == nil {
		opts.TaskAttributes = map[string]string{}
	}
	opts.TaskAttributes["trigger.task"] = taskLabel

	if *payload != "" {
		raw := json.RawMessage(*payload)
		if !json.Valid(raw) {
			fmt.Fprintln(os.Stderr, "Error: --payload must be valid JSON")
			return 1
		}
		opts.Payload = raw
	}

	// Output streams pass through to the terminal as the script produces them.
	opts.MirrorStdout = true
	opts.MirrorStderr = true

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()

	sup := &scripts.Supervisor{
		Runs:     runs.NewStore(db),
		Metadata: state.NewStore(db),
		Hub:      events.NewHub(256),
		Logger:   logger,
	}

	run, _, runErr := sup.Execute(ctx, taskLabel, scriptPath, opts)
	if runErr != nil {
		var exitErr *scripts.ExitError
		if errors.As(runErr, &exitErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
			if exitErr.ExitCode > 0 {
				return exitErr.ExitCode
			}
			return 1
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		return 1
	}

	logger.Info("run finished", "run_id", run.ID, "task", taskLabel)
	return 0
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("triggerhost starting", "version", version, "config", *configPath)

	pidLockPath := filepath.Join(filepath.Dir(cfg.State.Path), "triggerhost.lock")
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	runStore := runs.NewStore(db)
	metadata := state.NewStore(db)
	hub := events.NewHub(256)
	sup := &scripts.Supervisor{
		Runs:     runStore,
		Metadata: metadata,
		Hub:      hub,
		Logger:   logger,
	}

	if cfg.API.Auth.APIKey == "" {
		logger.Warn("api.auth.api_key is empty; the API is unauthenticated")
	}

	server := api.New(api.Config{
		Listen:  cfg.API.Listen,
		APIKey:  cfg.API.Auth.APIKey,
		Scripts: cfg.Scripts,
	}, runStore, metadata, cfg.Tasks, sup, hub, logger)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", "error", err)
		return 1
	}

	logger.Info("triggerhost stopped")
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://localhost:8080", "Host API URL")
	apiKey := fs.String("api-key", os.Getenv("TRIGGER_API_KEY"), "API Bearer Token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	m := watch.New(*apiURL, *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func runTrigger(args []string) int {
	fs := flag.NewFlagSet("trigger", flag.ExitOnError)
	apiURL := fs.String("api-url", "", "Trigger API URL (default: $TRIGGER_API_URL)")
	apiKey := fs.String("api-key", "", "Trigger API key (default: $TRIGGER_API_KEY)")
	payload := fs.String("payload", "", "JSON payload for the task")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: triggerhost trigger [flags] <task>")
		return 1
	}
	task := fs.Arg(0)

	client, err := trigger.NewClient(config.TriggerConfig{APIURL: *apiURL, APIKey: *apiKey})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var raw json.RawMessage
	if *payload != "" {
		raw = json.RawMessage(*payload)
		if !json.Valid(raw) {
			fmt.Fprintln(os.Stderr, "Error: --payload must be valid JSON")
			return 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	run, err := client.Trigger(ctx, task, raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("run %s (%s) %s\n", run.ID, run.Task, run.Status)
	return 0
}

func loadConfigOrDefaults(configPath string) (*config.Config, int) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return nil, 1
		}
		return cfg, 0
	}
	return config.Defaults(), 0
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: triggerhost version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("triggerhost %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalizedBuildTime, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalizedBuildTime
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`triggerhost - Supervises scripts that stream typed events over stdout

Usage:
  triggerhost <command> [flags]

Commands:
  run       Execute a script (or configured task) in the foreground
  serve     Start the host API server
  watch     Real-time run monitoring TUI
  trigger   Trigger a task on a remote host API
  version   Show version information
  help      Show this help message

Run:
  triggerhost run [flags] <script> [args...]
  triggerhost run --task <name> [--config PATH]

  Flags:
    --config PATH        Configuration file (optional; defaults apply)
    --task NAME          Run a task defined in the configuration
    --rails              Execute through the Rails runner
    --working-dir PATH   Working directory for the script
    --payload JSON       Payload exported as $TRIGGER_PAYLOAD
    --env KEY=VALUE      Extra environment variable (repeatable)

Serve:
  triggerhost serve [--config PATH]

Watch:
  triggerhost watch [--api-url URL] [--api-key KEY]

Trigger:
  triggerhost trigger [--api-url URL] [--api-key KEY] [--payload JSON] <task>

The script's exit code is propagated: a non-zero script exit becomes the
exit code of 'triggerhost run'.
`)
}

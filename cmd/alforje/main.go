package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alforje/alforje/internal/config"
	"github.com/alforje/alforje/internal/doctor"
	"github.com/alforje/alforje/internal/git"
	"github.com/alforje/alforje/internal/loader"
	"github.com/alforje/alforje/internal/lock"
	"github.com/alforje/alforje/internal/log"
	"github.com/alforje/alforje/internal/manager"
	"github.com/alforje/alforje/internal/reconcile"
	"github.com/alforje/alforje/internal/report"
	"github.com/alforje/alforje/internal/setup"
	"github.com/alforje/alforje/internal/state"
	"github.com/alforje/alforje/internal/tree"
	"github.com/alforje/alforje/internal/tui"
)

var version = "0.1.0-dev"

const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		return runSync(nil)
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "sync":
		return runSync(args)
	case "script":
		return runScript(args)
	case "list":
		return runList(args)
	case "doctor":
		return runDoctor(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return exitOK

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return exitFailure
	}
}

// commonFlags holds flags shared by every subcommand.
type commonFlags struct {
	configPath string
	logLevel   string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to alforje.yaml (default: XDG config dir)")
	fs.StringVar(&c.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

// resolve sets up logging and paths, honoring a --config override.
func (c *commonFlags) resolve() (setup.Paths, error) {
	log.Setup(c.logLevel)
	paths, err := setup.Resolve()
	if err != nil {
		return setup.Paths{}, err
	}
	if c.configPath != "" {
		paths.ConfigFile = c.configPath
	}
	return paths, nil
}

func runSync(args []string) int {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	noUpdate := fs.Bool("no-update", false, "Install missing plugins only, skip fetching updates")
	noTUI := fs.Bool("no-tui", false, "Disable the progress view even on a terminal")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitFailure
	}

	paths, err := common.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}
	logger := log.WithComponent("main")

	runLock, err := lock.Acquire(paths.LockPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer runLock.Release()

	forest, err := config.Load(paths.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfig
	}

	if err := paths.EnsureDirs(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := state.NewStore(paths.StatePath)
	records, err := store.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	plan := reconcile.Reconcile(forest, records, paths, reconcile.Options{UpdateRemote: !*noUpdate})
	logger.Info("plan computed", "units", plan.Units(), "plugins", len(plan.Items), "orphans", len(plan.Orphans))

	var rep *report.Report
	if plan.Units() > 0 && !*noTUI && isTerminal(os.Stdout) {
		rep, err = runWithProgress(ctx, stop, plan, forest, records, store, paths)
	} else {
		mgr := manager.New(git.NewExecRunner(), store, paths)
		rep, err = mgr.Run(ctx, forest, plan, records)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	if err := loader.Write(paths.ScriptPath, forest); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	fmt.Print(report.Render(rep, report.DefaultTheme()))
	if rep.Failed() {
		return exitFailure
	}
	return exitOK
}

// runWithProgress drives a manager run through the BubbleTea progress view.
// Events flow over a channel into the model; the run's outcome is delivered
// as a DoneMsg once the manager returns.
func runWithProgress(ctx context.Context, cancel context.CancelFunc, plan *reconcile.Plan,
	forest tree.Forest, records map[string]state.Record, store *state.Store, paths setup.Paths) (*report.Report, error) {

	// The display owns the terminal; route log lines away from it.
	log.SetOutput(io.Discard, slog.LevelError)

	events := make(chan manager.Event, plan.Units()*2)
	model := tui.New(plan.UnitNames(), events, cancel)
	p := tea.NewProgram(model)

	mgr := manager.New(git.NewExecRunner(), store, paths,
		manager.WithEvents(func(e manager.Event) { events <- e }))

	go func() {
		rep, err := mgr.Run(ctx, forest, plan, records)
		p.Send(tui.DoneMsg{Report: rep, Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("progress view: %w", err)
	}
	return final.(*tui.Model).Report()
}

func runScript(args []string) int {
	fs := flag.NewFlagSet("script", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitFailure
	}

	paths, err := common.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	forest, err := config.Load(paths.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfig
	}

	fmt.Print(loader.Generate(forest))
	return exitOK
}

func runList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitFailure
	}

	paths, err := common.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	forest, err := config.Load(paths.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfig
	}

	records, err := state.NewStore(paths.StatePath).Load(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	forest.Walk(func(n, _ *tree.Node) bool {
		status := "enabled"
		if n.DisabledEffective {
			status = "disabled"
		}
		installed := "not installed"
		if rec, ok := records[n.Name]; ok {
			installed = "installed"
			if rec.Revision != "" {
				installed = fmt.Sprintf("installed at %.12s", rec.Revision)
			}
		}
		fmt.Printf("%20s  %-8s  %s\n", n.Name, status, installed)
		return true
	})
	return exitOK
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	jsonOut := fs.Bool("json", false, "Output the validation result as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitFailure
	}

	paths, err := common.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	r := doctor.New(paths).Validate(context.Background())

	if *jsonOut {
		out, err := doctor.FormatJSON(r)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitFailure
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(r))
	}

	if !r.Valid {
		return exitFailure
	}
	return exitOK
}

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitFailure
	}

	info := versionInfo{Version: strings.TrimSpace(version), Commit: vcsRevision()}

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitFailure
		}
		fmt.Println(string(data))
		return exitOK
	}

	fmt.Printf("alforje %s\n", info.Version)
	if info.Commit != "unknown" {
		fmt.Printf("commit: %s\n", info.Commit)
	}
	return exitOK
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return "unknown"
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func printUsage() {
	fmt.Print(`alforje - Declarative plugin manager for Kakoune

Usage:
  alforje [command] [flags]

Commands:
  sync      Reconcile installed plugins with alforje.yaml (default)
  script    Print the generated loader script without touching anything
  list      Show configured plugins and their installed revisions
  doctor    Validate configuration and environment
  version   Show version information
  help      Show this help message

Sync Flags:
  --no-update   Install missing plugins only, skip fetching updates
  --no-tui      Disable the progress view even on a terminal

Common Flags:
  --config PATH       Path to alforje.yaml (default: XDG config dir)
  --log-level LEVEL   Log level (debug, info, warn, error)
`)
}

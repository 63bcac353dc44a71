// Command hourbook tracks billable hours and settles them into monthly
// closures.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ldi/hourbook/internal/billing"
	"github.com/ldi/hourbook/internal/config"
	"github.com/ldi/hourbook/internal/db"
	"github.com/ldi/hourbook/internal/mcp"
	"github.com/ldi/hourbook/internal/server"
	"github.com/ldi/hourbook/internal/ui"
	"github.com/ldi/hourbook/pkg/models"
	flag "github.com/spf13/pflag"
)

// runMenu is replaced in tests.
var runMenu = ui.RunMenu

func main() {
	os.Exit(run(os.Args[1:], os.Environ(), os.Stdout, os.Stderr))
}

// app carries what every command needs.
type app struct {
	cfg     config.Config
	workDir string
	log     *slog.Logger
	out     io.Writer
	errOut  io.Writer
}

func usage(w io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: hourbook [flags] <command> [arguments]")
	fmt.Fprintln(w, "\nCommands:")
	for _, c := range ui.Choices {
		fmt.Fprintf(w, "  %-14s %s\n", c.Command, c.Help)
	}
	fmt.Fprintln(w, "\nFlags:")
	fmt.Fprint(w, flags.FlagUsages())
}

func run(args, env []string, out, errOut io.Writer) int {
	flags := flag.NewFlagSet("hourbook", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.SetInterspersed(false)

	workDir := flags.StringP("dir", "C", ".", "Project directory")
	configPath := flags.StringP("config", "c", "", "Explicit config file")
	dbPath := flags.String("db-path", "", "Path to database file")
	snapshotPath := flags.String("snapshot-path", "", "Path to snapshot file")
	owner := flags.String("owner", "", "Owner ID the commands act on")
	logLevel := flags.String("log-level", "", "Log level (debug, info, warn, error)")
	noSnapshot := flags.Bool("no-auto-snapshot", false, "Do not export a snapshot after writes")
	verbose := flags.BoolP("verbose", "v", false, "Enable verbose logging")
	help := flags.BoolP("help", "h", false, "Show help")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		usage(errOut, flags)
		return 2
	}
	if *help {
		usage(out, flags)
		return 0
	}

	var overrides config.Overrides
	if flags.Changed("db-path") {
		overrides.DBPath = dbPath
	}
	if flags.Changed("snapshot-path") {
		overrides.SnapshotPath = snapshotPath
	}
	if flags.Changed("owner") {
		overrides.Owner = owner
	}
	if flags.Changed("log-level") {
		overrides.LogLevel = logLevel
	}
	if *verbose {
		debug := "debug"
		overrides.LogLevel = &debug
	}
	if *noSnapshot {
		off := false
		overrides.AutoSnapshot = &off
	}

	cfg, _, err := config.Load(*workDir, *configPath, overrides, env)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	a := &app{
		cfg:     cfg,
		workDir: *workDir,
		log:     slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: cfg.SlogLevel()})),
		out:     out,
		errOut:  errOut,
	}

	var command string
	var cmdArgs []string
	if flags.NArg() == 0 {
		selected, err := runMenu()
		if err != nil {
			fmt.Fprintf(errOut, "Error running menu: %v\n", err)
			return 1
		}
		if selected == "" {
			return 0
		}
		command = selected
	} else {
		command = flags.Arg(0)
		cmdArgs = flags.Args()[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "init":
		err = a.runInit(ctx, cmdArgs)
	case "mcp":
		err = a.runMCP(ctx, cmdArgs)
	case "web":
		err = a.runWeb(ctx, cmdArgs)
	case "status":
		err = a.runStatus(ctx, cmdArgs)
	case "list-tasks":
		err = a.runListTasks(ctx, cmdArgs)
	case "list-closures":
		err = a.runListClosures(ctx, cmdArgs)
	case "export":
		err = a.runExport(ctx, cmdArgs)
	case "import":
		err = a.runImport(ctx, cmdArgs)
	default:
		fmt.Fprintf(errOut, "Unknown command: %s\n", command)
		usage(errOut, flags)
		return 1
	}

	if err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return 1
	}
	return 0
}

// path resolves a configured path against the project directory.
func (a *app) path(p string) string {
	if p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.workDir, p)
}

// open opens and migrates the database. With autoSnapshot set and enabled
// in config, every committed write re-exports the snapshot.
func (a *app) open(ctx context.Context, autoSnapshot bool) (*db.DB, *billing.Engine, error) {
	database, err := db.Open(a.path(a.cfg.DBPath))
	if err != nil {
		return nil, nil, err
	}
	if err := database.Init(ctx); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if autoSnapshot && a.cfg.AutoSnapshot {
		database.EnableAutoSnapshot(a.path(a.cfg.SnapshotPath), a.log)
	}
	return database, billing.NewEngine(database, a.log), nil
}

func (a *app) runInit(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("init takes no arguments; use --dir to pick the project directory")
	}

	dir := filepath.Join(a.workDir, config.Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", config.Dir, err)
	}
	fmt.Fprintf(a.out, "✓ Created %s/ directory\n", config.Dir)

	gitignorePath := filepath.Join(dir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("hourbook.db*\n"), 0644); err != nil {
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}
	fmt.Fprintf(a.out, "✓ Created %s/.gitignore\n", config.Dir)

	configPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Write(configPath, a.cfg); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "✓ Wrote %s\n", configPath)
	}

	database, engine, err := a.open(ctx, false)
	if err != nil {
		return err
	}
	defer database.Close()
	fmt.Fprintf(a.out, "✓ Initialized database at %s\n", a.path(a.cfg.DBPath))

	snapshotPath := a.path(a.cfg.SnapshotPath)
	if _, err := os.Stat(snapshotPath); err == nil {
		n, err := engine.ImportSnapshot(ctx, snapshotPath)
		if err != nil {
			return fmt.Errorf("failed to import snapshot: %w", err)
		}
		fmt.Fprintf(a.out, "✓ Imported snapshot from %s (%d tasks)\n", snapshotPath, n)
	}

	fmt.Fprintln(a.out, "✓ Hourbook initialized successfully")
	return nil
}

func (a *app) runMCP(ctx context.Context, args []string) error {
	database, engine, err := a.open(ctx, true)
	if err != nil {
		return err
	}
	defer database.Close()

	var opts []mcp.Option
	if a.cfg.DefaultHourlyRate.IsPositive() {
		opts = append(opts, mcp.WithClosureDefaults(a.cfg.DefaultHourlyRate, a.cfg.DefaultTaxPercentage))
	}
	a.log.Info("serving MCP on stdio", "db", a.path(a.cfg.DBPath))
	return mcp.Serve(mcp.NewServer(engine, a.log, opts...))
}

func (a *app) runWeb(ctx context.Context, args []string) error {
	webFlags := flag.NewFlagSet("web", flag.ContinueOnError)
	webFlags.SetOutput(a.errOut)
	port := webFlags.Int("port", a.cfg.WebPort, "Port to listen on")
	if err := webFlags.Parse(args); err != nil {
		return err
	}

	database, engine, err := a.open(ctx, false)
	if err != nil {
		return err
	}
	defer database.Close()

	srv := server.NewServer(engine, a.log)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(fmt.Sprintf(":%d", *port))
	}()
	fmt.Fprintf(a.out, "Reporting API at http://localhost:%d/api/closures?owner=%s\n", *port, a.cfg.Owner)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (a *app) runStatus(ctx context.Context, args []string) error {
	database, engine, err := a.open(ctx, false)
	if err != nil {
		return err
	}
	defer database.Close()

	tasks, err := engine.ListTasks(ctx, a.cfg.Owner, db.TaskFilter{})
	if err != nil {
		return err
	}
	closures, err := engine.ListClosures(ctx, a.cfg.Owner)
	if err != nil {
		return err
	}

	summaries := make([]*models.ClosureSummary, 0, len(closures))
	for _, c := range closures {
		s, err := engine.GetClosureSummary(ctx, a.cfg.Owner, c.ID)
		if err != nil {
			return err
		}
		summaries = append(summaries, s)
	}

	fmt.Fprint(a.out, ui.StatusView(a.cfg.Owner, ui.CountTasks(tasks), summaries, 60))
	return nil
}

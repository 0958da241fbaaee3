// cmd/kitchen/main.go
//
// Entry point for the kitchen simulation. It loads .kitchen/config.yaml from
// the project directory, starts the production line and either shows the
// dashboard or, with -headless, logs to stderr until the configured number
// of meals has been served.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/kitchenline/internal/config"
	"github.com/kingrea/kitchenline/internal/eventbridge"
	"github.com/kingrea/kitchenline/internal/kitchen"
	"github.com/kingrea/kitchenline/internal/logbook"
	"github.com/kingrea/kitchenline/internal/logging"
	"github.com/kingrea/kitchenline/internal/monitor"
	"github.com/kingrea/kitchenline/internal/trace"
	"github.com/kingrea/kitchenline/internal/tui"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes one session and returns the process exit code. Deferred
// cleanup (trace flush, bridge shutdown, log close) runs before it returns.
func run(args []string) int {
	flags := flag.NewFlagSet("kitchen", flag.ContinueOnError)
	projectDir := flags.String("project", "", "path to the project directory (defaults to cwd)")
	headless := flags.Bool("headless", false, "run without the dashboard, logging to stderr")
	meals := flags.Int("meals", -1, "stop after this many meals (0 runs until interrupted; default from config)")
	seed := flags.Int64("seed", 0, "order generator seed (default from config)")
	coordinator := flags.String("coordinator", "", "where chefs are moved: local or remote (default from config)")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	project := *projectDir
	if project == "" {
		var err error
		project, err = os.Getwd()
		if err != nil {
			return fail("determine working directory: %v", err)
		}
	}
	absoluteProject, err := filepath.Abs(project)
	if err != nil {
		return fail("resolve project dir: %v", err)
	}
	if err := config.InitKitchenDir(absoluteProject); err != nil {
		return fail("init .kitchen: %v", err)
	}
	cfg, err := config.NewConfig(absoluteProject)
	if err != nil {
		return fail("load config: %v", err)
	}
	if *meals >= 0 {
		cfg.Project.Orders.Meals = *meals
	}
	if *seed != 0 {
		cfg.Project.Orders.Seed = *seed
	}
	switch *coordinator {
	case "":
	case config.CoordinatorLocal, config.CoordinatorRemote:
		cfg.Project.Bridge.Coordinator = *coordinator
	default:
		return fail("unknown coordinator %q (want %s or %s)", *coordinator, config.CoordinatorLocal, config.CoordinatorRemote)
	}

	var logOpts []logging.Option
	if *headless {
		logOpts = append(logOpts, logging.WithMirror(os.Stderr))
	}
	logger, err := logging.New(absoluteProject, logOpts...)
	if err != nil {
		return fail("open log: %v", err)
	}
	defer logger.Close()

	journal, err := logbook.New(filepath.Join(cfg.LogsDir(), "journal.log"))
	if err != nil {
		return fail("open journal: %v", err)
	}
	journal.Info("Session opened · %d chefs · coordinator %s", cfg.Project.Kitchen.Chefs, cfg.Project.Bridge.Coordinator)

	opts := []kitchen.Option{
		kitchen.WithLogger(logger),
		kitchen.WithJournal(journal),
		kitchen.WithOrderGenerator(),
	}
	var recorder *trace.Recorder
	if cfg.Project.Trace.Enabled {
		recorder, err = trace.Create(cfg.TracesDir(), "run")
		if err != nil {
			return fail("open trace: %v", err)
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Printf("trace: close: %v", err)
			}
		}()
		opts = append(opts, kitchen.WithTrace(recorder))
	}
	var reporter *monitor.Reporter
	if cfg.Project.Monitor.Enabled {
		reporter = monitor.NewReporter(cfg.MonitorAddress(), monitor.WithLogger(logger))
		opts = append(opts, kitchen.WithUsageReporter(reporter))
	}

	k, err := kitchen.New(cfg, opts...)
	if err != nil {
		return fail("build kitchen: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	settings := eventbridge.SettingsFromConfig(cfg)
	if settings.Enabled {
		serverOpts := []eventbridge.Option{
			eventbridge.WithProcessor(k.Bus()),
			eventbridge.WithLogger(logger),
		}
		// the local coordinator already drains the event stream
		if cfg.RemoteCoordinator() {
			serverOpts = append(serverOpts, eventbridge.WithEvents(k.Bus().Events()))
		}
		server := eventbridge.NewServer(settings, serverOpts...)
		if err := server.Start(ctx); err != nil {
			return fail("start bridge: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Printf("eventbridge: shutdown: %v", err)
			}
		}()
		journal.Info("Bridge listening on %s", server.StreamURL())
	} else if cfg.RemoteCoordinator() {
		return fail("remote coordinator requires the bridge")
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()
	g.Go(func() error {
		err := k.Run(runCtx)
		if *headless {
			stop()
		}
		return err
	})
	if reporter != nil {
		g.Go(func() error { return reporter.Run(runCtx) })
	}
	if !*headless {
		program := tea.NewProgram(tui.NewApp(k), tea.WithAltScreen(), tea.WithContext(runCtx))
		g.Go(func() error {
			defer stop()
			if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("tui: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Printf("kitchen: %v", err)
		return fail("kitchen: %v", err)
	}
	fmt.Printf("Served %d meal(s). Log: %s\n", k.MealsServed(), logger.Path())
	if recorder != nil {
		fmt.Printf("Trace: %s\n", recorder.Path())
	}
	return 0
}

func fail(format string, args ...any) int {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return 1
}

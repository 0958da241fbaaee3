// cmd/coordinator/main.go
//
// Stand-alone spatial coordinator. It connects to a kitchen's bridge over
// WebSocket, walks each chef to the target of every StepEvent on its own
// copy of the kitchen floor and answers with a StepAck on arrival.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kingrea/kitchenline/internal/config"
	"github.com/kingrea/kitchenline/internal/eventbridge"
	"github.com/kingrea/kitchenline/internal/logging"
	"github.com/kingrea/kitchenline/internal/motion"
)

const maxRedial = 5 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("coordinator", flag.ContinueOnError)
	projectDir := flags.String("project", "", "path to the project directory (defaults to cwd)")
	url := flags.String("url", "", "bridge stream URL (default from config, e.g. ws://127.0.0.1:8765/ws)")
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
	cfg, err := config.NewConfig(absoluteProject)
	if err != nil {
		return fail("load config: %v", err)
	}
	logger, err := logging.New(absoluteProject, logging.WithMirror(os.Stderr))
	if err != nil {
		return fail("open log: %v", err)
	}
	defer logger.Close()

	target := *url
	if target == "" {
		target = eventbridge.SettingsFromConfig(cfg).WebSocketURL()
	}

	mc := cfg.Project.Motion
	planner := motion.NewPlanner(motion.KitchenGrid(mc.Width, mc.Height),
		motion.WithStepDelay(mc.StepDelay),
		motion.WithPlannerLogger(logger),
	)
	for i := 0; i < cfg.Project.Kitchen.Chefs; i++ {
		if err := planner.AddAgent(i, i, motion.ChefStart(i)); err != nil {
			return fail("place chef %d: %v", i, err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	backoff := 250 * time.Millisecond
	for ctx.Err() == nil {
		client, err := eventbridge.Dial(ctx, target, eventbridge.WithClientLogger(logger))
		if err != nil {
			logger.Printf("coordinator: %v (retry in %s)", err, backoff)
			if !sleep(ctx, backoff) {
				break
			}
			backoff = min(backoff*2, maxRedial)
			continue
		}
		backoff = 250 * time.Millisecond
		logger.Printf("coordinator: connected to %s with %d chefs", target, cfg.Project.Kitchen.Chefs)
		coord := motion.NewCoordinator(planner, client, motion.WithCoordinatorLogger(logger))
		if err := coord.Run(ctx, client.Events()); err != nil && ctx.Err() == nil {
			logger.Printf("coordinator: %v", err)
		}
		_ = client.Close()
		if err := client.Err(); err != nil && ctx.Err() == nil {
			logger.Printf("coordinator: connection lost: %v", err)
		}
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func fail(format string, args ...any) int {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return 1
}

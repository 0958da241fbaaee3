// cmd/monitor/main.go
//
// Plate usage monitor. Listens for the kitchen's "PLATE <id> USE <count>"
// lines and prints a running table of plate usage.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/kingrea/kitchenline/internal/config"
	"github.com/kingrea/kitchenline/internal/logging"
	"github.com/kingrea/kitchenline/internal/monitor"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("monitor", flag.ContinueOnError)
	projectDir := flags.String("project", "", "path to the project directory (defaults to cwd)")
	addr := flags.String("addr", "", "listen address (default from config or KITCHEN_MONITOR_ADDR)")
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
	listenAddr := *addr
	if listenAddr == "" {
		listenAddr = cfg.MonitorAddress()
	}
	logger, err := logging.New(absoluteProject, logging.WithMirror(os.Stderr))
	if err != nil {
		return fail("open log: %v", err)
	}
	defer logger.Close()

	ln, err := monitor.Listen(listenAddr, logger)
	if err != nil {
		return fail("%v", err)
	}
	fmt.Printf("Monitoring plate usage on %s\n", ln.Addr())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var mu sync.Mutex
	err = ln.Serve(ctx, func(line string) {
		id, count, err := monitor.ParseUsage(line)
		if err != nil {
			logger.Printf("%v", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if count == 0 {
			fmt.Printf("plate %d reset\n", id)
			return
		}
		fmt.Printf("plate %d used %d time(s) this meal\n", id, count)
	})
	if err != nil {
		return fail("%v", err)
	}
	return 0
}

func fail(format string, args ...any) int {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return 1
}

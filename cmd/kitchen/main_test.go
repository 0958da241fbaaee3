package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/kitchenline/internal/config"
	"github.com/kingrea/kitchenline/internal/trace"
)

func writeProject(t *testing.T, body string) string {
	t.Helper()
	for _, key := range []string{"KITCHEN_BRIDGE_ENABLED", "KITCHEN_BRIDGE_HOST", "KITCHEN_BRIDGE_PORT", "KITCHEN_MONITOR_ADDR"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	kitchenDir := filepath.Join(dir, config.KitchenDir)
	if err := os.MkdirAll(kitchenDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(kitchenDir, "config.yaml"), []byte(strings.TrimSpace(body)+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

const fastKitchen = `
version: 1
kitchen:
  time_unit: 1ms
  ack_timeout: 3s
motion:
  step_delay: 1us
orders:
  interval: 1ms
trace:
  enabled: true
`

func traceFile(t *testing.T, dir string) string {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join(dir, config.KitchenDir, "traces", "*.jsonl.zst"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 {
		t.Fatalf("expected one trace file, got %v", paths)
	}
	return paths[0]
}

func TestRunHeadlessFlushesTrace(t *testing.T) {
	dir := writeProject(t, fastKitchen)
	code := run([]string{"-project", dir, "-headless", "-meals", "1", "-seed", "3", "-coordinator", "local"})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	entries, err := trace.ReadFile(traceFile(t, dir))
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("trace was not flushed on return")
	}
}

func TestRunReturnsWhenBridgeCannotStart(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port
	dir := writeProject(t, fastKitchen+fmt.Sprintf("bridge:\n  enabled: true\n  host: 127.0.0.1\n  port: %d\n", port))

	if code := run([]string{"-project", dir, "-headless", "-meals", "1"}); code != 1 {
		t.Fatalf("expected exit code 1 when the bridge port is taken, got %d", code)
	}
	if _, err := trace.ReadFile(traceFile(t, dir)); err != nil {
		t.Fatalf("trace left unreadable after failure: %v", err)
	}
}

func TestRunRejectsBadArguments(t *testing.T) {
	dir := writeProject(t, fastKitchen)
	if code := run([]string{"-project", dir, "-coordinator", "elsewhere"}); code != 1 {
		t.Fatalf("expected exit code 1 for an unknown coordinator, got %d", code)
	}
	if code := run([]string{"-no-such-flag"}); code != 2 {
		t.Fatalf("expected exit code 2 for an unknown flag, got %d", code)
	}
}

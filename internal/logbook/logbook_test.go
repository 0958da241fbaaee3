package logbook

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestNotifyPersistsLevelledLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Notify("0:ORDER_START:1:Pie")
	book.Warn("no location for %q", "Mystery")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	got := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(got) != 2 {
		t.Fatalf("expected 2 journal lines, got %q", got)
	}
	if !strings.Contains(got[0], "INFO  0:ORDER_START:1:Pie") {
		t.Fatalf("unexpected first line %q", got[0])
	}
	if !strings.Contains(got[1], "WARN  no location for \"Mystery\"") {
		t.Fatalf("unexpected second line %q", got[1])
	}
}

func TestTailKeepsBoundedHistory(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "journal.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < defaultKeep+10; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(defaultKeep * 2)
	if total != defaultKeep+10 {
		t.Fatalf("total = %d", total)
	}
	if len(lines) != defaultKeep {
		t.Fatalf("expected %d retained lines, got %d", defaultKeep, len(lines))
	}
	if !strings.HasSuffix(lines[0], "entry-10") {
		t.Fatalf("oldest retained line = %q", lines[0])
	}
}

func TestNilLogbookIsSafe(t *testing.T) {
	var book *Logbook
	book.Info("ignored")
	if lines, total := book.Tail(5); lines != nil || total != 0 {
		t.Fatalf("nil logbook returned %v %d", lines, total)
	}
}

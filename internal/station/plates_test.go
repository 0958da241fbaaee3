package station

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type usageRecorder struct {
	mu      sync.Mutex
	reports []string
}

func (r *usageRecorder) ReportPlateUsage(id, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, fmt.Sprintf("PLATE %d USE %d", id, count))
}

func (r *usageRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.reports...)
}

func TestPlatesAreExclusive(t *testing.T) {
	plates, err := NewPlates(2)
	if err != nil {
		t.Fatalf("new plates: %v", err)
	}
	var (
		mu     sync.Mutex
		owners = map[int]int{}
		wg     sync.WaitGroup
	)
	for worker := 0; worker < 6; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				id, err := plates.Acquire(context.Background(), worker)
				if err != nil {
					t.Errorf("acquire: %v", err)
					return
				}
				mu.Lock()
				if other, taken := owners[id]; taken {
					t.Errorf("plate %d given to %d while held by %d", id, worker, other)
				}
				owners[id] = worker
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				delete(owners, id)
				mu.Unlock()
				if err := plates.Release(id); err != nil {
					t.Errorf("release: %v", err)
				}
			}
		}(worker)
	}
	wg.Wait()
	for _, p := range plates.Snapshot() {
		if p.InUse {
			t.Fatalf("plate %d still in use", p.ID)
		}
	}
}

func TestPlatesReportUsageAndReset(t *testing.T) {
	rec := &usageRecorder{}
	plates, err := NewPlates(3, WithReporter(rec))
	if err != nil {
		t.Fatalf("new plates: %v", err)
	}
	id, err := plates.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := plates.Release(id); err != nil {
		t.Fatalf("release: %v", err)
	}
	plates.ResetUsage()
	got := rec.all()
	want := []string{
		fmt.Sprintf("PLATE %d USE 1", id),
		"PLATE 1 USE 0",
		"PLATE 2 USE 0",
		"PLATE 3 USE 0",
	}
	if len(got) != len(want) {
		t.Fatalf("reports = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("report %d = %q, want %q", i, got[i], want[i])
		}
	}
	for _, p := range plates.Snapshot() {
		if p.UseCount != 0 {
			t.Fatalf("plate %d count %d after reset", p.ID, p.UseCount)
		}
	}
}

func TestPlatesAcquireBlocksUntilRelease(t *testing.T) {
	plates, err := NewPlates(1)
	if err != nil {
		t.Fatalf("new plates: %v", err)
	}
	first, err := plates.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	got := make(chan int, 1)
	go func() {
		id, err := plates.Acquire(context.Background(), 1)
		if err == nil {
			got <- id
		}
	}()
	select {
	case id := <-got:
		t.Fatalf("second acquire returned plate %d while first was held", id)
	case <-time.After(20 * time.Millisecond):
	}
	if err := plates.Release(first); err != nil {
		t.Fatalf("release: %v", err)
	}
	select {
	case id := <-got:
		if id != first {
			t.Fatalf("expected plate %d, got %d", first, id)
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter never woke")
	}
	if snap := plates.Snapshot(); snap[0].Holder != 1 || snap[0].UseCount != 2 {
		t.Fatalf("unexpected plate state: %+v", snap[0])
	}
}

func TestPlatesReleaseValidatesState(t *testing.T) {
	plates, err := NewPlates(1)
	if err != nil {
		t.Fatalf("new plates: %v", err)
	}
	if err := plates.Release(1); err == nil {
		t.Fatalf("expected error releasing a free plate")
	}
	if err := plates.Release(9); err == nil {
		t.Fatalf("expected error releasing an unknown plate")
	}
}

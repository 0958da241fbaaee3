package station

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/kitchenline/internal/menu"
)

func TestStationNeverExceedsCapacity(t *testing.T) {
	st, err := New(menu.CuttingBoard, 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := st.Acquire(context.Background())
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer release()
			if held := st.Held(); held > st.Capacity() {
				t.Errorf("held %d exceeds capacity %d", held, st.Capacity())
			}
			time.Sleep(2 * time.Millisecond)
		}()
	}
	wg.Wait()
	if st.Held() != 0 {
		t.Fatalf("expected all permits returned, held=%d", st.Held())
	}
	if st.Peak() > 2 || st.Peak() == 0 {
		t.Fatalf("unexpected peak %d", st.Peak())
	}
}

func TestStationReleaseIsIdempotent(t *testing.T) {
	st, err := New(menu.Stove, 1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	release, err := st.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()
	release()
	if st.Held() != 0 {
		t.Fatalf("double release corrupted count: %d", st.Held())
	}
	again, err := st.Acquire(context.Background())
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	again()
}

func TestStationAcquireHonoursCancel(t *testing.T) {
	st, err := New(menu.Sink, 1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	release, err := st.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := st.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if st.Held() != 1 {
		t.Fatalf("cancelled acquire leaked a permit: held=%d", st.Held())
	}
}

func TestPoolRejectsUnknownKind(t *testing.T) {
	pool, err := NewPool(map[menu.StationKind]int{menu.Stove: 1})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	if _, err := pool.Acquire(context.Background(), menu.Plating); !errors.Is(err, ErrUnknownStation) {
		t.Fatalf("expected ErrUnknownStation, got %v", err)
	}
	if _, err := NewPool(map[menu.StationKind]int{"grill": 1}); !errors.Is(err, ErrUnknownStation) {
		t.Fatalf("expected ErrUnknownStation for bad kind, got %v", err)
	}
}

func TestPoolSnapshotFollowsKindOrder(t *testing.T) {
	pool, err := NewPool(map[menu.StationKind]int{menu.Sink: 1, menu.Ingredient: 3})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	release, err := pool.Acquire(context.Background(), menu.Ingredient)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()
	snap := pool.Snapshot()
	if len(snap) != 2 || snap[0].Kind != menu.Ingredient || snap[1].Kind != menu.Sink {
		t.Fatalf("unexpected snapshot order: %+v", snap)
	}
	if snap[0].Held != 1 || snap[0].Capacity != 3 {
		t.Fatalf("unexpected ingredient status: %+v", snap[0])
	}
}

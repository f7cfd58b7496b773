package relay

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"slotrelay/pkg/logx"
)

func newTestPredictor(store *fakeStore, msgr *fakeMessenger) *Predictor {
	return NewPredictor(PredictorConfig{WindowDays: 30, TopK: 3, Zone: time.UTC},
		store, msgr, logx.Nop(), testMetrics())
}

func TestPredictorPostsOncePerHour(t *testing.T) {
	store := newFakeStore()
	store.topHours = []int{11, 14}
	store.topLocs = []string{"Торонто", "Едмонтон"}
	msgr := &fakeMessenger{}
	p := newTestPredictor(store, msgr)
	ctx := context.Background()

	at := time.Date(2026, 9, 15, 10, 55, 0, 0, time.UTC)
	if err := p.Tick(ctx, at); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(msgr.silent) != 1 {
		t.Fatalf("silent posts = %d, want 1", len(msgr.silent))
	}
	if !strings.Contains(msgr.silent[0], "11:00") {
		t.Errorf("notice missing the hour: %q", msgr.silent[0])
	}
	if !strings.Contains(msgr.silent[0], "Торонто") {
		t.Errorf("notice missing locations: %q", msgr.silent[0])
	}

	// Later ticks in the same pre-window do not repeat the notice.
	for _, m := range []int{56, 57, 59} {
		if err := p.Tick(ctx, at.Add(time.Duration(m-55)*time.Minute)); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if len(msgr.silent) != 1 {
		t.Errorf("silent posts = %d, want 1 (duplicate notice)", len(msgr.silent))
	}
}

func TestPredictorOutsidePreWindow(t *testing.T) {
	store := newFakeStore()
	store.topHours = []int{11}
	store.topLocs = []string{"Торонто"}
	msgr := &fakeMessenger{}
	p := newTestPredictor(store, msgr)

	for _, m := range []int{0, 30, 54} {
		at := time.Date(2026, 9, 15, 10, m, 0, 0, time.UTC)
		if err := p.Tick(context.Background(), at); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if len(msgr.silent) != 0 {
		t.Errorf("posted outside the pre-window: %d", len(msgr.silent))
	}
}

func TestPredictorUnlikelyHourSkipped(t *testing.T) {
	store := newFakeStore()
	store.topHours = []int{14, 15}
	store.topLocs = []string{"Торонто"}
	msgr := &fakeMessenger{}
	p := newTestPredictor(store, msgr)

	// Upcoming hour is 11, not in the top list.
	at := time.Date(2026, 9, 15, 10, 57, 0, 0, time.UTC)
	if err := p.Tick(context.Background(), at); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(msgr.silent) != 0 {
		t.Errorf("posted for an unlikely hour")
	}
}

func TestPredictorNoHistoryNoop(t *testing.T) {
	store := newFakeStore()
	msgr := &fakeMessenger{}
	p := newTestPredictor(store, msgr)

	at := time.Date(2026, 9, 15, 10, 57, 0, 0, time.UTC)
	if err := p.Tick(context.Background(), at); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(msgr.silent) != 0 {
		t.Errorf("posted with no history")
	}
}

func TestPredictorDailyRollover(t *testing.T) {
	store := newFakeStore()
	store.topHours = []int{11}
	store.topLocs = []string{"Торонто"}
	msgr := &fakeMessenger{}
	p := newTestPredictor(store, msgr)
	ctx := context.Background()

	day1 := time.Date(2026, 9, 15, 10, 55, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	if err := p.Tick(ctx, day1); err != nil {
		t.Fatal(err)
	}
	if err := p.Tick(ctx, day2); err != nil {
		t.Fatal(err)
	}
	if len(msgr.silent) != 2 {
		t.Errorf("silent posts = %d, want 2 (one per day)", len(msgr.silent))
	}
}

func TestPredictorMidnightKey(t *testing.T) {
	store := newFakeStore()
	store.topHours = []int{0}
	store.topLocs = []string{"Торонто"}
	msgr := &fakeMessenger{}
	p := newTestPredictor(store, msgr)
	ctx := context.Background()

	// 23:55 announces hour 0 of the NEXT day; the midnight rollover must not
	// clear that entry.
	if err := p.Tick(ctx, time.Date(2026, 9, 15, 23, 55, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	if len(msgr.silent) != 1 {
		t.Fatalf("silent posts = %d, want 1", len(msgr.silent))
	}
	if err := p.Tick(ctx, time.Date(2026, 9, 15, 23, 59, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	if len(msgr.silent) != 1 {
		t.Errorf("duplicate notice before midnight")
	}
}

func TestPredictorStoreFailure(t *testing.T) {
	store := newFakeStore()
	boom := errors.New("db locked")
	store.errTop = boom
	p := newTestPredictor(store, &fakeMessenger{})

	err := p.Tick(context.Background(), time.Date(2026, 9, 15, 10, 57, 0, 0, time.UTC))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

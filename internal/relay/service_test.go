package relay

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"slotrelay/pkg/logx"
)

const msgExhaustedToronto = "🔴 Слоти закінчились\n\n🔸 Генеральне Консульство України в Торонто\n\nСлоти були доступні: 5 хвилин"

func newTestService(store *fakeStore, msgr *fakeMessenger) *Service {
	met := testMetrics()
	guard := NewGuard(store, 30*time.Minute)
	corr := NewCorrelator(store, msgr, PolicyEdit, logx.Nop(), met)
	zones, err := NewZones("UTC", nil)
	if err != nil {
		panic(err)
	}
	return New(store, msgr, guard, corr, zones, logx.Nop(), met)
}

func TestServiceAdmitsAndPosts(t *testing.T) {
	store := newFakeStore()
	msgr := &fakeMessenger{}
	svc := newTestService(store, msgr)
	ctx := context.Background()
	now := time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC)

	svc.OnRawText(ctx, msgToronto, 1, now)

	if len(msgr.posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(msgr.posts))
	}
	if !strings.Contains(msgr.posts[0], "Торонто") {
		t.Errorf("post missing venue: %q", msgr.posts[0])
	}
	if !store.isSeen(1) {
		t.Error("message not marked seen")
	}
	if store.buckets != 1 {
		t.Errorf("hour buckets recorded = %d, want 1", store.buckets)
	}
	a, ok, err := store.ActiveAnnouncement(ctx, "Торонто")
	if err != nil || !ok {
		t.Fatalf("no active announcement (ok=%v err=%v)", ok, err)
	}
	if a.MessageRef.IsZero() {
		t.Error("posted announcement has no message ref")
	}
}

func TestServiceSuppressesDuplicate(t *testing.T) {
	store := newFakeStore()
	msgr := &fakeMessenger{}
	svc := newTestService(store, msgr)
	ctx := context.Background()
	now := time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC)

	svc.OnRawText(ctx, msgToronto, 1, now)
	svc.OnRawText(ctx, msgToronto, 2, now.Add(10*time.Minute))

	if len(msgr.posts) != 1 {
		t.Fatalf("posts = %d, want 1 (duplicate leaked)", len(msgr.posts))
	}
	// The duplicate is consumed, not retried.
	if !store.isSeen(2) {
		t.Error("suppressed message not marked seen")
	}
}

func TestServiceSkipsSeenMessage(t *testing.T) {
	store := newFakeStore()
	msgr := &fakeMessenger{}
	svc := newTestService(store, msgr)
	ctx := context.Background()

	if err := store.MarkMessageSeen(ctx, 1, time.Now()); err != nil {
		t.Fatal(err)
	}
	svc.OnRawText(ctx, msgToronto, 1, time.Now())
	if len(msgr.posts) != 0 {
		t.Errorf("reprocessed a seen message")
	}
}

func TestServiceStoreFailureLeavesUnseen(t *testing.T) {
	store := newFakeStore()
	msgr := &fakeMessenger{}
	svc := newTestService(store, msgr)
	ctx := context.Background()

	store.errFpCheck = errors.New("db locked")
	svc.OnRawText(ctx, msgToronto, 1, time.Now())

	if len(msgr.posts) != 0 {
		t.Error("posted despite store failure")
	}
	if store.isSeen(1) {
		t.Error("message marked seen; redelivery would be lost")
	}

	// Redelivery after recovery succeeds.
	store.errFpCheck = nil
	svc.OnRawText(ctx, msgToronto, 1, time.Now())
	if len(msgr.posts) != 1 {
		t.Errorf("posts after retry = %d, want 1", len(msgr.posts))
	}
	if !store.isSeen(1) {
		t.Error("retried message not marked seen")
	}
}

func TestServiceUnrecognizedConsumed(t *testing.T) {
	store := newFakeStore()
	msgr := &fakeMessenger{}
	svc := newTestService(store, msgr)
	ctx := context.Background()

	svc.OnRawText(ctx, "Доброго дня! Коли будуть нові слоти?", 5, time.Now())
	if len(msgr.posts)+len(msgr.edits)+len(msgr.silent) != 0 {
		t.Error("unrecognized text produced channel traffic")
	}
	if !store.isSeen(5) {
		t.Error("unrecognized message not marked seen")
	}
}

func TestServiceExhaustionClosesPost(t *testing.T) {
	store := newFakeStore()
	msgr := &fakeMessenger{}
	svc := newTestService(store, msgr)
	ctx := context.Background()
	now := time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC)

	svc.OnRawText(ctx, msgToronto, 1, now)
	svc.OnRawText(ctx, msgExhaustedToronto, 2, now.Add(5*time.Minute))

	if len(msgr.edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(msgr.edits))
	}
	if _, ok, _ := store.ActiveAnnouncement(ctx, "Торонто"); ok {
		t.Error("announcement still active after exhaustion")
	}
	if !store.isSeen(2) {
		t.Error("exhaustion message not marked seen")
	}
}

func TestServiceSupersessionTargetsNewest(t *testing.T) {
	store := newFakeStore()
	msgr := &fakeMessenger{}
	svc := newTestService(store, msgr)
	ctx := context.Background()
	now := time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC)

	// Same venue, different slot sets: both admitted, second supersedes first.
	second := strings.ReplaceAll(msgToronto, "09:00, 09:10, 09:25, 09:45", "16:00, 16:10")
	svc.OnRawText(ctx, msgToronto, 1, now)
	svc.OnRawText(ctx, second, 2, now.Add(time.Minute))

	if len(msgr.posts) != 2 {
		t.Fatalf("posts = %d, want 2", len(msgr.posts))
	}

	svc.OnRawText(ctx, msgExhaustedToronto, 3, now.Add(2*time.Minute))
	if len(msgr.edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(msgr.edits))
	}
	// The second post was edited, not the superseded first.
	if got := msgr.edits[0].ref.MessageID; got != 2 {
		t.Errorf("edited message %d, want 2 (the newest)", got)
	}
}

func TestServicePostFailureKeepsState(t *testing.T) {
	store := newFakeStore()
	msgr := &fakeMessenger{errPost: errors.New("flood control")}
	svc := newTestService(store, msgr)
	ctx := context.Background()

	svc.OnRawText(ctx, msgToronto, 1, time.Now())

	// Admission committed; the message is consumed even though the post failed.
	if _, ok, _ := store.ActiveAnnouncement(ctx, "Торонто"); !ok {
		t.Error("announcement not saved")
	}
	if !store.isSeen(1) {
		t.Error("message not marked seen")
	}
}

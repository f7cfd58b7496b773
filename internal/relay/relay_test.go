package relay

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"slotrelay/internal/metrics"
	"slotrelay/internal/transport"
)

// fakeStore is an in-memory Store with the same semantics as the sqlite
// implementation, plus per-operation error injection.
type fakeStore struct {
	mu sync.Mutex

	seen map[int64]bool
	fps  map[string]time.Time

	anns   map[int64]*Announcement
	nextID int64

	topHours []int
	topLocs  []string
	buckets  int

	errSeen     error
	errMark     error
	errFpCheck  error
	errFpRecord error
	errSave     error
	errActive   error
	errExhaust  error
	errBucket   error
	errTop      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		seen: make(map[int64]bool),
		fps:  make(map[string]time.Time),
		anns: make(map[int64]*Announcement),
	}
}

func (f *fakeStore) SeenMessage(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errSeen != nil {
		return false, f.errSeen
	}
	return f.seen[id], nil
}

func (f *fakeStore) MarkMessageSeen(ctx context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errMark != nil {
		return f.errMark
	}
	f.seen[id] = true
	return nil
}

func (f *fakeStore) FingerprintSeenWithin(ctx context.Context, fp string, window time.Duration, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errFpCheck != nil {
		return false, f.errFpCheck
	}
	last, ok := f.fps[fp]
	if !ok {
		return false, nil
	}
	return now.Sub(last) < window, nil
}

func (f *fakeStore) RecordFingerprint(ctx context.Context, fp string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errFpRecord != nil {
		return f.errFpRecord
	}
	f.fps[fp] = now
	return nil
}

func (f *fakeStore) SaveAnnouncement(ctx context.Context, a Announcement) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errSave != nil {
		return 0, f.errSave
	}
	for _, prev := range f.anns {
		if prev.Location == a.Location && prev.State == StateAdmitted {
			prev.State = StateSuperseded
		}
	}
	f.nextID++
	a.ID = f.nextID
	a.State = StateAdmitted
	cp := a
	f.anns[a.ID] = &cp
	return a.ID, nil
}

func (f *fakeStore) SetAnnouncementMessage(ctx context.Context, id int64, ref transport.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.anns[id]; ok {
		a.MessageRef = ref
	}
	return nil
}

func (f *fakeStore) ActiveAnnouncement(ctx context.Context, location string) (Announcement, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errActive != nil {
		return Announcement{}, false, f.errActive
	}
	var best *Announcement
	for _, a := range f.anns {
		if a.Location != location || a.State != StateAdmitted {
			continue
		}
		if best == nil || a.ID > best.ID {
			best = a
		}
	}
	if best == nil {
		return Announcement{}, false, nil
	}
	return *best, true, nil
}

func (f *fakeStore) MarkExhausted(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errExhaust != nil {
		return f.errExhaust
	}
	if a, ok := f.anns[id]; ok {
		a.State = StateExhausted
	}
	return nil
}

func (f *fakeStore) RecordHourBucket(ctx context.Context, location string, hour int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errBucket != nil {
		return f.errBucket
	}
	f.buckets++
	return nil
}

func (f *fakeStore) TopBuckets(ctx context.Context, window time.Duration, k int, now time.Time) ([]int, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errTop != nil {
		return nil, nil, f.errTop
	}
	return f.topHours, f.topLocs, nil
}

func (f *fakeStore) stateOf(id int64) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.anns[id]; ok {
		return a.State
	}
	return ""
}

func (f *fakeStore) isSeen(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[id]
}

type edit struct {
	ref  transport.MessageRef
	text string
}

// fakeMessenger records every delivery; refs are handed out sequentially.
type fakeMessenger struct {
	mu sync.Mutex

	posts  []string
	silent []string
	edits  []edit

	nextMsgID int
	errPost   error
	errEdit   error
	errSilent error
}

func (f *fakeMessenger) Post(ctx context.Context, text string) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errPost != nil {
		return transport.MessageRef{}, f.errPost
	}
	f.posts = append(f.posts, text)
	f.nextMsgID++
	return transport.MessageRef{ChatID: -100, MessageID: f.nextMsgID}, nil
}

func (f *fakeMessenger) EditInPlace(ctx context.Context, ref transport.MessageRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errEdit != nil {
		return f.errEdit
	}
	f.edits = append(f.edits, edit{ref: ref, text: text})
	return nil
}

func (f *fakeMessenger) PostSilently(ctx context.Context, text string) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errSilent != nil {
		return transport.MessageRef{}, f.errSilent
	}
	f.silent = append(f.silent, text)
	f.nextMsgID++
	return transport.MessageRef{ChatID: -100, MessageID: f.nextMsgID}, nil
}

func testMetrics() *metrics.Relay {
	return metrics.NewRelay(prometheus.NewRegistry())
}

package relay

import (
	"context"
	"sync"
	"time"
)

// DefaultDedupWindow matches the feed's observed re-announce behavior:
// a slot released by a cancellation shows up again after roughly half an hour.
const DefaultDedupWindow = 30 * time.Minute

type Decision int

const (
	Suppress Decision = iota
	Admit
)

func (d Decision) String() string {
	if d == Admit {
		return "admit"
	}
	return "suppress"
}

// Guard is sliding-window admission control over content fingerprints.
// The window is adjustable at runtime (config reload).
type Guard struct {
	store Store

	mu     sync.Mutex
	window time.Duration
}

func NewGuard(store Store, window time.Duration) *Guard {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Guard{store: store, window: window}
}

func (g *Guard) Window() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.window
}

func (g *Guard) SetWindow(d time.Duration) {
	if d <= 0 {
		d = DefaultDedupWindow
	}
	g.mu.Lock()
	g.window = d
	g.mu.Unlock()
}

// Admit decides whether a fingerprint enters the channel. On admission the
// fingerprint record is written; on suppression nothing content-level is.
// A store failure suppresses without recording, so the announcement can be
// admitted on redelivery.
func (g *Guard) Admit(ctx context.Context, fingerprint string, now time.Time) (Decision, error) {
	seen, err := g.store.FingerprintSeenWithin(ctx, fingerprint, g.Window(), now)
	if err != nil {
		return Suppress, err
	}
	if seen {
		return Suppress, nil
	}
	if err := g.store.RecordFingerprint(ctx, fingerprint, now); err != nil {
		return Suppress, err
	}
	return Admit, nil
}

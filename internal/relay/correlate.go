package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"slotrelay/internal/metrics"
	"slotrelay/pkg/logx"
)

// ExhaustionPolicy picks how a correlated announcement is closed out.
type ExhaustionPolicy string

const (
	// PolicyEdit replaces the posted announcement in place.
	PolicyEdit ExhaustionPolicy = "edit"
	// PolicyNotify leaves the post alone and sends a separate silent notice.
	PolicyNotify ExhaustionPolicy = "notify"
)

func ParseExhaustionPolicy(s string) (ExhaustionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(PolicyEdit):
		return PolicyEdit, nil
	case string(PolicyNotify):
		return PolicyNotify, nil
	default:
		return "", fmt.Errorf("unknown on_exhaustion policy %q (want edit or notify)", s)
	}
}

// Correlator links exhaustion events to the most recently admitted
// announcement for the same location and drives the state transition.
type Correlator struct {
	store Store
	msgr  Messenger
	log   logx.Logger
	met   *metrics.Relay

	mu     sync.Mutex
	policy ExhaustionPolicy
}

func NewCorrelator(store Store, msgr Messenger, policy ExhaustionPolicy, log logx.Logger, met *metrics.Relay) *Correlator {
	if policy == "" {
		policy = PolicyEdit
	}
	return &Correlator{store: store, msgr: msgr, policy: policy, log: log, met: met}
}

func (c *Correlator) Policy() ExhaustionPolicy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy
}

func (c *Correlator) SetPolicy(p ExhaustionPolicy) {
	c.mu.Lock()
	c.policy = p
	c.mu.Unlock()
}

// OnExhaustion transitions the active announcement for ex.Location to
// Exhausted and closes out its channel post per the configured policy.
//
// An orphan event (no active announcement) is dropped without a message.
// The returned error is non-nil only for store failures before the state
// transition committed; a failed send/edit afterwards is logged only.
func (c *Correlator) OnExhaustion(ctx context.Context, ex Exhaustion) error {
	a, ok, err := c.store.ActiveAnnouncement(ctx, ex.Location)
	if err != nil {
		return fmt.Errorf("active announcement lookup: %w", err)
	}
	if !ok {
		c.log.Info("orphan exhaustion dropped",
			logx.String("location", ex.Location),
			logx.Duration("alive", ex.Alive))
		c.met.OrphanExhaustions.Inc()
		return nil
	}

	if err := c.store.MarkExhausted(ctx, a.ID); err != nil {
		return fmt.Errorf("mark exhausted: %w", err)
	}
	c.met.Exhausted.Inc()

	text := FormatExhausted(&a, ex)
	switch c.Policy() {
	case PolicyNotify:
		if _, err := c.msgr.PostSilently(ctx, text); err != nil {
			c.log.Warn("close-out notice failed",
				logx.String("location", ex.Location), logx.Err(err))
		}
	default:
		if a.MessageRef.IsZero() {
			// The original post never made it out; nothing to edit.
			c.log.Warn("exhausted announcement has no posted message",
				logx.String("location", ex.Location), logx.Int64("id", a.ID))
			return nil
		}
		if err := c.msgr.EditInPlace(ctx, a.MessageRef, text); err != nil {
			c.log.Warn("close-out edit failed",
				logx.String("location", ex.Location), logx.Err(err))
		}
	}

	c.log.Info("announcement exhausted",
		logx.String("location", ex.Location),
		logx.Int64("id", a.ID),
		logx.Duration("alive", ex.Alive))
	return nil
}

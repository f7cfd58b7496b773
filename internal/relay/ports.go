package relay

import (
	"context"
	"time"

	"slotrelay/internal/transport"
)

// Store is the persistence API the core requires. Every operation must be
// atomic on its own; the core performs no cross-call locking.
//
// Absence is signalled with an explicit ok/bool return, never an error.
type Store interface {
	// Permanent per-source-message guard, independent from the
	// fingerprint window. A seen message is never reprocessed.
	SeenMessage(ctx context.Context, sourceMessageID int64) (bool, error)
	MarkMessageSeen(ctx context.Context, sourceMessageID int64, at time.Time) error

	// Sliding-window fingerprint history.
	FingerprintSeenWithin(ctx context.Context, fingerprint string, window time.Duration, now time.Time) (bool, error)
	RecordFingerprint(ctx context.Context, fingerprint string, now time.Time) error

	// SaveAnnouncement persists a newly admitted announcement and demotes
	// any previously admitted one for the same location to superseded.
	SaveAnnouncement(ctx context.Context, a Announcement) (int64, error)
	SetAnnouncementMessage(ctx context.Context, id int64, ref transport.MessageRef) error
	ActiveAnnouncement(ctx context.Context, location string) (Announcement, bool, error)
	MarkExhausted(ctx context.Context, id int64) error

	// Historical admission buckets feeding the predictor.
	RecordHourBucket(ctx context.Context, location string, hourOfDay int, at time.Time) error
	TopBuckets(ctx context.Context, window time.Duration, k int, now time.Time) (hours []int, locations []string, err error)
}

// Messenger delivers channel content. Post carries the signup button,
// PostSilently delivers without a client-side notification.
type Messenger interface {
	Post(ctx context.Context, text string) (transport.MessageRef, error)
	EditInPlace(ctx context.Context, ref transport.MessageRef, text string) error
	PostSilently(ctx context.Context, text string) (transport.MessageRef, error)
}

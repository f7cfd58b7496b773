package relay

import (
	"context"
	"time"

	"slotrelay/internal/metrics"
	"slotrelay/pkg/logx"
)

// Service is the inbound dispatcher: one raw feed message in, at most one
// channel action out. Events are processed to completion one at a time by
// the caller's loop; Service keeps no per-event goroutines.
type Service struct {
	store Store
	msgr  Messenger
	guard *Guard
	corr  *Correlator
	zones *Zones
	log   logx.Logger
	met   *metrics.Relay
}

func New(store Store, msgr Messenger, guard *Guard, corr *Correlator, zones *Zones, log logx.Logger, met *metrics.Relay) *Service {
	return &Service{
		store: store,
		msgr:  msgr,
		guard: guard,
		corr:  corr,
		zones: zones,
		log:   log,
		met:   met,
	}
}

func (s *Service) Guard() *Guard           { return s.guard }
func (s *Service) Correlator() *Correlator { return s.corr }

// OnRawText processes one feed message to completion. It never returns an
// error: failures are logged and isolated so the loop continues with the
// next message. A store failure before the seen-marker is written leaves
// the message eligible for redelivery.
func (s *Service) OnRawText(ctx context.Context, text string, sourceMessageID int64, observedAt time.Time) {
	seen, err := s.store.SeenMessage(ctx, sourceMessageID)
	if err != nil {
		s.log.Warn("seen lookup failed; skipping message",
			logx.Int64("msg_id", sourceMessageID), logx.Err(err))
		s.met.StoreErrors.Inc()
		return
	}
	if seen {
		return
	}

	res := Extract(text)
	switch res.Kind {
	case KindNewSlots:
		s.onNewSlots(ctx, res.Announcement, sourceMessageID, observedAt)

	case KindExhausted:
		ex := *res.Exhaustion
		ex.ObservedAt = observedAt
		if err := s.corr.OnExhaustion(ctx, ex); err != nil {
			// Leave the message unseen so a redelivery can retry.
			s.log.Warn("exhaustion correlation failed",
				logx.String("location", ex.Location), logx.Err(err))
			s.met.StoreErrors.Inc()
			return
		}
		s.markSeen(ctx, sourceMessageID, observedAt)

	default:
		s.log.Debug("unrecognized feed message", logx.Int64("msg_id", sourceMessageID))
		s.met.Unrecognized.Inc()
		s.markSeen(ctx, sourceMessageID, observedAt)
	}
}

func (s *Service) onNewSlots(ctx context.Context, a *Announcement, sourceMessageID int64, observedAt time.Time) {
	a.Fingerprint = Fingerprint(a.Location, a.Service, a.Dates)

	dec, err := s.guard.Admit(ctx, a.Fingerprint, observedAt)
	if err != nil {
		s.log.Warn("admission check failed; skipping message",
			logx.String("location", a.Location), logx.Err(err))
		s.met.StoreErrors.Inc()
		return
	}
	if dec == Suppress {
		s.log.Info("duplicate announcement suppressed",
			logx.String("location", a.Location),
			logx.String("fingerprint", a.Fingerprint))
		s.met.Suppressed.Inc()
		s.markSeen(ctx, sourceMessageID, observedAt)
		return
	}

	a.FirstSeenAt = observedAt.UTC()
	a.LocalTime = observedAt.In(s.zones.For(a.Location))
	a.State = StateAdmitted

	id, err := s.store.SaveAnnouncement(ctx, *a)
	if err != nil {
		s.log.Warn("announcement save failed",
			logx.String("location", a.Location), logx.Err(err))
		s.met.StoreErrors.Inc()
		return
	}
	a.ID = id

	if err := s.store.RecordHourBucket(ctx, a.Location, a.LocalTime.Hour(), a.FirstSeenAt); err != nil {
		s.log.Warn("hour bucket record failed", logx.Err(err))
	}

	ref, err := s.msgr.Post(ctx, FormatAnnouncement(a))
	if err != nil {
		// State is already committed; the next correlation pass reconciles.
		s.log.Warn("channel post failed",
			logx.String("location", a.Location), logx.Err(err))
	} else {
		a.MessageRef = ref
		if err := s.store.SetAnnouncementMessage(ctx, id, ref); err != nil {
			s.log.Warn("message ref save failed", logx.Int64("id", id), logx.Err(err))
		}
	}

	s.met.Admitted.Inc()
	s.log.Info("announcement admitted",
		logx.String("location", a.Location),
		logx.String("service", a.Service),
		logx.Int("slots", a.SlotCount()))
	s.markSeen(ctx, sourceMessageID, observedAt)
}

func (s *Service) markSeen(ctx context.Context, sourceMessageID int64, at time.Time) {
	if err := s.store.MarkMessageSeen(ctx, sourceMessageID, at); err != nil {
		s.log.Warn("seen marker write failed",
			logx.Int64("msg_id", sourceMessageID), logx.Err(err))
	}
}

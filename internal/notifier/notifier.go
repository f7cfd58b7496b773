// Package notifier delivers channel content through the transport adapter,
// rate-limited so a burst of admissions never trips Telegram flood control.
package notifier

import (
	"context"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	"slotrelay/internal/transport"
	"slotrelay/pkg/logx"
)

type Config struct {
	// Channel is the public channel announcements go to.
	Channel transport.ChatTarget

	// RatePerSec caps outbound sends (default 3, Telegram-friendly).
	RatePerSec int

	// SignupURL, when set, is attached to regular posts as an inline button.
	SignupURL string
}

// Service implements relay.Messenger.
type Service struct {
	cfg     Config
	adapter transport.Adapter
	log     logx.Logger
	limiter *rate.Limiter
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger) *Service {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	return &Service{
		cfg:     cfg,
		adapter: adapter,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Post publishes a slot announcement with the signup button.
func (s *Service) Post(ctx context.Context, text string) (transport.MessageRef, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return transport.MessageRef{}, err
	}
	return s.adapter.SendText(ctx, s.cfg.Channel, text, &transport.SendOptions{
		ParseMode:          tele.ModeHTML,
		DisablePreview:     true,
		ReplyMarkupAdapter: s.signupMarkup(),
	})
}

// EditInPlace replaces an already-posted message. The signup button is
// dropped: edited posts announce that the slots are gone.
func (s *Service) EditInPlace(ctx context.Context, ref transport.MessageRef, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.adapter.EditText(ctx, ref, text, &transport.SendOptions{
		ParseMode:      tele.ModeHTML,
		DisablePreview: true,
	})
}

// PostSilently publishes without a client-side notification and without the
// signup button. Used for predictive notices and close-out notices.
func (s *Service) PostSilently(ctx context.Context, text string) (transport.MessageRef, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return transport.MessageRef{}, err
	}
	return s.adapter.SendText(ctx, s.cfg.Channel, text, &transport.SendOptions{
		ParseMode:      tele.ModeHTML,
		DisablePreview: true,
		Silent:         true,
	})
}

func (s *Service) signupMarkup() *tele.ReplyMarkup {
	if s.cfg.SignupURL == "" {
		return nil
	}
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(markup.URL("🔗 Записатися на слот", s.cfg.SignupURL)))
	return markup
}

package relay

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"slotrelay/internal/metrics"
	"slotrelay/pkg/logx"
)

// Predictive notices fire in the last five minutes before the top of an hour.
const preWindowFromMinute = 55

const tickTimeout = 30 * time.Second

// PredictorConfig controls the predictive notice scheduler.
type PredictorConfig struct {
	WindowDays int // trailing history window, default 30
	TopK       int // size of the top-hours / top-locations lists, default 3
	Zone       *time.Location
}

// Predictor mines historical admissions and posts at most one silent notice
// per (calendar date, hour) ahead of statistically likely windows.
//
// It runs on a one-minute cron tick; SkipIfStillRunning guarantees ticks
// never overlap.
type Predictor struct {
	store Store
	msgr  Messenger
	log   logx.Logger
	met   *metrics.Relay

	cfg  PredictorConfig
	cron *cron.Cron

	mu        sync.Mutex
	announced map[string]struct{}
	day       string
}

func NewPredictor(cfg PredictorConfig, store Store, msgr Messenger, log logx.Logger, met *metrics.Relay) *Predictor {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 30
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.Zone == nil {
		cfg.Zone = time.UTC
	}
	return &Predictor{
		store:     store,
		msgr:      msgr,
		log:       log,
		met:       met,
		cfg:       cfg,
		announced: make(map[string]struct{}),
	}
}

func (p *Predictor) Start(ctx context.Context) error {
	cl := cronLogger{log: p.log}
	c := cron.New(
		cron.WithLocation(p.cfg.Zone),
		cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
	)
	_, err := c.AddFunc("* * * * *", func() {
		tctx, cancel := context.WithTimeout(ctx, tickTimeout)
		defer cancel()
		if err := p.Tick(tctx, time.Now().In(p.cfg.Zone)); err != nil {
			// Next tick proceeds independently.
			p.log.Warn("predictor tick failed", logx.Err(err))
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	p.cron = c
	p.log.Info("predictor started",
		logx.Int("window_days", p.cfg.WindowDays),
		logx.Int("top_k", p.cfg.TopK),
		logx.String("tz", p.cfg.Zone.String()))
	return nil
}

func (p *Predictor) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}

// Tick runs one predictor pass at the given venue-local time.
func (p *Predictor) Tick(ctx context.Context, now time.Time) error {
	p.rollover(now)

	window := time.Duration(p.cfg.WindowDays) * 24 * time.Hour
	hours, locations, err := p.store.TopBuckets(ctx, window, p.cfg.TopK, now)
	if err != nil {
		return err
	}
	// No history yet: nothing to predict.
	if len(hours) == 0 || len(locations) == 0 {
		return nil
	}

	if now.Minute() < preWindowFromMinute {
		return nil
	}
	next := now.Add(time.Hour)
	upcoming := next.Hour()
	if !containsInt(hours, upcoming) {
		return nil
	}

	// One notice per (calendar date, hour), keyed by the hour's own date so
	// a 23:55 tick books the notice against the next day.
	key := next.Format("2006-01-02") + "#" + strconv.Itoa(upcoming)
	p.mu.Lock()
	_, dup := p.announced[key]
	p.mu.Unlock()
	if dup {
		return nil
	}

	if _, err := p.msgr.PostSilently(ctx, FormatPredictive(upcoming, locations)); err != nil {
		return err
	}

	p.mu.Lock()
	p.announced[key] = struct{}{}
	p.mu.Unlock()
	p.met.PredictiveNotices.Inc()
	p.log.Info("predictive notice posted",
		logx.Int("hour", upcoming),
		logx.String("locations", strings.Join(locations, ",")))
	return nil
}

// rollover drops announced-set entries from previous days once the local
// date changes. Entries already keyed to the new day survive.
func (p *Predictor) rollover(now time.Time) {
	d := now.Format("2006-01-02")
	p.mu.Lock()
	defer p.mu.Unlock()
	if d == p.day {
		return
	}
	p.day = d
	for k := range p.announced {
		if !strings.HasPrefix(k, d) {
			delete(p.announced, k)
		}
	}
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// cronLogger adapts logx to cron's logging interface.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug(msg, logx.Any("detail", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Warn(msg, logx.Err(err), logx.Any("detail", kv))
}

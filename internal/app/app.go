// Package app wires config, storage, transport and the relay core together
// and runs the single-consumer update loop.
package app

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"slotrelay/internal/adapters/telegram"
	"slotrelay/internal/config"
	"slotrelay/internal/metrics"
	"slotrelay/internal/notifier"
	"slotrelay/internal/observability/debughttp"
	"slotrelay/internal/relay"
	"slotrelay/internal/stats"
	"slotrelay/internal/storage"
	"slotrelay/internal/transport"
	"slotrelay/pkg/logx"
)

const defaultSignupURL = "https://id.e-consul.gov.ua/"

// handleTimeout bounds one inbound event end to end (store + send).
const handleTimeout = 30 * time.Second

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	adapter *telegram.Adapter
	store   *storage.SQLite
	relay   *relay.Service
	pred    *relay.Predictor
	stats   *stats.Handler
	debug   *debughttp.Service

	sourceChatID int64
	predEnabled  bool

	updates  chan transport.Update
	cancel   context.CancelFunc
	loopDone chan struct{}
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logs.Logger().With(logx.String("comp", "config")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logs.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	dbPath := cfg.Storage.Path
	if strings.TrimSpace(dbPath) == "" {
		dbPath = "./slotrelay.db"
	}
	store, err := storage.Open(storage.Config{Path: dbPath, BusyTimeout: busyTimeout},
		logs.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.NewRelay(reg)

	dedupWindow, err := config.ParseDurationOrDefault("relay.dedup_window", cfg.Relay.DedupWindow, relay.DefaultDedupWindow)
	if err != nil {
		return nil, err
	}
	policy, err := relay.ParseExhaustionPolicy(cfg.Relay.OnExhaustion)
	if err != nil {
		return nil, err
	}
	zones, err := relay.NewZones(cfg.Relay.DefaultTimezone, cfg.Relay.Timezones)
	if err != nil {
		return nil, err
	}

	signup := cfg.Telegram.SignupURL
	if signup == "" {
		signup = defaultSignupURL
	}
	msgr := notifier.New(notifier.Config{
		Channel:    transport.ChatTarget{ChatID: cfg.Telegram.ChannelID},
		RatePerSec: cfg.Telegram.RatePerSec,
		SignupURL:  signup,
	}, ad, logs.Logger().With(logx.String("comp", "notifier")))

	guard := relay.NewGuard(store, dedupWindow)
	corr := relay.NewCorrelator(store, msgr, policy,
		logs.Logger().With(logx.String("comp", "correlator")), met)
	rsvc := relay.New(store, msgr, guard, corr, zones,
		logs.Logger().With(logx.String("comp", "relay")), met)

	predZone := zones.Default()
	if tz := strings.TrimSpace(cfg.Predictor.Timezone); tz != "" {
		predZone, err = time.LoadLocation(tz)
		if err != nil {
			return nil, err
		}
	}
	pred := relay.NewPredictor(relay.PredictorConfig{
		WindowDays: cfg.Predictor.WindowDays,
		TopK:       cfg.Predictor.TopK,
		Zone:       predZone,
	}, store, msgr, logs.Logger().With(logx.String("comp", "predictor")), met)

	return &App{
		cfgm:         cfgm,
		logs:         logs,
		log:          log,
		adapter:      ad,
		store:        store,
		relay:        rsvc,
		pred:         pred,
		stats:        stats.New(store, ad, logs.Logger().With(logx.String("comp", "stats"))),
		debug:        debughttp.New(debughttp.Config{Enabled: cfg.Debug.Enabled, Addr: cfg.Debug.Addr}, reg, logs.Logger().With(logx.String("comp", "debug"))),
		sourceChatID: cfg.Telegram.SourceChatID,
		predEnabled:  cfg.Predictor.Enabled,
		updates:      make(chan transport.Update, 256),
		loopDone:     make(chan struct{}),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	rctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.adapter.Start(rctx, a.updates); err != nil {
		cancel()
		return err
	}
	if a.predEnabled {
		if err := a.pred.Start(rctx); err != nil {
			cancel()
			return err
		}
	}
	if err := a.debug.Start(rctx); err != nil {
		a.log.Warn("debug http start failed", logx.Err(err))
	}

	go func() {
		if err := a.cfgm.Watch(rctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	go a.reloadLoop(rctx)
	go a.loop(rctx)

	a.log.Info("slotrelay started", logx.Int64("source_chat", a.sourceChatID))
	return nil
}

// reloadLoop applies hot-reloadable settings: log sinks/level, the dedup
// window and the exhaustion policy. Everything else needs a restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
			})
			if w, err := config.ParseDurationOrDefault("relay.dedup_window", cfg.Relay.DedupWindow, relay.DefaultDedupWindow); err == nil {
				a.relay.Guard().SetWindow(w)
			} else {
				a.log.Warn("reload: bad dedup window", logx.Err(err))
			}
			if p, err := relay.ParseExhaustionPolicy(cfg.Relay.OnExhaustion); err == nil {
				a.relay.Correlator().SetPolicy(p)
			} else {
				a.log.Warn("reload: bad exhaustion policy", logx.Err(err))
			}
		}
	}
}

// loop is the single consumer: one update is processed to completion before
// the next is read.
func (a *App) loop(ctx context.Context) {
	defer close(a.loopDone)
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-a.updates:
			a.handle(ctx, up)
		}
	}
}

// handle processes one update; a panic is contained so the loop continues
// with the next one.
func (a *App) handle(ctx context.Context, up transport.Update) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("panic while handling update",
				logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	hctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	switch up.Kind {
	case transport.UpdateMessage:
		m := up.Message
		if m == nil {
			return
		}
		if m.ChatID == a.sourceChatID {
			a.relay.OnRawText(hctx, m.Text, int64(m.ID), time.Now())
			return
		}
		if strings.HasPrefix(strings.TrimSpace(m.Text), "/start") {
			a.stats.HandleStart(hctx, m)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			a.stats.HandleCallback(hctx, up.Callback)
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.pred.Stop()
	_ = a.adapter.Stop(ctx)
	a.debug.Stop(ctx)

	select {
	case <-a.loopDone:
	case <-ctx.Done():
	}

	_ = a.store.Close()
	_ = a.logs.Close()
	return nil
}

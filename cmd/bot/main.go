package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"

	"KisTrader/internal/broker"
	"KisTrader/internal/calendar"
	"KisTrader/internal/config"
	"KisTrader/internal/engine"
	"KisTrader/internal/metrics"
	"KisTrader/internal/notifier"
	"KisTrader/internal/recorder"
	"KisTrader/internal/scheduler"
	"KisTrader/internal/token"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] KisTrader starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}
	creds, err := cfg.Credentials()
	if err != nil {
		log.Fatalf("[FATAL] credentials: %v", err)
	}
	loc := cfg.Location()
	openAt, _ := config.ParseClock(cfg.Trading.WindowOpen)
	closeAt, _ := config.ParseClock(cfg.Trading.WindowClose)

	// Broker client and the caches that sit on it
	client := broker.New(broker.Config{
		BaseURL:         cfg.Broker.BaseURL,
		Credentials:     creds,
		Timeout:         cfg.Broker.Timeout,
		CallPause:       cfg.Broker.CallPause,
		MaxBalancePages: cfg.Broker.MaxBalancePages,
		Proxy:           cfg.Proxy,
	})
	tokens := token.New(cfg.State.TokenFile, client, token.WithLocation(loc))
	tokens.Load()
	client.SetTokenSource(tokens)

	cal := calendar.New(cfg.State.CalendarFile, client, calendar.WithLocation(loc))
	cal.Load()

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Init Telegram notifier
	var tn *notifier.TelegramNotifier
	var notify notifier.Notifier = notifier.Noop{}
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		notify = tn
	} else {
		log.Println("[WARN] telegram not configured, commands and notifications disabled")
	}

	eng := engine.New(tokens, cal, client, engine.Settings{
		Threshold:   decimal.NewFromFloat(cfg.Trading.ProfitThresholdPct),
		Universe:    cfg.Trading.Symbols,
		WindowOpen:  openAt,
		WindowClose: closeAt,
		Location:    loc,
	}, engine.WithRecorder(rec), engine.WithNotifier(notify))

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics endpoint
	if cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[ERROR] metrics server: %v", err)
			}
		}()
		defer srv.Close()
		log.Printf("[INFO] metrics listening on %s", cfg.Metrics.ListenAddr)
	}

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, eng, rec, loc)
	if err := sched.Register(cfg.Schedule.CycleCron); err != nil {
		log.Fatalf("[FATAL] register cron task: %v", err)
	}
	sched.Start()

	// Start Telegram polling
	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing a cycle now")
		go sched.RunNow()
	}

	log.Printf("[INFO] KisTrader is running (account %s, cycle %s). Press Ctrl+C to stop.", creds.AccountNo(), cfg.Schedule.CycleCron)

	// Wait for shutdown signal or /exit
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Println("[INFO] shutdown signal received, stopping...")
	case <-sched.Exit():
		log.Println("[INFO] exit requested, stopping...")
	}

	// Let an in-flight cycle finish before tearing down its context.
	sched.Stop()
	cancel()
	log.Println("[INFO] KisTrader stopped")
}

package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"phonestore/internal/assistant"
	"phonestore/internal/blobs"
	"phonestore/internal/config"
	"phonestore/internal/http/handlers"
	applog "phonestore/internal/log"
	"phonestore/internal/mail"
	"phonestore/internal/repos"
)

func main() {
	cfg := config.Load()

	// Optional file logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
		} else {
			defer f.Close()
			mw := io.MultiWriter(os.Stdout, f)
			log.SetOutput(mw)
			applog.SetOutput(mw)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repos.OpenDB(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if cfg.SeedDemo {
		if err := repos.SeedDemo(ctx, db); err != nil {
			log.Fatalf("[seed] %v", err)
		}
		log.Printf("[seed] demo accounts and products ready")
	}

	store, err := blobs.New(ctx, cfg.Blob, db)
	if err != nil {
		log.Fatalf("[blobs] %v", err)
	}
	deps := handlers.NewDeps(db, cfg, handlers.Collaborators{
		Blobs: store,
		Mail:  mail.New(cfg.SMTP),
		Gen:   assistant.New(cfg.Assistant),
	})
	if !deps.Mail.Enabled() {
		log.Printf("[mail] SMTP not configured; reset codes are not emailed")
	}
	if !deps.Chat.Available() {
		log.Printf("[assistant] ASSISTANT_URL not set; chatbot answers with a fixed reply")
	}

	go deps.Chat.RunEviction(ctx, 10*time.Minute)
	go purgeSessions(ctx, deps, time.Hour)

	app := handlers.NewApp(deps)

	go func() {
		<-ctx.Done()
		log.Printf("[server] shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("[server] shutdown: %v", err)
		}
	}()

	log.Printf("[server] listening on %s", cfg.Addr)
	if err := app.Listen(cfg.Addr); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func purgeSessions(ctx context.Context, deps *handlers.Deps, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := deps.Auth.Users.PurgeSessions(ctx, now.Unix())
			if err != nil {
				applog.Error(nil, "session.purge.fail", err, nil)
				continue
			}
			if n > 0 {
				applog.Info(nil, "session.purge", map[string]any{"sessions": n})
			}
		}
	}
}

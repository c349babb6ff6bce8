package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"propdesk.io/internal/challenge"
	"propdesk.io/internal/config"
	"propdesk.io/internal/httpapi"
	"propdesk.io/internal/notify"
	"propdesk.io/internal/obs"
	"propdesk.io/internal/order"
	"propdesk.io/internal/store/pg"
	"propdesk.io/internal/tenant"
	"propdesk.io/internal/ticket"
	"propdesk.io/internal/user"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, "")

	cfg := config.Load()

	deps := httpapi.Deps{Config: cfg, Version: version}

	var store *pg.Store
	if cfg.PostgresDSN != "" {
		var err error
		store, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		deps.Tenants = store
		deps.Users = store
		deps.Challenges = store
		deps.Tickets = store.Tickets()
		deps.Orders = store
		deps.Certificates = store
		deps.ReadyProbe = httpapi.ReadyProbe{DB: store.DB()}
		if cfg.SMTPHost != "" {
			deps.Mailer = notify.NewMailer(store, notify.SMTP{
				Host: cfg.SMTPHost,
				Port: cfg.SMTPPort,
				User: cfg.SMTPUser,
				Pass: cfg.SMTPPass,
				From: cfg.SMTPFrom,
			})
		}
	} else {
		// Local development: everything in memory, nothing survives restart.
		log.Println("PROPDESK_PG_DSN not set, using in-memory stores")
		tenants := tenant.NewInMemory()
		challenges := challenge.NewInMemory(tenants)
		deps.Tenants = tenants
		deps.Users = user.NewInMemory(tenants)
		deps.Challenges = challenges
		deps.Tickets = ticket.NewInMemory()
		deps.Orders = order.NewInMemory(challenges)
	}

	api := httpapi.New(deps)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting propdesk-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}

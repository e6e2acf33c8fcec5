package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/agentlink"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/api"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/artifacts"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/config"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/journal"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/notify"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/session"
)

func main() {
	cfg := config.Load()

	db, err := journal.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()
	store := journal.NewStore(db)

	notifier := notify.NewLimiter(notify.NewLogNotifier(), cfg.MaxThreadMessages)
	inbox := notify.NewInbox()
	fetcher := agentlink.NewHTTPFetcher(cfg.AgentServerURL, cfg.DownloadTimeout)

	deliverer := &artifacts.Deliverer{
		Fetcher:            fetcher,
		Notifier:           notifier,
		MaxAttachmentBytes: cfg.MaxAttachmentBytes,
		MaxFilesPerMessage: 10,
	}

	dispatcher := session.NewDispatcher(session.Options{
		Config:    cfg,
		Notifier:  notifier,
		Waiter:    inbox,
		Deliverer: deliverer,
		Journal:   store,
		NewLink: func() (session.AgentLink, error) {
			return agentlink.New(cfg.AgentServerURL, cfg.ConnectTimeout)
		},
	})

	apiServer := &api.Server{Sessions: dispatcher, Journal: store, Inbox: inbox}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("agentbot listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dispatcher.Shutdown(ctx)
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}

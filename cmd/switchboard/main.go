package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/antoniostano/switchboard/internal/auth"
	"github.com/antoniostano/switchboard/internal/call"
	"github.com/antoniostano/switchboard/internal/config"
	"github.com/antoniostano/switchboard/internal/events"
	"github.com/antoniostano/switchboard/internal/httpapi"
	"github.com/antoniostano/switchboard/internal/observability"
	"github.com/antoniostano/switchboard/internal/provider"
	"github.com/antoniostano/switchboard/internal/queue"
	"github.com/antoniostano/switchboard/internal/registry"
	"github.com/antoniostano/switchboard/internal/store"
	"github.com/antoniostano/switchboard/internal/stream"
)

// smsReceipt closes the loop after a call by texting the caller. A richer
// post-call workflow can replace it behind the same interface.
type smsReceipt struct {
	actions provider.Actions
}

func (a smsReceipt) OnEndCall(ctx context.Context, c *call.Call) error {
	log.Printf("call %s: post-processing %d transcript messages", c.ID, len(c.Messages))
	return a.actions.SendSMS(ctx, c.PhoneNumber, "Thanks for calling. Reply to this message if you need anything else.")
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	callStore, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer callStore.Close()

	var (
		transport queue.Transport
		ready     []httpapi.ReadyChecker
	)
	if cfg.RedisURL != "" {
		redisTransport, err := queue.NewRedisTransport(cfg.RedisURL)
		if err != nil {
			log.Fatalf("queue transport init failed: %v", err)
		}
		defer redisTransport.Close()
		transport = redisTransport
		ready = append(ready, redisTransport.Ping)
		log.Printf("queue transport: redis")
	} else {
		transport = queue.NewMemoryTransport()
		log.Printf("queue transport: in-memory (messages do not survive a restart)")
	}

	tokens, err := auth.NewTokenValidator(ctx, cfg.TokenJWKSURL, cfg.TokenIssuer, cfg.TokenAudience)
	if err != nil {
		log.Fatalf("token validator init failed: %v", err)
	}

	actions, err := provider.NewClient(provider.Config{
		Endpoint:   cfg.ProviderEndpoint,
		AccessKey:  cfg.ProviderAccessKey,
		FromNumber: cfg.BotPhoneNumber,
	})
	if err != nil {
		log.Fatalf("provider client init failed: %v", err)
	}

	reg := registry.New(callStore, cfg.CallbackURLTemplate(), cfg.StreamURLTemplate(), call.Initiate{
		BotName:          "switchboard",
		BotPhoneNumber:   cfg.BotPhoneNumber,
		AgentPhoneNumber: cfg.AgentPhoneNumber,
		Lang:             cfg.DefaultLang,
	})

	workers := queue.NewWorkers(
		transport,
		queue.Names{Call: cfg.CallQueue, SMS: cfg.SMSQueue, Post: cfg.PostQueue},
		reg,
		callStore,
		actions,
		smsReceipt{actions: actions},
		metrics,
	)

	dispatcher := events.NewDispatcher(
		callStore,
		actions,
		nil,
		workers.EnqueuePost,
		metrics,
		cfg.AvailableLangs,
		cfg.RecognitionRetryMax,
	)

	bridge := stream.NewBridge(stream.DiscardProcessor{}, metrics, cfg.StreamChannelCapacity)

	api := httpapi.New(callStore, reg, dispatcher, bridge, actions, tokens, metrics, ready...)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	workers.Start(runCtx)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// Command centralsystem runs the OCPP 1.6J central system: the WebSocket
// endpoint charge points connect to, the dashboard event feed, the
// read-only HTTP projection, and (when configured) the optional Redis
// persistence and Kafka mirroring plug-ins.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chargepoint/central-system/internal/authz"
	"github.com/chargepoint/central-system/internal/chargepoint"
	"github.com/chargepoint/central-system/internal/clock"
	"github.com/chargepoint/central-system/internal/config"
	"github.com/chargepoint/central-system/internal/dispatch"
	"github.com/chargepoint/central-system/internal/eventbus"
	"github.com/chargepoint/central-system/internal/events"
	"github.com/chargepoint/central-system/internal/httpapi"
	"github.com/chargepoint/central-system/internal/integration"
	"github.com/chargepoint/central-system/internal/logging"
	"github.com/chargepoint/central-system/internal/pending"
	"github.com/chargepoint/central-system/internal/storage"
	"github.com/chargepoint/central-system/internal/transaction"
	"github.com/chargepoint/central-system/internal/validation"
	"github.com/chargepoint/central-system/internal/wsconn"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(&logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Async:  cfg.Log.Async,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.Info("logger initialized")

	store, err := openStore(cfg, log)
	if err != nil {
		log.Errorf("failed to initialize storage: %v", err)
		os.Exit(1)
	}
	log.Info("storage initialized")

	clk := clock.New()

	// The dashboard bus fans events out to subscribed dashboard clients;
	// an optional Kafka producer mirrors every event regardless of
	// dashboard subscriptions, entirely decoupled from delivery.
	var kafkaProducer *integration.KafkaProducer
	var mirror func(events.Event)
	if cfg.Kafka.Enabled {
		kafkaProducer, err = integration.NewKafkaProducer(
			cfg.Kafka.Brokers,
			cfg.Kafka.Topic,
			cfg.Kafka.Producer.FlushFrequency,
			log,
			uuid.NewString,
		)
		if err != nil {
			log.Errorf("failed to initialize kafka producer: %v", err)
			os.Exit(1)
		}
		mirror = kafkaProducer.Publish
		log.Info("kafka producer initialized")
	}

	bus := eventbus.New(mirror)

	chargepts := chargepoint.New(clk, bus)
	authzReg := authz.New(clk, cfg.OCPP.AcceptUnknownTags)
	txns := transaction.New(clk, authzReg, store)
	if err := txns.LoadHistory(cfg.Redis.HistoryLimit); err != nil {
		log.Errorf("failed to load completed-transaction history: %v", err)
	}
	validator := validation.New()

	dispatcher := dispatch.New(dispatch.Config{
		HeartbeatInterval: int(cfg.OCPP.HeartbeatInterval.Seconds()),
	}, chargepts, txns, authzReg, validator, clk)

	tracker := pending.New(cfg.OCPP.PendingRequestTTL)

	wsCfg := wsconn.Config{
		ReadBufferSize:   cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:  cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		PingInterval:     cfg.WebSocket.PingInterval,
		PongTimeout:      cfg.WebSocket.PongTimeout,
		MaxMessageSize:   cfg.WebSocket.MaxMessageSize,
		CheckOrigin:      cfg.WebSocket.CheckOrigin,
		AllowedOrigins:   cfg.WebSocket.AllowedOrigins,
		MaxOutboundQueue: cfg.WebSocket.MaxOutboundQueue,
		DuplicatePolicy:  cfg.WebSocket.DuplicatePolicy,
	}
	wsManager := wsconn.New(wsCfg, dispatcher, tracker, clk, log)
	log.Info("websocket manager initialized")

	router := httpapi.NewRouter(chargepts, txns, cfg, clk)

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.WebSocketPath+"/", wsManager)
	mux.Handle("/dashboard/ws", eventbus.Handler(bus, log))
	mux.Handle("/", router)

	server := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infof("central system listening on %s", cfg.GetServerAddr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("server failed: %v", err)
			os.Exit(1)
		}
	}()

	go startMetricsServer(cfg.Monitoring.MetricsAddr, log)

	log.Info("central system started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("error shutting down http server: %v", err)
	}
	wsManager.Shutdown()
	log.Info("websocket manager shut down")

	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Errorf("error closing kafka producer: %v", err)
		}
		log.Info("kafka producer closed")
	}

	if err := store.Close(); err != nil {
		log.Errorf("error closing storage: %v", err)
	}
	log.Info("storage closed")

	log.Info("central system stopped gracefully")
}

func openStore(cfg *config.Config, log *logging.Logger) (storage.Store, error) {
	if !cfg.Redis.Enabled {
		log.Info("redis persistence disabled, using in-memory store")
		return storage.NewMemoryStore(), nil
	}
	return storage.NewRedisStore(cfg.Redis)
}

func startMetricsServer(addr string, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Infof("metrics server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("metrics server failed: %v", err)
	}
}

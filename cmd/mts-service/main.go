package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/mts-gateway/internal/correlation"
	"github.com/radieske/mts-gateway/internal/downstream"
	"github.com/radieske/mts-gateway/internal/gateway"
	mcache "github.com/radieske/mts-gateway/internal/mts-service/cache"
	httpapi "github.com/radieske/mts-gateway/internal/mts-service/http"
	kpub "github.com/radieske/mts-gateway/internal/mts-service/producer"
	"github.com/radieske/mts-gateway/internal/mts-service/ws"
	"github.com/radieske/mts-gateway/internal/shared/cache"
	"github.com/radieske/mts-gateway/internal/shared/config"
	"github.com/radieske/mts-gateway/internal/shared/kafka"
	"github.com/radieske/mts-gateway/internal/shared/logger"
	"github.com/radieske/mts-gateway/internal/shared/metrics"
	"github.com/radieske/mts-gateway/internal/ticket"
)

var (
	ticketsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mts_tickets_submitted_total",
		Help: "Tickets despachados ao downstream, por tipo e status síncrono",
	}, []string{"kind", "status"})
	ticketsDuplicated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mts_tickets_duplicate_total",
		Help: "Submissões recusadas por ticketId já utilizado",
	})
	entriesFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mts_correlation_entries_finished_total",
		Help: "Entradas de correlação encerradas, por estado terminal",
	}, []string{"state"})
	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mts_ws_connections",
		Help: "Conexões WebSocket de apostadores ativas",
	})
	cashouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mts_cashouts_total",
		Help: "Pedidos de cashout, por status do reply (failed quando não houve reply)",
	}, []string{"status"})
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "mts-service"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prometheus.MustRegister(ticketsSubmitted, ticketsDuplicated, entriesFinished, wsConnections, cashouts)

	rounding, err := ticket.ParseRounding(cfg.StakeRounding)
	if err != nil {
		log.Fatal("invalid stake rounding", zap.String("value", cfg.StakeRounding), zap.Error(err))
	}
	builder := ticket.NewBuilder(ticket.WithRounding(rounding))

	// ==== REDIS (claims e cache de status)
	var rdb *redis.Client
	if cfg.ClaimStore == "redis" {
		bootCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rdb, err = cache.ConnectRedis(bootCtx, cfg.RedisAddr)
		cancel()
		if err != nil {
			log.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	var claims gateway.Claims = gateway.NewMemoryClaims(cfg.TicketClaimTTL)
	if rdb != nil {
		claims = gateway.NewRedisClaims(rdb, cfg.TicketClaimTTL)
	}

	// ==== KAFKA (ticket_placed / ticket_resolved)
	if cfg.Env == "local" || cfg.Env == "dev" {
		topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := kafka.EnsureTopics(topicCtx, cfg.KafkaBrokers, log, cfg.TopicTicketPlaced, cfg.TopicTicketResolved); err != nil {
			log.Warn("kafka topics not ensured", zap.Error(err))
		}
		cancel()
	}
	placedWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicTicketPlaced)
	defer placedWriter.Close()
	resolvedWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicTicketResolved)
	defer resolvedWriter.Close()

	// ==== CORRELAÇÃO + DOWNSTREAM
	table := correlation.NewTable(log)
	table.OnTerminal = func(s correlation.State) { entriesFinished.WithLabelValues(s.String()).Inc() }

	authority := downstream.NewClient(cfg.DownstreamWSURL, log, cfg.DownstreamDispatchTimeout)

	prometheus.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "mts_correlation_entries_open",
			Help: "Entradas de correlação aguardando respostas",
		}, func() float64 { return float64(table.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "mts_downstream_connected",
			Help: "1 quando há conexão com a autoridade de liquidação",
		}, func() float64 {
			if authority.Connected() {
				return 1
			}
			return 0
		}),
	)

	gw := gateway.New(log, authority, table, claims, gateway.Config{
		SingleDeadline: cfg.SingleTicketDeadline,
		MultiDeadline:  cfg.MultiTicketDeadline,
	}).WithRecorders(kpub.NewKafkaPublisher(placedWriter, resolvedWriter, log))
	if rdb != nil {
		statuses := mcache.NewStatusCache(rdb, cfg.StatusCacheTTL)
		gw.WithRecorders(statuses).WithStatusStore(statuses)
	}
	gw.OnSubmitted = func(kind ticket.Kind, status string) {
		ticketsSubmitted.WithLabelValues(string(kind), status).Inc()
	}
	gw.OnDuplicate = ticketsDuplicated.Inc

	authority.OnLegResult = gw.HandleLegResult
	go authority.Start(ctx)

	// ==== WEBSOCKET (apostadores)
	hub := ws.NewHub(log)
	hub.OnConnections = func(n int) { wsConnections.Set(float64(n)) }
	processor := ws.NewProcessor(ctx, log, builder, gw)
	wsHandler := ws.NewHandler(hub, processor, log, func(*http.Request) bool { return true })

	// ==== MÉTRICAS (/healthz, /metrics)
	msrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if !authority.Connected() {
			return errors.New("downstream disconnected")
		}
		if rdb != nil {
			return rdb.Ping(ctx).Err()
		}
		return nil
	})
	log.Info("mts-service (metrics) running",
		zap.String("addr", ":"+cfg.MetricsPort),
		zap.String("paths", "/healthz,/metrics"),
	)

	// ==== PÚBLICO (REST + WS)
	api := &httpapi.API{
		Log:        log,
		Service:    cfg.ServiceName,
		Builder:    builder,
		Gateway:    gw,
		Cashouts:   authority,
		Downstream: authority.Connected,
		WS:         wsHandler.ServeWS,
		OnCashout:  func(status string) { cashouts.WithLabelValues(status).Inc() },
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("mts-service (public) running",
			zap.String("addr", srv.Addr),
			zap.String("downstream", cfg.DownstreamWSURL),
			zap.String("claims", cfg.ClaimStore),
			zap.String("rounding", string(rounding)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("public server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received", zap.Int("open_entries", table.Len()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = msrv.Shutdown(shutdownCtx)
	log.Info("mts-service stopped")
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/mts-gateway/internal/shared/config"
	"github.com/radieske/mts-gateway/internal/shared/db"
	"github.com/radieske/mts-gateway/internal/shared/kafka"
	"github.com/radieske/mts-gateway/internal/shared/logger"
	"github.com/radieske/mts-gateway/internal/shared/metrics"
	"github.com/radieske/mts-gateway/internal/ticket-audit/consumer"
	"github.com/radieske/mts-gateway/internal/ticket-audit/repo"
)

const groupID = "ticket-audit"

var (
	auditConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_audit_consumed_total",
		Help: "Mensagens consumidas, por tópico",
	}, []string{"topic"})
	auditPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_audit_persisted_total",
		Help: "Eventos gravados no Postgres, por tópico",
	}, []string{"topic"})
	auditDLQ = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_audit_dlq_total",
		Help: "Mensagens encaminhadas para DLQ, por tópico de origem",
	}, []string{"topic"})
	auditErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_audit_errors_total",
		Help: "Erros por fase (read, decode, persist, out_of_order, dlq, commit)",
	}, []string{"phase"})
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "ticket-audit-worker"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prometheus.MustRegister(auditConsumed, auditPersisted, auditDLQ, auditErrors)

	// Postgres: histórico de tickets
	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()

	store := repo.NewPostgres(pg)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal("pg schema", zap.Error(err))
	}

	if cfg.Env == "local" || cfg.Env == "dev" {
		topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := kafka.EnsureTopics(topicCtx, cfg.KafkaBrokers, log,
			cfg.TopicTicketPlaced, cfg.TopicTicketResolved,
			cfg.TopicTicketPlacedDLQ, cfg.TopicTicketResolvedDLQ,
		); err != nil {
			log.Warn("kafka topics not ensured", zap.Error(err))
		}
		cancel()
	}

	workers := []*consumer.Worker{
		newWorker(cfg.KafkaBrokers, cfg.TopicTicketPlaced, cfg.TopicTicketPlacedDLQ, func(r consumer.MessageReader, dlq consumer.MessageWriter) *consumer.Worker {
			return consumer.NewPlacedWorker(log, cfg.TopicTicketPlaced, r, dlq, store)
		}),
		newWorker(cfg.KafkaBrokers, cfg.TopicTicketResolved, cfg.TopicTicketResolvedDLQ, func(r consumer.MessageReader, dlq consumer.MessageWriter) *consumer.Worker {
			return consumer.NewResolvedWorker(log, cfg.TopicTicketResolved, r, dlq, store)
		}),
	}

	// Servidor HTTP para métricas Prometheus e healthcheck
	msrv := metrics.StartMetricsServer(cfg.MetricsPort, store.Ping)
	log.Info("metrics/health", zap.String("addr", ":"+cfg.MetricsPort))

	log.Info("ticket-audit-worker started",
		zap.String("group", groupID),
		zap.Strings("consume", []string{cfg.TopicTicketPlaced, cfg.TopicTicketResolved}),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error { return w.Run(gctx) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = msrv.Shutdown(shutdownCtx)
	for _, w := range workers {
		closeWorker(w)
	}
	log.Info("ticket-audit-worker stopped")
}

// newWorker cria reader e writer de DLQ do tópico e liga as métricas
func newWorker(brokers, topic, dlqTopic string, build func(consumer.MessageReader, consumer.MessageWriter) *consumer.Worker) *consumer.Worker {
	reader := kafka.NewReader(brokers, topic, groupID)
	var dlq consumer.MessageWriter
	if dlqTopic != "" {
		dlq = kafka.NewWriter(brokers, dlqTopic)
	}
	w := build(reader, dlq)
	w.OnConsumed = func(t string) { auditConsumed.WithLabelValues(t).Inc() }
	w.OnPersist = func(t string) { auditPersisted.WithLabelValues(t).Inc() }
	w.OnDLQ = func(t string) { auditDLQ.WithLabelValues(t).Inc() }
	w.OnError = func(phase string) { auditErrors.WithLabelValues(phase).Inc() }
	return w
}

func closeWorker(w *consumer.Worker) {
	if c, ok := w.Reader.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if c, ok := w.DLQ.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

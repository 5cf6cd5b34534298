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
	"go.uber.org/zap"

	"github.com/radieske/mts-gateway/internal/shared/config"
	"github.com/radieske/mts-gateway/internal/shared/logger"
	"github.com/radieske/mts-gateway/internal/shared/metrics"

	simulator "github.com/radieske/mts-gateway/internal/settlement-simulator"
)

var (
	// Métricas Prometheus para monitoramento de conexões e respostas
	simConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_sim_ws_connections",
		Help: "Gateways conectados ao simulador",
	})
	simReplies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_sim_ticket_replies_total",
		Help: "Replies síncronos enviados, por status",
	}, []string{"status"})
	simLegResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_sim_leg_results_total",
		Help: "Resultados de perna enviados, por status",
	}, []string{"status"})
	simAcks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_sim_acks_total",
		Help: "Acks recebidos do gateway",
	})
	simCashouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_sim_cashout_replies_total",
		Help: "Replies de cashout enviados, por status",
	}, []string{"status"})
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "settlement-simulator"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	prometheus.MustRegister(simConnections, simReplies, simLegResults, simAcks, simCashouts)

	sim := simulator.New(log, simulator.Config{
		AcceptRate:    cfg.SimAcceptRate,
		LegAcceptRate: cfg.SimLegAcceptRate,
		MaxLegDelay:   cfg.SimMaxLegDelay,
	})
	sim.OnConnection = simConnections.Add
	sim.OnReply = func(status string) { simReplies.WithLabelValues(status).Inc() }
	sim.OnLegResult = func(status string) { simLegResults.WithLabelValues(status).Inc() }
	sim.OnAck = simAcks.Inc
	sim.OnCashout = func(status string) { simCashouts.WithLabelValues(status).Inc() }

	// ==== MÉTRICAS (/healthz, /metrics)
	msrv := metrics.StartMetricsServer(cfg.MetricsPort, nil)
	log.Info("settlement simulator (metrics) running",
		zap.String("addr", ":"+cfg.MetricsPort),
		zap.String("paths", "/healthz,/metrics"),
	)

	// ==== PÚBLICO (/ws, /health)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           sim.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("settlement simulator (public) running",
			zap.String("addr", srv.Addr),
			zap.String("paths", "/ws,/health"),
			zap.Float64("accept_rate", cfg.SimAcceptRate),
			zap.Float64("leg_accept_rate", cfg.SimLegAcceptRate),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("public server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = msrv.Shutdown(ctx)
	log.Info("settlement simulator stopped")
}

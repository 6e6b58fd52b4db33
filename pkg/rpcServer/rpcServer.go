package rpcServer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/liquid-miners/lm-engine/internal/config"
	"github.com/liquid-miners/lm-engine/internal/metrics"
	"github.com/liquid-miners/lm-engine/internal/metrics/metricsTypes"
	"github.com/liquid-miners/lm-engine/pkg/factory"
	"github.com/liquid-miners/lm-engine/pkg/registry"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// RpcServer exposes the engine over a JSON HTTP surface.
type RpcServer struct {
	logger     *zap.Logger
	sink       *metrics.MetricsSink
	factory    *factory.PoolFactory
	resolver   registry.PoolResolver
	acceptance registry.AcceptanceService
	cfg        *config.Config

	server *http.Server
}

func NewRpcServer(
	f *factory.PoolFactory,
	cfg *config.Config,
	sink *metrics.MetricsSink,
	l *zap.Logger,
) *RpcServer {
	rs := &RpcServer{
		logger:     l,
		sink:       sink,
		factory:    f,
		resolver:   f,
		acceptance: f,
		cfg:        cfg,
	}

	router := mux.NewRouter()
	router.Use(rs.requestMiddleware)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/acceptance", rs.handleAcceptance).Methods(http.MethodGet)
	v1.HandleFunc("/pools", rs.handleCreatePool).Methods(http.MethodPost)
	v1.HandleFunc("/pools", rs.handleResolvePool).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{address}", rs.handlePoolStatus).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{address}/proofs", rs.handleSubmitProof).Methods(http.MethodPost)
	v1.HandleFunc("/pools/{address}/rewards", rs.handleAddRewards).Methods(http.MethodPost)
	v1.HandleFunc("/pools/{address}/claims", rs.handleClaim).Methods(http.MethodPost)
	v1.HandleFunc("/pools/{address}/rebate-claims", rs.handleClaimRebate).Methods(http.MethodPost)
	v1.HandleFunc("/pools/{address}/oracle-claims", rs.handleClaimOracle).Methods(http.MethodPost)
	v1.HandleFunc("/pools/{address}/epochs/{epoch}", rs.handleEpochStatus).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{address}/epochs/{epoch}/pending/{user}", rs.handlePendingReward).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{address}/epochs/{epoch}/proof-window/{user}", rs.handleProofWindow).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{address}/epochs/{epoch}/promoters/{party}", rs.handlePromoterContribution).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{address}/epochs/{epoch}/oracles/{party}", rs.handleOracleContribution).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{address}/users/{user}", rs.handleUserPoints).Methods(http.MethodGet)

	handler := cors.Default().Handler(router)

	rs.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.RpcConfig.HttpPort),
		Handler: handler,
	}
	return rs
}

// Handler exposes the routed handler for tests.
func (rs *RpcServer) Handler() http.Handler {
	return rs.server.Handler
}

// Start serves in the background; callers stop it with Shutdown.
func (rs *RpcServer) Start() error {
	rs.logger.Sugar().Infow("Starting rpc server",
		zap.Int("port", rs.cfg.RpcConfig.HttpPort),
	)
	go func() {
		if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rs.logger.Sugar().Errorw("Rpc server exited", zap.Error(err))
		}
	}()
	return nil
}

func (rs *RpcServer) Shutdown(ctx context.Context) error {
	return rs.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// requestMiddleware tags every request with an id, logs it and counts it.
func (rs *RpcServer) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestId := uuid.New().String()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		rs.sink.Incr(metricsTypes.Metric_Incr_HttpRequest, []metricsTypes.MetricsLabel{
			{Name: "method", Value: r.Method},
			{Name: "path", Value: r.URL.Path},
			{Name: "status", Value: strconv.Itoa(recorder.status)},
		}, 1)

		rs.logger.Sugar().Debugw("Handled request",
			zap.String("requestId", requestId),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

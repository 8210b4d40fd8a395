package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsServer provides a separate HTTP server for Prometheus metrics.
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewMetricsServer creates a new metrics server.
func NewMetricsServer(port int, path string, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	return &MetricsServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		logger: logger,
	}
}

// Start starts the metrics server.
func (ms *MetricsServer) Start() error {
	ms.logger.Info("starting metrics server", zap.String("addr", ms.server.Addr))
	return ms.server.ListenAndServe()
}

// Shutdown gracefully shuts down the metrics server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

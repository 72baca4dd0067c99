package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/auth"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/config"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/db"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/metadata"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/metrics"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/settings"
)

// Server represents the checkout fields service
type Server struct {
	config         *config.Config
	httpServer     *http.Server
	router         *mux.Router
	db             *sql.DB
	kv             metadata.RawKVStore
	settings       *settings.Manager
	orders         *metadata.OrderStore
	authManager    *auth.Manager
	metricsManager metrics.Manager
	systemMetrics  *metrics.SystemMetricsTracker
	logger         *logrus.Logger
	startTime      time.Time
}

// New opens the settings database and the order metadata store and
// registers every route
func New(cfg *config.Config, logger *logrus.Logger) (*Server, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	conn, err := db.Open(context.Background(), cfg.DataDir)
	if err != nil {
		return nil, err
	}

	settingsManager, err := settings.NewManager(conn, logger)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create settings manager: %w", err)
	}

	kv, err := metadata.Open(metadata.Options{
		DataDir:    cfg.DataDir,
		Engine:     metadata.Engine(cfg.OrderStore.Engine),
		SyncWrites: cfg.OrderStore.SyncWrites,
		GCInterval: cfg.OrderStore.GCInterval,
		Logger:     logger,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open order metadata store: %w", err)
	}

	systemMetrics := metrics.NewSystemMetrics(cfg.DataDir)

	s := &Server{
		config:         cfg,
		db:             conn,
		kv:             kv,
		settings:       settingsManager,
		orders:         metadata.NewOrderStore(kv, logger),
		authManager:    auth.NewManager(cfg.Auth, logger),
		metricsManager: metrics.NewManager(cfg.Metrics, systemMetrics, logger),
		systemMetrics:  systemMetrics,
		logger:         logger,
		startTime:      time.Now(),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// Handler returns the complete middleware chain around the router
func (s *Server) Handler() http.Handler {
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(s.logger),
		handlers.PrintRecoveryStack(true),
	)(s.router)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"address":     s.config.Listen,
		"data_dir":    s.config.DataDir,
		"order_store": s.config.OrderStore.Engine,
		"auth":        s.authManager.Enabled(),
		"tls":         s.config.EnableTLS,
	}).Info("Starting checkout fields server")

	if err := s.metricsManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start metrics: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.EnableTLS {
			err = s.httpServer.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			s.close()
			return fmt.Errorf("http server error: %w", err)
		}
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	s.logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to shutdown HTTP server")
		shutdownErr = err
	}

	s.close()
	return shutdownErr
}

// close releases the stores. Errors are logged since nothing can act on them.
func (s *Server) close() {
	if s.metricsManager.IsHealthy() {
		s.metricsManager.Stop()
	}
	s.authManager.Close()

	if err := s.kv.Close(); err != nil {
		s.logger.WithError(err).Error("Failed to close order metadata store")
	}
	if err := s.db.Close(); err != nil {
		s.logger.WithError(err).Error("Failed to close settings database")
	}
}

// Close releases resources of a server that was never started
func (s *Server) Close() {
	s.close()
}

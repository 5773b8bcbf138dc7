package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	shutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shutdown_duration_seconds",
		Help:    "Time taken to shut down gracefully",
		Buckets: []float64{1, 5, 10, 15, 20, 30},
	})

	shutdownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutdown_errors_total",
		Help: "Shutdown errors by component",
	}, []string{"component"})
)

// Func shuts down one component
type Func func(context.Context) error

type component struct {
	name string
	fn   Func
}

// Manager coordinates graceful shutdown. Components shut down in reverse
// registration order, so the HTTP server registered after the database pool
// stops accepting requests before the pool closes.
type Manager struct {
	logger     *zap.Logger
	mu         sync.Mutex
	components []component
	timeout    time.Duration
}

// NewManager creates a shutdown manager with an overall timeout
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{logger: logger, timeout: timeout}
}

// Register adds a component. Later registrations shut down first.
func (m *Manager) Register(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component{name: name, fn: fn})
}

// RegisterCloser registers a component exposing Close() error
func (m *Manager) RegisterCloser(name string, closer interface{ Close() error }) {
	m.Register(name, func(ctx context.Context) error {
		return closer.Close()
	})
}

// RegisterNoErr registers a component whose teardown cannot fail
func (m *Manager) RegisterNoErr(name string, fn func()) {
	m.Register(name, func(ctx context.Context) error {
		fn()
		return nil
	})
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then runs the shutdown
func (m *Manager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	m.logger.Info("shutdown signal received",
		zap.String("signal", sig.String()),
		zap.Duration("timeout", m.timeout),
	)
	m.Shutdown()
}

// Shutdown runs all registered teardowns in reverse order under the
// manager's timeout.
func (m *Manager) Shutdown() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mu.Lock()
	components := make([]component, len(m.components))
	copy(components, m.components)
	m.mu.Unlock()

	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if ctx.Err() != nil {
			m.logger.Warn("shutdown timeout exceeded",
				zap.String("skipped_component", c.name))
			shutdownErrors.WithLabelValues(c.name).Inc()
			continue
		}
		if err := c.fn(ctx); err != nil {
			shutdownErrors.WithLabelValues(c.name).Inc()
			m.logger.Error("component shutdown failed",
				zap.String("component", c.name),
				zap.Error(err),
			)
			continue
		}
		m.logger.Info("component shut down",
			zap.String("component", c.name))
	}

	shutdownDuration.Observe(time.Since(start).Seconds())
	m.logger.Info("graceful shutdown finished",
		zap.Duration("elapsed", time.Since(start)))
}

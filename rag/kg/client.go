package kg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smallnest/docrag/log"
	"github.com/smallnest/docrag/rag"
	"github.com/smallnest/docrag/rag/store"
	"github.com/sony/gobreaker"
)

// Dialer opens a graph backend.
type Dialer func(ctx context.Context) (rag.TripleGraph, error)

// URLDialer dials the backend named by a graph URL such as
// falkordb://localhost:6379/docrag or memory://.
func URLDialer(url string) Dialer {
	return func(ctx context.Context) (rag.TripleGraph, error) {
		return store.NewTripleGraph(url)
	}
}

// GraphClient owns the connection to the graph backend. The backend is
// dialed and probed on first use and memoized once the probe succeeds.
type GraphClient struct {
	dial    Dialer
	breaker *gobreaker.CircuitBreaker
	logger  log.Logger

	mu    sync.Mutex
	graph rag.TripleGraph
}

// ClientOption configures the GraphClient
type ClientOption func(*clientSettings)

type clientSettings struct {
	breakerTimeout time.Duration
	failures       uint32
	logger         log.Logger
}

// WithBreakerTimeout sets how long the breaker stays open after tripping.
func WithBreakerTimeout(d time.Duration) ClientOption {
	return func(s *clientSettings) {
		s.breakerTimeout = d
	}
}

// WithBreakerFailures sets the consecutive dial failures that open the breaker.
func WithBreakerFailures(n uint32) ClientOption {
	return func(s *clientSettings) {
		s.failures = n
	}
}

// WithClientLogger sets the logger
func WithClientLogger(logger log.Logger) ClientOption {
	return func(s *clientSettings) {
		s.logger = logger
	}
}

// NewGraphClient creates a client that connects lazily through dial.
func NewGraphClient(dial Dialer, opts ...ClientOption) *GraphClient {
	s := &clientSettings{
		breakerTimeout: 30 * time.Second,
		failures:       3,
	}
	for _, opt := range opts {
		opt(s)
	}
	logger := log.OrDefault(s.logger)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "graph",
		Timeout: s.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &GraphClient{dial: dial, breaker: breaker, logger: logger}
}

// Graph returns the connected backend. Errors wrap rag.ErrGraphUnavailable.
func (c *GraphClient) Graph(ctx context.Context) (rag.TripleGraph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.graph != nil {
		return c.graph, nil
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		g, err := c.dial(ctx)
		if err != nil {
			return nil, err
		}
		if err := g.Ping(ctx); err != nil {
			g.Close()
			return nil, err
		}
		return g, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rag.ErrGraphUnavailable, err)
	}

	c.graph = res.(rag.TripleGraph)
	c.logger.Info("connected to graph store")
	return c.graph, nil
}

// Health connects if needed and probes the backend.
func (c *GraphClient) Health(ctx context.Context) error {
	g, err := c.Graph(ctx)
	if err != nil {
		return err
	}
	if err := g.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", rag.ErrGraphUnavailable, err)
	}
	return nil
}

// Close releases the backend connection, if any.
func (c *GraphClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.graph == nil {
		return nil
	}
	err := c.graph.Close()
	c.graph = nil
	return err
}

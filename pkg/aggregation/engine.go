package aggregation

import (
	"io"

	"github.com/charmbracelet/log"

	"github.com/vercel/turborepo-sub010/pkg/observability"
)

// DefaultMaxUppers is the number of uppers a leaf may have before it is
// promoted to an aggregator of its own.
const DefaultMaxUppers = 4

// Engine runs aggregation operations against a host [Context].
// It holds no per-node state and is safe for concurrent use by any number of
// goroutines, provided the host's guards are real locks.
type Engine[I comparable, D, C any] struct {
	ctx       Context[I, D, C]
	maxUppers int
	logger    *log.Logger
	hooks     observability.AggregationHooks
}

// Option configures an [Engine].
type Option func(*config)

type config struct {
	maxUppers int
	logger    *log.Logger
	hooks     observability.AggregationHooks
}

// WithMaxUppers sets how many uppers a leaf may collect before it is
// promoted. Zero or a negative value disables the heuristic.
func WithMaxUppers(n int) Option {
	return func(c *config) { c.maxUppers = n }
}

// WithLogger sets the logger used for debug output about promotions and
// rebalancing. The default discards everything.
func WithLogger(l *log.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithHooks sets the hooks the engine reports to instead of the globally
// registered [observability.Aggregation] hooks.
func WithHooks(h observability.AggregationHooks) Option {
	return func(c *config) { c.hooks = h }
}

// New creates an engine for ctx.
func New[I comparable, D, C any](ctx Context[I, D, C], opts ...Option) *Engine[I, D, C] {
	cfg := config{maxUppers: DefaultMaxUppers}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.New(io.Discard)
	}
	return &Engine[I, D, C]{
		ctx:       ctx,
		maxUppers: cfg.maxUppers,
		logger:    cfg.logger,
		hooks:     cfg.hooks,
	}
}

// Context returns the host context the engine operates on.
func (e *Engine[I, D, C]) Context() Context[I, D, C] { return e.ctx }

func (e *Engine[I, D, C]) observe() observability.AggregationHooks {
	if e.hooks != nil {
		return e.hooks
	}
	return observability.Aggregation()
}

// Inspect returns a copy of the node's aggregation state.
func (e *Engine[I, D, C]) Inspect(id I) NodeInfo[I] {
	g := e.ctx.Node(id)
	defer g.Unlock()
	return g.State().info(id, e.ctx.InProgressCounter(id).Load())
}

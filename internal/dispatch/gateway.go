package dispatch

import (
	"github.com/Amund211/fetchlight/internal/domain"
)

// Callback receives the outcome of an image fetch: either an image or an error
type Callback func(image *domain.Image, err error)

// Executor runs tasks on a specific execution context, e.g. a UI goroutine.
//
// Execute must not block waiting for the task to run.
type Executor interface {
	Execute(task func())
}

type Option func(g *Gateway)

// WithExecutor makes the gateway hop onto executor before invoking callbacks
func WithExecutor(executor Executor) Option {
	return func(g *Gateway) {
		g.executor = executor
	}
}

// Gateway delivers fetch outcomes to callbacks.
//
// Without an executor callbacks run inline on the delivering goroutine.
type Gateway struct {
	executor Executor
}

func NewGateway(opts ...Option) *Gateway {
	g := &Gateway{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Deliver(image *domain.Image, err error, callback Callback) {
	if callback == nil {
		return
	}

	if g.executor == nil {
		callback(image, err)
		return
	}

	g.executor.Execute(func() {
		callback(image, err)
	})
}

// Package engine runs the pipeline worker as a set of long lived modules over
// a shared event bus. Module lifetime is bound to engine lifetime; each module
// runs in its own goroutine and is restarted on failure.
package engine

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
)

// Engine manages shared resources and execution lifecycle of each module. It
// maintains a shared event bus.
type Engine struct {
	// Modules that will be run in this Engine. Each Module runs in a separate
	// goroutine.
	Modules []Module

	// Root context this engine is running on.
	ctx context.Context

	// Cancel function for the root context, used for graceful shutdown.
	cancel context.CancelFunc

	// The EventBus this engine manages. A golang channel implementation for
	// now; the jobs table stays the durable source of truth, so a broker
	// backed bus can be substituted without changing consumers.
	EventBus *gochannel.GoChannel
}

func NewEngine(ms []Module, ctx context.Context, cancel context.CancelFunc, e *gochannel.GoChannel) *Engine {
	return &Engine{
		Modules:  ms,
		ctx:      ctx,
		cancel:   cancel,
		EventBus: e,
	}
}

// Execute all Engine modules and wait until all modules finish execution.
func (e *Engine) Run() {
	var wg sync.WaitGroup

	for idx := range e.Modules {
		wg.Add(1)
		go func(index int) {
			Logger.Log.Infof("start engine module %s", e.Modules[index].Name())
			defer wg.Done()
			RunModuleWithGracefulRestart(e.ctx, &e.Modules[index])
			Logger.Log.Infof("module %s finished execution", e.Modules[index].Name())
		}(idx)
	}

	wg.Wait()
}

func (e *Engine) Shutdown() {
	Logger.Log.Infoln("starting graceful shutdown process, goodbye!")
	e.cancel()
}

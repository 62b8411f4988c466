package engine

import (
	"context"
	"time"

	Logger "github.com/vibecheckhq/vibecheck/utils/log"
)

const (
	// Seconds to wait before restarting a crashed module.
	GracefulRetryDelay = 3
)

// RunModuleWithGracefulRestart keeps a module running until it exits cleanly
// or the context is canceled.
func RunModuleWithGracefulRestart(ctx context.Context, module *Module) {
	for {
		err := (*module).RunModule(ctx)
		if err == nil {
			return
		}
		Logger.Log.Errorf(
			"module %s exited with error %v, retry in %d seconds",
			(*module).Name(), err, GracefulRetryDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(GracefulRetryDelay * time.Second):
		}
	}
}

type Module interface {
	// RunModule contains the customized logic of the module. It takes in a
	// context object by which its lifecycle is managed. Return error if
	// encountered any error during execution.
	RunModule(ctx context.Context) error

	// Name uniquely identifies the module instance. If there are multiple
	// instances of the same module, each instance should have a unique name.
	Name() string
}

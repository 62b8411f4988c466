package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingModule struct {
	name string
	runs int32
	// Errors to return run by run; nil exits the module.
	errs []error
}

func (m *countingModule) RunModule(ctx context.Context) error {
	n := atomic.AddInt32(&m.runs, 1)
	if int(n) <= len(m.errs) {
		return m.errs[n-1]
	}
	return nil
}

func (m *countingModule) Name() string { return m.name }

func TestEngineRunsModulesUntilShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})

	blocking := &blockingModule{name: "blocker"}
	e := NewEngine([]Module{blocking}, ctx, cancel, bus)

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()

	e.Shutdown()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after shutdown")
	}
}

type blockingModule struct {
	name string
}

func (m *blockingModule) RunModule(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (m *blockingModule) Name() string { return m.name }

func TestRunModuleWithGracefulRestart(t *testing.T) {
	m := &countingModule{name: "flaky"}
	var module Module = m

	RunModuleWithGracefulRestart(context.Background(), &module)
	assert.Equal(t, int32(1), atomic.LoadInt32(&m.runs))
}

func TestRunModuleWithGracefulRestartStopsOnCancel(t *testing.T) {
	m := &countingModule{name: "failing", errs: []error{errors.New("boom"), errors.New("boom")}}
	var module Module = m

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		RunModuleWithGracefulRestart(ctx, &module)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("module kept restarting after cancellation")
	}
	require.GreaterOrEqual(t, atomic.LoadInt32(&m.runs), int32(1))
}

func TestTopicForKind(t *testing.T) {
	assert.Equal(t, "job.scrape", TopicForKind("scrape"))
}

package hsa

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrEnvReleased is returned by Release when it is not paired with an Acquire.
var ErrEnvReleased = errors.New("hsa: runtime environment released more often than acquired")

// Env owns the process-wide runtime on behalf of every session using it.
// The first Acquire initializes the runtime and the last Release shuts it
// down, so several sessions may coexist without double init or shutdown.
type Env struct {
	rt   Runtime
	log  *zap.Logger
	mu   sync.Mutex
	refs int
}

// NewEnv wraps rt. The runtime is not initialized until the first Acquire.
func NewEnv(rt Runtime, log *zap.Logger) *Env {
	if log == nil {
		log = zap.NewNop()
	}
	return &Env{rt: rt, log: log.Named("env")}
}

// Runtime returns the wrapped runtime.
func (e *Env) Runtime() Runtime {
	return e.rt
}

// Acquire takes a reference, initializing the runtime on the first one.
func (e *Env) Acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.refs == 0 {
		if err := e.rt.Init(); err != nil {
			return Fail(KindEnvironment, "hsa_init", err)
		}
		e.log.Debug("runtime initialized", zap.String("backend", e.rt.Name()))
	}
	e.refs++
	return nil
}

// Release drops a reference, shutting the runtime down with the last one.
func (e *Env) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.refs == 0 {
		return ErrEnvReleased
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}
	if err := e.rt.ShutDown(); err != nil {
		return Fail(KindEnvironment, "hsa_shut_down", err)
	}
	e.log.Debug("runtime shut down", zap.String("backend", e.rt.Name()))
	return nil
}

// Refs returns the number of outstanding references.
func (e *Env) Refs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refs
}

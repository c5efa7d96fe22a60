package tsodbc

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
)

// RuntimeWorkers is the size of the shared pool that runs asynchronous page
// requests and their callbacks.
var RuntimeWorkers = 4 * runtime.GOMAXPROCS(0)

// runtimeDrainTimeout bounds how long the last Release waits for pool
// workers to exit. A reboot must not overlap a draining pool.
const runtimeDrainTimeout = time.Second

var (
	runtimeMu   sync.Mutex
	runtimeRefs atomic.Int32
	runtimePool *ants.Pool
)

// RuntimeHandle is one reference to the process-wide async runtime. The
// runtime starts with the first handle and is released with the last one;
// a later AcquireRuntime boots it again.
type RuntimeHandle struct {
	released atomic.Bool
}

// AcquireRuntime takes a reference on the shared runtime, starting it if no
// other reference is alive.
func AcquireRuntime() (*RuntimeHandle, error) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeRefs.Load() == 0 {
		switch {
		case runtimePool == nil:
			pool, err := ants.NewPool(RuntimeWorkers,
				ants.WithNonblocking(true),
				ants.WithPanicHandler(func(v any) {
					log.Error().Interface("panic", v).Msg("async query task panicked")
				}))
			if err != nil {
				return nil, fmt.Errorf("failed to start async runtime: %w", err)
			}
			runtimePool = pool
		case runtimePool.IsClosed():
			runtimePool.Reboot()
		}
		log.Debug().Int("workers", RuntimeWorkers).Msg("async runtime started")
	}
	runtimeRefs.Add(1)
	return &RuntimeHandle{}, nil
}

// Release drops the reference. Releasing twice is a no-op.
func (h *RuntimeHandle) Release() {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return
	}
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeRefs.Add(-1) == 0 && runtimePool != nil {
		if err := runtimePool.ReleaseTimeout(runtimeDrainTimeout); err != nil {
			log.Debug().Err(err).Msg("async runtime workers still draining")
		}
		log.Debug().Msg("async runtime released")
	}
}

// Submit runs task on the shared pool. When the pool is saturated or no
// longer running, the task gets its own goroutine instead.
func (h *RuntimeHandle) Submit(task func()) {
	runtimeMu.Lock()
	pool := runtimePool
	runtimeMu.Unlock()

	if pool == nil || h == nil || h.released.Load() {
		go task()
		return
	}
	if err := pool.Submit(task); err != nil {
		go task()
	}
}

// RuntimeRefs reports the number of live runtime handles.
func RuntimeRefs() int {
	return int(runtimeRefs.Load())
}

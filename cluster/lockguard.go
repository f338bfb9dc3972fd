package cluster

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// deadlockWatchdog bounds how long a guardedMutex will wait silently
// before logging a diagnostic naming the stuck lock site. Go has no
// built-in per-mutex deadlock detector, so this approximates the source's
// "detect a dead holder, emit a diagnostic, re-raise" contract with a
// timer: the goroutine keeps trying to acquire the lock after logging (the
// lock is still correct to wait for), but the diagnostic and the panic
// give an operator something to act on instead of an silent stall.
const deadlockWatchdog = 30 * time.Second

// guardedMutex is a sync.Mutex with a named lock site, used for the two
// cells spec.md §5 calls out by name: the pipeline cell and each
// pipeline-generation's inner state cell.
type guardedMutex struct {
	mu     sync.Mutex
	site   string
	logger hclog.Logger
}

func newGuardedMutex(site string, logger hclog.Logger) *guardedMutex {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &guardedMutex{site: site, logger: logger}
}

// Lock acquires the underlying mutex, panicking if the acquisition is
// still outstanding after deadlockWatchdog — after logging a diagnostic
// identifying the lock site, per spec.md §5 and §7.
func (g *guardedMutex) Lock() {
	done := make(chan struct{})
	go func() {
		g.mu.Lock()
		close(done)
	}()
	select {
	case <-done:
		return
	case <-time.After(deadlockWatchdog):
		g.logger.Error("possible deadlock", "lock_site", g.site, "waited", deadlockWatchdog)
		panic(fmt.Sprintf("hedis/cluster: lock %q held past deadlock watchdog (%s)", g.site, deadlockWatchdog))
	}
}

func (g *guardedMutex) Unlock() {
	g.mu.Unlock()
}

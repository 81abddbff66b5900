package workspace

import (
	"sync"

	"github.com/gofrs/flock"
)

// pathLocks is a process-wide mapping from absolute path to a named lock,
// initialized on first use, ensuring write serialization without a central
// queue. An in-process mutex guards same-process races; a flock.Flock
// additionally guards against other processes writing the same workspace
// (e.g. a second conductor instance against the same root).
type pathLocks struct {
	mu    sync.Mutex
	byPath map[string]*pathLock
}

type pathLock struct {
	mu    sync.Mutex
	flock *flock.Flock
}

func newPathLocks() *pathLocks {
	return &pathLocks{byPath: make(map[string]*pathLock)}
}

func (p *pathLocks) get(absPath string) *pathLock {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.byPath[absPath]; ok {
		return l
	}
	l := &pathLock{flock: flock.New(absPath + ".conductor.lock")}
	p.byPath[absPath] = l
	return l
}

// acquire locks the in-process mutex and the cross-process flock, and
// returns a release function. The flock is best-effort: if it cannot be
// taken (e.g. the lock file's directory is read-only), the in-process
// mutex alone still serializes writes within this instance.
func (p *pathLocks) acquire(absPath string) func() {
	l := p.get(absPath)
	l.mu.Lock()
	locked, _ := l.flock.TryLock()
	return func() {
		if locked {
			_ = l.flock.Unlock()
		}
		l.mu.Unlock()
	}
}

package pool

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultPoolSize is the worker count used when a pool is created
// without an explicit size.
const DefaultPoolSize = 10

// Key names a worker pool. Keys are free-form so callers can create
// short-lived pools, for example one per asset download.
type Key string

// Task is a unit of work scheduled onto a pool.
type Task func() (interface{}, error)

// Handle tracks one scheduled task. The result becomes available once
// the task ran; a panic inside the task is captured as an error instead
// of taking the worker down.
type Handle struct {
	done chan struct{}

	mu        sync.Mutex
	result    interface{}
	err       error
	cancelled bool
	started   bool
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// resolvedHandle wraps an already-computed result, used for foreground
// execution.
func resolvedHandle(result interface{}, err error) *Handle {
	h := newHandle()
	h.resolve(result, err)
	return h
}

func (h *Handle) resolve(result interface{}, err error) {
	h.mu.Lock()
	h.result = result
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Done reports whether the task finished (or was skipped after cancel).
func (h *Handle) Done() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task finished or the timeout elapsed. A zero or
// negative timeout waits forever. Returns false on timeout.
func (h *Handle) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-h.done
		return true
	}
	select {
	case <-h.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Result returns the task's outcome. It blocks until the task finished.
func (h *Handle) Result() (interface{}, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Cancel prevents the task from starting. A task that already started
// keeps running; cooperative cancellation inside the task is the
// caller's business. Returns true when the task will not run.
func (h *Handle) Cancel() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return false
	}
	if !h.cancelled {
		h.cancelled = true
		h.result = nil
		h.err = ErrCancelled
		close(h.done)
	}
	return true
}

// Cancelled reports whether the task was cancelled before starting.
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// markStarted flips the handle into the running state. Returns false
// when the task was cancelled in the meantime.
func (h *Handle) markStarted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return false
	}
	h.started = true
	return true
}

// ErrCancelled is reported by handles whose task was cancelled before
// it started.
var ErrCancelled = fmt.Errorf("task cancelled before start")

type job struct {
	task   Task
	handle *Handle
}

// Pool is a fixed-size worker pool. The size is set at creation and
// never changes.
type Pool struct {
	key  Key
	size int
	jobs chan job
	wg   sync.WaitGroup
}

func newPool(key Key, size int) *Pool {
	p := &Pool{
		key:  key,
		size: size,
		jobs: make(chan job, 256),
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	log.Debugf("Started pool %q with %d workers", key, size)
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	if !j.handle.markStarted() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Panic in task on pool %q: %v", p.key, r)
			j.handle.resolve(nil, fmt.Errorf("task panicked: %v", r))
		}
	}()
	result, err := j.task()
	j.handle.resolve(result, err)
}

// Manager owns the named pools. Pools are created lazily on first use
// and keep their initial size for their whole lifetime.
type Manager struct {
	mu    sync.Mutex
	pools map[Key]*Pool
}

func NewManager() *Manager {
	return &Manager{pools: map[Key]*Pool{}}
}

// getOrCreate returns the pool for key, creating it with maxThreads
// workers if it does not exist yet. A differing maxThreads on an
// existing pool is ignored.
func (m *Manager) getOrCreate(key Key, maxThreads int) *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pools[key]; ok {
		if maxThreads > 0 && maxThreads != p.size {
			log.Debugf("Pool %q already sized %d, ignoring requested size %d", key, p.size, maxThreads)
		}
		return p
	}
	if maxThreads <= 0 {
		maxThreads = DefaultPoolSize
	}
	p := newPool(key, maxThreads)
	m.pools[key] = p
	return p
}

// Schedule queues task on the pool named key, creating the pool on
// first use. With foreground the task runs immediately on the calling
// goroutine and the returned handle is already resolved.
func (m *Manager) Schedule(key Key, maxThreads int, foreground bool, task Task) *Handle {
	if foreground {
		return resolvedHandle(runCaptured(task))
	}

	p := m.getOrCreate(key, maxThreads)
	h := newHandle()
	p.jobs <- job{task: task, handle: h}
	return h
}

func runCaptured(task Task) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task()
}

// Shutdown stops the pool named key. No further tasks can be scheduled
// on it; already queued tasks still run. With wait the call blocks until
// the workers drained the queue.
func (m *Manager) Shutdown(key Key, wait bool) {
	m.mu.Lock()
	p, ok := m.pools[key]
	if ok {
		delete(m.pools, key)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	close(p.jobs)
	if wait {
		p.wg.Wait()
	}
	log.Debugf("Shut down pool %q", key)
}

// ShutdownAll stops every pool.
func (m *Manager) ShutdownAll(wait bool) {
	m.mu.Lock()
	pools := make([]*Pool, 0, len(m.pools))
	for key, p := range m.pools {
		pools = append(pools, p)
		delete(m.pools, key)
	}
	m.mu.Unlock()

	for _, p := range pools {
		close(p.jobs)
	}
	if wait {
		for _, p := range pools {
			p.wg.Wait()
		}
	}
}

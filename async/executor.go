package async

import (
	"errors"
	"sync"
)

// ErrRejected is returned by an Executor that no longer accepts tasks.
var ErrRejected = errors.New("async: executor rejected task")

// Executor runs tasks. Execute must not block for the duration of task
// unless the executor is Inline.
type Executor interface {
	Execute(task func()) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task func()) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(task func()) error {
	return f(task)
}

// Inline runs every task on the calling goroutine.
var Inline Executor = ExecutorFunc(func(task func()) error {
	task()
	return nil
})

// Spawn runs every task on a new goroutine.
var Spawn Executor = ExecutorFunc(func(task func()) error {
	go task()
	return nil
})

// Pool is a fixed set of worker goroutines draining a task queue.
//
// Pool is safe for concurrent use. Close stops accepting tasks, lets the
// workers drain what is queued and waits for them.
type Pool struct {
	tasks  chan func()
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*poolConfig)

type poolConfig struct {
	workers int
	queue   int
}

// WithWorkers sets the number of worker goroutines (default 4).
func WithWorkers(n int) PoolOption {
	return func(c *poolConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueue sets the task queue capacity (default 64). Execute rejects
// tasks while the queue is full.
func WithQueue(n int) PoolOption {
	return func(c *poolConfig) {
		if n >= 0 {
			c.queue = n
		}
	}
}

// NewPool starts a worker pool.
func NewPool(options ...PoolOption) *Pool {
	config := poolConfig{workers: 4, queue: 64}
	for _, option := range options {
		option(&config)
	}

	p := &Pool{tasks: make(chan func(), config.queue)}
	for i := 0; i < config.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Execute queues task without blocking. It returns ErrRejected after
// Close or when the queue is full.
func (p *Pool) Execute(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrRejected
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrRejected
	}
}

// Close stops the pool and waits for queued tasks to finish. It is safe to
// call more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

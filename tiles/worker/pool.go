// Package worker runs tasks on a fixed number of pull loops sharing one
// queue whose order is recomputed every time a task is taken.
package worker

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("worker pool closed")

type Task struct {
	Ctx context.Context
	// Work runs on a worker. Its context is Ctx bounded by the pool timeout.
	Work func(ctx context.Context) error
	// Priority is evaluated when the queue is ordered; lower runs first.
	Priority func() float64
	// Stale is checked right after the task is taken. A stale task is
	// handed to Drop and never occupies a worker slot.
	Stale func() bool
	Drop  func()
	// Label names the task in logs.
	Label string
}

type Stats struct {
	Queued   int
	InFlight int
	Peak     int
	Dropped  int
	// Detached counts tasks whose Ctx was cancelled while Work was still
	// running. They no longer hold a worker.
	Detached int
}

type Options struct {
	Workers int
	// Timeout bounds a single task. Zero disables it.
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

type Pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Task
	closed   bool
	inFlight int
	peak     int
	dropped  int
	detached int

	timeout time.Duration
	log     logrus.FieldLogger
	wg      sync.WaitGroup
}

func NewPool(opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	p := &Pool{
		timeout: opts.Timeout,
		log:     opts.Logger,
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(opts.Workers)
	for range opts.Workers {
		go p.worker()
	}
	return p
}

// Submit queues a task. It never blocks.
func (p *Pool) Submit(task Task) error {
	if task.Ctx == nil {
		task.Ctx = context.Background()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.queue = append(p.queue, task)
	p.cond.Signal()
	return nil
}

// Reset discards every queued task without running Drop and returns how
// many were discarded. Running tasks are not affected.
func (p *Pool) Reset() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.queue)
	p.queue = nil
	return n
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Queued: len(p.queue), InFlight: p.inFlight, Peak: p.peak, Dropped: p.dropped, Detached: p.detached}
}

// Shutdown stops the workers once their current task returns. Queued tasks
// are discarded. Detached tasks are not waited for.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.queue = nil
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		task, ok := p.next()
		if !ok {
			return
		}
		if task.Ctx.Err() != nil || (task.Stale != nil && task.Stale()) {
			p.mu.Lock()
			p.dropped++
			p.mu.Unlock()
			if task.Drop != nil {
				task.Drop()
			}
			continue
		}
		p.run(task)
	}
}

// next blocks for a task and takes the one with the lowest priority.
func (p *Pool) next() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return Task{}, false
	}
	p.order()
	task := p.queue[0]
	p.queue[0] = Task{}
	p.queue = p.queue[1:]
	return task, true
}

func (p *Pool) order() {
	if len(p.queue) < 2 {
		return
	}
	type keyed struct {
		prio float64
		task Task
	}
	ks := make([]keyed, len(p.queue))
	for i, t := range p.queue {
		ks[i].task = t
		if t.Priority != nil {
			ks[i].prio = t.Priority()
		}
	}
	slices.SortFunc(ks, func(a, b keyed) int {
		switch {
		case a.prio < b.prio:
			return -1
		case a.prio > b.prio:
			return 1
		}
		return 0
	})
	for i := range ks {
		p.queue[i] = ks[i].task
	}
}

func (p *Pool) run(task Task) {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.peak {
		p.peak = p.inFlight
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}()

	ctx := task.Ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- task.Work(ctx) }()
	var err error
	select {
	case err = <-done:
	case <-task.Ctx.Done():
		p.detach(task, done)
		return
	}
	if err != nil {
		p.log.WithError(err).WithField("task", task.Label).Debug("worker: task failed")
		return
	}
	p.log.WithField("task", task.Label).WithField("took", time.Since(start)).Trace("worker: task done")
}

// detach frees the worker of a cancelled task. Work keeps running until it
// returns; its result is dropped.
func (p *Pool) detach(task Task, done <-chan error) {
	p.mu.Lock()
	p.detached++
	p.mu.Unlock()
	p.log.WithField("task", task.Label).Debug("worker: cancelled task detached")
	go func() {
		<-done
		p.mu.Lock()
		p.detached--
		p.mu.Unlock()
	}()
}

package sandbox

import (
	"sync"
)

// loop runs jobs one at a time on a single goroutine. It is the only place
// the VM is touched after construction.
type loop struct {
	mu      sync.Mutex
	jobs    []func()
	stopped bool

	wake chan struct{}
	quit chan struct{}
}

func newLoop() *loop {
	return &loop{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
}

// submit enqueues a job. It never blocks and returns false once stopped.
func (l *loop) submit(job func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.jobs = append(l.jobs, job)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// run processes jobs until stop. guard wraps every job.
func (l *loop) run(guard func(func())) {
	for {
		select {
		case <-l.quit:
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if l.stopped || len(l.jobs) == 0 {
				l.mu.Unlock()
				break
			}
			job := l.jobs[0]
			l.jobs[0] = nil
			l.jobs = l.jobs[1:]
			l.mu.Unlock()

			guard(job)
		}
	}
}

// stop discards pending jobs and ends run after the current job.
func (l *loop) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	l.jobs = nil
	close(l.quit)
}

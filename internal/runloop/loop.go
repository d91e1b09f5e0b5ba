// Package runloop provides the single-threaded cooperative task loop the
// page engine runs on.
//
// Every state mutation in the engine happens as a task on one loop, so no
// component needs locks around page state and controller acknowledgments
// are never nested inside the call that triggered the original send.
// Delayed tasks (deferred page capture) are scheduled here too; they may
// legitimately outlive the navigation they were scheduled for, so their
// safety comes from state checks at fire time, not from cancellation.
package runloop

import (
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler posts tasks onto a page's run loop. The page engine depends on
// this interface; tests substitute a manual scheduler.
type Scheduler interface {
	// Post enqueues a task for execution on the loop. Dropped if the
	// loop has stopped.
	Post(task func())

	// PostDelayed enqueues a task after the given delay.
	PostDelayed(delay time.Duration, task func())
}

// Loop is a Scheduler backed by a single goroutine draining a task queue.
type Loop struct {
	tasks chan func()

	started  atomic.Bool
	stopOnce sync.Once
	quit     chan struct{}
	done     chan struct{}

	timerMu sync.Mutex
	timers  map[*time.Timer]struct{}
}

// New creates a loop with the given queue depth. The loop is not running
// until Start is called.
func New(depth int) *Loop {
	if depth <= 0 {
		depth = 64
	}
	return &Loop{
		tasks:  make(chan func(), depth),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Start launches the loop goroutine. Calling it again is a no-op.
func (l *Loop) Start() {
	if l.started.CompareAndSwap(false, true) {
		go l.run()
	}
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case task := <-l.tasks:
			task()
		case <-l.quit:
			// Drain whatever was already queued so posted work is not
			// silently lost on shutdown.
			for {
				select {
				case task := <-l.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// Post enqueues a task. If the loop has stopped, the task is dropped;
// shutdown races are expected during page teardown.
func (l *Loop) Post(task func()) {
	select {
	case <-l.quit:
	case l.tasks <- task:
	}
}

// PostDelayed schedules a task after delay. The timer fires on a runtime
// goroutine and reposts onto the loop, keeping execution single-threaded.
func (l *Loop) PostDelayed(delay time.Duration, task func()) {
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		l.timerMu.Lock()
		delete(l.timers, timer)
		l.timerMu.Unlock()
		l.Post(task)
	})

	l.timerMu.Lock()
	select {
	case <-l.quit:
		// Stopped between the caller's check and now; don't leave a
		// timer running against a dead loop.
		timer.Stop()
	default:
		l.timers[timer] = struct{}{}
	}
	l.timerMu.Unlock()
}

// Stop shuts the loop down, stops outstanding timers and waits for the
// loop goroutine to finish draining queued tasks.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.quit)

		l.timerMu.Lock()
		for timer := range l.timers {
			timer.Stop()
		}
		l.timers = map[*time.Timer]struct{}{}
		l.timerMu.Unlock()
	})
	// A loop that never started has no goroutine to wait for.
	if l.started.Load() {
		<-l.done
	}
}

// internal/runloop/loop.go
package runloop

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/google/uuid"
)

// ErrClosed is returned by Post once the loop goroutine has exited.
var ErrClosed = errors.New("runloop: closed")

// Task is one unit of work executed on the loop thread.
type Task func()

// Loop is a single-worker FIFO task queue.
// The worker goroutine is locked to its own OS thread for its whole life,
// so every task posted to one Loop runs on the same thread, in post order.
type Loop struct {
	name    string
	session string
	logger  *slog.Logger
	onPanic func(any)

	mu       sync.Mutex
	inbox    *queue.Queue // of Task
	draining bool
	closed   bool

	wake chan struct{}
	done chan struct{}

	tid atomic.Int64
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for lifecycle and panic reports.
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// WithPanicHandler is called (on the loop thread) with the recovered value
// of any task that panics. The loop keeps running afterwards.
func WithPanicHandler(fn func(any)) Option {
	return func(lp *Loop) {
		lp.onPanic = fn
	}
}

// New starts a loop. The worker exists until Drain is called and the
// inbox runs empty.
func New(name string, opts ...Option) *Loop {
	l := &Loop{
		name:    name,
		session: uuid.NewString(),
		logger:  slog.Default(),
		inbox:   queue.New(),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("loop", name, "session", l.session)

	go l.run()
	return l
}

// Name returns the loop name.
func (l *Loop) Name() string { return l.name }

// Session returns the unique id of this loop instance.
func (l *Loop) Session() string { return l.session }

// Post appends a task to the inbox. It never blocks on task execution.
func (l *Loop) Post(t Task) error {
	if t == nil {
		return errors.New("runloop: nil task")
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.inbox.Add(t)
	l.mu.Unlock()

	l.signal()
	return nil
}

// Drain asks the worker to exit as soon as the inbox is empty.
// Tasks already queued, and tasks posted before the inbox empties, still run.
func (l *Loop) Drain() {
	l.mu.Lock()
	l.draining = true
	l.mu.Unlock()
	l.signal()
}

// Resume cancels a pending Drain. It has no effect once the loop closed.
func (l *Loop) Resume() {
	l.mu.Lock()
	l.draining = false
	l.mu.Unlock()
}

// Closed reports whether the worker has exited.
func (l *Loop) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Done is closed when the worker exits.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Pending returns the number of queued tasks not yet started.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inbox.Length()
}

// Current reports whether the caller is running on this loop's thread.
// Always false on platforms without a thread id.
func (l *Loop) Current() bool {
	tid := l.tid.Load()
	return tid != 0 && int64(threadID()) == tid
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run() {
	// The thread is never unlocked: it dies with the goroutine.
	runtime.LockOSThread()
	l.tid.Store(int64(threadID()))
	l.logger.Debug("runloop started")

	for {
		t, ok := l.next()
		if !ok {
			l.logger.Debug("runloop stopped")
			// The thread exits with us and its id may be reused.
			l.tid.Store(0)
			close(l.done)
			return
		}
		l.execute(t)
	}
}

// next blocks until a task is available or the loop is drained.
func (l *Loop) next() (Task, bool) {
	l.mu.Lock()
	for l.inbox.Length() == 0 {
		if l.draining {
			l.closed = true
			l.mu.Unlock()
			return nil, false
		}
		l.mu.Unlock()
		<-l.wake
		l.mu.Lock()
	}
	t := l.inbox.Remove().(Task)
	l.mu.Unlock()
	return t, true
}

func (l *Loop) execute(t Task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("runloop: task panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			if l.onPanic != nil {
				l.onPanic(r)
			}
		}
	}()
	t()
}

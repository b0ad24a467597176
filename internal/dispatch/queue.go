package dispatch

import "sync"

// SerialQueue is an Executor that runs tasks one at a time, in submission
// order, on a single goroutine owned by the queue.
//
// The backlog is unbounded so Execute never blocks.
type SerialQueue struct {
	lock    sync.Mutex
	cond    *sync.Cond
	tasks   []func()
	closed  bool
	stopped chan struct{}
}

func NewSerialQueue() *SerialQueue {
	q := &SerialQueue{
		stopped: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.lock)

	go q.run()

	return q
}

// Execute enqueues task. Tasks submitted after Close are dropped.
func (q *SerialQueue) Execute(task func()) {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.closed {
		return
	}

	q.tasks = append(q.tasks, task)
	q.cond.Signal()
}

// Close stops accepting tasks and waits for the backlog to drain
func (q *SerialQueue) Close() {
	q.lock.Lock()
	q.closed = true
	q.cond.Signal()
	q.lock.Unlock()

	<-q.stopped
}

func (q *SerialQueue) run() {
	defer close(q.stopped)

	for {
		q.lock.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			// Closed and drained
			q.lock.Unlock()
			return
		}

		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.lock.Unlock()

		task()
	}
}

// Type assertion
var _ Executor = (*SerialQueue)(nil)

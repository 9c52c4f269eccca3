package bus

import "sync"

// Executor runs closures on the UI thread. Post must not block.
type Executor interface {
	Post(fn func())
}

// UIQueue is an unbounded FIFO executor drained by a single goroutine.
// It stands in for a UI event loop in headless processes and tests.
type UIQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	wg     sync.WaitGroup
}

// NewUIQueue starts the draining goroutine.
func NewUIQueue() *UIQueue {
	q := &UIQueue{}
	q.cond = sync.NewCond(&q.mu)
	q.wg.Add(1)
	go q.loop()
	return q
}

// Post enqueues fn. Closures posted after Close are dropped.
func (q *UIQueue) Post(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.queue = append(q.queue, fn)
	q.cond.Signal()
}

// Flush blocks until every closure posted before it has run.
func (q *UIQueue) Flush() {
	done := make(chan struct{})
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.queue = append(q.queue, func() { close(done) })
	q.cond.Signal()
	q.mu.Unlock()
	<-done
}

// Close runs what is already queued, then stops the goroutine.
func (q *UIQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *UIQueue) loop() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for len(q.queue) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.queue) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		fn := q.queue[0]
		q.queue[0] = nil
		q.queue = q.queue[1:]
		q.mu.Unlock()

		fn()
	}
}

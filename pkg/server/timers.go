package server

import (
	"container/heap"
	"sync"
	"time"
)

type timedTask struct {
	at  time.Time
	seq uint64
	f   func()
}

// taskQueue orders tasks by due time, ties by the order they were added
type taskQueue []timedTask

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x any) { *q = append(*q, x.(timedTask)) }

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = timedTask{}
	*q = old[:n-1]
	return t
}

// timerQueue holds delayed hub work behind a single timer. The timer only
// wakes the loop; the loop pops due tasks itself, so they run in due order
// however late it gets to them.
type timerQueue struct {
	mu    sync.Mutex
	queue taskQueue
	seq   uint64
	timer *time.Timer
	wake  chan struct{}
}

func newTimerQueue() *timerQueue {
	q := &timerQueue{wake: make(chan struct{}, 1)}
	q.timer = time.AfterFunc(time.Hour, q.signal)
	q.timer.Stop()
	return q
}

func (q *timerQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *timerQueue) add(d time.Duration, f func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	t := timedTask{at: time.Now().Add(d), seq: q.seq, f: f}
	heap.Push(&q.queue, t)
	if q.queue[0].seq == t.seq {
		q.timer.Reset(max(d, 0))
	}
}

// popDue returns the earliest task that is due at now. When none is, the
// timer is armed for the next one.
func (q *timerQueue) popDue(now time.Time) (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queue) == 0 {
		return nil, false
	}
	if next := q.queue[0].at; next.After(now) {
		q.timer.Reset(next.Sub(now))
		return nil, false
	}
	return heap.Pop(&q.queue).(timedTask).f, true
}

func (q *timerQueue) stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.timer.Stop()
	q.queue = nil
}

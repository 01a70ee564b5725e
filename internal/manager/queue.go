// Copyright 2024 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package manager

import "sync"

// Queue is the bounded FIFO of copy jobs between enumerators and workers.
// One mutex and two condition variables: Push blocks while the queue is
// full, Pop blocks while it is empty. Drain flips the queue into shutdown
// mode exactly once; from then on Pop returns the drained sentinel as soon
// as the queue empties, and Push reports its job discarded instead of
// blocking forever against workers that have already exited.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	jobs     []Job
	head     int
	size     int
	draining bool
}

// NewQueue returns an empty queue with the given capacity. Capacity must be
// at least 1.
func NewQueue(capacity int) *Queue {
	q := &Queue{jobs: make([]Job, capacity)}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push appends a job, blocking while the queue is full. It reports whether
// the job was accepted; false means the queue is draining and the job was
// discarded.
func (q *Queue) Push(job Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == len(q.jobs) && !q.draining {
		q.notFull.Wait()
	}

	if q.draining {
		return false
	}

	q.jobs[(q.head+q.size)%len(q.jobs)] = job
	q.size++

	q.notEmpty.Signal()
	return true
}

// Pop removes the oldest job, blocking while the queue is empty. ok is false
// only for the drained sentinel: the queue is empty and draining, and the
// caller should exit.
func (q *Queue) Pop() (job Job, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 && !q.draining {
		q.notEmpty.Wait()
	}

	if q.size == 0 {
		return Job{}, false
	}

	job = q.jobs[q.head]
	q.head = (q.head + 1) % len(q.jobs)
	q.size--

	q.notFull.Signal()
	return job, true
}

// Drain puts the queue into shutdown mode. Already-queued jobs remain
// poppable; blocked consumers and producers are woken so they can observe
// the flag. Drain is idempotent.
func (q *Queue) Drain() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.draining {
		return
	}
	q.draining = true

	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.size
}

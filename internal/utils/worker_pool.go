package utils

// Job represents a task to be executed on the main loop.
type Job struct {
	Task func()
}

// JobQueue hands work from other goroutines (MQTT callbacks, signal
// handlers, GPIO events) to the main loop, which runs it between scheduler
// rounds. Shared state is therefore only touched from one goroutine.
type JobQueue struct {
	jobQueue chan Job
}

// NewJobQueue creates a queue holding at most size pending jobs.
func NewJobQueue(size int) *JobQueue {
	return &JobQueue{
		jobQueue: make(chan Job, size),
	}
}

// Submit enqueues a task without blocking. It returns false when the queue is full.
func (q *JobQueue) Submit(task func()) bool {
	select {
	case q.jobQueue <- Job{Task: task}:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued jobs.
func (q *JobQueue) Pending() int {
	return len(q.jobQueue)
}

// RunPending runs the jobs queued at the time of the call and returns how
// many ran. Jobs submitted while running wait for the next call.
func (q *JobQueue) RunPending() int {
	n := len(q.jobQueue)
	for i := 0; i < n; i++ {
		job := <-q.jobQueue
		job.Task()
	}
	return n
}

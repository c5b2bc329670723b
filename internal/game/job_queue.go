package game

import "container/list"

// CardGenJob is one pending card generation request for the writer. Plot
// jobs carry the fired node's description; event jobs carry the event
// definition.
type CardGenJob struct {
	JobType string         `json:"job_type"` // "plot" | "event_start" | "event_phase" | "chain" | "info"
	Context map[string]any `json:"context,omitempty"`
}

// JobQueue accumulates generation jobs between writer batches.
type JobQueue struct {
	pending *list.List
}

func NewJobQueue() *JobQueue {
	return &JobQueue{pending: list.New()}
}

func (q *JobQueue) Enqueue(job *CardGenJob) {
	q.pending.PushBack(job)
}

// Drain removes and returns all pending jobs in enqueue order.
func (q *JobQueue) Drain() []*CardGenJob {
	var jobs []*CardGenJob
	for elem := q.pending.Front(); elem != nil; elem = elem.Next() {
		jobs = append(jobs, elem.Value.(*CardGenJob))
	}
	q.pending.Init()
	return jobs
}

// Requeue puts drained jobs back at the head of the queue in their
// original order, for when a writer batch fails after the drain.
func (q *JobQueue) Requeue(jobs []*CardGenJob) {
	for i := len(jobs) - 1; i >= 0; i-- {
		q.pending.PushFront(jobs[i])
	}
}

func (q *JobQueue) HasJobs() bool { return q.pending.Len() > 0 }

func (q *JobQueue) Count() int { return q.pending.Len() }

// HasHighPriority reports whether a pending job should force an early
// generation batch instead of waiting for the consumption threshold.
func (q *JobQueue) HasHighPriority() bool {
	for elem := q.pending.Front(); elem != nil; elem = elem.Next() {
		job := elem.Value.(*CardGenJob)
		if job.JobType == "plot" || job.JobType == "event_start" {
			return true
		}
	}
	return false
}

package cron

import (
	"context"
	"sort"
	"time"
)

// Job is one unit of periodic maintenance run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Registry keeps jobs and their cadence. A job with no cadence runs every cycle.
type Registry struct {
	entries []*entry
}

// NewRegistry builds a registry whose jobs run on every cycle.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.Register(job, 0)
	}
	return r
}

// Register adds job, to run no more often than every. Nil jobs are ignored.
func (r *Registry) Register(job Job, every time.Duration) {
	if job == nil {
		return
	}
	r.entries = append(r.entries, &entry{job: job, every: every})
}

// Jobs returns the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	out := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.job)
	}
	return out
}

// Due returns the jobs whose cadence has elapsed at now. Jobs that never ran
// are always due.
func (r *Registry) Due(now time.Time) []Job {
	var out []Job
	for _, e := range r.entries {
		if e.lastRun.IsZero() || e.every <= 0 || !now.Before(e.lastRun.Add(e.every)) {
			out = append(out, e.job)
		}
	}
	return out
}

// MarkRan records that job started at now.
func (r *Registry) MarkRan(job Job, now time.Time) {
	for _, e := range r.entries {
		if e.job == job {
			e.lastRun = now
			return
		}
	}
}

// Tick is the shortest cadence among registered jobs, or fallback when no job
// declares one.
func (r *Registry) Tick(fallback time.Duration) time.Duration {
	var cadences []time.Duration
	for _, e := range r.entries {
		if e.every > 0 {
			cadences = append(cadences, e.every)
		}
	}
	if len(cadences) == 0 {
		return fallback
	}
	sort.Slice(cadences, func(i, j int) bool { return cadences[i] < cadences[j] })
	return cadences[0]
}

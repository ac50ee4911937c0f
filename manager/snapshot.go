package manager

import (
	"time"

	"github.com/gkouam/soulbondai-sub005/job"
)

// Snapshot is a point-in-time view of the queue and the worker pool.
type Snapshot struct {
	Types       map[string]TypeSnapshot `json:"types"`
	Totals      map[job.State]int64     `json:"totals"`
	Total       int64                   `json:"total"`
	Workers     Utilization             `json:"workers"`
	Running     bool                    `json:"running"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// TypeSnapshot holds the counts of one job type.
type TypeSnapshot struct {
	Counts               map[job.State]int64 `json:"counts"`
	OldestPendingAt      *time.Time          `json:"oldest_pending_at,omitempty"`
	OldestPendingSeconds float64             `json:"oldest_pending_seconds"`
}

// Utilization reports how many worker slots are executing jobs.
type Utilization struct {
	Busy        int     `json:"busy"`
	Concurrency int     `json:"concurrency"`
	Ratio       float64 `json:"ratio"`
}

// InFlight returns the number of leased jobs across all types.
func (s Snapshot) InFlight() int64 { return s.Totals[job.StateInFlight] }

func newSnapshot(st job.Stats, busy, concurrency int, running bool) Snapshot {
	snap := Snapshot{
		Types:       make(map[string]TypeSnapshot, len(st.ByType)),
		Totals:      make(map[job.State]int64, len(job.States)),
		Total:       st.Total,
		Running:     running,
		GeneratedAt: st.At,
		Workers: Utilization{
			Busy:        busy,
			Concurrency: concurrency,
		},
	}
	if concurrency > 0 {
		snap.Workers.Ratio = float64(busy) / float64(concurrency)
	}
	for _, s := range job.States {
		snap.Totals[s] = 0
	}

	for jobType, ts := range st.ByType {
		counts := make(map[job.State]int64, len(job.States))
		for _, s := range job.States {
			counts[s] = ts.Counts[s]
			snap.Totals[s] += ts.Counts[s]
		}
		tsnap := TypeSnapshot{Counts: counts}
		if !ts.OldestPending.IsZero() {
			oldest := ts.OldestPending
			tsnap.OldestPendingAt = &oldest
			if age := st.At.Sub(oldest); age > 0 {
				tsnap.OldestPendingSeconds = age.Seconds()
			}
		}
		snap.Types[jobType] = tsnap
	}
	return snap
}

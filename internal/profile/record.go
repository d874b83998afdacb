package profile

import "time"

// ExecRecord accumulates wall-clock execution statistics for one
// procedure.
type ExecRecord struct {
	Count   uint64        // completed calls
	Total   time.Duration // sum of call durations
	Min     time.Duration // shortest observed call
	Max     time.Duration // longest observed call
	Last    time.Duration // most recent call
	Samples uint64        // sampler hits while on top of the shadow stack
}

// observe folds one completed call into the record.
func (r *ExecRecord) observe(d time.Duration) {
	if r.Count == 0 || d < r.Min {
		r.Min = d
	}
	if d > r.Max {
		r.Max = d
	}
	r.Count++
	r.Total += d
	r.Last = d
}

// Mean returns the average call duration, or 0 before any call.
func (r *ExecRecord) Mean() time.Duration {
	if r.Count == 0 {
		return 0
	}
	return r.Total / time.Duration(r.Count)
}

// branchHistoryLimit bounds the per-branch outcome ring. The oldest
// outcome is evicted once the ring is full.
const branchHistoryLimit = 32

// BranchRecord accumulates outcomes for one branch site. Branch IDs
// with a "loop:" prefix are loop back-edges; their taken/not-taken
// ratio doubles as a per-entry iteration count for loop hints.
type BranchRecord struct {
	Taken    uint64
	NotTaken uint64
	History  []bool // bounded at branchHistoryLimit, oldest first
}

// observe records one outcome.
func (r *BranchRecord) observe(taken bool) {
	if taken {
		r.Taken++
	} else {
		r.NotTaken++
	}
	r.History = append(r.History, taken)
	if len(r.History) > branchHistoryLimit {
		r.History = r.History[1:]
	}
}

// Predictability returns max(ratio, 1-ratio) over all observed
// outcomes, or 0 before any observation. Once observed the result is
// always in [0.5, 1.0].
func (r *BranchRecord) Predictability() float64 {
	total := r.Taken + r.NotTaken
	if total == 0 {
		return 0
	}
	ratio := float64(r.Taken) / float64(total)
	if ratio >= 0.5 {
		return ratio
	}
	return 1 - ratio
}

// TakenLikely reports whether the branch is predicted taken.
func (r *BranchRecord) TakenLikely() bool {
	return r.Taken >= r.NotTaken
}

// MeanIterations interprets a back-edge record as a loop: each
// not-taken outcome is one loop exit, so taken/not-taken is the mean
// iteration count per entry. Returns 0 until the loop has exited once.
func (r *BranchRecord) MeanIterations() float64 {
	if r.NotTaken == 0 {
		return 0
	}
	return float64(r.Taken) / float64(r.NotTaken)
}

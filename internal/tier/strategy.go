package tier

import "log/slog"

// PromotionStrategy schedules tier generation. The default runs
// compilation inline on the triggering call; a concurrent host can
// substitute a strategy that offloads gen to a worker and installs the
// record later, without touching the manager.
type PromotionStrategy interface {
	// Promote runs gen and, on success, hands the record to install.
	// A generation failure must not propagate: the procedure keeps
	// running on its current tier.
	Promote(name string, target Level, gen func() (*Record, error), install func(*Record))
}

// Synchronous is the default promotion strategy: compilation blocks
// the triggering call, trading one slow call per promotion for zero
// background coordination.
type Synchronous struct {
	Log *slog.Logger
}

// Promote implements PromotionStrategy.
func (s Synchronous) Promote(name string, target Level, gen func() (*Record, error), install func(*Record)) {
	rec, err := gen()
	if err != nil {
		if s.Log != nil {
			s.Log.Warn("tier generation failed",
				"proc", name,
				"target", target.String(),
				"error", err)
		}
		return
	}
	install(rec)
}

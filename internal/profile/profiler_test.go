package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tern-lang/tern/internal/testutil"
)

func newTestProfiler(opts ...Option) (*Profiler, *testutil.ManualClock) {
	clock := testutil.NewManualClock()
	opts = append([]Option{WithClock(clock)}, opts...)
	p := New(opts...)
	p.Start()
	return p, clock
}

// call simulates one call of the named procedure taking d of wall time.
func call(p *Profiler, clock *testutil.ManualClock, name string, d time.Duration, inner func()) {
	p.OnEnter(name, nil)
	clock.Advance(d)
	if inner != nil {
		inner()
	}
	p.OnExit(name, nil)
}

func TestExecRecordTiming(t *testing.T) {
	p, clock := newTestProfiler()

	call(p, clock, "work", 3*time.Millisecond, nil)
	call(p, clock, "work", 1*time.Millisecond, nil)
	call(p, clock, "work", 7*time.Millisecond, nil)

	rec := p.Exec("work")
	require.NotNil(t, rec)
	assert.Equal(t, uint64(3), rec.Count)
	assert.Equal(t, 11*time.Millisecond, rec.Total)
	assert.Equal(t, 1*time.Millisecond, rec.Min)
	assert.Equal(t, 7*time.Millisecond, rec.Max)
	assert.Equal(t, 7*time.Millisecond, rec.Last)
}

func TestSamplerCreditsTopOfStack(t *testing.T) {
	p, clock := newTestProfiler(WithSampleInterval(time.Millisecond))

	// 5ms inside "outer", then 3ms inside nested "inner".
	p.OnEnter("outer", nil)
	clock.Advance(5 * time.Millisecond)
	p.OnEnter("inner", nil) // tick runs here, credits outer
	clock.Advance(3 * time.Millisecond)
	p.OnExit("inner", nil) // tick credits inner
	p.OnExit("outer", nil)

	assert.Equal(t, uint64(5), p.Exec("outer").Samples)
	assert.Equal(t, uint64(3), p.Exec("inner").Samples)
}

func TestStopIdempotent(t *testing.T) {
	p, clock := newTestProfiler()
	call(p, clock, "f", time.Millisecond, nil)

	p.Stop()
	first := p.HotPaths()
	p.Stop() // second stop is a no-op
	assert.Equal(t, first, p.HotPaths())
	assert.False(t, p.Running())
}

func TestStartResetsState(t *testing.T) {
	p, clock := newTestProfiler()
	call(p, clock, "f", time.Millisecond, nil)
	p.RecordBranch("b", true)
	p.Stop()

	p.Start()
	assert.Nil(t, p.Exec("f"))
	assert.Nil(t, p.Branch("b"))
	assert.Empty(t, p.Graph().Nodes())
}

func TestBranchPredictabilityBounds(t *testing.T) {
	p, _ := newTestProfiler()

	// A run of identical outcomes pins predictability at 1.0.
	for i := 0; i < 20; i++ {
		p.RecordBranch("same", true)
	}
	assert.Equal(t, 1.0, p.Branch("same").Predictability())

	// Until the opposite outcome is recorded.
	p.RecordBranch("same", false)
	pred := p.Branch("same").Predictability()
	assert.Less(t, pred, 1.0)
	assert.GreaterOrEqual(t, pred, 0.5)
}

func TestBranchHistoryBounded(t *testing.T) {
	p, _ := newTestProfiler()
	for i := 0; i < 50; i++ {
		p.RecordBranch("b", i%2 == 0)
	}
	rec := p.Branch("b")
	assert.Len(t, rec.History, 32)
	assert.Equal(t, uint64(25), rec.Taken)
	assert.Equal(t, uint64(25), rec.NotTaken)
}

func TestBranchHintGateIsStrict(t *testing.T) {
	p, _ := newTestProfiler()

	// 19 taken, 1 not-taken: predictability exactly 0.95.
	for i := 0; i < 19; i++ {
		p.RecordBranch("edge", true)
	}
	p.RecordBranch("edge", false)

	rec := p.Branch("edge")
	assert.Equal(t, 0.95, rec.Predictability())

	h := p.OptimizationHints(nil)
	for _, bh := range h.Branches {
		assert.NotEqual(t, "edge", bh.ID, "0.95 must not clear the strictly-greater gate")
	}
}

func TestBranchHintAboveGate(t *testing.T) {
	p, _ := newTestProfiler()
	for i := 0; i < 99; i++ {
		p.RecordBranch("biased", false)
	}
	p.RecordBranch("biased", true)

	h := p.OptimizationHints(nil)
	require.Len(t, h.Branches, 1)
	assert.Equal(t, "biased", h.Branches[0].ID)
	assert.False(t, h.Branches[0].TakenLikely)
	assert.InDelta(t, 0.99, h.Branches[0].Predictability, 1e-12)
}

func TestLoopHints(t *testing.T) {
	p, _ := newTestProfiler()

	// Mean 4 iterations per entry: unroll candidate.
	for e := 0; e < 10; e++ {
		for i := 0; i < 4; i++ {
			p.RecordBranch("loop:f:0", true)
		}
		p.RecordBranch("loop:f:0", false)
	}
	// Mean 200 iterations per entry: vectorize candidate.
	for i := 0; i < 200; i++ {
		p.RecordBranch("loop:g:0", true)
	}
	p.RecordBranch("loop:g:0", false)

	h := p.OptimizationHints(nil)
	require.Len(t, h.Loops, 2)
	byID := map[string]LoopHint{}
	for _, lh := range h.Loops {
		byID[lh.ID] = lh
	}
	assert.Equal(t, LoopUnroll, byID["loop:f:0"].Kind)
	assert.InDelta(t, 4.0, byID["loop:f:0"].MeanIterations, 1e-12)
	assert.Equal(t, LoopVectorize, byID["loop:g:0"].Kind)
	assert.InDelta(t, 200.0, byID["loop:g:0"].MeanIterations, 1e-12)
}

func TestCallGraphEdges(t *testing.T) {
	p, clock := newTestProfiler()

	for i := 0; i < 3; i++ {
		call(p, clock, "outer", time.Millisecond, func() {
			call(p, clock, "inner", 2*time.Millisecond, nil)
		})
	}

	edge := p.Graph().Edge("outer", "inner")
	require.NotNil(t, edge)
	assert.Equal(t, uint64(3), edge.Count)
	assert.Equal(t, 6*time.Millisecond, edge.Total)
	assert.Equal(t, 2*time.Millisecond, edge.Mean())

	outer := p.Graph().Node("outer")
	assert.True(t, outer.Callees["inner"])
	inner := p.Graph().Node("inner")
	assert.True(t, inner.Callers["outer"])
	// outer's own duration includes the nested call.
	assert.Equal(t, 9*time.Millisecond, outer.Total)
}

func TestHotPathsSortedAndShares(t *testing.T) {
	p, clock := newTestProfiler(WithHotPathMinCount(10))

	for i := 0; i < 50; i++ {
		call(p, clock, "driver", 0, func() {
			call(p, clock, "hot", 3*time.Millisecond, nil)
			call(p, clock, "warm", 1*time.Millisecond, nil)
		})
	}
	p.Stop()

	paths := p.HotPaths()
	require.NotEmpty(t, paths)

	var shareSum float64
	for i, hp := range paths {
		if i > 0 {
			assert.GreaterOrEqual(t, paths[i-1].Total, hp.Total, "descending by total time")
		}
		shareSum += hp.Share
	}
	assert.LessOrEqual(t, shareSum, 1.0+1e-9)

	// hot traces back through its dominant caller.
	chains := make([][]string, len(paths))
	for i, hp := range paths {
		chains[i] = hp.Chain
	}
	assert.Contains(t, chains, []string{"driver", "hot"})
	assert.Contains(t, chains, []string{"driver", "warm"})
}

func TestHotPathLimit(t *testing.T) {
	p, clock := newTestProfiler(WithHotPathMinCount(1), WithHotPathLimit(2))

	names := []string{"a", "b", "c", "d", "e"}
	for _, n := range names {
		for i := 0; i < 5; i++ {
			call(p, clock, n, time.Millisecond, nil)
		}
	}
	p.Stop()

	assert.Len(t, p.HotPaths(), 2)
}

func TestHotChainDetection(t *testing.T) {
	p, clock := newTestProfiler(WithHotChainEdgeMin(100))

	for i := 0; i < 150; i++ {
		call(p, clock, "caller", 0, func() {
			call(p, clock, "callee", time.Microsecond, nil)
		})
	}
	p.Stop()

	chains := p.HotChains()
	require.Len(t, chains, 1)
	assert.Equal(t, "caller", chains[0].Caller)
	assert.Equal(t, "callee", chains[0].Callee)
	assert.Equal(t, uint64(150), chains[0].Count)
}

func TestSelfTimeFlooredAtZero(t *testing.T) {
	p, clock := newTestProfiler()

	// leaf runs standalone with long calls, then briefly under parent.
	// The global average overattributes leaf time to parent, which the
	// floor clamps.
	for i := 0; i < 4; i++ {
		call(p, clock, "leaf", 10*time.Millisecond, nil)
	}
	call(p, clock, "parent", 0, func() {
		call(p, clock, "leaf", 1*time.Millisecond, nil)
	})
	p.Stop()

	parent := p.Graph().Node("parent")
	assert.Equal(t, time.Duration(0), parent.Self)

	leaf := p.Graph().Node("leaf")
	assert.Equal(t, leaf.Total, leaf.Self, "leaf keeps all its time")
}

func TestSelfTimeSubtractsCalleeAverage(t *testing.T) {
	p, clock := newTestProfiler()

	for i := 0; i < 2; i++ {
		call(p, clock, "parent", 5*time.Millisecond, func() {
			call(p, clock, "leaf", 3*time.Millisecond, nil)
		})
	}
	p.Stop()

	// parent total = 2*(5+3)=16ms, attributed = 2 * avg(leaf)=3ms -> 10ms.
	parent := p.Graph().Node("parent")
	assert.Equal(t, 16*time.Millisecond, parent.Total)
	assert.Equal(t, 10*time.Millisecond, parent.Self)
}

func TestHotColdHints(t *testing.T) {
	p, clock := newTestProfiler()

	for i := 0; i < 100; i++ {
		call(p, clock, "hot", time.Millisecond, nil)
	}
	for i := 0; i < 20; i++ {
		call(p, clock, "tepid", 10*time.Microsecond, nil)
	}
	call(p, clock, "cold", time.Microsecond, nil)
	p.Stop()

	h := p.OptimizationHints(nil)
	assert.Contains(t, h.Hot, "hot")
	assert.NotContains(t, h.Hot, "cold")
	assert.Contains(t, h.Cold, "cold")
	assert.NotContains(t, h.Cold, "hot")
}

func TestProfilerIgnoresEventsWhenStopped(t *testing.T) {
	clock := testutil.NewManualClock()
	p := New(WithClock(clock))

	p.OnEnter("f", nil)
	clock.Advance(time.Millisecond)
	p.OnExit("f", nil)
	p.RecordBranch("b", true)

	assert.Nil(t, p.Exec("f"))
	assert.Nil(t, p.Branch("b"))
}

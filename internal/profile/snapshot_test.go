package profile

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tern-lang/tern/internal/feedback"
	"github.com/tern-lang/tern/internal/value"
)

func buildSession(t *testing.T) (*Profiler, *feedback.Collector) {
	t.Helper()
	p, clock := newTestProfiler(WithHotPathMinCount(5), WithHotChainEdgeMin(5))
	fc := feedback.NewCollector()

	for i := 0; i < 10; i++ {
		call(p, clock, "outer", time.Millisecond, func() {
			call(p, clock, "inner", 2*time.Millisecond, nil)
		})
		p.RecordBranch("cmp:1", i%3 != 0)
		fc.RecordType("inner:0", value.Int(int64(i)))
	}
	fc.RecordType("inner:1", value.Str("s"))
	p.Stop()
	return p, fc
}

func TestSnapshotRoundTrip(t *testing.T) {
	p, fc := buildSession(t)

	snap := Export(p, fc)
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))

	p2 := New(WithHotPathMinCount(5), WithHotChainEdgeMin(5))
	fc2 := feedback.NewCollector()
	require.NoError(t, Import(p2, fc2, &decoded))

	// All recorded fields round-trip exactly.
	assert.Equal(t, p.Exec("outer"), p2.Exec("outer"))
	assert.Equal(t, p.Exec("inner"), p2.Exec("inner"))
	assert.Equal(t, p.Branch("cmp:1"), p2.Branch("cmp:1"))
	assert.Equal(t, fc.Record("inner:0"), fc2.Record("inner:0"))
	assert.Equal(t, fc.Record("inner:1"), fc2.Record("inner:1"))

	e1 := p.Graph().Edge("outer", "inner")
	e2 := p2.Graph().Edge("outer", "inner")
	assert.Equal(t, e1, e2)

	// Derived data is recomputed, not restored, and matches.
	assert.Equal(t, p.HotPaths(), p2.HotPaths())
	assert.Equal(t, p.HotChains(), p2.HotChains())
}

func TestSnapshotWireShape(t *testing.T) {
	p, fc := buildSession(t)

	data, err := json.Marshal(Export(p, fc))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))

	for _, field := range []string{
		"version", "timestamp", "sessionID",
		"executionProfiles", "typeProfiles", "branchProfiles",
		"callGraph", "hotPaths",
	} {
		assert.Contains(t, raw, field)
	}
	assert.NotContains(t, raw, "hotCallChains", "hot chains are never serialized")

	// Profile entries are [key, record] pairs.
	var execs [][]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["executionProfiles"], &execs))
	require.NotEmpty(t, execs)
	require.Len(t, execs[0], 2)
	var key string
	require.NoError(t, json.Unmarshal(execs[0][0], &key))
	assert.Equal(t, "inner", key)
}

func TestImportIgnoresSnapshotHotPaths(t *testing.T) {
	p, fc := buildSession(t)
	snap := Export(p, fc)

	// Tamper with the exported derived data; import must not trust it.
	snap.HotPaths = []HotPath{{Chain: []string{"forged"}, Count: 1, Total: time.Hour, Share: 1}}

	p2 := New(WithHotPathMinCount(5), WithHotChainEdgeMin(5))
	require.NoError(t, Import(p2, nil, snap))

	for _, hp := range p2.HotPaths() {
		assert.NotEqual(t, []string{"forged"}, hp.Chain)
	}
}

func TestImportRejectsVersionMismatch(t *testing.T) {
	p := New()
	err := Import(p, nil, &Snapshot{Version: 99})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestImportNilSnapshot(t *testing.T) {
	p := New()
	require.Error(t, Import(p, nil, nil))
}

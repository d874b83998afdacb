package profile

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/tern-lang/tern/internal/feedback"
)

// SnapshotVersion identifies the export format.
const SnapshotVersion = 1

// Snapshot is the exportable profile: every recorded field
// round-trips exactly. Hot paths are exported for inspection but
// recomputed on import; hot chains are never serialized at all.
type Snapshot struct {
	Version           int               `json:"version"`
	Timestamp         time.Time         `json:"timestamp"`
	SessionID         string            `json:"sessionID"`
	ExecutionProfiles []ExecEntry       `json:"executionProfiles"`
	TypeProfiles      []TypeEntry       `json:"typeProfiles"`
	BranchProfiles    []BranchEntry     `json:"branchProfiles"`
	CallGraph         CallGraphSnapshot `json:"callGraph"`
	HotPaths          []HotPath         `json:"hotPaths"`
}

// ExecEntry is a key/record pair, serialized as a two-element array.
type ExecEntry struct {
	Key    string
	Record ExecSnapshot
}

// ExecSnapshot is the wire form of an ExecRecord, durations in
// nanoseconds.
type ExecSnapshot struct {
	Count   uint64 `json:"count"`
	Total   int64  `json:"totalNs"`
	Min     int64  `json:"minNs"`
	Max     int64  `json:"maxNs"`
	Last    int64  `json:"lastNs"`
	Samples uint64 `json:"samples"`
}

// TypeEntry is a key/record pair for type feedback.
type TypeEntry struct {
	Key    string
	Record feedback.TypeRecord
}

// BranchEntry is an id/record pair for branch sites.
type BranchEntry struct {
	Key    string
	Record BranchSnapshot
}

// BranchSnapshot is the wire form of a BranchRecord.
type BranchSnapshot struct {
	Taken    uint64 `json:"taken"`
	NotTaken uint64 `json:"notTaken"`
	History  []bool `json:"history"`
}

// CallGraphSnapshot is the wire form of the call graph.
type CallGraphSnapshot struct {
	Nodes []NodeSnapshot `json:"nodes"`
	Edges []EdgeSnapshot `json:"edges"`
}

// NodeSnapshot is the wire form of a CallNode.
type NodeSnapshot struct {
	Name    string   `json:"name"`
	Self    int64    `json:"selfNs"`
	Total   int64    `json:"totalNs"`
	Count   uint64   `json:"count"`
	Callers []string `json:"callers"`
	Callees []string `json:"callees"`
}

// EdgeSnapshot is the wire form of a CallEdge.
type EdgeSnapshot struct {
	Caller string `json:"caller"`
	Callee string `json:"callee"`
	Count  uint64 `json:"count"`
	Total  int64  `json:"totalNs"`
}

// MarshalJSON encodes the entry as [key, record].
func (e ExecEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Key, e.Record})
}

// UnmarshalJSON decodes a [key, record] pair.
func (e *ExecEntry) UnmarshalJSON(data []byte) error {
	return unmarshalPair(data, &e.Key, &e.Record)
}

// MarshalJSON encodes the entry as [key, record].
func (e TypeEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Key, e.Record})
}

// UnmarshalJSON decodes a [key, record] pair.
func (e *TypeEntry) UnmarshalJSON(data []byte) error {
	return unmarshalPair(data, &e.Key, &e.Record)
}

// MarshalJSON encodes the entry as [key, record].
func (e BranchEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Key, e.Record})
}

// UnmarshalJSON decodes a [key, record] pair.
func (e *BranchEntry) UnmarshalJSON(data []byte) error {
	return unmarshalPair(data, &e.Key, &e.Record)
}

func unmarshalPair(data []byte, key *string, record any) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("profile entry: want [key, record] pair, got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], key); err != nil {
		return fmt.Errorf("profile entry key: %w", err)
	}
	if err := json.Unmarshal(raw[1], record); err != nil {
		return fmt.Errorf("profile entry record: %w", err)
	}
	return nil
}

// Export assembles a snapshot of the profiler's recorded state plus
// the session's type feedback. Entry order is sorted by key so the
// output is deterministic.
func Export(p *Profiler, fc *feedback.Collector) *Snapshot {
	snap := &Snapshot{
		Version:   SnapshotVersion,
		Timestamp: p.clock.Now(),
		SessionID: p.sessionID,
		HotPaths:  p.hotPaths,
	}

	for _, name := range sortedKeys(p.execs) {
		r := p.execs[name]
		snap.ExecutionProfiles = append(snap.ExecutionProfiles, ExecEntry{
			Key: name,
			Record: ExecSnapshot{
				Count:   r.Count,
				Total:   r.Total.Nanoseconds(),
				Min:     r.Min.Nanoseconds(),
				Max:     r.Max.Nanoseconds(),
				Last:    r.Last.Nanoseconds(),
				Samples: r.Samples,
			},
		})
	}

	if fc != nil {
		for _, key := range fc.Keys() {
			snap.TypeProfiles = append(snap.TypeProfiles, TypeEntry{Key: key, Record: *fc.Record(key)})
		}
	}

	for _, id := range p.branchIDs() {
		r := p.branches[id]
		snap.BranchProfiles = append(snap.BranchProfiles, BranchEntry{
			Key:    id,
			Record: BranchSnapshot{Taken: r.Taken, NotTaken: r.NotTaken, History: append([]bool(nil), r.History...)},
		})
	}

	for _, n := range p.graph.Nodes() {
		snap.CallGraph.Nodes = append(snap.CallGraph.Nodes, NodeSnapshot{
			Name:    n.Name,
			Self:    n.Self.Nanoseconds(),
			Total:   n.Total.Nanoseconds(),
			Count:   n.Count,
			Callers: sortedKeys(n.Callers),
			Callees: sortedKeys(n.Callees),
		})
	}
	for _, e := range p.graph.Edges() {
		snap.CallGraph.Edges = append(snap.CallGraph.Edges, EdgeSnapshot{
			Caller: e.Caller,
			Callee: e.Callee,
			Count:  e.Count,
			Total:  e.Total.Nanoseconds(),
		})
	}

	return snap
}

// Import replaces the profiler's recorded state with the snapshot's
// and recomputes all derived data. The snapshot's hotPaths field is
// deliberately ignored; hot paths and hot chains come out of the
// analysis passes, never off the wire. Type feedback is installed into
// fc when non-nil.
func Import(p *Profiler, fc *feedback.Collector, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("import: nil snapshot")
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("import: unsupported snapshot version %d", snap.Version)
	}

	p.reset()
	p.sessionID = snap.SessionID

	for _, e := range snap.ExecutionProfiles {
		p.execs[e.Key] = &ExecRecord{
			Count:   e.Record.Count,
			Total:   time.Duration(e.Record.Total),
			Min:     time.Duration(e.Record.Min),
			Max:     time.Duration(e.Record.Max),
			Last:    time.Duration(e.Record.Last),
			Samples: e.Record.Samples,
		}
	}

	for _, e := range snap.BranchProfiles {
		p.branches[e.Key] = &BranchRecord{
			Taken:    e.Record.Taken,
			NotTaken: e.Record.NotTaken,
			History:  append([]bool(nil), e.Record.History...),
		}
	}

	for _, ns := range snap.CallGraph.Nodes {
		n := p.graph.node(ns.Name)
		n.Total = time.Duration(ns.Total)
		n.Count = ns.Count
		for _, c := range ns.Callers {
			n.Callers[c] = true
		}
		for _, c := range ns.Callees {
			n.Callees[c] = true
		}
	}
	for _, es := range snap.CallGraph.Edges {
		p.graph.edges[[2]string{es.Caller, es.Callee}] = &CallEdge{
			Caller: es.Caller,
			Callee: es.Callee,
			Count:  es.Count,
			Total:  time.Duration(es.Total),
		}
	}

	if fc != nil {
		for _, e := range snap.TypeProfiles {
			rec := e.Record
			fc.Install(e.Key, &rec)
		}
	}

	p.analyze()
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Package feedback records the dynamic types and object shapes
// observed at call sites. Tier generation reads the records to decide
// where speculation is safe: a monomorphic or sufficiently stable site
// earns a type guard, anything noisier stays generic.
package feedback

import (
	"slices"

	"github.com/tern-lang/tern/internal/value"
)

// StabilityGate is the minimum stability at which a polymorphic call
// site may still be specialized on its dominant tag. Below it only
// monomorphic sites qualify.
const StabilityGate = 0.9

// TypeRecord accumulates observed type tags for one feedback key
// (typically "proc:paramIndex" or an expression site id).
//
// Dominant tag, stability and the monomorphic flag are recomputed on
// every observation rather than lazily; observation volume is low
// enough that the bookkeeping cost does not matter, and it keeps reads
// lock-free in the single-owner model.
type TypeRecord struct {
	Counts      map[value.Tag]uint64 `json:"counts"`
	Total       uint64               `json:"total"`
	Dominant    value.Tag            `json:"dominantType"`
	Stability   float64              `json:"stability"`
	Monomorphic bool                 `json:"monomorphic"`
}

// Observe counts one tag and refreshes the derived fields.
func (r *TypeRecord) Observe(tag value.Tag) {
	if r.Counts == nil {
		r.Counts = make(map[value.Tag]uint64)
	}
	r.Counts[tag]++
	r.Total++
	r.recompute()
}

// recompute refreshes Dominant, Stability and Monomorphic from Counts.
// Ties break on the lexically smaller tag so the result is
// deterministic regardless of map iteration order.
func (r *TypeRecord) recompute() {
	var dominant value.Tag
	var max uint64
	for tag, n := range r.Counts {
		if n > max || (n == max && tag < dominant) {
			dominant, max = tag, n
		}
	}
	r.Dominant = dominant
	if r.Total > 0 {
		r.Stability = float64(max) / float64(r.Total)
	} else {
		r.Stability = 0
	}
	r.Monomorphic = len(r.Counts) == 1 && r.Total > 0
}

// Specializable reports whether a site with this feedback may legally
// take a specialized path. The specialized path must assume Dominant -
// never a weaker majority tag.
func (r *TypeRecord) Specializable() bool {
	return r.SpecializableAt(StabilityGate)
}

// SpecializableAt is Specializable with an explicit stability gate,
// for hosts that tune the gate by policy.
func (r *TypeRecord) SpecializableAt(gate float64) bool {
	return r.Total > 0 && (r.Monomorphic || r.Stability > gate)
}

// Collector owns all type feedback and the shape cache for one runtime
// session. It is an explicit injectable store, not a package singleton;
// a session passes the same collector to the tier manager and the
// profiler snapshot builder.
type Collector struct {
	records map[string]*TypeRecord
	shapes  *ShapeCache
}

// NewCollector creates an empty collector with its own shape cache.
func NewCollector() *Collector {
	return &Collector{
		records: make(map[string]*TypeRecord),
		shapes:  NewShapeCache(),
	}
}

// RecordType classifies a value and counts its tag under key. The
// record is created on first observation and lives for the session.
func (c *Collector) RecordType(key string, v value.Value) {
	rec := c.records[key]
	if rec == nil {
		rec = &TypeRecord{}
		c.records[key] = rec
	}
	rec.Observe(value.TagOf(v))
}

// Record returns the feedback record for key, or nil if the key has
// never been observed.
func (c *Collector) Record(key string) *TypeRecord {
	return c.records[key]
}

// Keys returns all observed feedback keys in sorted order.
func (c *Collector) Keys() []string {
	keys := make([]string, 0, len(c.records))
	for k := range c.records {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Install restores a record under key, typically from an imported
// snapshot. Derived fields are recomputed from the restored counts so
// a snapshot cannot smuggle in inconsistent dominance data.
func (c *Collector) Install(key string, rec *TypeRecord) {
	rec.recompute()
	c.records[key] = rec
}

// ShapeOf resolves the canonical shape descriptor for an object via the
// session's shape cache.
func (c *Collector) ShapeOf(obj *value.Object) *Shape {
	return c.shapes.ShapeOf(obj)
}

// Shapes exposes the session shape cache.
func (c *Collector) Shapes() *ShapeCache {
	return c.shapes
}

// Reset drops all records and shapes. Used when a profiling session
// restarts; compiled tiers survive a reset, their guards simply stop
// being refreshed.
func (c *Collector) Reset() {
	c.records = make(map[string]*TypeRecord)
	c.shapes = NewShapeCache()
}

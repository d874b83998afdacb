// Package policy loads engine tuning from CUE files. The embedded
// schema carries the defaults and value constraints; a user policy
// file unifies with it, so partial files work and invalid values fail
// at load time with CUE's error positions.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/tern-lang/tern/internal/profile"
	"github.com/tern-lang/tern/internal/tier"
)

//go:embed schema.cue
var schemaCUE string

// Policy is the decoded tuning policy.
type Policy struct {
	Tiers    TierPolicy     `json:"tiers"`
	Profiler ProfilerPolicy `json:"profiler"`
	Feedback FeedbackPolicy `json:"feedback"`
	Loops    LoopPolicy     `json:"loops"`
	Storage  StoragePolicy  `json:"storage"`
}

type TierPolicy struct {
	Thresholds   [3]uint64 `json:"thresholds"`
	DeoptCeiling uint64    `json:"deoptCeiling"`
}

type ProfilerPolicy struct {
	SampleIntervalMs float64 `json:"sampleIntervalMs"`
	HotPathMinCount  uint64  `json:"hotPathMinCount"`
	HotPathLimit     int     `json:"hotPathLimit"`
	HotChainEdgeMin  uint64  `json:"hotChainEdgeMin"`
	HotPercentile    float64 `json:"hotPercentile"`
	ColdCountFloor   uint64  `json:"coldCountFloor"`
	BranchHintGate   float64 `json:"branchHintGate"`
}

type FeedbackPolicy struct {
	StabilityGate float64 `json:"stabilityGate"`
}

type LoopPolicy struct {
	UnrollMaxIters   float64 `json:"unrollMaxIters"`
	VectorizeMinIter float64 `json:"vectorizeMinIter"`
}

type StoragePolicy struct {
	Retention int `json:"retention"`
}

// SampleInterval returns the profiler sampling interval as a duration.
func (p ProfilerPolicy) SampleInterval() time.Duration {
	return time.Duration(p.SampleIntervalMs * float64(time.Millisecond))
}

// Default returns the policy with every field at its schema default.
func Default() Policy {
	p, err := decode(cuecontext.New().CompileString(schemaCUE))
	if err != nil {
		// The embedded schema always decodes; a failure here is a
		// build defect.
		panic(fmt.Sprintf("policy: embedded schema invalid: %v", err))
	}
	return p
}

// Load reads a CUE policy file and unifies it with the embedded
// schema. Fields absent from the file keep their defaults; values
// outside the schema's constraints are load errors.
func Load(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	return Parse(string(data), path)
}

// Parse unifies CUE policy source with the embedded schema. filename
// is used in error positions only.
func Parse(src, filename string) (Policy, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Policy{}, fmt.Errorf("compile schema: %w", err)
	}
	user := ctx.CompileString(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return Policy{}, fmt.Errorf("compile policy: %w", err)
	}

	unified := schema.Unify(user)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Policy{}, fmt.Errorf("validate policy: %w", err)
	}
	return decode(unified)
}

func decode(v cue.Value) (Policy, error) {
	if err := v.Err(); err != nil {
		return Policy{}, fmt.Errorf("build policy value: %w", err)
	}
	var p Policy
	if err := v.Decode(&p); err != nil {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	if err := p.check(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// check covers the cross-field constraints CUE's per-field bounds
// cannot express.
func (p Policy) check() error {
	t := p.Tiers.Thresholds
	if !(t[0] < t[1] && t[1] < t[2]) {
		return fmt.Errorf("tiers.thresholds must be strictly increasing, got %v", t)
	}
	if p.Loops.UnrollMaxIters >= p.Loops.VectorizeMinIter {
		return fmt.Errorf("loops.unrollMaxIters (%g) must be below loops.vectorizeMinIter (%g)",
			p.Loops.UnrollMaxIters, p.Loops.VectorizeMinIter)
	}
	return nil
}

// ProfilerOptions translates the policy into profiler construction
// options.
func (p Policy) ProfilerOptions() []profile.Option {
	return []profile.Option{
		profile.WithSampleInterval(p.Profiler.SampleInterval()),
		profile.WithHotPathMinCount(p.Profiler.HotPathMinCount),
		profile.WithHotPathLimit(p.Profiler.HotPathLimit),
		profile.WithHotChainEdgeMin(p.Profiler.HotChainEdgeMin),
		profile.WithHotPercentile(p.Profiler.HotPercentile),
		profile.WithColdCountFloor(p.Profiler.ColdCountFloor),
		profile.WithBranchHintGate(p.Profiler.BranchHintGate),
		profile.WithLoopBounds(p.Loops.UnrollMaxIters, p.Loops.VectorizeMinIter),
	}
}

// ManagerOptions translates the policy into tier manager options.
func (p Policy) ManagerOptions() []tier.ManagerOption {
	return []tier.ManagerOption{
		tier.WithThresholds(p.Tiers.Thresholds),
		tier.WithDeoptCeiling(p.Tiers.DeoptCeiling),
		tier.WithStabilityGate(p.Feedback.StabilityGate),
	}
}

package harness

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tern-lang/tern/internal/feedback"
	"github.com/tern-lang/tern/internal/policy"
	"github.com/tern-lang/tern/internal/profile"
	"github.com/tern-lang/tern/internal/tier"
	"github.com/tern-lang/tern/internal/value"
)

// Runner executes scenarios against a fresh engine session each time.
type Runner struct {
	Log *slog.Logger
}

// SessionSnapshot pairs the session's exported profile with the
// policy's retention setting, for callers that persist snapshots.
type SessionSnapshot struct {
	Snapshot  *profile.Snapshot
	Retention int
}

// Run executes the scenario and returns its trace: one line per drive
// step with the final call's result, then one line per procedure with
// its tier stack, deopt total and pin state. The trace contains no
// timings or session ids, so a scenario always produces the same
// bytes.
func (r Runner) Run(sc *Scenario) (string, error) {
	trace, _, err := r.RunWithSnapshot(sc)
	return trace, err
}

// RunWithSnapshot is Run plus the session's profile export.
func (r Runner) RunWithSnapshot(sc *Scenario) (string, *SessionSnapshot, error) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	pol := policy.Default()
	if sc.Policy != "" {
		var err error
		pol, err = policy.Parse(sc.Policy, sc.Name+".policy")
		if err != nil {
			return "", nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
	}

	fc := feedback.NewCollector()
	prof := profile.New(pol.ProfilerOptions()...)
	interp := NewInterp(prof)
	opts := append(pol.ManagerOptions(), tier.WithLogger(log))
	mgr := tier.NewManager(interp, fc, prof, opts...)
	interp.Bind(mgr)

	env := &tier.Env{Globals: map[string]value.Value{}}
	for _, p := range sc.Procedures {
		tree, err := p.Tree()
		if err != nil {
			return "", nil, fmt.Errorf("scenario %s: proc %s: %w", sc.Name, p.Name, err)
		}
		if _, err := mgr.Compile(p.Name, tree, env); err != nil {
			return "", nil, fmt.Errorf("scenario %s: compile %s: %w", sc.Name, p.Name, err)
		}
	}

	prof.Start()

	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", sc.Name)

	for i, step := range sc.Drive {
		times := step.Times
		if times <= 0 {
			times = 1
		}
		args := make([]value.Value, len(step.Args))
		for j, a := range step.Args {
			v, err := a.Literal()
			if err != nil {
				prof.Stop()
				return "", nil, fmt.Errorf("scenario %s: drive %d arg %d: %w", sc.Name, i, j, err)
			}
			args[j] = v
		}

		var last value.Value
		var lastErr error
		for n := 0; n < times; n++ {
			last, lastErr = mgr.Invoke(step.Call, args)
		}
		if lastErr != nil {
			fmt.Fprintf(&b, "call %s(%s) x%d -> error: %v\n",
				step.Call, renderArgs(args), times, lastErr)
			continue
		}
		fmt.Fprintf(&b, "call %s(%s) x%d -> %s\n",
			step.Call, renderArgs(args), times, render(last))
	}

	for _, name := range mgr.Procs() {
		levels := mgr.TierStack(name)
		names := make([]string, len(levels))
		for i, l := range levels {
			names[i] = l.String()
		}
		fmt.Fprintf(&b, "proc %s: tiers=[%s] deopts=%d pinned=%v\n",
			name, strings.Join(names, " "), mgr.DeoptTotal(name), mgr.Pinned(name))
	}

	prof.Stop()
	snap := &SessionSnapshot{
		Snapshot:  profile.Export(prof, fc),
		Retention: pol.Storage.Retention,
	}
	return b.String(), snap, nil
}

func renderArgs(args []value.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = render(a)
	}
	return strings.Join(parts, ", ")
}

// render formats a value deterministically for traces.
func render(v value.Value) string {
	switch val := v.(type) {
	case nil, value.Null:
		return "null"
	case value.Empty:
		return "empty"
	case value.Int:
		return fmt.Sprintf("%d", int64(val))
	case value.Float:
		return fmt.Sprintf("%g", float64(val))
	case value.Str:
		return fmt.Sprintf("%q", string(val))
	case value.Bool:
		return fmt.Sprintf("%t", bool(val))
	case value.Array:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = render(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *value.Object:
		var b strings.Builder
		if val.TypeName != "" {
			b.WriteString(val.TypeName)
		}
		b.WriteString("{")
		for i, name := range val.FieldNames() {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %s", name, render(val.Fields[name]))
		}
		b.WriteString("}")
		return b.String()
	default:
		return fmt.Sprintf("%T", v)
	}
}

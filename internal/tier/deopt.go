package tier

import (
	"fmt"

	"github.com/tern-lang/tern/internal/value"
)

// DeoptError signals that a specialized tier's runtime assumption was
// violated. It travels through the ordinary error return of the call
// boundary - deoptimization is control flow with a visible cost, not a
// hidden exception - and is always caught at the manager boundary. A
// caller only ever sees it if the deopt ceiling logic is bypassed.
type DeoptError struct {
	Proc     string
	Key      string // feedback key whose assumption failed
	Expected value.Tag
	Actual   value.Tag
}

func (e *DeoptError) Error() string {
	return fmt.Sprintf("deopt %s: %s expected %s, saw %s", e.Proc, e.Key, e.Expected, e.Actual)
}

// paramGuard is one specialization assumption checked on entry to a
// guarded tier.
type paramGuard struct {
	index int
	key   string
	tag   value.Tag
}

// check verifies the guards against actual arguments, reporting the
// first violated assumption.
func checkGuards(proc string, guards []paramGuard, args []value.Value) error {
	for _, g := range guards {
		if g.index >= len(args) {
			continue
		}
		actual := value.TagOf(args[g.index])
		if actual != g.tag {
			return &DeoptError{Proc: proc, Key: g.key, Expected: g.tag, Actual: actual}
		}
	}
	return nil
}
